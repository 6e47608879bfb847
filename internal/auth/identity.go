package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultIdentityURL = "https://identitytoolkit.googleapis.com/v1"

// Identity is a signed-in account as reported by the identity provider.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
	IDToken     string
}

// IdentityClient talks to the hosted email/password identity provider.
type IdentityClient struct {
	client  *resty.Client
	apiKey  string
	baseURL string
}

type accountRequest struct {
	Email             string `json:"email,omitempty"`
	Password          string `json:"password,omitempty"`
	IDToken           string `json:"idToken,omitempty"`
	DisplayName       string `json:"displayName,omitempty"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type accountResponse struct {
	LocalID     string `json:"localId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	IDToken     string `json:"idToken"`
	Error       *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func NewIdentityClient(apiKey string, timeout time.Duration) *IdentityClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &IdentityClient{
		client:  resty.New().SetTimeout(timeout),
		apiKey:  apiKey,
		baseURL: DefaultIdentityURL,
	}
}

// SetBaseURL points the client at another endpoint.
func (c *IdentityClient) SetBaseURL(url string) *IdentityClient {
	c.baseURL = strings.TrimRight(url, "/")
	return c
}

// SignUp creates an email/password account.
func (c *IdentityClient) SignUp(ctx context.Context, email, password string) (*Identity, error) {
	return c.call(ctx, "accounts:signUp", accountRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	})
}

// SignIn verifies an email/password pair.
func (c *IdentityClient) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	return c.call(ctx, "accounts:signInWithPassword", accountRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	})
}

// SetDisplayName updates the account's display name.
func (c *IdentityClient) SetDisplayName(ctx context.Context, idToken, name string) (*Identity, error) {
	return c.call(ctx, "accounts:update", accountRequest{
		IDToken:           idToken,
		DisplayName:       name,
		ReturnSecureToken: true,
	})
}

func (c *IdentityClient) call(ctx context.Context, method string, body accountRequest) (*Identity, error) {
	var result accountResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("key", c.apiKey).
		SetBody(body).
		SetResult(&result).
		SetError(&result).
		Post(c.baseURL + "/" + method)
	if err != nil {
		return nil, fmt.Errorf("identity request failed: %w", err)
	}

	if result.Error != nil {
		return nil, mapProviderError(result.Error.Message)
	}
	if resp.IsError() {
		return nil, &Error{Message: genericMessage}
	}

	return &Identity{
		UID:         result.LocalID,
		Email:       result.Email,
		DisplayName: result.DisplayName,
		IDToken:     result.IDToken,
	}, nil
}
