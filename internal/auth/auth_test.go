package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bilgisen/anitory/internal/models"
	"github.com/rs/zerolog"
)

func TestMapProviderError(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"INVALID_EMAIL", "Invalid email address format."},
		{"USER_DISABLED", "This user has been disabled."},
		{"EMAIL_NOT_FOUND", "No user found with this email."},
		{"INVALID_PASSWORD", "Incorrect password or credentials."},
		{"INVALID_LOGIN_CREDENTIALS", "Incorrect password or credentials."},
		{"EMAIL_EXISTS", "Email is already in use."},
		{"WEAK_PASSWORD : Password should be at least 6 characters", "Password should be at least 6 characters."},
		{"TOO_MANY_ATTEMPTS_TRY_LATER : Try again later.", "Try again later."},
		{"OPERATION_NOT_ALLOWED", "Authentication failed. Please try again."},
		{"", "Authentication failed. Please try again."},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			if got := mapProviderError(tc.in).Message; got != tc.want {
				t.Errorf("mapProviderError(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSessionsIssueVerify(t *testing.T) {
	s := NewSessions("secret", time.Hour)

	token, err := s.Issue(Identity{UID: "u1", Email: "a@b.com", DisplayName: "Ana"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := s.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.UID != "u1" || claims.Email != "a@b.com" || claims.DisplayName != "Ana" {
		t.Errorf("Unexpected claims %+v", claims)
	}

	if _, err := NewSessions("other", time.Hour).Verify(token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("Expected ErrInvalidSession for wrong secret, got %v", err)
	}
	if _, err := s.Verify(""); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("Expected ErrInvalidSession for empty token, got %v", err)
	}
}

func TestSessionsExpire(t *testing.T) {
	s := NewSessions("secret", time.Minute)
	issued := time.Now()
	s.now = func() time.Time { return issued }

	token, _ := s.Issue(Identity{UID: "u1"})

	s.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := s.Verify(token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("Expected expired token to be rejected, got %v", err)
	}
}

// fakeIdentityServer emulates the identity REST API.
func fakeIdentityServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req accountRequest
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &req)
		w.Header().Set("Content-Type", "application/json")

		fail := func(msg string) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 400, "message": msg}})
		}

		switch {
		case strings.HasSuffix(r.URL.Path, "accounts:signUp"):
			if req.Email == "taken@b.com" {
				fail("EMAIL_EXISTS")
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"localId": "uid-new", "email": req.Email, "idToken": "tok"})
		case strings.HasSuffix(r.URL.Path, "accounts:signInWithPassword"):
			if req.Password != "right" {
				fail("INVALID_LOGIN_CREDENTIALS")
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"localId": "uid-1", "email": req.Email, "displayName": "Ana", "idToken": "tok"})
		case strings.HasSuffix(r.URL.Path, "accounts:update"):
			_ = json.NewEncoder(w).Encode(map[string]any{"localId": "uid-new", "displayName": req.DisplayName})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fakeProfiles struct {
	calls []string
}

func (f *fakeProfiles) GetUserProfile(ctx context.Context, uid, email, displayName string) (*models.UserProfile, error) {
	f.calls = append(f.calls, uid+"|"+email+"|"+displayName)
	u := models.NewUserProfile(uid, email, displayName)
	return &u, nil
}

func newTestService(t *testing.T) (*Service, *fakeProfiles) {
	srv := fakeIdentityServer(t)
	profiles := &fakeProfiles{}
	client := NewIdentityClient("key", time.Second).SetBaseURL(srv.URL)
	return NewService(client, profiles, NewSessions("secret", time.Hour), zerolog.Nop()), profiles
}

func TestSignUpCreatesProfile(t *testing.T) {
	svc, profiles := newTestService(t)

	res, err := svc.SignUp(context.Background(), " new@b.com ", "secret1", "")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if res.Profile.Name != models.DefaultName {
		t.Errorf("Expected default name, got %q", res.Profile.Name)
	}
	if len(profiles.calls) != 1 || profiles.calls[0] != "uid-new|new@b.com|Storyteller" {
		t.Errorf("Unexpected profile lookups %v", profiles.calls)
	}

	claims, err := svc.Verify(res.Token)
	if err != nil || claims.UID != "uid-new" {
		t.Errorf("Expected a valid session for uid-new, got %+v (%v)", claims, err)
	}
}

func TestSignUpWithName(t *testing.T) {
	svc, _ := newTestService(t)

	res, err := svc.SignUp(context.Background(), "n@b.com", "secret1", "Jane")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if res.Profile.Name != "Jane" {
		t.Errorf("Expected Jane, got %q", res.Profile.Name)
	}
	claims, _ := svc.Verify(res.Token)
	if claims.DisplayName != "Jane" {
		t.Errorf("Expected display name in session, got %q", claims.DisplayName)
	}
}

func TestSignUpEmailInUse(t *testing.T) {
	svc, profiles := newTestService(t)

	_, err := svc.SignUp(context.Background(), "taken@b.com", "secret1", "")
	var authErr *Error
	if !errors.As(err, &authErr) || authErr.Message != "Email is already in use." {
		t.Errorf("Expected email in use error, got %v", err)
	}
	if len(profiles.calls) != 0 {
		t.Error("Profile must not be created on failed sign up")
	}
}

func TestSignIn(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.SignIn(ctx, "a@b.com", "right")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if res.Profile.Name != "Ana" {
		t.Errorf("Expected profile named after display name, got %q", res.Profile.Name)
	}

	_, err = svc.SignIn(ctx, "a@b.com", "wrong")
	if err == nil || err.Error() != "Incorrect password or credentials." {
		t.Errorf("Expected credentials error, got %v", err)
	}
}
