package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bilgisen/anitory/internal/metrics"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// ErrUnavailable is the single failure surfaced to callers of the AI layer;
// rate limits, network errors and malformed responses all map to it.
var (
	ErrUnavailable   = errors.New("Failed to process text with AI.")
	ErrUnknownAction = errors.New("Unknown AI action.")
)

const (
	DefaultModel   = "gemini-2.5-flash"
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

	noResearchText     = "No information found."
	failedResearchText = "Failed to retrieve information."
)

// Source is a web citation returned with a grounded answer.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Research is the answer of GetResearchContext.
type Research struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

type GeminiClient struct {
	client  *resty.Client
	apiKey  string
	model   string
	baseURL string
	log     zerolog.Logger
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
	Tools    []geminiTool    `json:"tools,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		GroundingMetadata *struct {
			GroundingChunks []struct {
				Web *struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// text joins the text parts of the first candidate.
func (r *geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func (r *geminiResponse) sources() []Source {
	if len(r.Candidates) == 0 || r.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var out []Source
	for _, chunk := range r.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk.Web != nil {
			out = append(out, Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
		}
	}
	return out
}

func NewGeminiClient(apiKey, model string, timeout time.Duration, log zerolog.Logger) *GeminiClient {
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiClient{
		client:  resty.New().SetTimeout(timeout),
		apiKey:  apiKey,
		model:   model,
		baseURL: DefaultBaseURL,
		log:     log,
	}
}

// SetBaseURL points the client at another endpoint.
func (g *GeminiClient) SetBaseURL(url string) *GeminiClient {
	g.baseURL = strings.TrimRight(url, "/")
	return g
}

// GenerateStoryEnhancement applies action to text and returns the trimmed
// result, or text itself when the model answers with nothing. Unknown actions
// fail with ErrUnknownAction before any request is made.
func (g *GeminiClient) GenerateStoryEnhancement(ctx context.Context, text string, action Action) (string, error) {
	if !action.Valid() {
		return "", ErrUnknownAction
	}
	if text == "" {
		return "", nil
	}

	prompt, err := BuildActionPrompt(action, text)
	if err != nil {
		return "", err
	}

	resp, err := g.callGeminiAPI(ctx, string(action), prompt, false)
	if err != nil {
		g.log.Error().Err(err).Str("action", string(action)).Msg("Gemini API error")
		return "", ErrUnavailable
	}

	result := cleanText(resp.text())
	if action == ActionTitle {
		result = cleanTitle(result)
	}
	if result == "" {
		return text, nil
	}
	return result, nil
}

// SuggestTags asks for 3 to 5 tags. Failures yield an empty list.
func (g *GeminiClient) SuggestTags(ctx context.Context, text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{}
	}
	resp, err := g.callGeminiAPI(ctx, "TAGS", BuildTagsPrompt(text), false)
	if err != nil {
		g.log.Error().Err(err).Msg("Gemini API error (tags)")
		return []string{}
	}
	return ParseTags(cleanText(resp.text()))
}

// GetResearchContext answers query with web search grounding. It never
// fails; errors produce a fixed message with no sources.
func (g *GeminiClient) GetResearchContext(ctx context.Context, query string) Research {
	resp, err := g.callGeminiAPI(ctx, "RESEARCH", BuildResearchPrompt(query), true)
	if err != nil {
		g.log.Error().Err(err).Str("query", query).Msg("Gemini search error")
		return Research{Text: failedResearchText, Sources: []Source{}}
	}

	text := strings.TrimSpace(resp.text())
	if text == "" {
		text = noResearchText
	}
	return Research{Text: text, Sources: dedupSources(resp.sources())}
}

func (g *GeminiClient) callGeminiAPI(ctx context.Context, action, prompt string, grounded bool) (resp *geminiResponse, err error) {
	start := time.Now()
	defer func() { metrics.AIRequest(action, time.Since(start), err) }()

	url := fmt.Sprintf("%s/%s:generateContent", g.baseURL, g.model)

	req := geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{{
				Text: prompt,
			}},
		}},
	}
	if grounded {
		req.Tools = []geminiTool{{GoogleSearch: &struct{}{}}}
	}

	var result geminiResponse
	r, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("key", g.apiKey).
		SetBody(req).
		SetResult(&result).
		SetError(&result).
		Post(url)

	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}

	if result.Error != nil {
		return nil, fmt.Errorf("API error %d (%s): %s", result.Error.Code, result.Error.Status, result.Error.Message)
	}

	if r.IsError() {
		return nil, fmt.Errorf("API returned status %d", r.StatusCode())
	}

	return &result, nil
}
