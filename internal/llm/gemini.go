package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// Gemini is a Backend over the Gemini API.
type Gemini struct {
	client *genai.Client
}

// NewGemini builds a Gemini backend. An empty key returns (nil, nil) so the
// caller ends up with an unconfigured Client rather than a hard failure.
func NewGemini(ctx context.Context, apiKey string, hc *http.Client) (*Gemini, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: c}, nil
}

func (g *Gemini) Generate(ctx context.Context, model string, req Request) (string, error) {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, m := range req.History {
		role := genai.RoleUser
		if m.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, genai.Role(role)))
	}
	contents = append(contents, genai.NewContentFromText(req.Prompt, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(req.Temperature)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = req.MaxTokens
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", classifyGemini(model, err)
	}
	return resp.Text(), nil
}

// classifyGemini turns SDK errors into *Error. Anything without an API
// status is left to KindOf.
func classifyGemini(model string, err error) error {
	var code int
	var msg string
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code, msg = apiErr.Code, apiErr.Message
	case errors.As(err, &apiErrPtr):
		code, msg = apiErrPtr.Code, apiErrPtr.Message
	default:
		return &Error{Kind: KindOf(err), Message: err.Error(), Model: model, Err: err}
	}
	if msg == "" {
		msg = http.StatusText(code)
	}
	return &Error{Kind: kindForStatus(code), Message: msg, Model: model, Err: err}
}
