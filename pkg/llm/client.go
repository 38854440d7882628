// Package llm is the strict-JSON extraction client. It asks the model for
// JSON only, validates the output against a schema, and issues at most one
// repair call carrying the validation error before giving up.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	openai "github.com/sashabaranov/go-openai"

	"github.com/revcrew/leadflow/pkg/pipeline"
)

// DefaultMaxInputChars bounds the user prompt size before truncation.
const DefaultMaxInputChars = 48000

const elisionMarker = "\n\n[--- middle truncated ---]\n\n"

// Config configures the LLM client.
type Config struct {
	APIKey        string
	Model         string
	BaseURL       string // override for tests
	MaxInputChars int
}

// Client wraps the chat-completion API with the validate-and-repair loop.
type Client struct {
	api           *openai.Client
	model         string
	maxInputChars int
	logger        *slog.Logger
}

// NewClient builds an LLM client.
func NewClient(cfg Config) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	maxChars := cfg.MaxInputChars
	if maxChars <= 0 {
		maxChars = DefaultMaxInputChars
	}
	return &Client{
		api:           openai.NewClientWithConfig(apiCfg),
		model:         cfg.Model,
		maxInputChars: maxChars,
		logger:        slog.Default().With("component", "llm-client"),
	}
}

// Extract runs the two-attempt generate/validate/repair flow and decodes the
// validated object into out. Schema failures after repair are permanent with
// reason llm_schema_invalid; transport failures are transient and surface to
// the queue for retry.
func (c *Client) Extract(ctx context.Context, systemPrompt, userPrompt string, schema *jsonschema.Schema, out any) error {
	userPrompt = Truncate(userPrompt, c.maxInputChars)

	raw, err := c.generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		return err
	}
	candidate := ExtractJSONObject(raw)

	doc, validationErr := parseAndValidate(candidate, schema)
	if validationErr == nil {
		return decodeInto(doc, out)
	}
	c.logger.Warn("LLM output failed validation, attempting repair", "error", validationErr)

	repairPrompt := fmt.Sprintf(
		"Fix this JSON to match the schema exactly. Output JSON only.\n\n"+
			"Validation errors:\n%s\n\nInvalid JSON:\n%s",
		clip(validationErr.Error(), 1200), candidate)

	raw, err = c.generate(ctx, systemPrompt, repairPrompt)
	if err != nil {
		return err
	}
	candidate = ExtractJSONObject(raw)

	doc, validationErr = parseAndValidate(candidate, schema)
	if validationErr != nil {
		return pipeline.Permanent("llm_schema_invalid", validationErr)
	}
	c.logger.Info("LLM output repaired on second attempt")
	return decodeInto(doc, out)
}

// generate performs one chat completion and returns the assistant text.
func (c *Client) generate(ctx context.Context, system, user string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.3,
		MaxTokens:   8192,
	})
	if err != nil {
		return "", classifyTransportError(err)
	}
	if len(resp.Choices) == 0 {
		return "", pipeline.Transientf("llm returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyTransportError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if classified := pipeline.ClassifyHTTPStatus(apiErr.HTTPStatusCode, apiErr.Message); classified != nil {
			return classified
		}
		return pipeline.Transient("llm api error", err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if classified := pipeline.ClassifyHTTPStatus(reqErr.HTTPStatusCode, reqErr.Error()); classified != nil {
			return classified
		}
	}
	return pipeline.Transient("calling llm", err)
}

// parseAndValidate parses candidate JSON and validates it against schema.
// Nulls become empty strings first, matching what the schema expects from a
// model that emits null for unknown fields. A single-key wrapper object is
// unwrapped when the root itself does not validate.
func parseAndValidate(candidate string, schema *jsonschema.Schema) (any, error) {
	var doc any
	if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
		return nil, fmt.Errorf("parsing llm output: %w", err)
	}
	doc = nullsToEmpty(doc)

	rootErr := schema.Validate(doc)
	if rootErr == nil {
		return doc, nil
	}

	if m, ok := doc.(map[string]any); ok && len(m) == 1 {
		for _, v := range m {
			if inner, ok := v.(map[string]any); ok {
				inner = nullsToEmpty(inner).(map[string]any)
				if err := schema.Validate(any(inner)); err == nil {
					return inner, nil
				}
			}
		}
	}
	return nil, rootErr
}

func nullsToEmpty(doc any) any {
	m, ok := doc.(map[string]any)
	if !ok {
		return doc
	}
	for k, v := range m {
		if v == nil {
			m[k] = ""
		}
	}
	return m
}

func decodeInto(doc, out any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return pipeline.Permanent("encoding validated llm output", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return pipeline.Permanent("decoding validated llm output", err)
	}
	return nil
}

// ExtractJSONObject pulls a single JSON object out of model text, tolerating
// a fenced code block around it. Brace matching finds the object bounds.
func ExtractJSONObject(text string) string {
	s := strings.TrimSpace(text)

	if strings.HasPrefix(s, "```") {
		if end := strings.Index(s[3:], "```"); end >= 0 {
			s = strings.TrimSpace(s[3 : 3+end])
			s = strings.TrimPrefix(s, "json")
			s = strings.TrimPrefix(s, "JSON")
			s = strings.TrimSpace(s)
		}
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return s
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	if end := strings.LastIndexByte(s, '}'); end > start {
		return s[start : end+1]
	}
	return s
}

// Truncate bounds s to max characters keeping the head and tail halves with
// an elision marker between. Deterministic for a given input.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	half := max / 2
	return s[:half] + elisionMarker + s[len(s)-half:]
}

func clip(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "...(truncated)"
}
