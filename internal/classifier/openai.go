package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OpenAIProvider uses any OpenAI-compatible chat completions API with
// image input and structured output.
type OpenAIProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

type openaiContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type openaiMessage struct {
	Role    string              `json:"role"`
	Content []openaiContentPart `json:"content"`
}

type openaiJSONSchema struct {
	Name   string  `json:"name"`
	Strict bool    `json:"strict"`
	Schema *schema `json:"schema"`
}

type openaiChatRequest struct {
	Model          string          `json:"model"`
	Messages       []openaiMessage `json:"messages"`
	ResponseFormat struct {
		Type       string           `json:"type"`
		JSONSchema openaiJSONSchema `json:"json_schema"`
	} `json:"response_format"`
}

type openaiChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
}

// NewOpenAI creates a provider for an OpenAI-compatible API.
func NewOpenAI(baseURL, apiKey, model string, client *http.Client) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAIProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  client,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Generate asks for {"items": [...]} since structured output needs an
// object at the root, and returns the inner array.
func (p *OpenAIProvider) Generate(ctx context.Context, image []byte, mimeType string) ([]byte, error) {
	img := openaiContentPart{Type: "image_url", ImageURL: &struct {
		URL string `json:"url"`
	}{URL: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)}}

	closed := false
	var r openaiChatRequest
	r.Model = p.model
	r.Messages = []openaiMessage{{
		Role:    "user",
		Content: []openaiContentPart{{Type: "text", Text: Instruction}, img},
	}}
	r.ResponseFormat.Type = "json_schema"
	r.ResponseFormat.JSONSchema = openaiJSONSchema{
		Name:   "packing_items",
		Strict: true,
		Schema: &schema{
			Type:                 "object",
			Properties:           map[string]*schema{"items": detectionSchema(false, true)},
			Required:             []string{"items"},
			AdditionalProperties: &closed,
		},
	}

	body, _ := json.Marshal(r)
	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("openai error %d: %s", resp.StatusCode, string(b))
	}

	var result openaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode openai response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}
	msg := result.Choices[0].Message
	if msg.Refusal != "" {
		return nil, fmt.Errorf("openai refused: %s", msg.Refusal)
	}

	var wrapped struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(stripFence([]byte(strings.TrimSpace(msg.Content))), &wrapped); err != nil {
		return nil, fmt.Errorf("decode openai content: %w", err)
	}
	if len(wrapped.Items) == 0 {
		return nil, fmt.Errorf("openai content has no items field")
	}
	return wrapped.Items, nil
}
