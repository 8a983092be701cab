// Package classifier sends camera frames to a hosted multimodal model and
// decodes the household objects it reports.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/rcliao/movemate/internal/model"
)

// Instruction is the fixed prompt sent with every frame.
const Instruction = "Analyze this image and list all distinct household objects visible that would need to be packed for moving. " +
	"For each item, provide a name, a category (e.g., Electronics, Furniture, Decor, Kitchenware), and its fragility level (Low, Medium, or High)."

// ErrEmptyImage is reported when Detect is called without image data.
var ErrEmptyImage = errors.New("empty image")

// Provider issues one recognition request to a hosted model and returns
// the raw JSON array text the model produced.
type Provider interface {
	Name() string
	Generate(ctx context.Context, image []byte, mimeType string) ([]byte, error)
}

// Result is the outcome of one Detect call. Items is always empty when
// Err is set; Err is informational only.
type Result struct {
	Items   []model.DetectedItem
	Err     error
	Elapsed time.Duration
}

// Adapter wraps a Provider so that every failure collapses to an empty
// detection list.
type Adapter struct {
	provider Provider
	logger   log.Logger
}

// NewAdapter returns an Adapter. A nil logger discards output.
func NewAdapter(p Provider, logger log.Logger) *Adapter {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Adapter{provider: p, logger: log.With(logger, "component", "classifier", "provider", p.Name())}
}

// Detect classifies one encoded still image. It never retries.
func (a *Adapter) Detect(ctx context.Context, image []byte) Result {
	start := time.Now()
	if len(image) == 0 {
		return Result{Err: ErrEmptyImage}
	}

	raw, err := a.provider.Generate(ctx, image, sniffMIME(image))
	if err == nil {
		var items []model.DetectedItem
		items, err = ParseDetections(raw)
		if err == nil {
			elapsed := time.Since(start)
			level.Debug(a.logger).Log("msg", "frame classified", "items", len(items), "elapsed", elapsed)
			return Result{Items: items, Elapsed: elapsed}
		}
	}

	elapsed := time.Since(start)
	level.Warn(a.logger).Log("msg", "classification failed", "err", err, "elapsed", elapsed)
	return Result{Err: err, Elapsed: elapsed}
}

func sniffMIME(image []byte) string {
	if ct := http.DetectContentType(image); ct == "image/png" {
		return ct
	}
	return "image/jpeg"
}

// ParseDetections decodes a model response. The response must be a JSON
// array of objects that each carry string name, category and fragility
// fields; any violation rejects the whole response. A surrounding
// Markdown code fence is tolerated.
func ParseDetections(raw []byte) ([]model.DetectedItem, error) {
	raw = stripFence(bytes.TrimSpace(raw))
	if len(raw) == 0 {
		return nil, errors.New("empty response")
	}
	if raw[0] != '[' {
		return nil, errors.New("decode detections: response is not a JSON array")
	}

	var objs []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &objs); err != nil {
		return nil, fmt.Errorf("decode detections: %w", err)
	}

	items := make([]model.DetectedItem, 0, len(objs))
	for i, o := range objs {
		if o == nil {
			return nil, fmt.Errorf("detection %d: not an object", i)
		}
		var d model.DetectedItem
		for _, f := range []struct {
			key string
			dst *string
		}{{"name", &d.Name}, {"category", &d.Category}, {"fragility", &d.Fragility}} {
			v, ok := o[f.key]
			if !ok {
				return nil, fmt.Errorf("detection %d: missing %q", i, f.key)
			}
			v = bytes.TrimSpace(v)
			if len(v) == 0 || v[0] != '"' {
				return nil, fmt.Errorf("detection %d: %q is not a string", i, f.key)
			}
			if err := json.Unmarshal(v, f.dst); err != nil {
				return nil, fmt.Errorf("detection %d: %q: %w", i, f.key, err)
			}
		}
		items = append(items, d)
	}
	return items, nil
}

func stripFence(b []byte) []byte {
	if !bytes.HasPrefix(b, []byte("```")) {
		return b
	}
	b = b[3:]
	if nl := bytes.IndexByte(b, '\n'); nl >= 0 {
		b = b[nl+1:]
	}
	b = bytes.TrimSpace(b)
	return bytes.TrimSpace(bytes.TrimSuffix(b, []byte("```")))
}

// schema is the subset of JSON Schema / OpenAPI schema the providers need.
type schema struct {
	Type                 string             `json:"type"`
	Description          string             `json:"description,omitempty"`
	Items                *schema            `json:"items,omitempty"`
	Properties           map[string]*schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	AdditionalProperties *bool              `json:"additionalProperties,omitempty"`
}

// detectionSchema builds the array-of-detections schema. Gemini expects
// upper-case type names; JSON Schema consumers expect lower-case.
func detectionSchema(upper, closed bool) *schema {
	typ := func(s string) string {
		if upper {
			return strings.ToUpper(s)
		}
		return s
	}
	item := &schema{
		Type: typ("object"),
		Properties: map[string]*schema{
			"name":      {Type: typ("string")},
			"category":  {Type: typ("string")},
			"fragility": {Type: typ("string"), Description: "One of: Low, Medium, High"},
		},
		Required: []string{"name", "category", "fragility"},
	}
	if closed {
		f := false
		item.AdditionalProperties = &f
	}
	return &schema{Type: typ("array"), Items: item}
}

// Options selects and configures a Provider.
type Options struct {
	Provider string // gemini, openai or ollama
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// NewProvider builds the Provider named by opts.Provider.
func NewProvider(opts Options) (Provider, error) {
	client := &http.Client{Timeout: opts.Timeout}
	if opts.Timeout <= 0 {
		client.Timeout = 60 * time.Second
	}

	switch strings.ToLower(opts.Provider) {
	case "", "gemini":
		if opts.APIKey == "" {
			return nil, errors.New("gemini provider requires an API key")
		}
		return NewGemini(opts.BaseURL, opts.APIKey, opts.Model, client), nil
	case "openai":
		return NewOpenAI(opts.BaseURL, opts.APIKey, opts.Model, client), nil
	case "ollama":
		return NewOllama(opts.BaseURL, opts.Model, client), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (use gemini, openai or ollama)", opts.Provider)
	}
}
