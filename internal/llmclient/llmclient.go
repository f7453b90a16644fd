// Package llmclient wraps an OpenAI-compatible chat/vision API behind a
// small interface, using the teacher's functional-options constructor idiom
// (WithAPIKey/WithBaseURL/WithHTTPClient/WithTimeout) over a real SDK client
// instead of the teacher's hand-rolled HTTP+SSE transport.
package llmclient

import (
	"context"
	"encoding/base64"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// DefaultTimeout bounds a single chat/vision call.
const DefaultTimeout = 60 * time.Second

// Message is one chat turn sent to the model.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
	// ImagePath, if set, is attached as an image_url content part
	// (base64 data URL) alongside Content for vision calls.
	ImagePath string
}

// Response is the normalized result of a chat completion call.
type Response struct {
	Content      string
	InputTokens  int64
	OutputTokens int64
	LatencyMs    int64
}

// Client is the minimal surface the worker handlers need.
type Client interface {
	Chat(ctx context.Context, model string, messages []Message) (*Response, error)
}

// openAIClient adapts openai-go's client to Client.
type openAIClient struct {
	sdk     openai.Client
	timeout time.Duration
}

// Option configures a Client constructed by New.
type Option func(*config)

type config struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// WithAPIKey sets the bearer credential. Falls back to LLM_API_KEY if unset.
func WithAPIKey(key string) Option { return func(c *config) { c.apiKey = key } }

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option { return func(c *config) { c.baseURL = url } }

// WithHTTPClient overrides the transport (timeouts, proxies, test doubles).
func WithHTTPClient(hc *http.Client) Option { return func(c *config) { c.httpClient = hc } }

// WithTimeout overrides DefaultTimeout for the per-call context deadline.
func WithTimeout(d time.Duration) Option { return func(c *config) { c.timeout = d } }

// New builds a Client against an OpenAI-compatible API.
func New(opts ...Option) Client {
	cfg := &config{
		apiKey:  os.Getenv("LLM_API_KEY"),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	sdkOpts := []option.RequestOption{option.WithAPIKey(cfg.apiKey)}
	if cfg.baseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(cfg.httpClient))
	}

	return &openAIClient{sdk: openai.NewClient(sdkOpts...), timeout: cfg.timeout}
}

// Chat sends messages to model and returns the first choice's content.
func (c *openAIClient) Chat(ctx context.Context, model string, messages []Message) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}

	for _, m := range messages {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			if m.ImagePath != "" {
				dataURL, err := toDataURL(m.ImagePath)
				if err != nil {
					return nil, err
				}
				params.Messages = append(params.Messages, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
					openai.TextContentPart(m.Content),
					openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
				}))
			} else {
				params.Messages = append(params.Messages, openai.UserMessage(m.Content))
			}
		}
	}

	completion, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}

	resp := &Response{LatencyMs: time.Since(start).Milliseconds()}
	if len(completion.Choices) > 0 {
		resp.Content = completion.Choices[0].Message.Content
	}
	resp.InputTokens = completion.Usage.PromptTokens
	resp.OutputTokens = completion.Usage.CompletionTokens
	return resp, nil
}

func toDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(path[strings.LastIndex(path, ".")+1:])
	mediaType := "image/jpeg"
	if ext == "png" {
		mediaType = "image/png"
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// StripJSONFence removes a leading/trailing ```json fence from an LLM
// response before json.Unmarshal, matching the teacher's
// parseExtractionResult behaviour.
func StripJSONFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
