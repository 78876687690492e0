package ai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/christopherklint97/billr/internal/logging"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

type OpenAIOptions struct {
	APIKey  string
	BaseURL string
	Model   string
	// MaxRetries bounds the SDK's exponential backoff for connection
	// errors, 408, 409, 429 and 5xx responses.
	MaxRetries int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OpenAI generates through the chat completions API.
type OpenAI struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

func NewOpenAI(opts OpenAIOptions, logger *slog.Logger) *OpenAI {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Model == "" {
		opts.Model = string(openai.ChatModelGPT4o)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	return &OpenAI{
		client: openai.NewClient(reqOpts...),
		model:  opts.Model,
		logger: logger,
	}
}

func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	o.logger.Debug("invoking chat completion",
		"model", o.model,
		"system_prompt_len", len(req.System),
		"prompt_len", len(req.Prompt),
		"max_tokens", req.MaxTokens,
	)

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params)
	elapsed := time.Since(start)
	if err != nil {
		o.logger.Error("chat completion failed", "error", err, "elapsed", elapsed)
		return "", &GenerationError{Provider: "openai", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &GenerationError{Provider: "openai", Err: fmt.Errorf("response contained no choices")}
	}

	choice := resp.Choices[0]
	o.logger.Debug("chat completion finished",
		"elapsed", elapsed,
		"finish_reason", choice.FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	if choice.FinishReason == "length" {
		o.logger.Warn("response truncated at max_tokens; output is likely incomplete JSON", "max_tokens", req.MaxTokens)
	}
	return choice.Message.Content, nil
}
