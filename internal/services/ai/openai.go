package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout bounds non-streaming API calls
	DefaultTimeout = 30 * time.Second

	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = "no choices in response"
)

// OpenAIProvider implements ModelProvider using OpenAI's chat completions API
type OpenAIProvider struct {
	client    openai.Client
	model     string
	logger    *zap.Logger
	debugMode bool
}

var _ ModelProvider = (*OpenAIProvider)(nil)

// NewOpenAIProviderWithLogger creates a new OpenAI provider with logger support.
// The HTTP client has no overall timeout so streams can outlive DefaultTimeout; Complete
// applies DefaultTimeout through its context instead.
func NewOpenAIProviderWithLogger(apiKey string, baseURL string, model string, logger *zap.Logger, debugMode bool) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(&http.Client{}),
		option.WithMaxRetries(0),
	)

	return &OpenAIProvider{
		client:    client,
		model:     model,
		logger:    logger,
		debugMode: debugMode,
	}
}

// Name implements ModelProvider
func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) buildMessages(req CompletionRequest) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	return messages
}

func (p *OpenAIProvider) buildParams(req CompletionRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: p.buildMessages(req),
		// Temperature omitted - some models only accept their default
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

// Complete implements ModelProvider
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	logRequest(ctx, p.logger, p.debugMode, p.Name(), p.model, req)

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(req))
	latency := time.Since(start)
	if err != nil {
		logError(ctx, p.logger, p.debugMode, p.Name(), p.model, req.Operation, err, latency)
		return "", fmt.Errorf("failed to %s: %w", operationLabel(req), wrapOpenAIError(err))
	}
	if len(resp.Choices) == 0 {
		return "", errors.New(ErrNoChoicesInResponse)
	}

	content := resp.Choices[0].Message.Content
	logResponse(ctx, p.logger, p.debugMode, p.Name(), p.model, req.Operation, content, latency)
	return content, nil
}

// Stream implements ModelProvider. Deltas are bracketed by BlockStart and BlockStop; the
// stream ends with a Done event or a single Error event.
func (p *OpenAIProvider) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	logRequest(ctx, p.logger, p.debugMode, p.Name(), p.model, req)

	stream := p.client.Chat.Completions.NewStreaming(ctx, p.buildParams(req))
	events := make(chan StreamEvent)

	go func() {
		defer close(events)
		defer func() { _ = stream.Close() }()

		start := time.Now()
		var length int
		block := blockTracker{ctx: ctx, events: events}
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			length += len(delta)
			if !block.delta(delta) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			logError(ctx, p.logger, p.debugMode, p.Name(), p.model, req.Operation, err, time.Since(start))
			send(ctx, events, StreamEvent{Type: StreamEventError, Err: fmt.Errorf("failed to stream %s: %w", operationLabel(req), wrapOpenAIError(err))})
			return
		}

		if p.logger != nil && p.debugMode {
			p.logger.Debug("llm_stream_complete",
				zap.String("provider", p.Name()),
				zap.String("operation", req.Operation),
				zap.Int("response_length", length),
				zap.Int64("latency_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", ExtractRequestID(ctx)),
			)
		}
		if block.stop() {
			send(ctx, events, StreamEvent{Type: StreamEventDone})
		}
	}()

	return events, nil
}

// send delivers ev unless ctx is cancelled first
func send(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// blockTracker wraps the deltas of one content block in start and stop events
type blockTracker struct {
	ctx     context.Context
	events  chan<- StreamEvent
	started bool
}

func (b *blockTracker) delta(content string) bool {
	if !b.started {
		if !send(b.ctx, b.events, StreamEvent{Type: StreamEventBlockStart}) {
			return false
		}
		b.started = true
	}
	return send(b.ctx, b.events, StreamEvent{Type: StreamEventDelta, Content: content})
}

// stop closes the block if one was opened
func (b *blockTracker) stop() bool {
	if !b.started {
		return true
	}
	return send(b.ctx, b.events, StreamEvent{Type: StreamEventBlockStop})
}

func wrapOpenAIError(err error) error {
	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return newAPIError(oaiErr.StatusCode, oaiErr.Type, oaiErr.Code, oaiErr.Message, err)
	}
	if apiErr := ExtractAPIError(err); apiErr != nil {
		return apiErr
	}
	return err
}

func operationLabel(req CompletionRequest) string {
	if req.Operation == "" {
		return "complete"
	}
	return req.Operation
}

// RegisterOpenAI registers the OpenAI provider with the registry
func RegisterOpenAI(registry *ProviderRegistry) {
	registry.Register("openai", func(cfg ProviderConfig) (ModelProvider, error) {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai api key is required")
		}
		return NewOpenAIProviderWithLogger(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Logger, cfg.Debug), nil
	})
}
