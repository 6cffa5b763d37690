package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// DefaultGeminiModel is the default Gemini model
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiProvider implements ModelProvider on Google's Gemini API or Vertex AI
type GeminiProvider struct {
	client    *genai.Client
	model     string
	logger    *zap.Logger
	debugMode bool
}

var _ ModelProvider = (*GeminiProvider)(nil)

// NewGeminiProvider creates a Gemini provider. An API key selects the Gemini API backend;
// otherwise project and location select Vertex AI with application default credentials.
func NewGeminiProvider(ctx context.Context, cfg ProviderConfig) (*GeminiProvider, error) {
	clientCfg := &genai.ClientConfig{}
	switch {
	case cfg.APIKey != "":
		clientCfg.APIKey = cfg.APIKey
		clientCfg.Backend = genai.BackendGeminiAPI
	case cfg.Project != "" && cfg.Location != "":
		clientCfg.Project = cfg.Project
		clientCfg.Location = cfg.Location
		clientCfg.Backend = genai.BackendVertexAI
	default:
		return nil, fmt.Errorf("gemini requires an api key or a project and location")
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiProvider{client: client, model: model, logger: cfg.Logger, debugMode: cfg.Debug}, nil
}

// Name implements ModelProvider
func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) buildRequest(req CompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		role := genai.Role(genai.RoleUser)
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	return contents, cfg
}

// Complete implements ModelProvider
func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	logRequest(ctx, p.logger, p.debugMode, p.Name(), p.model, req)

	contents, cfg := p.buildRequest(req)
	start := time.Now()
	res, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	latency := time.Since(start)
	if err != nil {
		logError(ctx, p.logger, p.debugMode, p.Name(), p.model, req.Operation, err, latency)
		return "", fmt.Errorf("failed to %s: %w", operationLabel(req), wrapGeminiError(err))
	}

	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty text")
	}
	logResponse(ctx, p.logger, p.debugMode, p.Name(), p.model, req.Operation, text, latency)
	return text, nil
}

// Stream implements ModelProvider
func (p *GeminiProvider) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	logRequest(ctx, p.logger, p.debugMode, p.Name(), p.model, req)

	contents, cfg := p.buildRequest(req)
	events := make(chan StreamEvent)

	go func() {
		defer close(events)

		start := time.Now()
		block := blockTracker{ctx: ctx, events: events}
		for res, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, cfg) {
			if err != nil {
				logError(ctx, p.logger, p.debugMode, p.Name(), p.model, req.Operation, err, time.Since(start))
				send(ctx, events, StreamEvent{Type: StreamEventError, Err: fmt.Errorf("failed to stream %s: %w", operationLabel(req), wrapGeminiError(err))})
				return
			}
			delta := res.Text()
			if delta == "" {
				continue
			}
			if !block.delta(delta) {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		if block.stop() {
			send(ctx, events, StreamEvent{Type: StreamEventDone})
		}
	}()

	return events, nil
}

func wrapGeminiError(err error) error {
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		code := gErr.Status
		if gErr.Code == 429 && code == "RESOURCE_EXHAUSTED" && containsQuota(gErr.Message) {
			code = "RESOURCE_EXHAUSTED_QUOTA"
		}
		return newAPIError(gErr.Code, gErr.Status, code, gErr.Message, err)
	}
	return err
}

func containsQuota(message string) bool {
	return IsQuotaError(errors.New(message))
}

// RegisterGemini registers the Gemini provider with the registry
func RegisterGemini(registry *ProviderRegistry) {
	registry.Register("gemini", func(cfg ProviderConfig) (ModelProvider, error) {
		return NewGeminiProvider(context.Background(), cfg)
	})
}
