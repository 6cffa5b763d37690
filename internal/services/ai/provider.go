package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Role is the author of a message sent to the model
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation sent to the model
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a single model call. System carries grounding instructions and
// context; Messages is the conversation, oldest first, ending with the current turn.
type CompletionRequest struct {
	Operation string // used for logging only
	System    string
	Messages  []Message
	// JSON asks the provider for a JSON object response when it supports one
	JSON bool
}

// StreamEventType identifies a streaming event
type StreamEventType string

const (
	StreamEventBlockStart StreamEventType = "content_block_start"
	StreamEventDelta      StreamEventType = "content_block_delta"
	StreamEventBlockStop  StreamEventType = "content_block_stop"
	StreamEventDone       StreamEventType = "message_stop"
	StreamEventError      StreamEventType = "error"
)

// StreamEvent is one element of a model token stream. The channel carrying events is
// closed by the provider after a Done or Error event, or when the context is cancelled.
type StreamEvent struct {
	Type    StreamEventType
	Content string
	Err     error
}

// ModelProvider is a generative model backend
type ModelProvider interface {
	// Name identifies the provider in logs
	Name() string

	// Complete returns the full text of one completion
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Stream starts a completion and returns its events in arrival order. Cancelling ctx
	// aborts the upstream call and closes the channel.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)
}

// ProviderConfig carries provider credentials and options. Fields a provider does not
// use are ignored.
type ProviderConfig struct {
	APIKey   string
	Model    string
	BaseURL  string
	Project  string // Gemini on Vertex AI
	Location string // Gemini on Vertex AI
	Logger   *zap.Logger
	Debug    bool
}

// ProviderFactory creates a model provider
type ProviderFactory func(cfg ProviderConfig) (ModelProvider, error)

// ProviderRegistry stores available model providers
type ProviderRegistry struct {
	providers map[string]ProviderFactory
}

// NewProviderRegistry creates a new provider registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]ProviderFactory),
	}
}

// Register registers a provider factory
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) {
	r.providers[name] = factory
}

// Names returns the registered provider names in sorted order
func (r *ProviderRegistry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetProvider gets a provider by name
func (r *ProviderRegistry) GetProvider(name string, cfg ProviderConfig) (ModelProvider, error) {
	factory, ok := r.providers[name]
	if !ok {
		return nil, &ErrProviderNotFound{Name: name, Available: r.Names()}
	}

	provider, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", name, err)
	}
	return provider, nil
}

// ErrProviderNotFound is returned when a provider is not found
type ErrProviderNotFound struct {
	Name      string
	Available []string
}

func (e *ErrProviderNotFound) Error() string {
	return fmt.Sprintf("AI provider not found: %s (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// DefaultRegistry returns a registry with every built-in provider registered
func DefaultRegistry() *ProviderRegistry {
	registry := NewProviderRegistry()
	RegisterOpenAI(registry)
	RegisterGemini(registry)
	return registry
}
