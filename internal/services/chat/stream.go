package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/benvon/finance-advisor/internal/models"
	"github.com/benvon/finance-advisor/internal/services/ai"
	"github.com/benvon/finance-advisor/internal/sse"
	"github.com/benvon/finance-advisor/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Disclaimer is appended to every completed assistant reply
const Disclaimer = "\n\n---\n*This is general information, not personalized financial advice. Consider consulting a licensed financial advisor for decisions specific to your situation.*"

var (
	// ErrStreamTimeout is reported when the model does not finish within the stream timeout
	ErrStreamTimeout = errors.New("model stream timed out")
	// errStreamTruncated is reported when the model stream closes without finishing
	errStreamTruncated = errors.New("model stream ended before completion")
)

// EventSink receives the frames of a streamed turn in order
type EventSink interface {
	Send(f sse.Frame) error
}

// Stream answers turn, relaying model output to sink as it arrives. Failures before the
// model stream opens are returned without writing anything, so the caller can still send
// an ordinary error response. Once the model stream is open every failure ends with an
// error frame and nothing is persisted. On completion the disclaimer is sent as a final
// delta, the reply is stored, and message_stop ends the stream.
//
// Cancelling ctx aborts the model call.
func (s *Service) Stream(ctx context.Context, turn *Turn, sink EventSink) (err error) {
	ctx = ai.WithSessionID(ai.WithUserID(ctx, turn.UserID), turn.Session.ID)
	ctx, span := s.tracer.Start(ctx, "chat.stream", trace.WithAttributes(
		attribute.String("user.id", turn.UserID.String()),
		attribute.String("chat.session_id", turn.Session.ID.String()),
	))
	defer func() { telemetry.EndSpan(span, err) }()

	req, err := s.buildRequest(ctx, turn)
	if err != nil {
		return err
	}

	streamCtx, cancel := context.WithTimeout(ctx, s.cfg.StreamTimeout)
	defer cancel()

	events, err := s.provider.Stream(streamCtx, req)
	if err != nil {
		s.fail(ctx, sink, turn, err)
		return fmt.Errorf("failed to open model stream: %w", err)
	}

	var text strings.Builder
	deltas := 0
	for {
		var ev ai.StreamEvent
		var ok bool
		select {
		case ev, ok = <-events:
		case <-streamCtx.Done():
			ok = false
		}

		if !ok {
			switch {
			case ctx.Err() != nil:
				s.logger.Info("chat_stream_cancelled",
					zap.String("user_id", turn.UserID.String()),
					zap.String("session_id", turn.Session.ID.String()),
					zap.Int("deltas", deltas),
				)
				return ctx.Err()
			case streamCtx.Err() != nil:
				s.fail(ctx, sink, turn, ErrStreamTimeout)
				return ErrStreamTimeout
			default:
				s.fail(ctx, sink, turn, errStreamTruncated)
				return errStreamTruncated
			}
		}

		switch ev.Type {
		case ai.StreamEventDelta:
			text.WriteString(ev.Content)
			deltas++
			if err := sink.Send(sse.Frame{Type: string(ai.StreamEventDelta), Content: ev.Content}); err != nil {
				return fmt.Errorf("failed to relay delta: %w", err)
			}
		case ai.StreamEventBlockStart, ai.StreamEventBlockStop:
			if err := sink.Send(sse.Frame{Type: string(ev.Type)}); err != nil {
				return fmt.Errorf("failed to relay event: %w", err)
			}
		case ai.StreamEventError:
			s.fail(ctx, sink, turn, ev.Err)
			return ev.Err
		case ai.StreamEventDone:
			span.SetAttributes(attribute.Int("chat.deltas", deltas))
			return s.finish(ctx, sink, turn, text.String())
		}
	}
}

// finish sends the disclaimer, stores the reply and ends the stream. The reply is stored
// even if the client has gone, since the model has already produced it.
func (s *Service) finish(ctx context.Context, sink EventSink, turn *Turn, text string) error {
	relayErr := sink.Send(sse.Frame{Type: string(ai.StreamEventDelta), Content: Disclaimer})

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	metadata, err := json.Marshal(map[string]string{"provider": s.provider.Name()})
	if err != nil {
		return fmt.Errorf("failed to marshal message metadata: %w", err)
	}
	msg := &models.ChatMessage{
		ID:        uuid.New(),
		SessionID: turn.Session.ID,
		Role:      models.MessageRoleAssistant,
		Content:   text + Disclaimer,
		Metadata:  metadata,
	}
	if err := s.chats.AppendMessage(persistCtx, msg); err != nil {
		s.logger.Error("chat_reply_persist_failed",
			zap.String("user_id", turn.UserID.String()),
			zap.String("session_id", turn.Session.ID.String()),
			zap.Error(err),
		)
		if relayErr == nil {
			_ = sink.Send(sse.Frame{Type: string(ai.StreamEventError), Error: "Your reply could not be saved. Please try again."})
		}
		return fmt.Errorf("failed to store assistant reply: %w", err)
	}

	if relayErr != nil {
		return fmt.Errorf("failed to relay disclaimer: %w", relayErr)
	}
	if err := sink.Send(sse.Frame{Type: string(ai.StreamEventDone)}); err != nil {
		return fmt.Errorf("failed to relay message stop: %w", err)
	}
	return nil
}

// fail sends the terminal error frame. The frame carries a generic message; the cause is
// only logged.
func (s *Service) fail(ctx context.Context, sink EventSink, turn *Turn, cause error) {
	s.logger.Error("chat_stream_failed",
		zap.String("user_id", turn.UserID.String()),
		zap.String("session_id", turn.Session.ID.String()),
		zap.String("provider", s.provider.Name()),
		zap.String("request_id", ai.ExtractRequestID(ctx)),
		zap.Error(cause),
	)
	if err := sink.Send(sse.Frame{Type: string(ai.StreamEventError), Error: clientMessage(cause)}); err != nil {
		s.logger.Debug("chat_error_frame_dropped", zap.Error(err))
	}
}

func clientMessage(err error) string {
	switch {
	case errors.Is(err, ErrStreamTimeout):
		return "The assistant took too long to respond. Please try again."
	case ai.IsQuotaError(err), ai.IsRateLimitError(err):
		return "The assistant is busy right now. Please try again in a few minutes."
	default:
		return "The assistant could not complete this reply. Please try again."
	}
}

// buildRequest assembles the model request: the financial summary as system context,
// the stored history minus the just-submitted message, and the turn content last
func (s *Service) buildRequest(ctx context.Context, turn *Turn) (ai.CompletionRequest, error) {
	summary, err := s.builder.Build(ctx, turn.UserID)
	if err != nil {
		return ai.CompletionRequest{}, fmt.Errorf("failed to build financial summary: %w", err)
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return ai.CompletionRequest{}, fmt.Errorf("failed to marshal financial summary: %w", err)
	}

	history, err := s.chats.RecentMessages(ctx, turn.Session.ID, s.cfg.HistoryLimit)
	if err != nil {
		return ai.CompletionRequest{}, fmt.Errorf("failed to load chat history: %w", err)
	}
	if len(history) > 0 {
		history = history[:len(history)-1]
	}

	messages := make([]ai.Message, 0, len(history)+1)
	for _, m := range history {
		role := ai.RoleUser
		if m.Role == models.MessageRoleAssistant {
			role = ai.RoleAssistant
		}
		messages = append(messages, ai.Message{Role: role, Content: m.Content})
	}
	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: turn.Content})

	return ai.CompletionRequest{
		Operation: "chat",
		System:    buildSystemPrompt(summaryJSON, s.now()),
		Messages:  messages,
	}, nil
}
