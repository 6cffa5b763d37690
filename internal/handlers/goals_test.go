package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benvon/finance-advisor/internal/middleware"
	"github.com/benvon/finance-advisor/internal/models"
	"github.com/benvon/finance-advisor/internal/services/goals"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeGoalParser struct {
	result    *goals.ParseResult
	err       error
	input     string
	sessionID *uuid.UUID
}

func (f *fakeGoalParser) Parse(_ context.Context, _ uuid.UUID, input string, sessionID *uuid.UUID) (*goals.ParseResult, error) {
	f.input = input
	f.sessionID = sessionID
	return f.result, f.err
}

func TestGoalsHandler_Parse(t *testing.T) {
	t.Parallel()

	user := &models.User{ID: uuid.New()}
	sessionID := uuid.New()
	goal := &models.SavingsGoal{ID: uuid.New(), UserID: user.ID, Name: "Emergency fund", TargetAmount: decimal.NewFromInt(10000)}

	tests := []struct {
		name       string
		body       any
		parser     *fakeGoalParser
		wantStatus int
		validate   func(*testing.T, map[string]any, *fakeGoalParser)
	}{
		{
			name:       "parsed goal",
			body:       map[string]string{"input": "Save $10k for an emergency fund", "sessionId": sessionID.String()},
			parser:     &fakeGoalParser{result: &goals.ParseResult{Parsed: true, Goal: goal, Confidence: 100}},
			wantStatus: http.StatusOK,
			validate: func(t *testing.T, body map[string]any, p *fakeGoalParser) {
				data, _ := body["data"].(map[string]any)
				if data["parsed"] != true || data["confidence"] != float64(100) {
					t.Errorf("Unexpected result %v", data)
				}
				if p.sessionID == nil || *p.sessionID != sessionID {
					t.Errorf("Expected session %s passed through, got %v", sessionID, p.sessionID)
				}
			},
		},
		{
			name:       "not a goal",
			body:       map[string]string{"input": "what is an index fund?"},
			parser:     &fakeGoalParser{result: &goals.ParseResult{}},
			wantStatus: http.StatusOK,
			validate: func(t *testing.T, body map[string]any, p *fakeGoalParser) {
				data, _ := body["data"].(map[string]any)
				if data["parsed"] != false || data["goal"] != nil {
					t.Errorf("Unexpected result %v", data)
				}
				if p.sessionID != nil {
					t.Errorf("Expected no session, got %v", p.sessionID)
				}
			},
		},
		{
			name:       "blank input",
			body:       map[string]string{"input": "  "},
			parser:     &fakeGoalParser{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad session id",
			body:       map[string]string{"input": "save 500", "sessionId": "nope"},
			parser:     &fakeGoalParser{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed body",
			body:       "not an object",
			parser:     &fakeGoalParser{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "parser failure",
			body:       map[string]string{"input": "save 500 by June"},
			parser:     &fakeGoalParser{err: errors.New("db down")},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := NewGoalsHandler(tt.parser, zap.NewNop())
			req := newTestRequest(http.MethodPost, "/goals/parse", tt.body)
			req = req.WithContext(middleware.ContextWithUser(req.Context(), user))
			w := httptest.NewRecorder()

			handler.Parse(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			body := decodeEnvelope(t, w)
			if tt.validate != nil {
				tt.validate(t, body, tt.parser)
			}
		})
	}
}
