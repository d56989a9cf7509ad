package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/clauderelay/clauderelay/internal/claude"
	"github.com/clauderelay/clauderelay/internal/event"
	"github.com/clauderelay/clauderelay/pkg/types"
)

// chat handles POST /chat: one synchronous chat turn, with the
// recovery engine consulted on failure.
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "prompt is required")
		return
	}

	resp, recResult, err := s.executeChat(r.Context(), req, nil)
	if err != nil {
		details := map[string]any{}
		if recResult != nil {
			details["recovery"] = recResult
		}
		writeErrorWithDetails(w, http.StatusBadGateway, ErrCodeChatFailed, err.Error(), details)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// executeChat runs the full orchestration for one turn: continuation
// validation, CLI invocation, bookkeeping, and at most one
// recovery-driven follow-up attempt. The returned RecoveryResult is
// non-nil whenever the engine was consulted, success or not.
func (s *Server) executeChat(ctx context.Context, req types.ChatRequest, onEvent func(claude.StreamEvent)) (*types.ChatResponse, *types.RecoveryResult, error) {
	sessionID := req.SessionID
	resumed := sessionID != ""

	if resumed {
		decision := s.tracker.ValidateForContinuation(sessionID)
		if !decision.CanContinue && !decision.ShouldRetry {
			s.log.Info().
				Str("sessionId", sessionID).
				Str("reason", decision.Error).
				Msg("session not continuable, starting fresh")
			sessionID = ""
			resumed = false
		}
	}

	s.publish(event.Event{
		Type: event.ChatStarted,
		Data: event.ChatStartedData{SessionID: sessionID, ProjectPath: req.ProjectPath, Resumed: resumed},
	})

	invReq := claude.Request{
		Prompt:           req.Prompt,
		SessionID:        sessionID,
		WorkingDirectory: req.ProjectPath,
		Model:            req.Model,
	}

	result, err := s.invoker.Invoke(ctx, invReq, onEvent)
	if err == nil {
		s.recordSuccess(result.SessionID, req)
		s.publish(event.Event{
			Type: event.ChatCompleted,
			Data: event.ChatCompletedData{SessionID: result.SessionID, Success: true},
		})
		return &types.ChatResponse{SessionID: result.SessionID, Result: result.Output, Resumed: resumed}, nil, nil
	}

	resp, recResult, err := s.recoverChat(ctx, req, invReq, resumed, err, onEvent)

	completed := event.ChatCompletedData{SessionID: sessionID, Success: err == nil}
	if err != nil {
		completed.Error = err.Error()
	} else {
		completed.SessionID = resp.SessionID
	}
	s.publish(event.Event{Type: event.ChatCompleted, Data: completed})

	return resp, recResult, err
}

// recoverChat hands a failed invocation to the recovery engine and
// acts on its decision: one more attempt for retry, a fresh session
// for fallback, a hard stop for abort and defer.
func (s *Server) recoverChat(ctx context.Context, req types.ChatRequest, invReq claude.Request, resumed bool, cause error, onEvent func(claude.StreamEvent)) (*types.ChatResponse, *types.RecoveryResult, error) {
	opType := types.OperationChat
	if resumed {
		opType = types.OperationContinuation
	}

	retryCount := 0
	if state, ok := s.tracker.Get(invReq.SessionID); ok {
		retryCount = state.RetryCount
	}

	rctx := types.RecoveryContext{
		SessionID:        invReq.SessionID,
		OperationType:    opType,
		ErrorMessage:     cause.Error(),
		OriginalError:    cause,
		RetryCount:       retryCount,
		MaxRetries:       s.config.MaxRetries,
		WorkingDirectory: req.ProjectPath,
		UserPrompt:       req.Prompt,
	}

	recResult := s.recovery.HandleError(ctx, cause, rctx)

	switch recResult.Strategy {
	case types.StrategyRetry:
		result, err := s.invoker.Invoke(ctx, invReq, onEvent)
		if err != nil {
			s.markFailure(invReq.SessionID, err)
			return nil, &recResult, err
		}
		s.recordSuccess(result.SessionID, req)
		return &types.ChatResponse{
			SessionID: result.SessionID,
			Result:    result.Output,
			Resumed:   resumed,
			Recovery:  &recResult,
		}, &recResult, nil

	case types.StrategyFallback:
		// The engine cleared the old session; this fresh attempt is the
		// caller-side half of the fallback contract.
		fresh := invReq
		fresh.SessionID = ""
		result, err := s.invoker.Invoke(ctx, fresh, onEvent)
		if err != nil {
			return nil, &recResult, err
		}
		s.recordSuccess(result.SessionID, req)
		recResult.NewSessionID = result.SessionID
		return &types.ChatResponse{
			SessionID: result.SessionID,
			Result:    result.Output,
			Resumed:   false,
			Recovery:  &recResult,
		}, &recResult, nil

	default:
		if recResult.Error != "" {
			return nil, &recResult, errors.New(recResult.Error)
		}
		return nil, &recResult, cause
	}
}

// recordSuccess updates both session views after a completed turn. A
// resumed session gets an activity bump; a session the CLI just
// assigned gets registered and stored.
func (s *Server) recordSuccess(sessionID string, req types.ChatRequest) {
	if sessionID == "" {
		return
	}

	if _, known := s.tracker.Get(sessionID); known {
		s.tracker.UpdateActivity(sessionID)
	} else {
		s.tracker.Register(sessionID, req.ProjectPath, req.Model)
	}

	if !s.store.UpdateActivity(sessionID, true) {
		now := time.Now().UnixMilli()
		if err := s.store.Put(types.SessionMetadata{
			SessionID:    sessionID,
			ProjectPath:  req.ProjectPath,
			Model:        req.Model,
			CreatedAt:    now,
			LastActivity: now,
			MessageCount: 1,
			IsActive:     true,
		}); err != nil {
			s.log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to store new session")
		}
	}
}

// markFailure records a post-recovery failure against both views.
func (s *Server) markFailure(sessionID string, err error) {
	if sessionID == "" {
		return
	}
	s.tracker.MarkError(sessionID, err.Error())
	s.store.MarkError(sessionID, err.Error())
}

func (s *Server) publish(e event.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
		return
	}
	event.Publish(e)
}
