package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/maxai/internal/agent"
	"github.com/ent0n29/maxai/internal/protocol"
	"github.com/ent0n29/maxai/internal/session"
)

func (s *Server) handleStreamWS(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "agent not configured")
		return
	}
	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("user_id"))
	if userID == "" {
		userID = defaultUserID
	}
	sess, err := s.sessions.Resolve(q.Get("session_id"), userID)
	if err != nil {
		status, code := sessionError(err)
		respondError(w, status, code, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	s.metrics.SetActiveSessions(s.sessions.ActiveCount())
	s.metrics.ObserveSessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 64)
	outbound := make(chan any, 256)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		s.runConnection(ctx, sess, inbound, outbound)
		// The runner may end the session; stop reading so the socket closes.
		cancel()
		_ = conn.SetReadDeadline(time.Now())
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			var msg any
			select {
			case msg = <-outbound:
			case <-ctx.Done():
				// Flush what the runner queued before it stopped.
				select {
				case msg = <-outbound:
				default:
					return
				}
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				cancel()
				return
			}
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.ObserveWSMessage("outbound", string(t))
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			errEvent := protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sess.ID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			}
			select {
			case outbound <- errEvent:
			default:
				// Keep websocket writes single-threaded; drop if outbound queue is saturated.
			}
			continue
		}

		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.ObserveWSMessage("inbound", string(t))
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	close(inbound)
	<-runDone
	cancel()
	<-writerDone
	s.metrics.ObserveSessionEvent("ws_disconnected")
}

// runConnection processes inbound messages one at a time, so turns of one
// connection never overlap.
func (s *Server) runConnection(ctx context.Context, sess *session.Session, inbound <-chan any, outbound chan<- any) {
	emit := func(msg any) bool {
		select {
		case outbound <- msg:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sess.ID, Code: "session_started"}) {
		return
	}

	for {
		var raw any
		select {
		case <-ctx.Done():
			return
		case m, ok := <-inbound:
			if !ok {
				return
			}
			raw = m
		}

		switch msg := raw.(type) {
		case protocol.ClientText:
			if !s.runTurn(ctx, sess, msg, emit) {
				return
			}
		case protocol.ClientControl:
			switch msg.Action {
			case protocol.ControlClearHistory:
				if err := s.memory.ClearHistory(ctx, sess.ID); err != nil {
					emit(errorEvent(sess.ID, "memory_unavailable", "memory", true, err))
					continue
				}
				emit(protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sess.ID, Code: "history_cleared"})
			case protocol.ControlEnd:
				_, _ = s.sessions.End(sess.ID)
				emit(protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sess.ID, Code: "session_ended"})
				return
			}
		}
	}
}

// runTurn reports false when the connection should stop.
func (s *Server) runTurn(ctx context.Context, sess *session.Session, msg protocol.ClientText, emit func(any) bool) bool {
	turnID := uuid.NewString()
	if err := s.sessions.StartTurn(sess.ID, turnID); err != nil {
		emit(errorEvent(sess.ID, "session_unavailable", "session", false, err))
		return !errors.Is(err, session.ErrEnded) && !errors.Is(err, session.ErrNotFound)
	}
	defer s.sessions.FinishTurn(sess.ID, turnID)

	t := agent.Turn{UserID: sess.UserID, SessionID: sess.ID, Text: msg.Content}
	reason := "completed"

	if msg.Stream {
		err := s.agent.HandleStream(ctx, t, func(delta string) error {
			if !emit(protocol.AssistantTextDelta{
				Type:      protocol.TypeAssistantTextDelta,
				SessionID: sess.ID,
				TurnID:    turnID,
				TextDelta: delta,
			}) {
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			emit(errorEvent(sess.ID, "turn_failed", "agent", true, err))
			reason = "error"
		}
	} else {
		res, err := s.agent.Handle(ctx, t)
		if err != nil {
			emit(errorEvent(sess.ID, "turn_failed", "agent", false, err))
			reason = "error"
		} else if !emit(protocol.AssistantResult{
			Type:      protocol.TypeAssistantResult,
			SessionID: sess.ID,
			TurnID:    turnID,
			Response:  res.Message,
			Action:    wireAction(res.Action),
		}) {
			return false
		}
	}

	return emit(protocol.AssistantTurnEnd{
		Type:      protocol.TypeAssistantTurnEnd,
		SessionID: sess.ID,
		TurnID:    turnID,
		Reason:    reason,
	})
}

func errorEvent(sessionID, code, source string, retryable bool, err error) protocol.ErrorEvent {
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Source:    source,
		Retryable: retryable,
		Detail:    err.Error(),
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientText:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.AssistantResult:
		return m.Type, true
	case protocol.AssistantTextDelta:
		return m.Type, true
	case protocol.AssistantTurnEnd:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
