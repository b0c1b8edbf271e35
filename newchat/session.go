// Package newchat runs the real-time trip assistant: one websocket session
// per traveller, scoped to a single trip.
package newchat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tripy/apperr"
	"tripy/config"
	"tripy/contract"
	"tripy/db"
	"tripy/llm"
	"tripy/logger"
	"tripy/metrics"
	"tripy/models"
	"tripy/ratelim"
	"tripy/utils"
)

type State string

const (
	StateConnecting       State = "connecting"
	StateAuthenticating   State = "authenticating"
	StateValidatingAccess State = "validating_access"
	StateActive           State = "active"
	StateClosing          State = "closing"
	StateClosed           State = "closed"
)

// Close codes sent in the websocket close frame.
const (
	CloseNormal       = 1000
	CloseGoingAway    = 1001
	CloseInternal     = 1011
	CloseAuthFailed   = 4001
	CloseAccessDenied = 4003
	CloseNotFound     = 4004
	CloseIdle         = 4008
)

// Frame types.
const (
	FrameAuth        = "auth"
	FrameMessage     = "message"
	FrameWelcome     = "welcome"
	FrameProcessing  = "processing"
	FrameReply       = "reply"
	FrameError       = "error"
	FrameTripUpdated = "trip_updated"
)

// Frame is every message on the wire, in both directions.
type Frame struct {
	Type       string `json:"type"`
	Token      string `json:"token,omitempty"`
	Content    string `json:"content,omitempty"`
	Kind       string `json:"kind,omitempty"`
	TripID     string `json:"tripid,omitempty"`
	Version    int64  `json:"version,omitempty"`
	RetryAfter int    `json:"retry_after_seconds,omitempty"`
}

// Conn is the part of a websocket connection a session uses.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close(code int, reason string) error
}

type Verifier interface {
	Verify(token string) (string, error)
}

// CloseInfo is how a session ended.
type CloseInfo struct {
	Code   int
	Reason string
}

type Manager struct {
	hub      *Hub
	verifier Verifier
	store    db.Store
	gen      *contract.Client
	cfg      config.Chat
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewManager(hub *Hub, verifier Verifier, store db.Store, gen *contract.Client, cfg config.Chat, m *metrics.Metrics) *Manager {
	return &Manager{hub: hub, verifier: verifier, store: store, gen: gen, cfg: cfg, metrics: m, now: time.Now}
}

type inbound struct {
	frame Frame
	err   error
}

type session struct {
	m       *Manager
	id      string
	tripID  string
	conn    Conn
	log     *zap.Logger
	state   State
	userID  string
	trip    models.Trip
	history *history
	limit   *ratelim.Window

	closeOnce sync.Once
}

func (s *session) enter(st State) {
	s.state = st
	s.log.Debug("session state", zap.String("state", string(st)))
}

// Serve runs one connection to completion and returns how it closed. The
// connection is always closed when Serve returns.
func (m *Manager) Serve(ctx context.Context, conn Conn, tripID string) CloseInfo {
	s := &session{
		m:       m,
		id:      utils.GetUUID(),
		tripID:  tripID,
		conn:    conn,
		history: newHistory(m.cfg.HistoryPairs),
		limit:   ratelim.NewWindow(m.cfg.RateLimitMessages, m.cfg.RateLimitWindow).WithClock(m.now),
	}
	s.log = logger.Get().With(zap.String("session", s.id), zap.String("trip_id", tripID))
	s.enter(StateConnecting)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	reads := make(chan inbound)
	go s.readLoop(connCtx, cancel, reads)

	info := s.run(ctx, connCtx, reads)
	s.close(info)
	return info
}

// readLoop feeds frames to the session. A read error ends the connection.
func (s *session) readLoop(ctx context.Context, cancel context.CancelFunc, out chan<- inbound) {
	for {
		var f Frame
		err := s.conn.ReadJSON(&f)
		if err != nil {
			// abandon any in-flight reply before reporting the disconnect
			cancel()
		}
		select {
		case out <- inbound{frame: f, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *session) run(ctx, connCtx context.Context, reads <-chan inbound) CloseInfo {
	s.enter(StateAuthenticating)
	if info, ok := s.authenticate(ctx, connCtx, reads); !ok {
		return info
	}

	s.enter(StateValidatingAccess)
	if info, ok := s.validateAccess(connCtx); !ok {
		return info
	}

	client := &Client{ID: s.id, TripID: s.tripID, UserID: s.userID, Send: make(chan Frame, 16)}
	if !s.m.hub.Register(client) {
		return CloseInfo{Code: CloseGoingAway, Reason: "server shutting down"}
	}
	defer s.m.hub.Unregister(client)

	if err := s.send(Frame{Type: FrameWelcome, TripID: s.tripID, Version: s.trip.Version, Content: welcome(s.trip)}); err != nil {
		return CloseInfo{Code: CloseNormal, Reason: "client gone"}
	}

	s.enter(StateActive)
	idle := time.NewTimer(s.m.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-connCtx.Done():
			if ctx.Err() != nil {
				return CloseInfo{Code: CloseGoingAway, Reason: "server shutting down"}
			}
			return CloseInfo{Code: CloseNormal, Reason: "client gone"}

		case <-idle.C:
			s.log.Info("session idle, closing", zap.Duration("after", s.m.cfg.IdleTimeout))
			return CloseInfo{Code: CloseIdle, Reason: string(apperr.SessionTimeout)}

		case f, ok := <-client.Send:
			if !ok {
				return CloseInfo{Code: CloseGoingAway, Reason: "server shutting down"}
			}
			s.refresh(connCtx, f)
			if err := s.send(f); err != nil {
				return CloseInfo{Code: CloseNormal, Reason: "client gone"}
			}

		case in := <-reads:
			if in.err != nil {
				return CloseInfo{Code: CloseNormal, Reason: "client gone"}
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			if err := s.handle(connCtx, in.frame); err != nil {
				return CloseInfo{Code: CloseNormal, Reason: "client gone"}
			}
			idle.Reset(s.m.cfg.IdleTimeout)
		}
	}
}

func (s *session) authenticate(ctx, connCtx context.Context, reads <-chan inbound) (CloseInfo, bool) {
	deny := func(msg string) (CloseInfo, bool) {
		_ = s.send(Frame{Type: FrameError, Kind: string(apperr.AuthenticationFailed), Content: msg})
		return CloseInfo{Code: CloseAuthFailed, Reason: string(apperr.AuthenticationFailed)}, false
	}

	timer := time.NewTimer(s.m.cfg.AuthTimeout)
	defer timer.Stop()

	select {
	case <-connCtx.Done():
		if ctx.Err() != nil {
			return CloseInfo{Code: CloseGoingAway, Reason: "server shutting down"}, false
		}
		return CloseInfo{Code: CloseNormal, Reason: "client gone"}, false
	case <-timer.C:
		return deny("no credentials received")
	case in := <-reads:
		if in.err != nil {
			return CloseInfo{Code: CloseNormal, Reason: "client gone"}, false
		}
		if in.frame.Type != FrameAuth {
			return deny("first message must be an auth frame")
		}
		userID, err := s.m.verifier.Verify(in.frame.Token)
		if err != nil {
			s.log.Info("session authentication failed", zap.Error(err))
			return deny("invalid credentials")
		}
		s.userID = userID
		s.log = s.log.With(zap.String("user_id", userID))
		return CloseInfo{}, true
	}
}

func (s *session) validateAccess(ctx context.Context) (CloseInfo, bool) {
	trip, err := s.m.store.Get(ctx, s.tripID)
	switch {
	case apperr.Is(err, apperr.TripNotFound):
		_ = s.send(Frame{Type: FrameError, Kind: string(apperr.TripNotFound), Content: "trip not found"})
		return CloseInfo{Code: CloseNotFound, Reason: string(apperr.TripNotFound)}, false
	case err != nil:
		s.log.Error("load trip for session", zap.Error(err))
		return CloseInfo{Code: CloseInternal, Reason: string(apperr.Internal)}, false
	case !trip.CanAccess(s.userID):
		_ = s.send(Frame{Type: FrameError, Kind: string(apperr.AccessDenied), Content: "you do not have access to this trip"})
		return CloseInfo{Code: CloseAccessDenied, Reason: string(apperr.AccessDenied)}, false
	}
	s.trip = trip
	return CloseInfo{}, true
}

// handle processes one inbound frame. Only a failed write is returned.
func (s *session) handle(ctx context.Context, f Frame) error {
	if f.Type != FrameMessage {
		return s.send(Frame{Type: FrameError, Kind: string(apperr.InvalidRequest), Content: fmt.Sprintf("unsupported frame type %q", f.Type)})
	}
	text := strings.TrimSpace(f.Content)
	if text == "" || len(text) > 2000 {
		return s.send(Frame{Type: FrameError, Kind: string(apperr.InvalidRequest), Content: "message must be 1-2000 characters"})
	}
	if !s.limit.Allow() {
		s.m.metrics.ChatMessage(string(apperr.RateLimited))
		return s.send(Frame{
			Type:       FrameError,
			Kind:       string(apperr.RateLimited),
			Content:    "too many messages, slow down",
			RetryAfter: int(s.limit.RetryAfter().Round(time.Second) / time.Second),
		})
	}

	prior := s.history.messages()
	s.history.add(llm.RoleUser, text)
	if err := s.send(Frame{Type: FrameProcessing}); err != nil {
		return err
	}

	genCtx, cancel := context.WithTimeout(ctx, s.m.cfg.ReplyTimeout)
	defer cancel()
	reply, err := contract.Generate[chatReply](genCtx, s.m.gen, chatPrompt(s.trip, prior, text), nil)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		kind := apperr.KindOf(err)
		if genCtx.Err() != nil {
			kind = apperr.GenerationUnavailable
		}
		s.m.metrics.ChatMessage(string(kind))
		s.log.Warn("chat reply failed", zap.String("kind", string(kind)), zap.Error(err))
		return s.send(Frame{Type: FrameError, Kind: string(kind), Content: "I couldn't answer that just now, please try again"})
	}

	s.history.add(llm.RoleAssistant, reply.Reply)
	s.m.metrics.ChatMessage("ok")
	return s.send(Frame{Type: FrameReply, Content: reply.Reply})
}

// refresh reloads the grounding trip when it has moved on.
func (s *session) refresh(ctx context.Context, f Frame) {
	if f.Type != FrameTripUpdated || f.Version <= s.trip.Version {
		return
	}
	trip, err := s.m.store.Get(ctx, s.tripID)
	if err != nil {
		s.log.Warn("refresh trip", zap.Error(err))
		return
	}
	s.trip = trip
}

func (s *session) send(f Frame) error {
	return s.conn.WriteJSON(f)
}

func (s *session) close(info CloseInfo) {
	s.closeOnce.Do(func() {
		s.enter(StateClosing)
		if err := s.conn.Close(info.Code, info.Reason); err != nil {
			s.log.Debug("close connection", zap.Error(err))
		}
		s.enter(StateClosed)
		s.log.Info("session closed", zap.Int("code", info.Code), zap.String("reason", info.Reason))
	})
}
