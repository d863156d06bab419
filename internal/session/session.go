// Package session runs a single benchmark connection: connect, publish or
// subscribe until the duration elapses, disconnect, report.
package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/codahale/hdrhistogram"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mqttbench/internal/collector"
	"mqttbench/internal/core"
	"mqttbench/internal/hook"
	"mqttbench/internal/ratelimit"
)

var (
	// ErrNoServer means neither the hook nor the configuration gave a server.
	ErrNoServer = errors.New("no server address")
	// ErrInvalidServer means the resolved server is not a broker URL.
	ErrInvalidServer = errors.New("invalid server address")
	// ErrInvalidMessage means a resolved message or subscription is unusable.
	ErrInvalidMessage = errors.New("invalid message")
)

const (
	// NotConnectedBackoff is the pause before retrying a publish while the
	// client is reconnecting.
	NotConnectedBackoff = 10 * time.Millisecond
)

var serverSchemes = map[string]bool{
	"tcp": true, "mqtt": true, "ssl": true, "tls": true, "mqtts": true, "ws": true, "wss": true,
}

// State is a session's lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateRunning
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Config configures one session.
type Config struct {
	Params     core.WorkerParams
	Connection int
	Hooks      hook.Set
	Dialer     core.Dialer
	TLS        *tls.Config
	Reporter   core.Reporter
	Logger     *logrus.Entry
	Clock      core.Clock
}

// Session is one connection's run. It is single use.
type Session struct {
	cfg     Config
	params  hook.Params
	log     *logrus.Entry
	limiter *ratelimit.Limiter

	state      atomic.Int32
	connected  atomic.Bool
	subscribed atomic.Bool
	connCh     chan struct{}

	sent       atomic.Int64
	received   atomic.Int64
	errors     atomic.Int64
	reconnects atomic.Int64
	latency    *hdrhistogram.Histogram
}

// New prepares a session. Nothing happens until Run.
func New(cfg Config) *Session {
	if cfg.Reporter == nil {
		cfg.Reporter = core.NullReporter
	}
	if cfg.Clock == nil {
		cfg.Clock = core.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	p := cfg.Params

	s := &Session{
		cfg: cfg,
		params: hook.Params{
			Action:     p.Action,
			Server:     p.Server,
			Topic:      p.Topic,
			Message:    p.Message,
			QoS:        p.QoS,
			WorkerID:   p.WorkerID,
			Connection: cfg.Connection,
		},
		log:     logger.WithField("connection", cfg.Connection),
		limiter: ratelimit.New(p.Rate),
		connCh:  make(chan struct{}),
	}
	if p.Action == core.ActionPublish {
		s.latency = collector.NewLatencyHistogram()
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	s.log.Debugf("session %s", st)
}

// Run drives the session until its duration elapses or ctx is done. It
// always returns a result. A non-nil error is session-fatal: the server
// could not be resolved and the session never connected.
func (s *Session) Run(ctx context.Context) (core.ConnectionResult, error) {
	start := s.cfg.Clock.Now()
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Params.Duration)
	defer cancel()

	server, err := s.resolveServer()
	if err != nil {
		s.errors.Add(1)
		s.emit(core.EventError)
		s.setState(StateClosed)
		return s.result(start), err
	}

	s.setState(StateConnecting)
	client, err := s.cfg.Dialer.Dial(core.DialOptions{
		Server:          server,
		ClientID:        s.clientID(),
		ProtocolVersion: s.cfg.Params.Client.ProtocolVersion,
		KeepAlive:       s.cfg.Params.Client.KeepAlive,
		ConnectTimeout:  s.cfg.Params.Client.ConnectTimeout,
		TLS:             s.cfg.TLS,
	}, core.Handlers{
		OnConnect:   s.onConnect,
		OnError:     s.onError,
		OnReconnect: s.onReconnect,
		OnMessage:   s.onMessage,
	})
	if err != nil {
		s.log.WithError(err).Debug("dial failed")
		s.errors.Add(1)
		s.emit(core.EventError)
		s.setState(StateClosed)
		return s.result(start), nil
	}

	select {
	case <-s.connCh:
		s.setState(StateRunning)
		switch s.cfg.Params.Action {
		case core.ActionPublish:
			s.publishLoop(ctx, runCtx, client)
		case core.ActionSubscribe:
			s.subscribe(runCtx, client)
			<-runCtx.Done()
		}
	case <-runCtx.Done():
		s.log.Debug("duration elapsed before connecting")
	}

	s.setState(StateDraining)
	client.Disconnect()
	s.setState(StateClosed)
	s.emit(core.EventClosed)
	return s.result(start), nil
}

func (s *Session) result(start time.Time) core.ConnectionResult {
	return core.ConnectionResult{
		MessagesSent:     s.sent.Load(),
		MessagesReceived: s.received.Load(),
		Errors:           s.errors.Load(),
		Reconnects:       s.reconnects.Load(),
		WasConnected:     s.connected.Load(),
		WasSubscribed:    s.subscribed.Load(),
		Elapsed:          s.cfg.Clock.Since(start),
		Latency:          s.latency,
	}
}

// resolveServer asks the hook first and falls back to the static server.
func (s *Session) resolveServer() (string, error) {
	server := s.cfg.Params.Server
	if r := s.cfg.Hooks.Server; r != nil {
		dynamic, err := r.ResolveServer(s.params)
		switch {
		case err != nil:
			s.log.WithError(err).Debug("server hook failed, using static server")
		case dynamic != "":
			server = dynamic
		}
	}
	if server == "" {
		return "", ErrNoServer
	}
	u, err := url.Parse(server)
	if err != nil || !serverSchemes[u.Scheme] || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidServer, server)
	}
	return server, nil
}

// clientID is unique per session and at most 23 bytes for short worker
// ids, the MQTT 3.1 limit.
func (s *Session) clientID() string {
	return fmt.Sprintf("mb-%s-%d-%s", s.cfg.Params.WorkerID, s.cfg.Connection, uuid.NewString()[:8])
}

func (s *Session) onConnect() {
	if !s.connected.CompareAndSwap(false, true) {
		s.log.Debug("reconnected")
		return
	}
	s.setState(StateConnected)
	s.emit(core.EventConnected)
	close(s.connCh)
}

func (s *Session) onError(err error) {
	s.errors.Add(1)
	s.log.WithError(err).Debug("transport error")
	s.emit(core.EventError)
}

func (s *Session) onReconnect() {
	s.reconnects.Add(1)
	s.emit(core.EventReconnect)
}

func (s *Session) onMessage(topic string, payload []byte) {
	if !s.subscribed.Load() {
		return
	}
	s.received.Add(1)
	s.emit(core.EventReceived)
}

func (s *Session) emit(kind core.EventKind) {
	s.cfg.Reporter.Report(core.Event{
		WorkerID:   s.cfg.Params.WorkerID,
		Connection: s.cfg.Connection,
		Action:     s.cfg.Params.Action,
		Kind:       kind,
		Timestamp:  s.cfg.Clock.Now(),
	})
}
