package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/md-rashed-zaman/bookdesk/internal/model"
)

// State is the reconciler's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Sink receives push-delivered notifications. ApplyNotification reports
// whether the notification was new (false means a duplicate delivery).
type Sink interface {
	ApplyNotification(model.Notification) bool
}

type Config struct {
	// ReconnectMin is the first reconnect delay after a drop; subsequent
	// delays grow exponentially up to ReconnectMax. The reconciler never
	// gives up: live updates are worth cheap connection churn.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Reconciler owns the persistent push connection. Inbound frames are parsed
// as notifications and handed to the sink; malformed frames are dropped
// without disturbing the connection. On error or close it transitions to
// disconnected and schedules exactly one reconnect attempt; cancelling the
// run context tears the connection down once and cancels any pending
// reconnect timer.
type Reconciler struct {
	url     string
	sink    Sink
	logger  *slog.Logger
	dialer  *websocket.Dialer
	backoff *backoff.ExponentialBackOff
	state   atomic.Int32
}

func New(url string, sink Sink, logger *slog.Logger, cfg Config) *Reconciler {
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = 3 * time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = 30 * time.Second
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.ReconnectMin
	b.MaxInterval = cfg.ReconnectMax
	return &Reconciler{
		url:     url,
		sink:    sink,
		logger:  logger,
		dialer:  websocket.DefaultDialer,
		backoff: b,
	}
}

func (r *Reconciler) State() State {
	return State(r.state.Load())
}

func (r *Reconciler) setState(s State) {
	r.state.Store(int32(s))
}

// Run connects, consumes, and reconnects until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	defer r.setState(StateDisconnected)

	for {
		r.setState(StateConnecting)
		conn, resp, err := r.dialer.DialContext(ctx, r.url, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			r.setState(StateDisconnected)
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("push connect failed", "url", r.url, "err", err)
			if !r.waitReconnect(ctx) {
				return
			}
			continue
		}

		r.setState(StateConnected)
		r.backoff.Reset()
		r.logger.Info("push channel connected", "url", r.url)

		r.consume(ctx, conn)
		r.setState(StateDisconnected)
		if ctx.Err() != nil {
			return
		}
		if !r.waitReconnect(ctx) {
			return
		}
	}
}

func (r *Reconciler) consume(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Warn("push channel dropped", "err", err)
			}
			return
		}

		var n model.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			r.logger.Warn("dropping malformed push payload", "err", err)
			continue
		}
		if r.sink.ApplyNotification(n) {
			r.logger.Info("push notification received", "notification_id", n.ID, "title", n.Title)
		} else {
			r.logger.Info("duplicate push notification ignored", "notification_id", n.ID)
		}
	}
}

// waitReconnect sleeps for the next backoff interval. It returns false when
// ctx is cancelled first, in which case no further attempt happens.
func (r *Reconciler) waitReconnect(ctx context.Context) bool {
	timer := time.NewTimer(r.backoff.NextBackOff())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
