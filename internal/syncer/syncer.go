package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/md-rashed-zaman/bookdesk/internal/model"
	"github.com/md-rashed-zaman/bookdesk/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Backend is the slice of the REST client the syncer needs.
type Backend interface {
	Appointments(ctx context.Context, email string) ([]model.Appointment, error)
	Notifications(ctx context.Context) ([]model.Notification, error)
}

// Syncer owns the snapshot refresh path: every fetch carries a monotonically
// increasing sequence number so a slow fetch finishing late cannot overwrite
// newer data. A failed fetch leaves the store's last-known-good snapshot in
// place.
type Syncer struct {
	backend  Backend
	store    *store.Store
	logger   *slog.Logger
	interval time.Duration

	seq    atomic.Uint64
	synced atomic.Bool
}

func New(backend Backend, st *store.Store, logger *slog.Logger, interval time.Duration) *Syncer {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Syncer{
		backend:  backend,
		store:    st,
		logger:   logger,
		interval: interval,
	}
}

// Refresh fetches the full appointment list and swaps it into the store.
// The sequence number is taken before the fetch starts; if a later-numbered
// fetch already landed, this result is discarded.
func (s *Syncer) Refresh(ctx context.Context) error {
	seq := s.seq.Add(1)
	ctx, span := otel.Tracer("syncer").Start(ctx, "snapshot.refresh",
		trace.WithAttributes(attribute.Int64("fetch.seq", int64(seq))),
	)
	defer span.End()

	appts, err := s.backend.Appointments(ctx, "")
	if err != nil {
		span.RecordError(err)
		return err
	}

	if !s.store.ReplaceAll(seq, appts) {
		s.logger.Info("stale fetch discarded", "seq", seq)
		return nil
	}
	s.synced.Store(true)
	s.logger.Debug("snapshot refreshed", "seq", seq, "appointments", len(appts))
	return nil
}

// RefreshNotifications replaces the notification list from the backend.
func (s *Syncer) RefreshNotifications(ctx context.Context) error {
	notifs, err := s.backend.Notifications(ctx)
	if err != nil {
		return err
	}
	s.store.SetNotifications(notifs)
	return nil
}

// Run drives refreshes until ctx is cancelled: once at startup, then on
// every staleness signal from the store and on a periodic interval as a
// safety net.
func (s *Syncer) Run(ctx context.Context) {
	if err := s.RefreshNotifications(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("initial notification fetch failed", "err", err)
	}
	if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("initial snapshot fetch failed", "err", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.store.Stale():
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("push-triggered refresh failed; keeping last snapshot", "err", err)
			}
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("periodic refresh failed; keeping last snapshot", "err", err)
			}
		}
	}
}

// ReadyCheck reports readiness once an initial snapshot has been applied.
func (s *Syncer) ReadyCheck() func(context.Context) error {
	return func(context.Context) error {
		if !s.synced.Load() {
			return errors.New("initial snapshot not loaded")
		}
		return nil
	}
}
