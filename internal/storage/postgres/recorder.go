package postgres

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/rushlobby/internal/lobby"
)

// LaunchStore persists launch records.
type LaunchStore interface {
	Insert(ctx context.Context, rec lobby.LaunchRecord) error
}

// Recorder archives launches in the background. SessionLaunched never blocks;
// records that arrive while the queue is full are dropped and logged.
type Recorder struct {
	store        LaunchStore
	queue        chan lobby.LaunchRecord
	logger       *zap.Logger
	writeTimeout time.Duration

	cancel   context.CancelFunc
	ctx      context.Context
	stopOnce sync.Once
}

// NewRecorder creates a Recorder with room for queueSize pending records.
//
// Precondition: store and logger must be non-nil; queueSize must be > 0.
func NewRecorder(store LaunchStore, queueSize int, logger *zap.Logger) *Recorder {
	ctx, cancel := context.WithCancel(context.Background())
	return &Recorder{
		store:        store,
		queue:        make(chan lobby.LaunchRecord, queueSize),
		logger:       logger,
		writeTimeout: 5 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// SessionLaunched enqueues rec for archiving.
func (r *Recorder) SessionLaunched(rec lobby.LaunchRecord) {
	select {
	case r.queue <- rec:
	default:
		r.logger.Warn("launch archive queue full, dropping record",
			zap.String("session_id", rec.SessionID),
		)
	}
}

// Start writes queued records until Stop is called, then drains what is left.
func (r *Recorder) Start() error {
	for {
		select {
		case rec := <-r.queue:
			r.write(rec)
		case <-r.ctx.Done():
			r.drain()
			return nil
		}
	}
}

// Stop ends Start after the pending records are written.
func (r *Recorder) Stop() {
	r.stopOnce.Do(r.cancel)
}

func (r *Recorder) drain() {
	for {
		select {
		case rec := <-r.queue:
			r.write(rec)
		default:
			return
		}
	}
}

func (r *Recorder) write(rec lobby.LaunchRecord) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	err := r.store.Insert(ctx, rec)
	switch {
	case errors.Is(err, ErrLaunchExists):
		r.logger.Debug("launch already archived", zap.String("session_id", rec.SessionID))
	case err != nil:
		r.logger.Error("archiving launch",
			zap.String("session_id", rec.SessionID),
			zap.Error(err),
		)
	default:
		r.logger.Info("launch archived",
			zap.String("session_id", rec.SessionID),
			zap.Int("players", rec.PlayerCount),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
