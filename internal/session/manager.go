// Package session owns draft editing sessions. Each session holds one
// catalog snapshot and one draft controller; the session id is the only
// handle the presentation layer gets to the draft.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carelane/go-moc/internal/catalog"
	"github.com/carelane/go-moc/internal/order"
)

// ErrNotFound reports an unknown or expired session id.
var ErrNotFound = errors.New("session not found")

// Session is one open draft editing context.
type Session struct {
	ID         string
	Controller *order.Controller
	CreatedAt  time.Time

	lastSeen time.Time
}

// Manager creates, looks up and expires sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	patients    catalog.PatientSource
	medications catalog.MedicationSource
	lister      order.PrescriptionLister
	submitter   order.Submitter
	logger      *zap.Logger

	idleTTL time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Config tunes session expiry.
type Config struct {
	// IdleTTL after which an untouched draft is discarded.
	IdleTTL time.Duration
	// SweepInterval between expiry passes.
	SweepInterval time.Duration
}

// DefaultConfig matches typical pharmacy-counter editing times.
func DefaultConfig() Config {
	return Config{
		IdleTTL:       30 * time.Minute,
		SweepInterval: time.Minute,
	}
}

// NewManager creates a manager over the given collaborators.
func NewManager(patients catalog.PatientSource, medications catalog.MedicationSource,
	lister order.PrescriptionLister, submitter order.Submitter,
	cfg Config, logger *zap.Logger) *Manager {

	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IdleTTL == 0 {
		cfg = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		sessions:    make(map[string]*Session),
		patients:    patients,
		medications: medications,
		lister:      lister,
		submitter:   submitter,
		logger:      logger,
		idleTTL:     cfg.IdleTTL,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go m.sweep(cfg.SweepInterval)
	return m
}

// Open loads a fresh catalog snapshot and starts an empty draft. A catalog
// load failure aborts the whole open; a draft never starts on a partial
// catalog.
func (m *Manager) Open(ctx context.Context) (*Session, error) {
	cache, err := catalog.Load(ctx, m.patients, m.medications, m.logger)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:         uuid.New().String(),
		Controller: order.NewController(cache, m.lister, m.submitter, m.logger),
		CreatedAt:  time.Now().UTC(),
		lastSeen:   time.Now().UTC(),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Info("draft session opened", zap.String("session_id", s.ID))
	return s, nil
}

// Get returns the session and refreshes its idle timer.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.lastSeen = time.Now().UTC()
	return s, nil
}

// Close discards the session and its draft. Unknown ids are a no-op:
// navigation-away often races expiry.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Stop halts the expiry sweeper.
func (m *Manager) Stop() {
	m.cancel()
	<-m.done
}

func (m *Manager) sweep(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-m.idleTTL)
			m.mu.Lock()
			for id, s := range m.sessions {
				if s.lastSeen.Before(cutoff) {
					delete(m.sessions, id)
					m.logger.Info("idle draft session expired", zap.String("session_id", id))
				}
			}
			m.mu.Unlock()
		}
	}
}
