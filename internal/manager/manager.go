// Package manager is the orchestration layer of the pricing core. Every
// operation is bulk-first: single-item calls wrap their bulk counterpart with
// a one-element batch, and each item succeeds or fails on its own without
// aborting siblings.
package manager

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"pricingcore/internal/directory"
	"pricingcore/internal/provider"
	"pricingcore/internal/store"
)

// DefaultConcurrency bounds how many provider calls one manager runs at once.
const DefaultConcurrency = 8

// Result is the per-item report of a bulk operation.
type Result struct {
	ID      uuid.UUID
	Success bool
	Message string
	// Fields is filled by refresh operations only.
	Fields *FieldReport
}

// FieldReport tells a refresh caller which of the price fields it asked for
// were actually updated, which the provider could not supply, and which were
// not part of the request.
type FieldReport struct {
	Updated     []string
	Unavailable []string
	Unrequested []string
}

type Manager struct {
	registry *provider.Registry
	store    store.Store
	dir      directory.Directory

	logger *logrus.Logger
	log    *logrus.Entry
	sem    *semaphore.Weighted
	now    func() time.Time
}

type Option func(*Manager)

// WithConcurrency caps concurrent provider calls. Non-positive values fall
// back to DefaultConcurrency.
func WithConcurrency(n int64) Option {
	return func(m *Manager) {
		if n > 0 {
			m.sem = semaphore.NewWeighted(n)
		}
	}
}

func WithLogger(log *logrus.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.logger = log
		}
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func New(reg *provider.Registry, st store.Store, dir directory.Directory, opts ...Option) *Manager {
	m := &Manager{
		registry: reg,
		store:    st,
		dir:      dir,
		logger:   logrus.StandardLogger(),
		sem:      semaphore.NewWeighted(DefaultConcurrency),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.logger.WithField("component", "manager")
	return m
}

func ok(id uuid.UUID, msg string) Result {
	return Result{ID: id, Success: true, Message: msg}
}

func fail(id uuid.UUID, err error) Result {
	return Result{ID: id, Success: false, Message: err.Error()}
}
