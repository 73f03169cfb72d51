package odm

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/gogotex/docsync/internal/store"
	"github.com/gogotex/docsync/pkg/logger"
	"github.com/gogotex/docsync/pkg/metrics"
)

type cellState int

const (
	cellUninitialized cellState = iota
	cellValid
	cellInvalidated
)

func (s cellState) String() string {
	switch s {
	case cellValid:
		return "valid"
	case cellInvalidated:
		return "invalidated"
	}
	return "uninitialized"
}

// ConnectionManager owns the store client, the database handle and a cache of
// collection handles. The three are built together on first use and thrown
// away together when the current process id no longer matches the one that
// built them, so a forked child never reuses its parent's sockets.
type ConnectionManager struct {
	dial     store.DialFunc
	database string
	pid      func() int
	log      logger.Logger

	mu         sync.Mutex
	state      cellState
	ownerPID   int
	client     store.Client
	db         store.Database
	handles    map[string]store.Collection
	generation uint64
}

type ManagerOption func(*ConnectionManager)

// WithPIDFunc replaces os.Getpid as the source of the current process id.
func WithPIDFunc(f func() int) ManagerOption {
	return func(m *ConnectionManager) { m.pid = f }
}

// NewConnectionManager returns a manager that connects lazily with dial and
// resolves collections inside database.
func NewConnectionManager(dial store.DialFunc, database string, opts ...ManagerOption) *ConnectionManager {
	m := &ConnectionManager{
		dial:     dial,
		database: database,
		pid:      os.Getpid,
		log:      logger.Named("odm.connection"),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// DatabaseName returns the configured database name.
func (m *ConnectionManager) DatabaseName() string { return m.database }

// Generation counts how many handle sets have been built so far.
func (m *ConnectionManager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// Collection returns the cached handle for name, building the handle set
// first when it is missing or was inherited from another process.
func (m *ConnectionManager) Collection(ctx context.Context, name string) (store.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureValid(ctx); err != nil {
		return nil, err
	}
	h, ok := m.handles[name]
	if !ok {
		h = m.db.Collection(name)
		m.handles[name] = h
	}
	return h, nil
}

// Database returns the database handle.
func (m *ConnectionManager) Database(ctx context.Context) (store.Database, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureValid(ctx); err != nil {
		return nil, err
	}
	return m.db, nil
}

// Ping round-trips to the store through the current client.
func (m *ConnectionManager) Ping(ctx context.Context) error {
	m.mu.Lock()
	if err := m.ensureValid(ctx); err != nil {
		m.mu.Unlock()
		return err
	}
	c := m.client
	m.mu.Unlock()
	return c.Ping(ctx)
}

// Close disconnects a client built by this process and resets the manager;
// the next access connects again. Handles inherited from another process
// are dropped without being disconnected.
func (m *ConnectionManager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.state == cellValid && m.ownerPID == m.pid() {
		err = m.client.Disconnect(ctx)
	}
	m.reset(cellUninitialized)
	return err
}

// ensureValid is the single entry point to the handle cell. Callers hold m.mu.
func (m *ConnectionManager) ensureValid(ctx context.Context) error {
	pid := m.pid()
	if m.state == cellValid && m.ownerPID != pid {
		m.log.Warnf("process id changed from %d to %d, discarding inherited handles", m.ownerPID, pid)
		m.reset(cellInvalidated)
	}
	if m.state == cellValid {
		return nil
	}

	prev := m.state
	reason := "init"
	if prev == cellInvalidated {
		reason = "fork"
	}
	client, err := m.dial(ctx)
	if err == nil && client == nil {
		err = errors.New("dialer returned no client")
	}
	if err != nil {
		m.log.Errorf("connect database=%s: %v", m.database, err)
		return &ConnectionError{Database: m.database, Err: err}
	}

	m.client = client
	m.db = client.Database(m.database)
	m.handles = make(map[string]store.Collection)
	m.ownerPID = pid
	m.state = cellValid
	m.generation++
	metrics.HandleRebuilds.WithLabelValues(reason).Inc()
	m.log.Debugf("built handle set generation=%d pid=%d from=%s", m.generation, pid, prev)
	return nil
}

func (m *ConnectionManager) reset(to cellState) {
	m.client = nil
	m.db = nil
	m.handles = nil
	m.ownerPID = 0
	m.state = to
}
