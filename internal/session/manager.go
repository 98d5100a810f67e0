package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"logitdash/app"
	"logitdash/domain/core"
	"logitdash/domain/dataset"
	"logitdash/internal"
	"logitdash/internal/reactive"
)

// Notifier is told which outputs of a session went stale
type Notifier func(id core.SessionID, dirty []reactive.Key)

// Session is one browser's dashboard state
type Session struct {
	ID    core.SessionID
	Graph *reactive.Graph

	mu       sync.Mutex
	data     *app.DatasetHandle
	lastSeen time.Time
	cancel   func()
}

// Dataset returns the handle the session currently works on
func (s *Session) Dataset() *app.DatasetHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Columns lists the session dataset's columns, empty without a dataset
func (s *Session) Columns() []string {
	data := s.Dataset()
	if data == nil || data.Table == nil {
		return nil
	}
	return core.ColumnNames(data.Table.Columns())
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Config controls session lifetime
type Config struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// Manager owns the live sessions. The startup dataset is shared read-only
// by every session until a session uploads its own.
type Manager struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*Session

	dash   *app.Dashboard
	base   *app.DatasetHandle
	config Config
	notify Notifier
	log    *internal.Logger
	now    func() time.Time
}

// NewManager creates a session manager. base may be nil when no startup
// dataset is configured.
func NewManager(dash *app.Dashboard, base *app.DatasetHandle, config Config, log *internal.Logger) *Manager {
	if config.TTL <= 0 {
		config.TTL = 2 * time.Hour
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = 5 * time.Minute
	}
	if log == nil {
		log = internal.DefaultLogger
	}
	return &Manager{
		sessions: make(map[core.SessionID]*Session),
		dash:     dash,
		base:     base,
		config:   config,
		log:      log,
		now:      time.Now,
	}
}

// OnInvalidate sets the callback receiving stale outputs of every session.
// It must be set before the first session is created.
func (m *Manager) OnInvalidate(n Notifier) {
	m.mu.Lock()
	m.notify = n
	m.mu.Unlock()
}

// Create starts a new session on the shared dataset
func (m *Manager) Create() (*Session, error) {
	id := core.NewSessionID()
	g, err := m.dash.NewGraph(id, m.base)
	if err != nil {
		return nil, fmt.Errorf("failed to build session graph: %w", err)
	}
	s := &Session{ID: id, Graph: g, data: m.base, lastSeen: m.now()}

	m.mu.Lock()
	if notify := m.notify; notify != nil {
		s.cancel = g.Subscribe(func(dirty []reactive.Key) { notify(id, dirty) })
	}
	m.sessions[id] = s
	total := len(m.sessions)
	m.mu.Unlock()

	m.log.Debug("[Session] created %s (active: %d)", id, total)
	return s, nil
}

// Get returns a live session and refreshes its idle timer
func (m *Manager) Get(id core.SessionID) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %s", core.ErrSessionExpired, id)
	}
	s.touch(m.now())
	return s, nil
}

// GetOrCreate resolves a client-supplied session ID, starting a fresh
// session when it is malformed or expired. created reports the latter.
func (m *Manager) GetOrCreate(raw string) (s *Session, created bool, err error) {
	if id, perr := core.ParseSessionID(raw); perr == nil {
		if s, err := m.Get(id); err == nil {
			return s, false, nil
		}
	}
	s, err = m.Create()
	return s, err == nil, err
}

// ReplaceDataset swaps the session's table for an uploaded one. The
// selection and the snippet button are cleared and every output is
// invalidated.
func (m *Manager) ReplaceDataset(id core.SessionID, table *dataset.Table, source string) ([]reactive.Key, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	version := 1
	if s.data != nil {
		version = s.data.Version + 1
	}
	s.data = &app.DatasetHandle{Table: table, Source: source, Version: version}
	data := s.data
	s.mu.Unlock()

	m.log.Info("[Session] %s loaded dataset %s (%d rows, %d columns)", id, table.Name(), table.Rows(), len(table.Columns()))
	return s.Graph.Reset(clearedSelection(data))
}

// ResetDataset puts the session back on the shared startup dataset
func (m *Manager) ResetDataset(id core.SessionID) ([]reactive.Key, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.data = m.base
	s.mu.Unlock()
	return s.Graph.Reset(clearedSelection(m.base))
}

func clearedSelection(data *app.DatasetHandle) map[reactive.Key]interface{} {
	return map[reactive.Key]interface{}{
		app.InputDataset:      data,
		app.InputResponse:     "",
		app.InputExplanatory:  []string(nil),
		app.InputLevel:        "",
		app.InputGenerateCode: 0,
	}
}

// Delete ends a session
func (m *Manager) Delete(id core.SessionID) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok && s.cancel != nil {
		s.cancel()
	}
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IDs lists live sessions, sorted
func (m *Manager) IDs() []core.SessionID {
	m.mu.RLock()
	ids := make([]core.SessionID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}

// Sweep removes sessions idle for longer than the TTL and returns how
// many were removed.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.config.TTL)

	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		if s.cancel != nil {
			s.cancel()
		}
	}
	if len(expired) > 0 {
		m.log.Info("[Session] swept %d expired sessions (active: %d)", len(expired), m.Len())
	}
	return len(expired)
}

// Run sweeps expired sessions every SweepInterval until ctx is done
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
