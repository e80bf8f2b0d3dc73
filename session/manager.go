package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Tnze/go-mc/chat"
	"github.com/sirupsen/logrus"
)

// TokenRefresher freshens a profile's access token in place before a
// connect. It returns false when the token could not be refreshed, which
// aborts the connect without retry.
type TokenRefresher func(p *Profile) bool

// ManagerConfig wires the manager's collaborators. Zero-value fields get
// working defaults.
type ManagerConfig struct {
	// ServerAddr is the upstream host:port.
	ServerAddr string
	Joiner     SessionJoiner
	Refresh    TokenRefresher
	Events     Events
	// DumpDir receives packet dump files, default "dumps".
	DumpDir string
	Log     *logrus.Logger
}

// Manager owns the profile-id to session table and the reconnect timers.
type Manager struct {
	serverAddr string
	joiner     SessionJoiner
	refresh    TokenRefresher
	events     Events
	dumpDir    string
	log        *logrus.Logger

	mu         sync.Mutex
	sessions   map[string]*Session
	reconnects map[string]*time.Timer
	closed     bool
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Joiner == nil {
		cfg.Joiner = NewMojangSessionService()
	}
	if cfg.Events == nil {
		cfg.Events = NopEvents{}
	}
	if cfg.DumpDir == "" {
		cfg.DumpDir = "dumps"
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return &Manager{
		serverAddr: cfg.ServerAddr,
		joiner:     cfg.Joiner,
		refresh:    cfg.Refresh,
		events:     cfg.Events,
		dumpDir:    cfg.DumpDir,
		log:        cfg.Log,
		sessions:   make(map[string]*Session),
		reconnects: make(map[string]*time.Timer),
	}
}

// Connect opens an upstream session for the profile. The session is visible
// in the table before the network round-trip and removed again on failure.
func (m *Manager) Connect(profile Profile) error {
	if err := profile.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("connect %s: manager closed", profile.ID)
	}
	if _, ok := m.sessions[profile.ID]; ok {
		m.mu.Unlock()
		return fmt.Errorf("connect %s: %w", profile.ID, ErrAlreadyConnected)
	}
	m.clearReconnectLocked(profile.ID)
	m.mu.Unlock()

	if m.refresh != nil && !m.refresh(&profile) {
		return fmt.Errorf("connect %s: %w", profile.ID, ErrTokenRefresh)
	}

	s := newSession(m, profile)
	m.mu.Lock()
	if _, ok := m.sessions[profile.ID]; ok {
		m.mu.Unlock()
		return fmt.Errorf("connect %s: %w", profile.ID, ErrAlreadyConnected)
	}
	m.sessions[profile.ID] = s
	m.mu.Unlock()

	if err := s.start(); err != nil {
		m.mu.Lock()
		if m.sessions[profile.ID] == s {
			delete(m.sessions, profile.ID)
		}
		m.mu.Unlock()
		return fmt.Errorf("connect %s: %w", profile.ID, err)
	}
	m.events.Status(s.Status())
	return nil
}

// Disconnect ends the profile's session deliberately: no auto-reconnect, and
// any pending reconnect timer is cancelled.
func (m *Manager) Disconnect(profileID string) error {
	m.mu.Lock()
	m.clearReconnectLocked(profileID)
	s, ok := m.sessions[profileID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("disconnect %s: %w", profileID, ErrNotConnected)
	}
	s.mu.Lock()
	s.userHasDisconnected = true
	s.mu.Unlock()
	s.end()
	return nil
}

// SendChat sends a chat line through the profile's session.
func (m *Manager) SendChat(profileID, text string) error {
	s, ok := m.Session(profileID)
	if !ok {
		return fmt.Errorf("chat %s: %w", profileID, ErrNotConnected)
	}
	return s.SendChat(text)
}

// Session looks a live session up by profile id.
func (m *Manager) Session(profileID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[profileID]
	return s, ok
}

// Find resolves a session by profile id or name.
func (m *Manager) Find(idOrName string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[idOrName]; ok {
		return s, true
	}
	for _, s := range m.sessions {
		if s.Profile.Name == idOrName {
			return s, true
		}
	}
	return nil, false
}

// Sessions returns the live sessions ordered by profile name.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Profile.Name < out[j].Profile.Name })
	return out
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close ends every session without reconnecting.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	for id, timer := range m.reconnects {
		timer.Stop()
		delete(m.reconnects, id)
	}
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		s.userHasDisconnected = true
		s.mu.Unlock()
		s.end()
	}
}

// sessionEnded runs once per session after its dispatch loop stops. It
// removes the table entry and schedules auto-reconnect when the end was not
// deliberate.
func (m *Manager) sessionEnded(s *Session, reason *chat.Message) {
	profileID := s.Profile.ID
	m.mu.Lock()
	if m.sessions[profileID] == s {
		delete(m.sessions, profileID)
	}
	closed := m.closed
	m.mu.Unlock()

	m.events.SessionEnded(profileID, reason)

	s.mu.Lock()
	deliberate := s.userHasDisconnected || s.autoDisconnected
	s.mu.Unlock()

	settings := s.Profile.Settings.AutoReconnect
	if closed || deliberate || !settings.Enabled {
		m.events.Status(Status{ID: profileID, Name: s.Profile.Name})
		return
	}

	delay := time.Duration(settings.Delay) * time.Millisecond
	m.events.Status(Status{ID: profileID, Name: s.Profile.Name, ReconnectIn: delay})
	m.log.WithField("profile", profileID).WithField("delay", delay).Info("scheduling reconnect")

	profile := s.Profile
	m.mu.Lock()
	m.clearReconnectLocked(profileID)
	m.reconnects[profileID] = time.AfterFunc(delay, func() {
		m.mu.Lock()
		delete(m.reconnects, profileID)
		m.mu.Unlock()
		if err := m.Connect(profile); err != nil {
			m.log.WithField("profile", profileID).WithError(err).Warn("reconnect failed")
		}
	})
	m.mu.Unlock()
}

func (m *Manager) clearReconnectLocked(profileID string) {
	if timer, ok := m.reconnects[profileID]; ok {
		timer.Stop()
		delete(m.reconnects, profileID)
	}
}
