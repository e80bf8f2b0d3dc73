package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Tnze/go-mc/chat"
	mcnet "github.com/Tnze/go-mc/net"
	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/reallyoldfogie/mc-keeper-go/bridge"
	"github.com/reallyoldfogie/mc-keeper-go/dump"
	"github.com/reallyoldfogie/mc-keeper-go/proto"
	"github.com/reallyoldfogie/mc-keeper-go/world"
)

const (
	// chatLogCap bounds the retained chat history; on overflow the log is
	// trimmed back to chatLogTrim entries.
	chatLogCap  = 100
	chatLogTrim = 90

	// statusDebounce coalesces mirror-change notifications.
	statusDebounce = 100 * time.Millisecond
)

// Session is one durable upstream connection plus the mirror it feeds.
// Everything that touches the mirror or the attached bridge runs on the
// dispatch goroutine; other goroutines get in through cmds.
type Session struct {
	Profile Profile

	manager *Manager
	mirror  *world.Mirror
	conn    *upstreamConn
	log     *logrus.Entry

	selfUUID uuid.UUID

	cmds    chan func()
	done    chan struct{}
	endOnce sync.Once

	// lastPacket is the unix-milli arrival time of the newest upstream
	// packet, read lock-free by Status.
	lastPacket atomic.Int64

	// br is owned by the dispatch goroutine.
	br *bridge.Bridge

	mu                  sync.Mutex
	chatLog             []chat.Message
	chatListeners       map[int]func(chat.Message)
	nextListenerID      int
	userHasDisconnected bool
	autoDisconnected    bool
	disconnectReason    *chat.Message
	statusPending       bool
	dumpW               *dump.Writer
}

var errSessionEnded = errors.New("session ended")

func newSession(m *Manager, profile Profile) *Session {
	s := &Session{
		Profile:       profile,
		manager:       m,
		mirror:        world.New(),
		log:           m.log.WithField("profile", profile.ID).WithField("name", profile.Name),
		cmds:          make(chan func(), 16),
		done:          make(chan struct{}),
		chatListeners: make(map[int]func(chat.Message)),
	}
	s.mirror.SetHooks(world.Hooks{
		Chat:        s.onChat,
		SpawnPlayer: s.onSpawnPlayer,
		Gamemode:    s.onGamemode,
		Health:      s.onHealth,
		Change:      s.scheduleStatus,
	})
	return s
}

// start dials upstream and launches the dispatch loop.
func (s *Session) start() error {
	conn, err := dialUpstream(s.manager.serverAddr, s.Profile, s.manager.joiner, s.log)
	if err != nil {
		var ce *ConnectError
		if errors.As(err, &ce) {
			reason := ce.Reason
			s.mu.Lock()
			s.disconnectReason = &reason
			s.mu.Unlock()
		}
		return err
	}
	s.conn = conn
	if id, err := uuid.Parse(conn.UUID); err == nil {
		s.selfUUID = id
	}

	if s.Profile.Settings.EnablePacketDumps {
		w, err := dump.Create(s.manager.dumpDir, s.Profile.ID)
		if err != nil {
			s.log.WithError(err).Warn("packet dump disabled")
		} else {
			s.mu.Lock()
			s.dumpW = w
			s.mu.Unlock()
		}
	}

	go s.run()
	return nil
}

func (s *Session) run() {
	pkts := make(chan pk.Packet, 64)
	readErr := make(chan error, 1)
	go func() {
		for {
			var p pk.Packet
			if err := s.conn.ReadPacket(&p); err != nil {
				readErr <- err
				return
			}
			select {
			case pkts <- p:
			case <-s.done:
				return
			}
		}
	}()

	var endErr error
loop:
	for {
		select {
		case <-s.done:
			break loop
		case cmd := <-s.cmds:
			cmd()
		case err := <-readErr:
			endErr = err
			break loop
		case p := <-pkts:
			if err := s.handlePacket(p); err != nil {
				endErr = err
				break loop
			}
		}
	}
	s.finish(endErr)
}

func (s *Session) handlePacket(p pk.Packet) error {
	s.lastPacket.Store(time.Now().UnixMilli())
	if p.ID == proto.ClientboundKeepAlive {
		var id pk.Long
		if err := p.Scan(&id); err != nil {
			return fmt.Errorf("keep alive: %w", err)
		}
		// The session answers regardless of attachment; the attached client
		// still gets the packet so its own timeout stays fed, and the bridge
		// drops its response.
		if s.br != nil {
			s.br.HandleClientbound(p)
		}
		return s.conn.WritePacket(pk.Marshal(proto.ServerboundKeepAlive, id))
	}

	s.dumpPacket(dump.DirInbound, p)

	if p.ID == proto.ClientboundDisconnect {
		var reason chat.Message
		if err := p.Scan(&reason); err == nil {
			s.mu.Lock()
			s.disconnectReason = &reason
			s.mu.Unlock()
			s.log.WithField("reason", reason.ClearString()).Info("upstream disconnect")
		}
		return errSessionEnded
	}

	responses, err := s.mirror.ApplyPacket(p)
	if err != nil {
		return fmt.Errorf("mirror: %w", err)
	}
	for _, resp := range responses {
		if err := s.sendUpstream(resp); err != nil {
			return err
		}
	}
	if s.br != nil {
		s.br.HandleClientbound(p)
	}
	return nil
}

// sendUpstream writes one serverbound packet and records it in the dump.
func (s *Session) sendUpstream(p pk.Packet) error {
	if p.ID != proto.ServerboundKeepAlive {
		s.dumpPacket(dump.DirOutbound, p)
	}
	return s.conn.WritePacket(p)
}

func (s *Session) dumpPacket(dir byte, p pk.Packet) {
	s.mu.Lock()
	w := s.dumpW
	s.mu.Unlock()
	if w == nil {
		return
	}
	if err := w.WritePacket(dir, p); err != nil {
		s.log.WithError(err).Warn("packet dump write failed, disabling")
		s.mu.Lock()
		s.dumpW = nil
		s.mu.Unlock()
		w.Close()
	}
}

// Attach hands a downstream connection to this session. The snapshot replay
// and the live-buffer switchover happen atomically on the dispatch
// goroutine. onEnd fires when the bridge stops.
func (s *Session) Attach(down *mcnet.Conn, respawn bool, onEnd func(error)) (*bridge.Bridge, error) {
	reply := make(chan *bridge.Bridge, 1)
	cmd := func() {
		if s.br != nil {
			s.br.Stop()
		}
		var selfEid int32
		s.mirror.View(func(m *world.Mirror) { selfEid = m.SelfEID })
		b := bridge.New(s.mirror, selfEid, s.selfUUID, down, s.sendUpstream, s.log, onEnd)
		s.mu.Lock()
		s.br = b
		s.mu.Unlock()
		b.Start(respawn)
		reply <- b
	}
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return nil, errSessionEnded
	}
	select {
	case b := <-reply:
		s.scheduleStatus()
		return b, nil
	case <-s.done:
		return nil, errSessionEnded
	}
}

// Detach releases the current bridge, if any, leaving the downstream socket
// open for the caller.
func (s *Session) Detach() {
	cmd := func() {
		if s.br != nil {
			s.br.Stop()
			s.mu.Lock()
			s.br = nil
			s.mu.Unlock()
		}
	}
	select {
	case s.cmds <- cmd:
		s.scheduleStatus()
	case <-s.done:
	}
}

// SendChat sends one chat line upstream.
func (s *Session) SendChat(text string) error {
	return s.sendUpstream(pk.Marshal(proto.ServerboundChatMessage, pk.String(text)))
}

// SubscribeChat registers a chat listener and replays the retained history
// to it. The returned id unsubscribes.
func (s *Session) SubscribeChat(fn func(chat.Message)) int {
	s.mu.Lock()
	id := s.nextListenerID
	s.nextListenerID++
	s.chatListeners[id] = fn
	history := make([]chat.Message, len(s.chatLog))
	copy(history, s.chatLog)
	s.mu.Unlock()

	for _, msg := range history {
		fn(msg)
	}
	return id
}

// UnsubscribeChat removes a listener registered with SubscribeChat.
func (s *Session) UnsubscribeChat(id int) {
	s.mu.Lock()
	delete(s.chatListeners, id)
	s.mu.Unlock()
}

// Status assembles the observable snapshot.
func (s *Session) Status() Status {
	st := Status{
		ID:        s.Profile.ID,
		Name:      s.Profile.Name,
		Connected: true,
	}
	select {
	case <-s.done:
		st.Connected = false
	default:
	}
	if millis := s.lastPacket.Load(); millis != 0 {
		st.LastPacket = time.UnixMilli(millis)
	}
	s.mirror.View(func(m *world.Mirror) {
		st.Player = m.Player
		st.Dimension = m.Dimension
		if m.Queue != nil {
			q := *m.Queue
			st.Queue = &q
		}
	})
	s.mu.Lock()
	st.Playing = s.playingLocked()
	s.mu.Unlock()
	return st
}

// playingLocked reports downstream attachment. br is written on the dispatch
// goroutine under s.mu, so the locked read is safe from timer goroutines.
func (s *Session) playingLocked() bool {
	return s.br != nil
}

// end closes the session from outside the dispatch loop.
func (s *Session) end() {
	s.endOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

// finish runs once on the dispatch goroutine when the loop stops.
func (s *Session) finish(cause error) {
	s.end()
	if s.br != nil {
		s.br.Stop()
		s.mu.Lock()
		s.br = nil
		s.mu.Unlock()
	}
	s.mu.Lock()
	if w := s.dumpW; w != nil {
		s.dumpW = nil
		w.Close()
	}
	reason := s.disconnectReason
	s.mu.Unlock()

	if cause != nil && !errors.Is(cause, errSessionEnded) {
		s.log.WithError(cause).Info("session ended")
	} else {
		s.log.Info("session ended")
	}
	s.manager.sessionEnded(s, reason)
}

func (s *Session) onChat(msg chat.Message) {
	s.mu.Lock()
	s.chatLog = append(s.chatLog, msg)
	if len(s.chatLog) > chatLogCap {
		s.chatLog = append(s.chatLog[:0:0], s.chatLog[len(s.chatLog)-chatLogTrim:]...)
	}
	listeners := make([]func(chat.Message), 0, len(s.chatListeners))
	for _, fn := range s.chatListeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(msg)
	}
	s.manager.events.Chat(s.Profile.ID, msg)
}

func (s *Session) onSpawnPlayer(name string) {
	settings := s.Profile.Settings.NotifyPlayers
	if !settings.Enabled || name == "" || settings.Ignored(name) {
		return
	}
	if s.br != nil && settings.DisableWhilePlaying {
		return
	}
	s.manager.events.PlayerSpawned(s.Profile.ID, name)
}

func (s *Session) onGamemode(gamemode int32) {
	if s.br != nil {
		s.br.NotifyGamemode(gamemode)
	}
}

// onHealth evaluates auto-disconnect. It only ever runs after the mirror has
// latched its first health packet.
func (s *Session) onHealth(health float32) {
	settings := s.Profile.Settings.AutoDisconnect
	if !settings.Enabled || float64(health) >= settings.Health {
		return
	}
	if s.br != nil && settings.DisableWhilePlaying {
		return
	}
	reason := chat.Message{Text: lowHealthReason}
	s.mu.Lock()
	s.autoDisconnected = true
	s.disconnectReason = &reason
	s.mu.Unlock()
	s.log.WithField("health", health).Info("auto-disconnect")
	s.end()
}

// scheduleStatus debounces status pushes.
func (s *Session) scheduleStatus() {
	s.mu.Lock()
	if s.statusPending {
		s.mu.Unlock()
		return
	}
	s.statusPending = true
	s.mu.Unlock()

	time.AfterFunc(statusDebounce, func() {
		s.mu.Lock()
		s.statusPending = false
		s.mu.Unlock()
		s.manager.events.Status(s.Status())
	})
}
