package session

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Tnze/go-mc/chat"
	mcnet "github.com/Tnze/go-mc/net"
	pk "github.com/Tnze/go-mc/net/packet"

	"github.com/reallyoldfogie/mc-keeper-go/proto"
)

const testProfileID = "d8d5a9237b2043d8883b1150148d6955"

// fakeUpstream is a minimal offline-mode server: it completes login without
// encryption, sends a JoinGame, then swallows serverbound traffic.
type fakeUpstream struct {
	t        *testing.T
	listener *mcnet.Listener
	refuse   bool

	// keepAlives receives the ids of serverbound keep-alive echoes.
	keepAlives chan int64

	mu     sync.Mutex
	conns  []*mcnet.Conn
	logins int
}

func startFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	ln, err := mcnet.ListenMC("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeUpstream{t: t, listener: ln, keepAlives: make(chan int64, 8)}
	go f.acceptLoop()
	t.Cleanup(f.close)
	return f
}

func (f *fakeUpstream) addr() string { return f.listener.Addr().String() }

func (f *fakeUpstream) acceptLoop() {
	for {
		conn, err := f.listener.Accept()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns = append(f.conns, &conn)
		f.mu.Unlock()
		go f.serve(&conn)
	}
}

func (f *fakeUpstream) serve(conn *mcnet.Conn) {
	var p pk.Packet
	if err := conn.ReadPacket(&p); err != nil { // handshake
		return
	}
	if err := conn.ReadPacket(&p); err != nil || p.ID != proto.LoginStart {
		return
	}
	if f.refuse {
		conn.WritePacket(pk.Marshal(proto.LoginDisconnect,
			pk.String(`{"text":"You are banned"}`)))
		return
	}
	err := conn.WritePacket(pk.Marshal(proto.LoginSuccess,
		pk.String("11111111-2222-3333-4444-555555555555"),
		pk.String("Fit")))
	if err != nil {
		return
	}
	f.mu.Lock()
	f.logins++
	f.mu.Unlock()
	conn.WritePacket(pk.Marshal(proto.ClientboundJoinGame,
		pk.Int(123), pk.UnsignedByte(0), pk.Int(0), pk.UnsignedByte(2),
		pk.UnsignedByte(20), pk.String("default"), pk.Boolean(false)))
	for {
		if err := conn.ReadPacket(&p); err != nil {
			return
		}
		if p.ID == proto.ServerboundKeepAlive {
			var id pk.Long
			if p.Scan(&id) == nil {
				select {
				case f.keepAlives <- int64(id):
				default:
				}
			}
		}
	}
}

// send writes one clientbound packet on the newest accepted connection.
func (f *fakeUpstream) send(p pk.Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return errors.New("no upstream connection")
	}
	return f.conns[len(f.conns)-1].WritePacket(p)
}

// dropAll closes every accepted connection, simulating an upstream outage.
func (f *fakeUpstream) dropAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		c.Close()
	}
	f.conns = f.conns[:0]
}

func (f *fakeUpstream) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func (f *fakeUpstream) close() {
	f.listener.Close()
	f.dropAll()
}

// recordingEvents captures the sink calls the manager makes.
type recordingEvents struct {
	mu      sync.Mutex
	ended   []string
	reasons []*chat.Message
}

func (r *recordingEvents) Status(Status)                {}
func (r *recordingEvents) Chat(string, chat.Message)    {}
func (r *recordingEvents) PlayerSpawned(string, string) {}
func (r *recordingEvents) SessionEnded(profileID string, reason *chat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, profileID)
	r.reasons = append(r.reasons, reason)
}

func (r *recordingEvents) endedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ended)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testManager(t *testing.T, upstream *fakeUpstream, events Events) *Manager {
	t.Helper()
	m := NewManager(ManagerConfig{
		ServerAddr: upstream.addr(),
		Events:     events,
		DumpDir:    t.TempDir(),
	})
	t.Cleanup(m.Close)
	return m
}

func TestProfileValidate(t *testing.T) {
	good := Profile{ID: testProfileID, Name: "Fit"}
	if err := good.Validate(); err != nil {
		t.Errorf("valid profile rejected: %v", err)
	}
	if err := (Profile{ID: "nope", Name: "Fit"}).Validate(); err == nil {
		t.Error("short id accepted")
	}
	if err := (Profile{ID: testProfileID}).Validate(); err == nil {
		t.Error("empty name accepted")
	}
}

func TestNotifyPlayersIgnored(t *testing.T) {
	n := NotifyPlayers{Ignore: []string{"HermeticLock", "Babbaj"}}
	if !n.Ignored("hermeticlock") {
		t.Error("ignore list should match case-insensitively")
	}
	if n.Ignored("Fit") {
		t.Error("unlisted player ignored")
	}
}

func TestConnectAndDuplicate(t *testing.T) {
	upstream := startFakeUpstream(t)
	m := testManager(t, upstream, nil)
	profile := Profile{ID: testProfileID, Name: "Fit"}

	if err := m.Connect(profile); err != nil {
		t.Fatal(err)
	}
	if m.Count() != 1 {
		t.Fatalf("count = %d, want 1", m.Count())
	}
	if err := m.Connect(profile); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second connect: %v, want ErrAlreadyConnected", err)
	}

	s, ok := m.Find("Fit")
	if !ok || s.Profile.ID != testProfileID {
		t.Fatalf("Find by name = %v, %v", s, ok)
	}
	waitFor(t, "join game", func() bool { return !s.Status().LastPacket.IsZero() })

	if err := m.Disconnect(testProfileID); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "session removal", func() bool { return m.Count() == 0 })
	if err := m.Disconnect(testProfileID); !errors.Is(err, ErrNotConnected) {
		t.Errorf("second disconnect: %v, want ErrNotConnected", err)
	}
}

func TestTokenRefreshFailure(t *testing.T) {
	upstream := startFakeUpstream(t)
	m := NewManager(ManagerConfig{
		ServerAddr: upstream.addr(),
		Refresh:    func(*Profile) bool { return false },
		DumpDir:    t.TempDir(),
	})
	t.Cleanup(m.Close)

	err := m.Connect(Profile{ID: testProfileID, Name: "Fit"})
	if !errors.Is(err, ErrTokenRefresh) {
		t.Fatalf("connect: %v, want ErrTokenRefresh", err)
	}
	if m.Count() != 0 {
		t.Errorf("count = %d after failed connect", m.Count())
	}
	if upstream.loginCount() != 0 {
		t.Error("dialed upstream despite refresh failure")
	}
}

func TestConnectRefusedSurfacesReason(t *testing.T) {
	upstream := startFakeUpstream(t)
	upstream.refuse = true
	m := testManager(t, upstream, nil)

	err := m.Connect(Profile{ID: testProfileID, Name: "Fit"})
	if err == nil {
		t.Fatal("connect succeeded against refusing server")
	}
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("connect error %v is not a ConnectError", err)
	}
	if ce.Reason.ClearString() != "You are banned" {
		t.Errorf("reason = %q", ce.Reason.ClearString())
	}
	if m.Count() != 0 {
		t.Errorf("count = %d after refused connect", m.Count())
	}
}

func TestAutoReconnect(t *testing.T) {
	upstream := startFakeUpstream(t)
	events := &recordingEvents{}
	m := testManager(t, upstream, events)
	profile := Profile{ID: testProfileID, Name: "Fit"}
	profile.Settings.AutoReconnect = AutoReconnect{Enabled: true, Delay: 50}

	if err := m.Connect(profile); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first login", func() bool { return upstream.loginCount() == 1 })

	upstream.dropAll()
	waitFor(t, "reconnect", func() bool { return upstream.loginCount() == 2 })
	waitFor(t, "session table", func() bool { return m.Count() == 1 })
	if events.endedCount() != 1 {
		t.Errorf("SessionEnded fired %d times, want 1", events.endedCount())
	}
}

func TestDisconnectSuppressesReconnect(t *testing.T) {
	upstream := startFakeUpstream(t)
	m := testManager(t, upstream, nil)
	profile := Profile{ID: testProfileID, Name: "Fit"}
	profile.Settings.AutoReconnect = AutoReconnect{Enabled: true, Delay: 20}

	if err := m.Connect(profile); err != nil {
		t.Fatal(err)
	}
	if err := m.Disconnect(testProfileID); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "session removal", func() bool { return m.Count() == 0 })

	time.Sleep(200 * time.Millisecond)
	if m.Count() != 0 {
		t.Error("deliberate disconnect still reconnected")
	}
	if upstream.loginCount() != 1 {
		t.Errorf("logins = %d, want 1", upstream.loginCount())
	}
}

func TestChatLogTrim(t *testing.T) {
	m := NewManager(ManagerConfig{ServerAddr: "127.0.0.1:1"})
	s := newSession(m, Profile{ID: testProfileID, Name: "Fit"})

	for i := 0; i < chatLogCap+5; i++ {
		s.onChat(chat.Message{Text: fmt.Sprintf("line %d", i)})
	}
	s.mu.Lock()
	got := len(s.chatLog)
	first := s.chatLog[0].Text
	s.mu.Unlock()
	// The 101st line trims back to 90, then four more append.
	if got != chatLogTrim+4 {
		t.Errorf("chat log length = %d, want %d", got, chatLogTrim+4)
	}
	if first != fmt.Sprintf("line %d", chatLogCap+1-chatLogTrim) {
		t.Errorf("oldest retained line = %q", first)
	}
}

func TestSubscribeChatReplaysHistory(t *testing.T) {
	m := NewManager(ManagerConfig{ServerAddr: "127.0.0.1:1"})
	s := newSession(m, Profile{ID: testProfileID, Name: "Fit"})
	s.onChat(chat.Message{Text: "one"})
	s.onChat(chat.Message{Text: "two"})

	var got []string
	id := s.SubscribeChat(func(msg chat.Message) { got = append(got, msg.Text) })
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("replayed history = %v", got)
	}

	s.onChat(chat.Message{Text: "three"})
	if len(got) != 3 || got[2] != "three" {
		t.Errorf("live delivery = %v", got)
	}
	s.UnsubscribeChat(id)
	s.onChat(chat.Message{Text: "four"})
	if len(got) != 3 {
		t.Errorf("unsubscribed listener still called: %v", got)
	}
}

func TestAutoDisconnectGate(t *testing.T) {
	m := NewManager(ManagerConfig{ServerAddr: "127.0.0.1:1"})
	profile := Profile{ID: testProfileID, Name: "Fit"}
	profile.Settings.AutoDisconnect = AutoDisconnect{Enabled: true, Health: 10}
	s := newSession(m, profile)

	s.onHealth(15)
	select {
	case <-s.done:
		t.Fatal("healthy session ended")
	default:
	}

	s.onHealth(5)
	select {
	case <-s.done:
	default:
		t.Fatal("low-health session kept running")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.autoDisconnected {
		t.Error("autoDisconnected not set")
	}
	if s.disconnectReason == nil || s.disconnectReason.Text != lowHealthReason {
		t.Errorf("disconnect reason = %v", s.disconnectReason)
	}
}

// attachClient opens a loopback pair and attaches the server side to the
// session. The client side's packets stream out of the returned channel.
func attachClient(t *testing.T, s *Session) <-chan pk.Packet {
	t.Helper()
	ln, err := mcnet.ListenMC("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	dialed := make(chan *mcnet.Conn, 1)
	go func() {
		c, err := mcnet.DialMC(ln.Addr().String())
		if err != nil {
			dialed <- nil
			return
		}
		dialed <- c
	}()
	down, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	client := <-dialed
	if client == nil {
		t.Fatal("dial failed")
	}
	t.Cleanup(func() {
		down.Close()
		client.Close()
	})

	got := make(chan pk.Packet, 1024)
	go func() {
		defer close(got)
		for {
			var p pk.Packet
			if err := client.ReadPacket(&p); err != nil {
				return
			}
			got <- p
		}
	}()
	if _, err := s.Attach(&down, false, nil); err != nil {
		t.Fatal(err)
	}
	return got
}

func TestKeepAliveEchoedAndForwarded(t *testing.T) {
	upstream := startFakeUpstream(t)
	m := testManager(t, upstream, nil)
	if err := m.Connect(Profile{ID: testProfileID, Name: "Fit"}); err != nil {
		t.Fatal(err)
	}
	s, _ := m.Session(testProfileID)
	waitFor(t, "join game", func() bool { return !s.Status().LastPacket.IsZero() })
	got := attachClient(t, s)

	if err := upstream.send(pk.Marshal(proto.ClientboundKeepAlive, pk.Long(77))); err != nil {
		t.Fatal(err)
	}

	select {
	case id := <-upstream.keepAlives:
		if id != 77 {
			t.Errorf("echoed id = %d, want 77", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("upstream never got the keep-alive echo")
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case p, ok := <-got:
			if !ok {
				t.Fatal("downstream closed before the keep-alive")
			}
			if p.ID != proto.ClientboundKeepAlive {
				continue
			}
			var id pk.Long
			if err := p.Scan(&id); err != nil {
				t.Fatal(err)
			}
			if id != 77 {
				t.Errorf("forwarded id = %d, want 77", id)
			}
			return
		case <-timeout:
			t.Fatal("keep-alive never reached the attached client")
		}
	}
}

// Status runs on timer goroutines while attach and detach flip the bridge
// pointer on the dispatch goroutine; this passes under the race detector.
func TestStatusDuringAttachDetach(t *testing.T) {
	upstream := startFakeUpstream(t)
	m := testManager(t, upstream, nil)
	if err := m.Connect(Profile{ID: testProfileID, Name: "Fit"}); err != nil {
		t.Fatal(err)
	}
	s, _ := m.Session(testProfileID)
	waitFor(t, "join game", func() bool { return !s.Status().LastPacket.IsZero() })

	stop := make(chan struct{})
	statuses := make(chan struct{})
	go func() {
		defer close(statuses)
		for {
			select {
			case <-stop:
				return
			default:
				s.Status()
			}
		}
	}()

	attachClient(t, s)
	if !s.Status().Playing {
		t.Error("attached session not playing")
	}
	s.Detach()
	waitFor(t, "detach", func() bool { return !s.Status().Playing })
	close(stop)
	<-statuses
}

func TestDialUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	m := NewManager(ManagerConfig{ServerAddr: addr, DumpDir: t.TempDir()})
	t.Cleanup(m.Close)
	if err := m.Connect(Profile{ID: testProfileID, Name: "Fit"}); err == nil {
		t.Fatal("connect to closed port succeeded")
	}
	if m.Count() != 0 {
		t.Errorf("count = %d", m.Count())
	}
}
