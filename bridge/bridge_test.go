package bridge

import (
	"errors"
	"io"
	"testing"
	"time"

	mcnet "github.com/Tnze/go-mc/net"
	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/reallyoldfogie/mc-keeper-go/proto"
	"github.com/reallyoldfogie/mc-keeper-go/world"
)

func testLogEntry() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// connPair returns both ends of a loopback connection: the server side for
// the bridge, the client side for assertions.
func connPair(t *testing.T) (down, client *mcnet.Conn) {
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
	server, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	c := <-dialed
	if c == nil {
		t.Fatal("dial failed")
	}
	t.Cleanup(func() {
		server.Close()
		c.Close()
	})
	return &server, c
}

func collectPackets(conn *mcnet.Conn) <-chan pk.Packet {
	out := make(chan pk.Packet, 1024)
	go func() {
		defer close(out)
		for {
			var p pk.Packet
			if err := conn.ReadPacket(&p); err != nil {
				return
			}
			out <- p
		}
	}()
	return out
}

// mirrorWithMob holds a joined world with one mob at the origin.
func mirrorWithMob(t *testing.T) *world.Mirror {
	t.Helper()
	m := world.New()
	join := pk.Marshal(proto.ClientboundJoinGame,
		pk.Int(123), pk.UnsignedByte(0), pk.Int(0), pk.UnsignedByte(2),
		pk.UnsignedByte(20), pk.String("default"), pk.Boolean(false))
	if _, err := m.ApplyPacket(join); err != nil {
		t.Fatal(err)
	}
	spawn := pk.Marshal(proto.ClientboundSpawnMob,
		pk.VarInt(200), pk.UUID(uuid.New()), pk.VarInt(54),
		pk.Double(0), pk.Double(64), pk.Double(0),
		pk.Byte(0), pk.Byte(0), pk.Byte(0),
		pk.Short(0), pk.Short(0), pk.Short(0),
		proto.Metadata{})
	if _, err := m.ApplyPacket(spawn); err != nil {
		t.Fatal(err)
	}
	return m
}

// A packet applied to the mirror after Start must reach the client through
// the live queue only; the replay burst reflects the mirror as of Start.
func TestSnapshotTakenAtStart(t *testing.T) {
	m := mirrorWithMob(t)
	down, client := connPair(t)
	got := collectPackets(client)

	b := New(m, 123, uuid.UUID{}, down, nil, testLogEntry(), nil)
	b.Start(false)
	defer func() {
		b.Stop()
		b.Wait()
	}()

	move := pk.Marshal(proto.ClientboundEntityRelativeMove,
		pk.VarInt(200), pk.Short(4096), pk.Short(0), pk.Short(0), pk.Boolean(true))
	if _, err := m.ApplyPacket(move); err != nil {
		t.Fatal(err)
	}
	b.HandleClientbound(move)

	var spawnX float64
	sawSpawn := false
	timeout := time.After(5 * time.Second)
	for {
		select {
		case p, ok := <-got:
			if !ok {
				t.Fatal("stream closed before the relative move arrived")
			}
			switch p.ID {
			case proto.ClientboundSpawnMob:
				var (
					eid pk.VarInt
					id  pk.UUID
					typ pk.VarInt
					x   pk.Double
				)
				if err := p.Scan(&eid, &id, &typ, &x); err != nil {
					t.Fatal(err)
				}
				if eid == 200 {
					sawSpawn = true
					spawnX = float64(x)
				}
			case proto.ClientboundEntityRelativeMove:
				if !sawSpawn {
					t.Fatal("relative move arrived before the replayed spawn")
				}
				if spawnX != 0 {
					t.Fatalf("replayed spawn already at x=%v with the move also delivered live", spawnX)
				}
				return
			}
		case <-timeout:
			t.Fatal("relative move never delivered")
		}
	}
}

func TestWaitReleasesWriter(t *testing.T) {
	m := mirrorWithMob(t)
	down, client := connPair(t)
	go func() {
		for {
			var p pk.Packet
			if err := client.ReadPacket(&p); err != nil {
				return
			}
		}
	}()

	b := New(m, 123, uuid.UUID{}, down, nil, testLogEntry(), nil)
	b.Start(false)
	b.Stop()

	returned := make(chan struct{})
	go func() {
		b.Wait()
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait hung after Stop")
	}
}

func TestStopBeforeStartWritesNothing(t *testing.T) {
	m := mirrorWithMob(t)
	down, client := connPair(t)
	got := collectPackets(client)

	b := New(m, 123, uuid.UUID{}, down, nil, testLogEntry(), nil)
	b.Stop()
	b.Start(false)
	b.Wait()

	select {
	case p, ok := <-got:
		if ok {
			t.Fatalf("stopped bridge wrote packet 0x%02x", p.ID)
		}
	case <-time.After(200 * time.Millisecond):
	}
}

// A client that stops draining must end the bridge instead of blocking the
// caller, which is the session dispatch goroutine.
func TestLiveOverflowEndsBridge(t *testing.T) {
	endErr := make(chan error, 1)
	b := New(world.New(), 123, uuid.UUID{}, nil, nil, testLogEntry(),
		func(err error) { endErr <- err })

	keepAlive := pk.Marshal(proto.ClientboundKeepAlive, pk.Long(1))
	for i := 0; i < 512; i++ {
		b.HandleClientbound(keepAlive)
	}
	select {
	case err := <-endErr:
		t.Fatalf("bridge ended before the queue filled: %v", err)
	default:
	}

	returned := make(chan struct{})
	go func() {
		b.HandleClientbound(keepAlive)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("overflowing send blocked")
	}
	select {
	case err := <-endErr:
		if !errors.Is(err, errDownstreamStalled) {
			t.Errorf("end error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onEnd never fired")
	}

	// Ended bridge drops silently.
	b.HandleClientbound(keepAlive)
}
