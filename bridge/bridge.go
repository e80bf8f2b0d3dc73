package bridge

import (
	"errors"
	"fmt"
	"sync"

	mcnet "github.com/Tnze/go-mc/net"
	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/reallyoldfogie/mc-keeper-go/proto"
	"github.com/reallyoldfogie/mc-keeper-go/replay"
	"github.com/reallyoldfogie/mc-keeper-go/world"
)

// Bridge pipes one downstream client into one upstream session. The session
// feeds clientbound packets in through HandleClientbound; the downstream
// read loop feeds serverbound packets through HandleServerbound. A dedicated
// writer goroutine owns the downstream socket so the replay burst and the
// live stream cannot interleave.
type Bridge struct {
	mirror   *world.Mirror
	selfEid  int32
	selfUUID uuid.UUID
	down     *mcnet.Conn
	sendUp   func(pk.Packet) error
	log      *logrus.Entry

	live chan pk.Packet
	done chan struct{}
	// stopped closes when the writer goroutine has released the socket.
	stopped chan struct{}
	once    sync.Once
	endOnce sync.Once

	onEnd func(error)
}

// errDownstreamStalled ends a bridge whose client stopped draining.
var errDownstreamStalled = errors.New("downstream not draining, live queue overflow")

// New prepares a bridge. onEnd fires at most once, when the bridge ends; the
// error is nil for a deliberate Stop.
func New(mirror *world.Mirror, selfEid int32, selfUUID uuid.UUID, down *mcnet.Conn,
	sendUp func(pk.Packet) error, log *logrus.Entry, onEnd func(error)) *Bridge {
	return &Bridge{
		mirror:   mirror,
		selfEid:  selfEid,
		selfUUID: selfUUID,
		down:     down,
		sendUp:   sendUp,
		log:      log,
		live:     make(chan pk.Packet, 512),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		onEnd:    onEnd,
	}
}

// Start launches the writer loop: full replay first, then live packets in
// arrival order. The snapshot is taken before Start returns, so a packet
// applied to the mirror afterwards reaches the client through the live queue
// only, never both ways. respawn selects the Respawn-pair variant for
// clients that already hold a world.
func (b *Bridge) Start(respawn bool) {
	packets := replay.Packets(b.mirror, ClientEid, respawn)
	b.log.WithField("packets", len(packets)).Debug("replaying world")
	go b.writeLoop(packets)
}

func (b *Bridge) writeLoop(packets []pk.Packet) {
	defer close(b.stopped)
	for _, p := range packets {
		select {
		case <-b.done:
			b.end(nil)
			return
		default:
		}
		if err := b.down.WritePacket(p); err != nil {
			b.end(fmt.Errorf("replay write: %w", err))
			return
		}
	}
	for {
		select {
		case <-b.done:
			b.end(nil)
			return
		case p := <-b.live:
			out, err := RewriteClientbound(p, b.selfEid, b.objectType)
			if err != nil {
				b.end(fmt.Errorf("rewrite 0x%02x: %w", p.ID, err))
				return
			}
			if err := b.down.WritePacket(out); err != nil {
				b.end(fmt.Errorf("downstream write: %w", err))
				return
			}
		}
	}
}

// HandleClientbound queues one live upstream packet. Packets arriving while
// the replay burst is still flushing sit in the queue until it finishes, so
// causality order survives the attach. A full queue means the client stopped
// draining; the bridge ends instead of stalling the caller, which would
// starve the upstream keep-alive echo.
func (b *Bridge) HandleClientbound(p pk.Packet) {
	select {
	case <-b.done:
	case b.live <- p:
	default:
		b.end(errDownstreamStalled)
	}
}

// HandleServerbound applies the downstream-to-upstream rules and forwards.
func (b *Bridge) HandleServerbound(p pk.Packet) error {
	out, forward, err := RewriteServerbound(p, b.selfEid)
	if err != nil {
		return fmt.Errorf("rewrite 0x%02x: %w", p.ID, err)
	}
	if !forward {
		return nil
	}
	if err := b.mirror.TrackServerbound(out); err != nil {
		return fmt.Errorf("track 0x%02x: %w", p.ID, err)
	}
	return b.sendUp(out)
}

// NotifyGamemode pushes a synthetic tab-list gamemode update for the local
// player so the downstream client follows upstream gamemode changes.
func (b *Bridge) NotifyGamemode(gamemode int32) {
	b.HandleClientbound(pk.Marshal(proto.ClientboundPlayerListItem,
		pk.VarInt(1), pk.VarInt(1), pk.UUID(b.selfUUID), pk.VarInt(gamemode)))
}

// SendChat delivers a system chat line to the downstream client, bypassing
// the upstream entirely.
func (b *Bridge) SendChat(msg pk.Packet) {
	b.HandleClientbound(msg)
}

// Stop detaches the bridge without closing the downstream socket, so the
// client can be re-attached elsewhere. Idempotent.
func (b *Bridge) Stop() {
	b.once.Do(func() { close(b.done) })
}

// Wait blocks until the writer goroutine has exited. The downstream socket
// is free for another writer once it returns.
func (b *Bridge) Wait() {
	<-b.stopped
}

func (b *Bridge) end(err error) {
	b.once.Do(func() { close(b.done) })
	b.endOnce.Do(func() {
		if err != nil {
			b.log.WithError(err).Debug("bridge ended")
		}
		if b.onEnd != nil {
			b.onEnd(err)
		}
	})
}

func (b *Bridge) objectType(eid int32) (int8, bool) {
	var (
		typ int8
		ok  bool
	)
	b.mirror.View(func(m *world.Mirror) {
		if e, found := m.Entities[eid]; found && e.Kind == world.KindObject {
			typ, ok = e.ObjectType, true
		}
	})
	return typ, ok
}
