package session

import (
	"time"

	"github.com/Tnze/go-mc/chat"

	"github.com/reallyoldfogie/mc-keeper-go/world"
)

// Status is the per-profile observable snapshot pushed to the event sink
// whenever session or mirror state changes (debounced).
type Status struct {
	ID        string
	Name      string
	Connected bool
	// Playing is true while a downstream client is attached.
	Playing   bool
	Queue     *world.QueueInfo
	Player    world.PlayerPos
	Dimension int32
	// LastPacket is when the newest upstream packet arrived, zero before
	// the first one.
	LastPacket time.Time
	// ReconnectIn is the remaining auto-reconnect delay, zero when none is
	// pending.
	ReconnectIn time.Duration
}

// Events is the sink the excluded control plane subscribes through. All
// methods may be called from session goroutines and must not block.
type Events interface {
	Status(Status)
	Chat(profileID string, msg chat.Message)
	PlayerSpawned(profileID, player string)
	SessionEnded(profileID string, reason *chat.Message)
}

// NopEvents discards everything.
type NopEvents struct{}

func (NopEvents) Status(Status)                      {}
func (NopEvents) Chat(string, chat.Message)          {}
func (NopEvents) PlayerSpawned(string, string)       {}
func (NopEvents) SessionEnded(string, *chat.Message) {}
