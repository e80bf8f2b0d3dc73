// Package world maintains a structured snapshot of the upstream session's
// world and player state, derived packet by packet from the clientbound
// stream. The snapshot is everything the replay engine needs to reconstitute
// a world-join for a freshly attached downstream client.
package world

import (
	"regexp"
	"strconv"
	"sync"

	"github.com/Tnze/go-mc/chat"
	"github.com/google/uuid"

	"github.com/reallyoldfogie/mc-keeper-go/proto"
)

// PlayerPos is the proxy player's own position and view angles.
type PlayerPos struct {
	X, Y, Z    float64
	Yaw, Pitch float32
}

// PlayerInfo is one tab-list entry.
type PlayerInfo struct {
	UUID        uuid.UUID
	Name        string
	Properties  []PlayerProperty
	Gamemode    int32
	Ping        int32
	DisplayName *chat.Message
}

// PlayerProperty is a signed profile property (usually "textures").
type PlayerProperty struct {
	Name      string
	Value     string
	Signature *string
}

// Team is a scoreboard team with its member names.
type Team struct {
	Name              string
	DisplayName       string
	Prefix            string
	Suffix            string
	FriendlyFlags     int8
	NameTagVisibility string
	CollisionRule     string
	Color             int8
	Members           []string
}

// BossBar mirrors one boss bar by uuid.
type BossBar struct {
	UUID     uuid.UUID
	Title    chat.Message
	Health   float32
	Color    int32
	Division int32
	Flags    int8
}

// MapData is a full 128x128 map item canvas plus its icons.
type MapData struct {
	ID               int32
	Scale            int8
	TrackingPosition bool
	Icons            []MapIcon
	Data             [128 * 128]byte
}

// MapIcon is one map marker. DirectionType packs direction and icon type the
// way the wire does.
type MapIcon struct {
	DirectionType int8
	X, Z          int8
}

// QueueInfo is the waiting-room state parsed from the tab-list footer.
type QueueInfo struct {
	Position int
	Time     string
}

// Hooks are callbacks fired by the mirror after it has applied a packet.
// They run outside the mirror lock on the session's dispatch goroutine.
// All fields are optional.
type Hooks struct {
	// Chat fires for every clientbound chat message.
	Chat func(msg chat.Message)
	// SpawnPlayer fires when a player entity spawns and names the tab-list
	// entry it resolved to, if any.
	SpawnPlayer func(name string)
	// Gamemode fires when the local gamemode changes.
	Gamemode func(gamemode int32)
	// Health fires on every health update, after HealthInitialized is set.
	Health func(health float32)
	// Change fires after any mutation; subscribers debounce it themselves.
	Change func()
}

// Mirror is the world snapshot. All mutation goes through ApplyPacket or the
// dedicated serverbound trackers; reads from other goroutines go through
// View. Fields are exported for the replay engine and tests, which access
// them under View or before the session starts.
type Mirror struct {
	mu    sync.RWMutex
	hooks Hooks

	SelfEID    int32
	Gamemode   int32
	Dimension  int32
	Difficulty byte
	MaxPlayers byte
	LevelType  string

	Health            float32
	Food              int32
	Saturation        float32
	HealthInitialized bool

	XPBar   float32
	Level   int32
	TotalXP int32

	Invulnerable bool
	Flying       bool
	AllowFlying  bool
	CreativeMode bool
	FlyingSpeed  float32
	FOV          float32

	WorldAge      int64
	Time          int64
	SpawnPosition proto.Position
	HeldItem      byte
	Raining       bool
	FadeValue     float32
	FadeTime      float32

	PlayerListHeader *chat.Message
	PlayerListFooter *chat.Message

	Camera    *int32
	RidingEID *int32

	Player          PlayerPos
	Inventory       map[int16]proto.Slot
	Players         map[uuid.UUID]*PlayerInfo
	Teams           map[string]*Team
	BossBars        map[uuid.UUID]*BossBar
	Maps            map[int32]*MapData
	UnlockedRecipes map[int32]struct{}
	Chunks          map[int32]map[int32]*Chunk
	Entities        map[int32]*Entity

	Queue *QueueInfo
}

// New returns an empty mirror.
func New() *Mirror {
	return &Mirror{
		Inventory:       make(map[int16]proto.Slot),
		Players:         make(map[uuid.UUID]*PlayerInfo),
		Teams:           make(map[string]*Team),
		BossBars:        make(map[uuid.UUID]*BossBar),
		Maps:            make(map[int32]*MapData),
		UnlockedRecipes: make(map[int32]struct{}),
		Chunks:          make(map[int32]map[int32]*Chunk),
		Entities:        make(map[int32]*Entity),
	}
}

// SetHooks installs the mirror callbacks. Call before the packet stream
// starts.
func (m *Mirror) SetHooks(h Hooks) { m.hooks = h }

// View runs fn while holding the mirror read lock. It is the only safe way
// to read mirror state from outside the session dispatch goroutine.
func (m *Mirror) View(fn func(*Mirror)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m)
}

// SelfEntity returns the local player entity, or nil before JoinGame.
// Callers must hold the mirror lock (directly or via View).
func (m *Mirror) SelfEntity() *Entity {
	return m.Entities[m.SelfEID]
}

// HealthState returns the current health and whether a health packet has
// been seen yet.
func (m *Mirror) HealthState() (health float32, initialized bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Health, m.HealthInitialized
}

// QueueState returns a copy of the latched queue info, or nil.
func (m *Mirror) QueueState() *QueueInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Queue == nil {
		return nil
	}
	q := *m.Queue
	return &q
}

// queueRe matches footers of the form "queue: 42 ... time: 1h 30m", taking
// the rest of the line for time.
var queueRe = regexp.MustCompile(`queue: (\d+)[\s\S]+time: ([^\n]+)`)

// parseQueue extracts queue info from the formatted footer text, or nil.
func parseQueue(footer string) *QueueInfo {
	match := queueRe.FindStringSubmatch(footer)
	if match == nil {
		return nil
	}
	pos, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}
	return &QueueInfo{Position: pos, Time: match[2]}
}

// connectingMarker in a chat line ends the queue wait.
const connectingMarker = "Connecting to the server"
