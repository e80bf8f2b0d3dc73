package world

import (
	"github.com/google/uuid"

	"github.com/reallyoldfogie/mc-keeper-go/proto"
)

// EntityKind tags which spawn packet produced an entity and therefore which
// fields are meaningful.
type EntityKind int

const (
	KindObject EntityKind = iota
	KindOrb
	KindGlobal
	KindMob
	KindPainting
	KindPlayer
)

// ObjectTypeFireworks is the spawn-object type whose metadata carries a
// shooter entity id the rewriter has to remap.
const ObjectTypeFireworks = 76

// Entity is one tracked entity. Fields outside the common block apply only
// to the kinds noted.
type Entity struct {
	EID  int32
	Kind EntityKind

	X, Y, Z          float64
	Yaw, Pitch       int8
	VelX, VelY, VelZ int16
	OnGround         bool

	UUID       uuid.UUID // object, mob, painting, player
	ObjectType int8      // object
	ObjectData int32     // object
	MobType    int32     // mob
	HeadPitch  int8      // mob
	GlobalType int8      // global
	OrbCount   int16     // orb

	PaintingTitle     string         // painting
	PaintingPos       proto.Position // painting
	PaintingDirection int8           // painting

	Metadata    proto.Metadata
	Properties  map[string]*Attribute
	Equipment   map[int32]proto.Slot
	Passengers  []int32
	AttachedEID *int32
}

// Attribute is one entity property with its modifiers.
type Attribute struct {
	Value     float64
	Modifiers []AttributeModifier
}

// AttributeModifier is a single attribute modifier record.
type AttributeModifier struct {
	UUID      uuid.UUID
	Amount    float64
	Operation int8
}

// mergeMetadata replaces entries that share an index and appends the rest,
// preserving first-seen order.
func (e *Entity) mergeMetadata(update proto.Metadata) {
next:
	for _, entry := range update {
		for i := range e.Metadata {
			if e.Metadata[i].Index == entry.Index {
				e.Metadata[i] = entry
				continue next
			}
		}
		e.Metadata = append(e.Metadata, entry)
	}
}

// hasPassenger reports whether eid rides this entity.
func (e *Entity) hasPassenger(eid int32) bool {
	for _, p := range e.Passengers {
		if p == eid {
			return true
		}
	}
	return false
}
