package replay

import (
	"bytes"
	"testing"

	"github.com/Tnze/go-mc/chat"
	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/google/uuid"

	"github.com/reallyoldfogie/mc-keeper-go/proto"
	"github.com/reallyoldfogie/mc-keeper-go/world"
)

const clientEid = 9_999_999

// populatedMirror builds a mirror with one of everything the join sequence
// carries.
func populatedMirror() *world.Mirror {
	m := world.New()
	m.SelfEID = 123
	m.Gamemode = 0
	m.Dimension = 0
	m.Difficulty = 2
	m.MaxPlayers = 100
	m.LevelType = "default"
	m.Health = 17.5
	m.Food = 19
	m.Saturation = 2.5
	m.HealthInitialized = true
	m.XPBar = 0.4
	m.Level = 30
	m.TotalXP = 1395
	m.AllowFlying = true
	m.FlyingSpeed = 0.05
	m.FOV = 0.1
	m.WorldAge = 1_000_000
	m.Time = 6000
	m.SpawnPosition = proto.Position{X: 8, Y: 64, Z: 8}
	m.HeldItem = 3
	m.Raining = true
	m.Player = world.PlayerPos{X: 100.5, Y: 72, Z: -30.5, Yaw: 180, Pitch: -10}
	header := chat.Message{Text: "2b2t"}
	footer := chat.Message{Text: "Position in queue: 5\nEstimated time: 10m"}
	m.PlayerListHeader = &header
	m.PlayerListFooter = &footer

	sig := "c2lnbmF0dXJl"
	m.Players[uuid.MustParse("11111111-1111-1111-1111-111111111111")] = &world.PlayerInfo{
		UUID: uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		Name: "Fit",
		Properties: []world.PlayerProperty{
			{Name: "textures", Value: "dGV4dHVyZXM=", Signature: &sig},
		},
		Gamemode: 0,
		Ping:     64,
	}

	m.Teams["no_collide"] = &world.Team{
		Name: "no_collide", DisplayName: "no_collide",
		NameTagVisibility: "always", CollisionRule: "never",
		Color: -1, Members: []string{"Fit"},
	}

	m.Inventory[36] = proto.Slot{ID: 276, Count: 1, Damage: 100}
	m.Inventory[44] = proto.Slot{ID: 332, Count: 16}

	mp := &world.MapData{ID: 7, Scale: 2, TrackingPosition: true,
		Icons: []world.MapIcon{{DirectionType: 0x10, X: 4, Z: -4}}}
	mp.Data[0] = 34
	mp.Data[128*128-1] = 58
	m.Maps[7] = mp

	m.UnlockedRecipes[12] = struct{}{}
	m.UnlockedRecipes[3] = struct{}{}

	m.Entities[123] = &world.Entity{
		EID: 123, Kind: world.KindPlayer,
		Metadata: proto.Metadata{{Index: 0, Type: proto.MetaByte, Byte: 0x02}},
	}
	m.Entities[200] = &world.Entity{
		EID: 200, Kind: world.KindMob, UUID: uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		MobType: 54, X: 90, Y: 70, Z: -28, Yaw: 4, Pitch: 0, HeadPitch: 4,
		Metadata:  proto.Metadata{{Index: 6, Type: proto.MetaFloat, Float: 20}},
		Equipment: map[int32]proto.Slot{5: {ID: 310, Count: 1}},
		Properties: map[string]*world.Attribute{
			"generic.maxHealth": {Value: 20},
		},
	}
	m.Entities[300] = &world.Entity{
		EID: 300, Kind: world.KindObject, UUID: uuid.MustParse("33333333-3333-3333-3333-333333333333"),
		ObjectType: world.ObjectTypeFireworks, X: 100, Y: 72, Z: -30,
		Metadata: proto.Metadata{{Index: 7, Type: proto.MetaVarInt, VarInt: 123}},
	}
	m.Entities[400] = &world.Entity{
		EID: 400, Kind: world.KindObject, ObjectType: 10, ObjectData: 1,
		X: 102, Y: 72, Z: -31, Passengers: []int32{123},
	}

	chunk := &world.Chunk{X: 6, Z: -2}
	sec := &world.Section{}
	sec.Blocks[0] = 16
	sec.Blocks[4095] = 0x1FFF
	sec.BlockLight[3] = 0x7F
	chunk.Sections[4] = sec
	chunk.Biomes[100] = 7
	m.Chunks[6] = map[int32]*world.Chunk{-2: chunk}
	return m
}

func applyAll(t *testing.T, m *world.Mirror, packets []pk.Packet) {
	t.Helper()
	for i, p := range packets {
		if _, err := m.ApplyPacket(p); err != nil {
			t.Fatalf("packet %d (0x%02x): %v", i, p.ID, err)
		}
	}
}

// Replaying the join sequence into a fresh mirror and replaying again must
// reproduce the sequence byte for byte.
func TestReplayIdempotent(t *testing.T) {
	first := Packets(populatedMirror(), clientEid, false)
	if len(first) == 0 {
		t.Fatal("empty replay")
	}

	m2 := world.New()
	applyAll(t, m2, first)
	second := Packets(m2, clientEid, false)

	if len(first) != len(second) {
		t.Fatalf("replay lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || !bytes.Equal(first[i].Data, second[i].Data) {
			t.Fatalf("packet %d differs: 0x%02x (%d bytes) vs 0x%02x (%d bytes)",
				i, first[i].ID, len(first[i].Data), second[i].ID, len(second[i].Data))
		}
	}
}

func TestReplayStartsWithJoinGame(t *testing.T) {
	packets := Packets(populatedMirror(), clientEid, false)
	if packets[0].ID != proto.ClientboundJoinGame {
		t.Fatalf("first packet = 0x%02x, want JoinGame", packets[0].ID)
	}
	var (
		eid                              pk.Int
		gamemode, difficulty, maxPlayers pk.UnsignedByte
		dimension                        pk.Int
		levelType                        pk.String
		reducedDebug                     pk.Boolean
	)
	if err := packets[0].Scan(&eid, &gamemode, &dimension, &difficulty, &maxPlayers, &levelType, &reducedDebug); err != nil {
		t.Fatal(err)
	}
	if eid != clientEid {
		t.Errorf("join eid = %d, want %d", eid, clientEid)
	}
}

func TestReplayRespawnPair(t *testing.T) {
	m := populatedMirror()
	packets := Packets(m, clientEid, true)
	if packets[0].ID != proto.ClientboundRespawn || packets[1].ID != proto.ClientboundRespawn {
		t.Fatalf("respawn replay starts 0x%02x 0x%02x, want two Respawns", packets[0].ID, packets[1].ID)
	}
	var dim pk.Int
	rest := pk.Tuple{new(pk.UnsignedByte), new(pk.UnsignedByte), new(pk.String)}
	if err := packets[0].Scan(&dim, rest); err != nil {
		t.Fatal(err)
	}
	if dim == pk.Int(m.Dimension) {
		t.Error("sentinel dimension equals true dimension")
	}
	if err := packets[1].Scan(&dim, rest); err != nil {
		t.Fatal(err)
	}
	if dim != pk.Int(m.Dimension) {
		t.Errorf("second respawn dimension = %d, want %d", dim, m.Dimension)
	}
}

func TestReplayRewritesFireworkShooter(t *testing.T) {
	packets := Packets(populatedMirror(), clientEid, false)
	found := false
	for _, p := range packets {
		if p.ID != proto.ClientboundEntityMetadata {
			continue
		}
		var (
			eid  pk.VarInt
			meta proto.Metadata
		)
		if err := p.Scan(&eid, &meta); err != nil {
			t.Fatal(err)
		}
		if eid != 300 {
			continue
		}
		found = true
		for _, entry := range meta {
			if entry.Index == 7 && entry.VarInt != clientEid {
				t.Errorf("shooter eid = %d, want %d", entry.VarInt, clientEid)
			}
		}
	}
	if !found {
		t.Fatal("no metadata packet for firework entity")
	}
}

// Replay must not spawn the local player as a separate entity.
func TestReplaySkipsSelfSpawn(t *testing.T) {
	packets := Packets(populatedMirror(), clientEid, false)
	for _, p := range packets {
		if p.ID != proto.ClientboundSpawnPlayer {
			continue
		}
		var (
			eid pk.VarInt
			id  pk.UUID
		)
		if err := p.Scan(&eid, &id); err != nil {
			t.Fatal(err)
		}
		if eid == 123 || eid == clientEid {
			t.Fatalf("local player spawned as entity %d", eid)
		}
	}
}

func TestReplayPassengerRewrite(t *testing.T) {
	packets := Packets(populatedMirror(), clientEid, false)
	for _, p := range packets {
		if p.ID != proto.ClientboundSetPassengers {
			continue
		}
		r := bytes.NewReader(p.Data)
		var vehicle, count pk.VarInt
		if _, err := (pk.Tuple{&vehicle, &count}).ReadFrom(r); err != nil {
			t.Fatal(err)
		}
		if vehicle != 400 {
			continue
		}
		var rider pk.VarInt
		if _, err := rider.ReadFrom(r); err != nil {
			t.Fatal(err)
		}
		if rider != clientEid {
			t.Errorf("rider = %d, want %d", rider, clientEid)
		}
		return
	}
	t.Fatal("no passenger packet for vehicle 400")
}
