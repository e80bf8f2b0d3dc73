// Package replay rebuilds the clientbound join sequence for a freshly
// attached downstream client from a world mirror snapshot. The sequence order
// matters: the client cannot accept entities before JoinGame, chunks before
// the first position, nor block entities before their chunks.
package replay

import (
	"sort"

	"github.com/Tnze/go-mc/chat"
	pk "github.com/Tnze/go-mc/net/packet"

	"github.com/reallyoldfogie/mc-keeper-go/proto"
	"github.com/reallyoldfogie/mc-keeper-go/world"
)

// Packets builds the full synthetic join sequence. clientEid replaces the
// upstream self entity id in every packet that references it. When respawn is
// true the client already has a world loaded and receives a Respawn pair
// through a sentinel dimension instead of a JoinGame, forcing a reload.
func Packets(m *world.Mirror, clientEid int32, respawn bool) []pk.Packet {
	var out []pk.Packet
	m.View(func(s *world.Mirror) {
		out = build(s, clientEid, respawn)
	})
	return out
}

func build(m *world.Mirror, clientEid int32, respawn bool) []pk.Packet {
	var out []pk.Packet
	emit := func(id int32, fields ...pk.FieldEncoder) {
		out = append(out, pk.Marshal(id, fields...))
	}

	gamemode := pk.UnsignedByte(m.Gamemode & 0x7)
	if respawn {
		sentinel := pk.Int(0)
		if m.Dimension == 0 {
			sentinel = 1
		}
		emit(proto.ClientboundRespawn,
			sentinel, pk.UnsignedByte(m.Difficulty), gamemode, pk.String(m.LevelType))
		emit(proto.ClientboundRespawn,
			pk.Int(m.Dimension), pk.UnsignedByte(m.Difficulty), gamemode, pk.String(m.LevelType))
	} else {
		emit(proto.ClientboundJoinGame,
			pk.Int(clientEid), gamemode, pk.Int(m.Dimension),
			pk.UnsignedByte(m.Difficulty), pk.UnsignedByte(m.MaxPlayers),
			pk.String(m.LevelType), pk.Boolean(false))
	}

	var abilityFlags pk.Byte
	if m.Invulnerable {
		abilityFlags |= 0x01
	}
	if m.Flying {
		abilityFlags |= 0x02
	}
	if m.AllowFlying {
		abilityFlags |= 0x04
	}
	if m.CreativeMode {
		abilityFlags |= 0x08
	}
	emit(proto.ClientboundPlayerAbilities,
		abilityFlags, pk.Float(m.FlyingSpeed), pk.Float(m.FOV))

	if p := playerList(m); p != nil {
		out = append(out, *p)
	}
	out = append(out, teams(m)...)
	out = append(out, windowItems(m))
	out = append(out, maps(m)...)

	emit(proto.ClientboundHeldItemChange, pk.Byte(m.HeldItem))
	emit(proto.ClientboundSetExperience,
		pk.Float(m.XPBar), pk.VarInt(m.Level), pk.VarInt(m.TotalXP))
	if m.HealthInitialized {
		emit(proto.ClientboundUpdateHealth,
			pk.Float(m.Health), pk.VarInt(m.Food), pk.Float(m.Saturation))
	}
	if m.PlayerListHeader != nil || m.PlayerListFooter != nil {
		header, footer := m.PlayerListHeader, m.PlayerListFooter
		if header == nil {
			header = &chat.Message{}
		}
		if footer == nil {
			footer = &chat.Message{}
		}
		emit(proto.ClientboundPlayerListHeaderFooter, *header, *footer)
	}
	emit(proto.ClientboundSpawnPosition, m.SpawnPosition)
	emit(proto.ClientboundTimeUpdate, pk.Long(m.WorldAge), pk.Long(m.Time))
	if m.Raining {
		emit(proto.ClientboundChangeGameState, pk.UnsignedByte(2), pk.Float(0))
	}
	if m.FadeValue != 0 {
		emit(proto.ClientboundChangeGameState, pk.UnsignedByte(7), pk.Float(m.FadeValue))
	}
	if m.FadeTime != 0 {
		emit(proto.ClientboundChangeGameState, pk.UnsignedByte(8), pk.Float(m.FadeTime))
	}

	if len(m.UnlockedRecipes) > 0 {
		out = append(out, recipes(m))
	}

	emit(proto.ClientboundPlayerPositionAndLook,
		pk.Double(m.Player.X), pk.Double(m.Player.Y), pk.Double(m.Player.Z),
		pk.Float(m.Player.Yaw), pk.Float(m.Player.Pitch),
		pk.Byte(0), pk.VarInt(0))

	out = append(out, entities(m, clientEid)...)

	if m.Camera != nil {
		cam := *m.Camera
		if cam == m.SelfEID {
			cam = clientEid
		}
		emit(proto.ClientboundCamera, pk.VarInt(cam))
	}
	out = append(out, passengers(m, clientEid)...)
	out = append(out, chunks(m)...)
	return out
}

// playerList packs every cached tab-list entry into a single add action.
func playerList(m *world.Mirror) *pk.Packet {
	if len(m.Players) == 0 {
		return nil
	}
	infos := make([]*world.PlayerInfo, 0, len(m.Players))
	for _, info := range m.Players {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	fields := []pk.FieldEncoder{pk.VarInt(0), pk.VarInt(len(infos))}
	for _, info := range infos {
		fields = append(fields, pk.UUID(info.UUID), pk.String(info.Name), pk.VarInt(len(info.Properties)))
		for _, prop := range info.Properties {
			fields = append(fields, pk.String(prop.Name), pk.String(prop.Value))
			if prop.Signature != nil {
				fields = append(fields, pk.Boolean(true), pk.String(*prop.Signature))
			} else {
				fields = append(fields, pk.Boolean(false))
			}
		}
		fields = append(fields, pk.VarInt(info.Gamemode), pk.VarInt(info.Ping))
		if info.DisplayName != nil {
			fields = append(fields, pk.Boolean(true), *info.DisplayName)
		} else {
			fields = append(fields, pk.Boolean(false))
		}
	}
	p := pk.Marshal(proto.ClientboundPlayerListItem, fields...)
	return &p
}

func teams(m *world.Mirror) []pk.Packet {
	names := make([]string, 0, len(m.Teams))
	for name := range m.Teams {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]pk.Packet, 0, len(names))
	for _, name := range names {
		team := m.Teams[name]
		fields := []pk.FieldEncoder{
			pk.String(team.Name), pk.Byte(0),
			pk.String(team.DisplayName), pk.String(team.Prefix), pk.String(team.Suffix),
			pk.Byte(team.FriendlyFlags), pk.String(team.NameTagVisibility),
			pk.String(team.CollisionRule), pk.Byte(team.Color),
			pk.VarInt(len(team.Members)),
		}
		for _, member := range team.Members {
			fields = append(fields, pk.String(member))
		}
		out = append(out, pk.Marshal(proto.ClientboundTeams, fields...))
	}
	return out
}

// windowItems rebuilds the 46-slot player inventory window.
func windowItems(m *world.Mirror) pk.Packet {
	const slots = 46
	fields := []pk.FieldEncoder{pk.UnsignedByte(0), pk.Short(slots)}
	for i := int16(0); i < slots; i++ {
		slot, ok := m.Inventory[i]
		if !ok {
			slot = proto.Slot{ID: proto.EmptySlotID}
		}
		fields = append(fields, slot)
	}
	return pk.Marshal(proto.ClientboundWindowItems, fields...)
}

func maps(m *world.Mirror) []pk.Packet {
	ids := make([]int32, 0, len(m.Maps))
	for id := range m.Maps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]pk.Packet, 0, len(ids))
	for _, id := range ids {
		mp := m.Maps[id]
		fields := []pk.FieldEncoder{
			pk.VarInt(mp.ID), pk.Byte(mp.Scale), pk.Boolean(mp.TrackingPosition),
			pk.VarInt(len(mp.Icons)),
		}
		for _, icon := range mp.Icons {
			fields = append(fields, pk.Byte(icon.DirectionType), pk.Byte(icon.X), pk.Byte(icon.Z))
		}
		fields = append(fields,
			pk.UnsignedByte(128), pk.UnsignedByte(128),
			pk.UnsignedByte(0), pk.UnsignedByte(0),
			pk.ByteArray(mp.Data[:]))
		out = append(out, pk.Marshal(proto.ClientboundMap, fields...))
	}
	return out
}

func recipes(m *world.Mirror) pk.Packet {
	ids := make([]int32, 0, len(m.UnlockedRecipes))
	for id := range m.UnlockedRecipes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fields := []pk.FieldEncoder{
		pk.VarInt(0), pk.Boolean(false), pk.Boolean(false),
		pk.VarInt(len(ids)),
	}
	for _, id := range ids {
		fields = append(fields, pk.VarInt(id))
	}
	fields = append(fields, pk.VarInt(len(ids)))
	for _, id := range ids {
		fields = append(fields, pk.VarInt(id))
	}
	return pk.Marshal(proto.ClientboundUnlockRecipes, fields...)
}

// entities spawns every tracked entity except the local player, which only
// gets its metadata re-applied under the client-side eid. Self metadata goes
// first so its position does not depend on how eids compare.
func entities(m *world.Mirror, clientEid int32) []pk.Packet {
	ids := make([]int32, 0, len(m.Entities))
	for id := range m.Entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []pk.Packet
	if self := m.SelfEntity(); self != nil && len(self.Metadata) > 0 {
		out = append(out, pk.Marshal(proto.ClientboundEntityMetadata,
			pk.VarInt(clientEid), self.Metadata))
	}
	for _, id := range ids {
		e := m.Entities[id]
		if id == m.SelfEID {
			continue
		}
		out = append(out, spawnPacket(e))
		if e.Kind == world.KindObject && len(e.Metadata) > 0 {
			out = append(out, pk.Marshal(proto.ClientboundEntityMetadata,
				pk.VarInt(e.EID), rewriteShooter(e, m.SelfEID, clientEid)))
		}
		if len(e.Properties) > 0 {
			out = append(out, properties(e))
		}
		out = append(out, equipment(e)...)
	}
	return out
}

func spawnPacket(e *world.Entity) pk.Packet {
	switch e.Kind {
	case world.KindOrb:
		return pk.Marshal(proto.ClientboundSpawnExperienceOrb,
			pk.VarInt(e.EID),
			pk.Double(e.X), pk.Double(e.Y), pk.Double(e.Z),
			pk.Short(e.OrbCount))
	case world.KindGlobal:
		return pk.Marshal(proto.ClientboundSpawnGlobalEntity,
			pk.VarInt(e.EID), pk.Byte(e.GlobalType),
			pk.Double(e.X), pk.Double(e.Y), pk.Double(e.Z))
	case world.KindMob:
		return pk.Marshal(proto.ClientboundSpawnMob,
			pk.VarInt(e.EID), pk.UUID(e.UUID), pk.VarInt(e.MobType),
			pk.Double(e.X), pk.Double(e.Y), pk.Double(e.Z),
			pk.Byte(e.Yaw), pk.Byte(e.Pitch), pk.Byte(e.HeadPitch),
			pk.Short(e.VelX), pk.Short(e.VelY), pk.Short(e.VelZ),
			e.Metadata)
	case world.KindPainting:
		return pk.Marshal(proto.ClientboundSpawnPainting,
			pk.VarInt(e.EID), pk.UUID(e.UUID), pk.String(e.PaintingTitle),
			e.PaintingPos, pk.Byte(e.PaintingDirection))
	case world.KindPlayer:
		return pk.Marshal(proto.ClientboundSpawnPlayer,
			pk.VarInt(e.EID), pk.UUID(e.UUID),
			pk.Double(e.X), pk.Double(e.Y), pk.Double(e.Z),
			pk.Byte(e.Yaw), pk.Byte(e.Pitch),
			e.Metadata)
	default:
		return pk.Marshal(proto.ClientboundSpawnObject,
			pk.VarInt(e.EID), pk.UUID(e.UUID), pk.Byte(e.ObjectType),
			pk.Double(e.X), pk.Double(e.Y), pk.Double(e.Z),
			pk.Byte(e.Pitch), pk.Byte(e.Yaw), pk.Int(e.ObjectData),
			pk.Short(e.VelX), pk.Short(e.VelY), pk.Short(e.VelZ))
	}
}

// rewriteShooter maps a firework's shooter reference onto the client eid.
func rewriteShooter(e *world.Entity, selfEid, clientEid int32) proto.Metadata {
	if e.ObjectType != world.ObjectTypeFireworks {
		return e.Metadata
	}
	meta := make(proto.Metadata, len(e.Metadata))
	copy(meta, e.Metadata)
	for i := range meta {
		if meta[i].Index == 7 && meta[i].Type == proto.MetaVarInt && meta[i].VarInt == selfEid {
			meta[i].VarInt = clientEid
		}
	}
	return meta
}

func properties(e *world.Entity) pk.Packet {
	keys := make([]string, 0, len(e.Properties))
	for key := range e.Properties {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fields := []pk.FieldEncoder{pk.VarInt(e.EID), pk.Int(len(keys))}
	for _, key := range keys {
		attr := e.Properties[key]
		fields = append(fields, pk.String(key), pk.Double(attr.Value), pk.VarInt(len(attr.Modifiers)))
		for _, mod := range attr.Modifiers {
			fields = append(fields, pk.UUID(mod.UUID), pk.Double(mod.Amount), pk.Byte(mod.Operation))
		}
	}
	return pk.Marshal(proto.ClientboundEntityProperties, fields...)
}

func equipment(e *world.Entity) []pk.Packet {
	slots := make([]int32, 0, len(e.Equipment))
	for slot := range e.Equipment {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })

	out := make([]pk.Packet, 0, len(slots))
	for _, slot := range slots {
		out = append(out, pk.Marshal(proto.ClientboundEntityEquipment,
			pk.VarInt(e.EID), pk.VarInt(slot), e.Equipment[slot]))
	}
	return out
}

// passengers re-emits the passenger graph and leashes, mapping the self eid
// onto the client eid wherever it appears as a rider.
func passengers(m *world.Mirror, clientEid int32) []pk.Packet {
	ids := make([]int32, 0, len(m.Entities))
	for id := range m.Entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []pk.Packet
	for _, id := range ids {
		e := m.Entities[id]
		if len(e.Passengers) > 0 {
			fields := []pk.FieldEncoder{pk.VarInt(e.EID), pk.VarInt(len(e.Passengers))}
			for _, rider := range e.Passengers {
				if rider == m.SelfEID {
					rider = clientEid
				}
				fields = append(fields, pk.VarInt(rider))
			}
			out = append(out, pk.Marshal(proto.ClientboundSetPassengers, fields...))
		}
		if e.AttachedEID != nil {
			out = append(out, pk.Marshal(proto.ClientboundAttachEntity,
				pk.Int(e.EID), pk.Int(*e.AttachedEID)))
		}
	}
	return out
}

func chunks(m *world.Mirror) []pk.Packet {
	type key struct{ x, z int32 }
	keys := make([]key, 0)
	for cx, inner := range m.Chunks {
		for cz := range inner {
			keys = append(keys, key{cx, cz})
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].x != keys[j].x {
			return keys[i].x < keys[j].x
		}
		return keys[i].z < keys[j].z
	})

	out := make([]pk.Packet, 0, len(keys))
	for _, k := range keys {
		out = append(out, world.EncodeChunkData(m.Chunks[k.x][k.z], m.Dimension == 0))
	}
	return out
}
