package world

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/Tnze/go-mc/chat"
	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/google/uuid"

	"github.com/reallyoldfogie/mc-keeper-go/proto"
)

// Player-list item actions.
const (
	playerListAdd = iota
	playerListGamemode
	playerListPing
	playerListDisplayName
	playerListRemove
)

// ApplyPacket applies one clientbound play packet to the mirror and returns
// any serverbound packets the protocol requires in response (teleport
// confirms). Hooks fire after the mirror lock is released.
func (m *Mirror) ApplyPacket(p pk.Packet) ([]pk.Packet, error) {
	m.mu.Lock()
	var fire []func()
	responses, err := m.apply(p, &fire)
	m.mu.Unlock()

	for _, f := range fire {
		f()
	}
	if err == nil && m.hooks.Change != nil {
		m.hooks.Change()
	}
	if err != nil {
		err = fmt.Errorf("packet 0x%02x: %w", p.ID, err)
	}
	return responses, err
}

func (m *Mirror) apply(p pk.Packet, fire *[]func()) ([]pk.Packet, error) {
	switch p.ID {
	case proto.ClientboundSpawnObject:
		return nil, m.handleSpawnObject(p)
	case proto.ClientboundSpawnExperienceOrb:
		return nil, m.handleSpawnOrb(p)
	case proto.ClientboundSpawnGlobalEntity:
		return nil, m.handleSpawnGlobal(p)
	case proto.ClientboundSpawnMob:
		return nil, m.handleSpawnMob(p)
	case proto.ClientboundSpawnPainting:
		return nil, m.handleSpawnPainting(p)
	case proto.ClientboundSpawnPlayer:
		return nil, m.handleSpawnPlayer(p, fire)
	case proto.ClientboundUpdateBlockEntity:
		return nil, m.handleUpdateBlockEntity(p)
	case proto.ClientboundBlockChange:
		return nil, m.handleBlockChange(p)
	case proto.ClientboundBossBar:
		return nil, m.handleBossBar(p)
	case proto.ClientboundChatMessage:
		return nil, m.handleChat(p, fire)
	case proto.ClientboundMultiBlockChange:
		return nil, m.handleMultiBlockChange(p)
	case proto.ClientboundWindowItems:
		return nil, m.handleWindowItems(p)
	case proto.ClientboundSetSlot:
		return nil, m.handleSetSlot(p)
	case proto.ClientboundExplosion:
		return nil, m.handleExplosion(p)
	case proto.ClientboundUnloadChunk:
		return nil, m.handleUnloadChunk(p)
	case proto.ClientboundChangeGameState:
		return nil, m.handleChangeGameState(p, fire)
	case proto.ClientboundChunkData:
		return nil, m.handleChunkData(p)
	case proto.ClientboundJoinGame:
		return nil, m.handleJoinGame(p, fire)
	case proto.ClientboundMap:
		return nil, m.handleMap(p)
	case proto.ClientboundPlayerAbilities:
		return nil, m.handlePlayerAbilities(p)
	case proto.ClientboundPlayerListItem:
		return nil, m.handlePlayerListItem(p)
	case proto.ClientboundPlayerPositionAndLook:
		return m.handlePositionAndLook(p)
	case proto.ClientboundUnlockRecipes:
		return nil, m.handleUnlockRecipes(p)
	case proto.ClientboundDestroyEntities:
		return nil, m.handleDestroyEntities(p)
	case proto.ClientboundRespawn:
		return nil, m.handleRespawn(p, fire)
	case proto.ClientboundEntityRelativeMove:
		return nil, m.handleRelativeMove(p, false)
	case proto.ClientboundEntityLookRelativeMove:
		return nil, m.handleRelativeMove(p, true)
	case proto.ClientboundEntityLook:
		return nil, m.handleEntityLook(p)
	case proto.ClientboundVehicleMove:
		return nil, m.handleVehicleMove(p)
	case proto.ClientboundEntityHeadLook:
		return nil, m.handleHeadLook(p)
	case proto.ClientboundEntityVelocity:
		return nil, m.handleVelocity(p)
	case proto.ClientboundEntityTeleport:
		return nil, m.handleTeleport(p)
	case proto.ClientboundEntityMetadata:
		return nil, m.handleMetadata(p)
	case proto.ClientboundEntityEquipment:
		return nil, m.handleEquipment(p)
	case proto.ClientboundEntityProperties:
		return nil, m.handleProperties(p)
	case proto.ClientboundSetPassengers:
		return nil, m.handleSetPassengers(p)
	case proto.ClientboundAttachEntity:
		return nil, m.handleAttachEntity(p)
	case proto.ClientboundCamera:
		return nil, m.handleCamera(p)
	case proto.ClientboundHeldItemChange:
		return nil, m.handleHeldItem(p)
	case proto.ClientboundSetExperience:
		return nil, m.handleExperience(p)
	case proto.ClientboundUpdateHealth:
		return nil, m.handleHealth(p, fire)
	case proto.ClientboundTeams:
		return nil, m.handleTeams(p)
	case proto.ClientboundSpawnPosition:
		return nil, m.handleSpawnPosition(p)
	case proto.ClientboundTimeUpdate:
		return nil, m.handleTimeUpdate(p)
	case proto.ClientboundPlayerListHeaderFooter:
		return nil, m.handleHeaderFooter(p)
	default:
		return nil, nil
	}
}

func (m *Mirror) handleSpawnObject(p pk.Packet) error {
	var (
		eid           pk.VarInt
		id            pk.UUID
		typ           pk.Byte
		x, y, z       pk.Double
		pitch, yaw    pk.Byte
		data          pk.Int
		vx, vy, vz    pk.Short
	)
	if err := p.Scan(&eid, &id, &typ, &x, &y, &z, &pitch, &yaw, &data, &vx, &vy, &vz); err != nil {
		return err
	}
	m.Entities[int32(eid)] = &Entity{
		EID: int32(eid), Kind: KindObject,
		UUID:       uuid.UUID(id),
		ObjectType: int8(typ),
		ObjectData: int32(data),
		X:          float64(x), Y: float64(y), Z: float64(z),
		Pitch: int8(pitch), Yaw: int8(yaw),
		VelX: int16(vx), VelY: int16(vy), VelZ: int16(vz),
	}
	return nil
}

func (m *Mirror) handleSpawnOrb(p pk.Packet) error {
	var (
		eid     pk.VarInt
		x, y, z pk.Double
		count   pk.Short
	)
	if err := p.Scan(&eid, &x, &y, &z, &count); err != nil {
		return err
	}
	m.Entities[int32(eid)] = &Entity{
		EID: int32(eid), Kind: KindOrb,
		X: float64(x), Y: float64(y), Z: float64(z),
		OrbCount: int16(count),
	}
	return nil
}

func (m *Mirror) handleSpawnGlobal(p pk.Packet) error {
	var (
		eid     pk.VarInt
		typ     pk.Byte
		x, y, z pk.Double
	)
	if err := p.Scan(&eid, &typ, &x, &y, &z); err != nil {
		return err
	}
	m.Entities[int32(eid)] = &Entity{
		EID: int32(eid), Kind: KindGlobal,
		GlobalType: int8(typ),
		X:          float64(x), Y: float64(y), Z: float64(z),
	}
	return nil
}

func (m *Mirror) handleSpawnMob(p pk.Packet) error {
	var (
		eid        pk.VarInt
		id         pk.UUID
		typ        pk.VarInt
		x, y, z    pk.Double
		yaw, pitch pk.Byte
		headPitch  pk.Byte
		vx, vy, vz pk.Short
		meta       proto.Metadata
	)
	if err := p.Scan(&eid, &id, &typ, &x, &y, &z, &yaw, &pitch, &headPitch, &vx, &vy, &vz, &meta); err != nil {
		return err
	}
	m.Entities[int32(eid)] = &Entity{
		EID: int32(eid), Kind: KindMob,
		UUID:    uuid.UUID(id),
		MobType: int32(typ),
		X:       float64(x), Y: float64(y), Z: float64(z),
		Yaw: int8(yaw), Pitch: int8(pitch), HeadPitch: int8(headPitch),
		VelX: int16(vx), VelY: int16(vy), VelZ: int16(vz),
		Metadata: meta,
	}
	return nil
}

func (m *Mirror) handleSpawnPainting(p pk.Packet) error {
	var (
		eid       pk.VarInt
		id        pk.UUID
		title     pk.String
		pos       proto.Position
		direction pk.Byte
	)
	if err := p.Scan(&eid, &id, &title, &pos, &direction); err != nil {
		return err
	}
	m.Entities[int32(eid)] = &Entity{
		EID: int32(eid), Kind: KindPainting,
		UUID:              uuid.UUID(id),
		PaintingTitle:     string(title),
		PaintingPos:       pos,
		PaintingDirection: int8(direction),
	}
	return nil
}

func (m *Mirror) handleSpawnPlayer(p pk.Packet, fire *[]func()) error {
	var (
		eid        pk.VarInt
		id         pk.UUID
		x, y, z    pk.Double
		yaw, pitch pk.Byte
		meta       proto.Metadata
	)
	if err := p.Scan(&eid, &id, &x, &y, &z, &yaw, &pitch, &meta); err != nil {
		return err
	}
	m.Entities[int32(eid)] = &Entity{
		EID: int32(eid), Kind: KindPlayer,
		UUID: uuid.UUID(id),
		X:    float64(x), Y: float64(y), Z: float64(z),
		Yaw: int8(yaw), Pitch: int8(pitch),
		Metadata: meta,
	}
	if m.hooks.SpawnPlayer != nil {
		name := ""
		if info, ok := m.Players[uuid.UUID(id)]; ok {
			name = info.Name
		}
		hook := m.hooks.SpawnPlayer
		*fire = append(*fire, func() { hook(name) })
	}
	return nil
}

func (m *Mirror) handleUpdateBlockEntity(p pk.Packet) error {
	r := bytes.NewReader(p.Data)
	var (
		pos    proto.Position
		action pk.UnsignedByte
	)
	if _, err := (pk.Tuple{&pos, &action}).ReadFrom(r); err != nil {
		return err
	}
	raw, _, err := proto.ScanNBT(r)
	if err != nil {
		return err
	}
	chunk := m.chunkAt(int32(pos.X)>>4, int32(pos.Z)>>4)
	if chunk == nil {
		return nil
	}
	if len(raw) <= 1 {
		chunk.removeBlockEntity(int32(pos.X), int32(pos.Y), int32(pos.Z))
		return nil
	}
	chunk.upsertBlockEntity(BlockEntity{X: int32(pos.X), Y: int32(pos.Y), Z: int32(pos.Z), Raw: raw})
	return nil
}

func (m *Mirror) handleBlockChange(p pk.Packet) error {
	var (
		pos proto.Position
		id  pk.VarInt
	)
	if err := p.Scan(&pos, &id); err != nil {
		return err
	}
	m.setBlock(pos.X, pos.Y, pos.Z, uint16(id))
	return nil
}

func (m *Mirror) handleMultiBlockChange(p pk.Packet) error {
	r := bytes.NewReader(p.Data)
	var (
		cx, cz pk.Int
		count  pk.VarInt
	)
	if _, err := (pk.Tuple{&cx, &cz, &count}).ReadFrom(r); err != nil {
		return err
	}
	for i := 0; i < int(count); i++ {
		var (
			horiz pk.UnsignedByte
			y     pk.UnsignedByte
			id    pk.VarInt
		)
		if _, err := (pk.Tuple{&horiz, &y, &id}).ReadFrom(r); err != nil {
			return err
		}
		x := int(cx)<<4 | int(horiz>>4)
		z := int(cz)<<4 | int(horiz&0x0F)
		m.setBlock(x, int(y), z, uint16(id))
	}
	return nil
}

// setBlock routes a world-coordinate block change into the owning chunk and
// purges block entities when the block becomes air.
func (m *Mirror) setBlock(x, y, z int, id uint16) {
	chunk := m.chunkAt(int32(x)>>4, int32(z)>>4)
	if chunk == nil {
		return
	}
	chunk.SetBlock(x, y, z, id)
	if id == 0 {
		chunk.removeBlockEntity(int32(x), int32(y), int32(z))
	}
}

func (m *Mirror) chunkAt(cx, cz int32) *Chunk {
	inner, ok := m.Chunks[cx]
	if !ok {
		return nil
	}
	return inner[cz]
}

func (m *Mirror) handleBossBar(p pk.Packet) error {
	r := bytes.NewReader(p.Data)
	var (
		id     pk.UUID
		action pk.VarInt
	)
	if _, err := (pk.Tuple{&id, &action}).ReadFrom(r); err != nil {
		return err
	}
	key := uuid.UUID(id)
	switch action {
	case 0:
		var (
			title           chat.Message
			health          pk.Float
			color, division pk.VarInt
			flags           pk.UnsignedByte
		)
		if _, err := (pk.Tuple{&title, &health, &color, &division, &flags}).ReadFrom(r); err != nil {
			return err
		}
		m.BossBars[key] = &BossBar{
			UUID: key, Title: title, Health: float32(health),
			Color: int32(color), Division: int32(division), Flags: int8(flags),
		}
	case 1:
		delete(m.BossBars, key)
	case 2:
		var health pk.Float
		if _, err := health.ReadFrom(r); err != nil {
			return err
		}
		if bar, ok := m.BossBars[key]; ok {
			bar.Health = float32(health)
		}
	case 3:
		var title chat.Message
		if _, err := title.ReadFrom(r); err != nil {
			return err
		}
		if bar, ok := m.BossBars[key]; ok {
			bar.Title = title
		}
	case 4:
		var color, division pk.VarInt
		if _, err := (pk.Tuple{&color, &division}).ReadFrom(r); err != nil {
			return err
		}
		if bar, ok := m.BossBars[key]; ok {
			bar.Color = int32(color)
			bar.Division = int32(division)
		}
	case 5:
		var flags pk.UnsignedByte
		if _, err := flags.ReadFrom(r); err != nil {
			return err
		}
		if bar, ok := m.BossBars[key]; ok {
			bar.Flags = int8(flags)
		}
	}
	return nil
}

func (m *Mirror) handleChat(p pk.Packet, fire *[]func()) error {
	var msg chat.Message
	if err := p.Scan(&msg); err != nil {
		return err
	}
	if strings.Contains(msg.ClearString(), connectingMarker) {
		m.Queue = nil
	}
	if m.hooks.Chat != nil {
		hook := m.hooks.Chat
		*fire = append(*fire, func() { hook(msg) })
	}
	return nil
}

func (m *Mirror) handleWindowItems(p pk.Packet) error {
	r := bytes.NewReader(p.Data)
	var (
		window pk.UnsignedByte
		count  pk.Short
	)
	if _, err := (pk.Tuple{&window, &count}).ReadFrom(r); err != nil {
		return err
	}
	if window != 0 {
		return nil
	}
	for i := int16(0); i < int16(count); i++ {
		var slot proto.Slot
		if _, err := slot.ReadFrom(r); err != nil {
			return err
		}
		if slot.Empty() {
			delete(m.Inventory, i)
		} else {
			m.Inventory[i] = slot
		}
	}
	return nil
}

func (m *Mirror) handleSetSlot(p pk.Packet) error {
	var (
		window pk.Byte
		index  pk.Short
		slot   proto.Slot
	)
	if err := p.Scan(&window, &index, &slot); err != nil {
		return err
	}
	if window != 0 || index < 0 {
		return nil
	}
	if slot.Empty() {
		delete(m.Inventory, int16(index))
	} else {
		m.Inventory[int16(index)] = slot
	}
	return nil
}

func (m *Mirror) handleExplosion(p pk.Packet) error {
	r := bytes.NewReader(p.Data)
	var (
		x, y, z pk.Float
		radius  pk.Float
		count   pk.Int
	)
	if _, err := (pk.Tuple{&x, &y, &z, &radius, &count}).ReadFrom(r); err != nil {
		return err
	}
	cx := int(math.Floor(float64(x)))
	cy := int(math.Floor(float64(y)))
	cz := int(math.Floor(float64(z)))
	for i := 0; i < int(count); i++ {
		var dx, dy, dz pk.Byte
		if _, err := (pk.Tuple{&dx, &dy, &dz}).ReadFrom(r); err != nil {
			return err
		}
		m.setBlock(cx+int(dx), cy+int(dy), cz+int(dz), 0)
	}
	return nil
}

func (m *Mirror) handleUnloadChunk(p pk.Packet) error {
	var x, z pk.Int
	if err := p.Scan(&x, &z); err != nil {
		return err
	}
	inner, ok := m.Chunks[int32(x)]
	if !ok {
		return nil
	}
	delete(inner, int32(z))
	if len(inner) == 0 {
		delete(m.Chunks, int32(x))
	}
	return nil
}

func (m *Mirror) handleChangeGameState(p pk.Packet, fire *[]func()) error {
	var (
		reason pk.UnsignedByte
		value  pk.Float
	)
	if err := p.Scan(&reason, &value); err != nil {
		return err
	}
	switch reason {
	case 1:
		m.Raining = false
	case 2:
		m.Raining = true
	case 3:
		m.setGamemode(int32(value), fire)
	case 7:
		m.FadeValue = float32(value)
	case 8:
		m.FadeTime = float32(value)
	}
	return nil
}

func (m *Mirror) setGamemode(gamemode int32, fire *[]func()) {
	if m.Gamemode == gamemode {
		return
	}
	m.Gamemode = gamemode
	if m.hooks.Gamemode != nil {
		hook := m.hooks.Gamemode
		*fire = append(*fire, func() { hook(gamemode) })
	}
}

func (m *Mirror) handleChunkData(p pk.Packet) error {
	var header struct {
		X, Z pk.Int
	}
	if err := p.Scan(&header.X, &header.Z); err != nil {
		return err
	}
	chunk, err := decodeChunkData(p, m.Dimension == 0, m.chunkAt(int32(header.X), int32(header.Z)))
	if err != nil {
		return err
	}
	inner, ok := m.Chunks[chunk.X]
	if !ok {
		inner = make(map[int32]*Chunk)
		m.Chunks[chunk.X] = inner
	}
	inner[chunk.Z] = chunk
	return nil
}

func (m *Mirror) handleJoinGame(p pk.Packet, fire *[]func()) error {
	var (
		eid          pk.Int
		gamemode     pk.UnsignedByte
		dimension    pk.Int
		difficulty   pk.UnsignedByte
		maxPlayers   pk.UnsignedByte
		levelType    pk.String
		reducedDebug pk.Boolean
	)
	if err := p.Scan(&eid, &gamemode, &dimension, &difficulty, &maxPlayers, &levelType, &reducedDebug); err != nil {
		return err
	}
	m.SelfEID = int32(eid)
	m.Dimension = int32(dimension)
	m.Difficulty = byte(difficulty)
	m.MaxPlayers = byte(maxPlayers)
	m.LevelType = string(levelType)
	m.setGamemode(int32(gamemode), fire)
	m.Entities[m.SelfEID] = &Entity{EID: m.SelfEID, Kind: KindPlayer}
	return nil
}

func (m *Mirror) handleMap(p pk.Packet) error {
	r := bytes.NewReader(p.Data)
	var (
		id       pk.VarInt
		scale    pk.Byte
		tracking pk.Boolean
		icons    pk.VarInt
	)
	if _, err := (pk.Tuple{&id, &scale, &tracking, &icons}).ReadFrom(r); err != nil {
		return err
	}
	mp, ok := m.Maps[int32(id)]
	if !ok {
		mp = &MapData{ID: int32(id)}
		m.Maps[int32(id)] = mp
	}
	mp.Scale = int8(scale)
	mp.TrackingPosition = bool(tracking)
	mp.Icons = mp.Icons[:0]
	for i := 0; i < int(icons); i++ {
		var dir, ix, iz pk.Byte
		if _, err := (pk.Tuple{&dir, &ix, &iz}).ReadFrom(r); err != nil {
			return err
		}
		mp.Icons = append(mp.Icons, MapIcon{DirectionType: int8(dir), X: int8(ix), Z: int8(iz)})
	}
	var columns pk.UnsignedByte
	if _, err := columns.ReadFrom(r); err != nil {
		return err
	}
	if columns == 0 {
		return nil
	}
	var (
		rows, ox, oz pk.UnsignedByte
		data         pk.ByteArray
	)
	if _, err := (pk.Tuple{&rows, &ox, &oz, &data}).ReadFrom(r); err != nil {
		return err
	}
	for col := 0; col < int(columns); col++ {
		for row := 0; row < int(rows); row++ {
			i := row*int(columns) + col
			if i >= len(data) {
				continue
			}
			x := int(ox) + col
			z := int(oz) + row
			if x < 128 && z < 128 {
				mp.Data[z*128+x] = data[i]
			}
		}
	}
	return nil
}

func (m *Mirror) handlePlayerAbilities(p pk.Packet) error {
	var (
		flags       pk.Byte
		speed, fov  pk.Float
	)
	if err := p.Scan(&flags, &speed, &fov); err != nil {
		return err
	}
	m.Invulnerable = flags&0x01 != 0
	m.Flying = flags&0x02 != 0
	m.AllowFlying = flags&0x04 != 0
	m.CreativeMode = flags&0x08 != 0
	m.FlyingSpeed = float32(speed)
	m.FOV = float32(fov)
	return nil
}

func (m *Mirror) handlePlayerListItem(p pk.Packet) error {
	r := bytes.NewReader(p.Data)
	var (
		action pk.VarInt
		count  pk.VarInt
	)
	if _, err := (pk.Tuple{&action, &count}).ReadFrom(r); err != nil {
		return err
	}
	for i := 0; i < int(count); i++ {
		var id pk.UUID
		if _, err := id.ReadFrom(r); err != nil {
			return err
		}
		key := uuid.UUID(id)
		switch action {
		case playerListAdd:
			info := &PlayerInfo{UUID: key}
			var (
				name  pk.String
				props pk.VarInt
			)
			if _, err := (pk.Tuple{&name, &props}).ReadFrom(r); err != nil {
				return err
			}
			info.Name = string(name)
			for j := 0; j < int(props); j++ {
				var (
					pname, value pk.String
					signed       pk.Boolean
				)
				if _, err := (pk.Tuple{&pname, &value, &signed}).ReadFrom(r); err != nil {
					return err
				}
				prop := PlayerProperty{Name: string(pname), Value: string(value)}
				if signed {
					var sig pk.String
					if _, err := sig.ReadFrom(r); err != nil {
						return err
					}
					s := string(sig)
					prop.Signature = &s
				}
				info.Properties = append(info.Properties, prop)
			}
			var (
				gamemode, ping pk.VarInt
				hasDisplay     pk.Boolean
			)
			if _, err := (pk.Tuple{&gamemode, &ping, &hasDisplay}).ReadFrom(r); err != nil {
				return err
			}
			info.Gamemode = int32(gamemode)
			info.Ping = int32(ping)
			if hasDisplay {
				var display chat.Message
				if _, err := display.ReadFrom(r); err != nil {
					return err
				}
				info.DisplayName = &display
			}
			m.Players[key] = info
		case playerListGamemode:
			var gamemode pk.VarInt
			if _, err := gamemode.ReadFrom(r); err != nil {
				return err
			}
			if info, ok := m.Players[key]; ok {
				info.Gamemode = int32(gamemode)
			}
		case playerListPing:
			var ping pk.VarInt
			if _, err := ping.ReadFrom(r); err != nil {
				return err
			}
			if info, ok := m.Players[key]; ok {
				info.Ping = int32(ping)
			}
		case playerListDisplayName:
			var hasDisplay pk.Boolean
			if _, err := hasDisplay.ReadFrom(r); err != nil {
				return err
			}
			var display *chat.Message
			if hasDisplay {
				display = new(chat.Message)
				if _, err := display.ReadFrom(r); err != nil {
					return err
				}
			}
			if info, ok := m.Players[key]; ok {
				info.DisplayName = display
			}
		case playerListRemove:
			delete(m.Players, key)
		default:
			return fmt.Errorf("player list action %d", action)
		}
	}
	return nil
}

// Position/look relative flag bits.
const (
	relX = 1 << iota
	relY
	relZ
	relYaw
	relPitch
)

func (m *Mirror) handlePositionAndLook(p pk.Packet) ([]pk.Packet, error) {
	var (
		x, y, z    pk.Double
		yaw, pitch pk.Float
		flags      pk.Byte
		teleportID pk.VarInt
	)
	if err := p.Scan(&x, &y, &z, &yaw, &pitch, &flags, &teleportID); err != nil {
		return nil, err
	}
	applyCoord := func(current *float64, v float64, rel bool) {
		if rel {
			*current += v
		} else {
			*current = v
		}
	}
	applyCoord(&m.Player.X, float64(x), flags&relX != 0)
	applyCoord(&m.Player.Y, float64(y), flags&relY != 0)
	applyCoord(&m.Player.Z, float64(z), flags&relZ != 0)
	if flags&relYaw != 0 {
		m.Player.Yaw += float32(yaw)
	} else {
		m.Player.Yaw = float32(yaw)
	}
	if flags&relPitch != 0 {
		m.Player.Pitch += float32(pitch)
	} else {
		m.Player.Pitch = float32(pitch)
	}
	confirm := pk.Marshal(proto.ServerboundTeleportConfirm, teleportID)
	return []pk.Packet{confirm}, nil
}

func (m *Mirror) handleUnlockRecipes(p pk.Packet) error {
	r := bytes.NewReader(p.Data)
	var (
		action       pk.VarInt
		bookOpen     pk.Boolean
		filterActive pk.Boolean
	)
	if _, err := (pk.Tuple{&action, &bookOpen, &filterActive}).ReadFrom(r); err != nil {
		return err
	}
	lists := 1
	if action == 0 {
		lists = 2
	}
	for l := 0; l < lists; l++ {
		var count pk.VarInt
		if _, err := count.ReadFrom(r); err != nil {
			return err
		}
		for i := 0; i < int(count); i++ {
			var id pk.VarInt
			if _, err := id.ReadFrom(r); err != nil {
				return err
			}
			m.UnlockedRecipes[int32(id)] = struct{}{}
		}
	}
	return nil
}

func (m *Mirror) handleDestroyEntities(p pk.Packet) error {
	r := bytes.NewReader(p.Data)
	var count pk.VarInt
	if _, err := count.ReadFrom(r); err != nil {
		return err
	}
	for i := 0; i < int(count); i++ {
		var eid pk.VarInt
		if _, err := eid.ReadFrom(r); err != nil {
			return err
		}
		delete(m.Entities, int32(eid))
		if m.RidingEID != nil && *m.RidingEID == int32(eid) {
			m.RidingEID = nil
		}
	}
	return nil
}

func (m *Mirror) handleRespawn(p pk.Packet, fire *[]func()) error {
	var (
		dimension  pk.Int
		difficulty pk.UnsignedByte
		gamemode   pk.UnsignedByte
		levelType  pk.String
	)
	if err := p.Scan(&dimension, &difficulty, &gamemode, &levelType); err != nil {
		return err
	}
	if int32(dimension) != m.Dimension {
		self := m.SelfEntity()
		m.Entities = make(map[int32]*Entity)
		if self != nil {
			m.Entities[m.SelfEID] = self
		}
		m.Chunks = make(map[int32]map[int32]*Chunk)
		m.Maps = make(map[int32]*MapData)
		m.RidingEID = nil
		m.Camera = nil
	}
	m.Dimension = int32(dimension)
	m.Difficulty = byte(difficulty)
	m.LevelType = string(levelType)
	m.setGamemode(int32(gamemode), fire)
	return nil
}

func (m *Mirror) handleRelativeMove(p pk.Packet, withLook bool) error {
	r := bytes.NewReader(p.Data)
	var (
		eid        pk.VarInt
		dx, dy, dz pk.Short
	)
	if _, err := (pk.Tuple{&eid, &dx, &dy, &dz}).ReadFrom(r); err != nil {
		return err
	}
	e, ok := m.Entities[int32(eid)]
	if !ok {
		return nil
	}
	e.X += float64(dx) / 4096
	e.Y += float64(dy) / 4096
	e.Z += float64(dz) / 4096
	if withLook {
		var yaw, pitch pk.Byte
		var onGround pk.Boolean
		if _, err := (pk.Tuple{&yaw, &pitch, &onGround}).ReadFrom(r); err != nil {
			return err
		}
		e.Yaw = int8(yaw)
		e.Pitch = int8(pitch)
		e.OnGround = bool(onGround)
	} else {
		var onGround pk.Boolean
		if _, err := onGround.ReadFrom(r); err != nil {
			return err
		}
		e.OnGround = bool(onGround)
	}
	return nil
}

func (m *Mirror) handleEntityLook(p pk.Packet) error {
	var (
		eid        pk.VarInt
		yaw, pitch pk.Byte
		onGround   pk.Boolean
	)
	if err := p.Scan(&eid, &yaw, &pitch, &onGround); err != nil {
		return err
	}
	if e, ok := m.Entities[int32(eid)]; ok {
		e.Yaw = int8(yaw)
		e.Pitch = int8(pitch)
		e.OnGround = bool(onGround)
	}
	return nil
}

func (m *Mirror) handleVehicleMove(p pk.Packet) error {
	var (
		x, y, z    pk.Double
		yaw, pitch pk.Float
	)
	if err := p.Scan(&x, &y, &z, &yaw, &pitch); err != nil {
		return err
	}
	m.Player.X, m.Player.Y, m.Player.Z = float64(x), float64(y), float64(z)
	m.Player.Yaw, m.Player.Pitch = float32(yaw), float32(pitch)
	if m.RidingEID != nil {
		if e, ok := m.Entities[*m.RidingEID]; ok {
			e.X, e.Y, e.Z = float64(x), float64(y), float64(z)
		}
	}
	return nil
}

func (m *Mirror) handleHeadLook(p pk.Packet) error {
	var (
		eid     pk.VarInt
		headYaw pk.Byte
	)
	if err := p.Scan(&eid, &headYaw); err != nil {
		return err
	}
	if e, ok := m.Entities[int32(eid)]; ok {
		e.HeadPitch = int8(headYaw)
	}
	return nil
}

func (m *Mirror) handleVelocity(p pk.Packet) error {
	var (
		eid        pk.VarInt
		vx, vy, vz pk.Short
	)
	if err := p.Scan(&eid, &vx, &vy, &vz); err != nil {
		return err
	}
	if e, ok := m.Entities[int32(eid)]; ok {
		e.VelX, e.VelY, e.VelZ = int16(vx), int16(vy), int16(vz)
	}
	return nil
}

func (m *Mirror) handleTeleport(p pk.Packet) error {
	var (
		eid        pk.VarInt
		x, y, z    pk.Double
		yaw, pitch pk.Byte
		onGround   pk.Boolean
	)
	if err := p.Scan(&eid, &x, &y, &z, &yaw, &pitch, &onGround); err != nil {
		return err
	}
	if e, ok := m.Entities[int32(eid)]; ok {
		e.X, e.Y, e.Z = float64(x), float64(y), float64(z)
		e.Yaw, e.Pitch = int8(yaw), int8(pitch)
		e.OnGround = bool(onGround)
	}
	return nil
}

func (m *Mirror) handleMetadata(p pk.Packet) error {
	var (
		eid  pk.VarInt
		meta proto.Metadata
	)
	if err := p.Scan(&eid, &meta); err != nil {
		return err
	}
	if e, ok := m.Entities[int32(eid)]; ok {
		e.mergeMetadata(meta)
	}
	return nil
}

func (m *Mirror) handleEquipment(p pk.Packet) error {
	var (
		eid  pk.VarInt
		slot pk.VarInt
		item proto.Slot
	)
	if err := p.Scan(&eid, &slot, &item); err != nil {
		return err
	}
	e, ok := m.Entities[int32(eid)]
	if !ok {
		return nil
	}
	if e.Equipment == nil {
		e.Equipment = make(map[int32]proto.Slot)
	}
	if item.Empty() {
		delete(e.Equipment, int32(slot))
	} else {
		e.Equipment[int32(slot)] = item
	}
	return nil
}

func (m *Mirror) handleProperties(p pk.Packet) error {
	r := bytes.NewReader(p.Data)
	var (
		eid   pk.VarInt
		count pk.Int
	)
	if _, err := (pk.Tuple{&eid, &count}).ReadFrom(r); err != nil {
		return err
	}
	e, ok := m.Entities[int32(eid)]
	if ok && e.Properties == nil {
		e.Properties = make(map[string]*Attribute)
	}
	for i := 0; i < int(count); i++ {
		var (
			key      pk.String
			value    pk.Double
			modCount pk.VarInt
		)
		if _, err := (pk.Tuple{&key, &value, &modCount}).ReadFrom(r); err != nil {
			return err
		}
		attr := &Attribute{Value: float64(value)}
		for j := 0; j < int(modCount); j++ {
			var (
				id     pk.UUID
				amount pk.Double
				op     pk.Byte
			)
			if _, err := (pk.Tuple{&id, &amount, &op}).ReadFrom(r); err != nil {
				return err
			}
			attr.Modifiers = append(attr.Modifiers, AttributeModifier{
				UUID: uuid.UUID(id), Amount: float64(amount), Operation: int8(op),
			})
		}
		if ok {
			e.Properties[string(key)] = attr
		}
	}
	return nil
}

func (m *Mirror) handleSetPassengers(p pk.Packet) error {
	r := bytes.NewReader(p.Data)
	var (
		vehicle pk.VarInt
		count   pk.VarInt
	)
	if _, err := (pk.Tuple{&vehicle, &count}).ReadFrom(r); err != nil {
		return err
	}
	passengers := make([]int32, 0, count)
	for i := 0; i < int(count); i++ {
		var eid pk.VarInt
		if _, err := eid.ReadFrom(r); err != nil {
			return err
		}
		passengers = append(passengers, int32(eid))
	}
	e, ok := m.Entities[int32(vehicle)]
	if ok {
		e.Passengers = passengers
	}
	riding := false
	for _, eid := range passengers {
		if eid == m.SelfEID {
			riding = true
		}
	}
	if riding {
		v := int32(vehicle)
		m.RidingEID = &v
	} else if m.RidingEID != nil && *m.RidingEID == int32(vehicle) {
		m.RidingEID = nil
	}
	return nil
}

func (m *Mirror) handleAttachEntity(p pk.Packet) error {
	var attached, holding pk.Int
	if err := p.Scan(&attached, &holding); err != nil {
		return err
	}
	e, ok := m.Entities[int32(attached)]
	if !ok {
		return nil
	}
	if holding == -1 {
		e.AttachedEID = nil
	} else {
		h := int32(holding)
		e.AttachedEID = &h
	}
	return nil
}

func (m *Mirror) handleCamera(p pk.Packet) error {
	var eid pk.VarInt
	if err := p.Scan(&eid); err != nil {
		return err
	}
	v := int32(eid)
	m.Camera = &v
	return nil
}

func (m *Mirror) handleHeldItem(p pk.Packet) error {
	var slot pk.Byte
	if err := p.Scan(&slot); err != nil {
		return err
	}
	m.HeldItem = byte(slot)
	return nil
}

func (m *Mirror) handleExperience(p pk.Packet) error {
	var (
		bar   pk.Float
		level pk.VarInt
		total pk.VarInt
	)
	if err := p.Scan(&bar, &level, &total); err != nil {
		return err
	}
	m.XPBar = float32(bar)
	m.Level = int32(level)
	m.TotalXP = int32(total)
	return nil
}

func (m *Mirror) handleHealth(p pk.Packet, fire *[]func()) error {
	var (
		health     pk.Float
		food       pk.VarInt
		saturation pk.Float
	)
	if err := p.Scan(&health, &food, &saturation); err != nil {
		return err
	}
	m.Health = float32(health)
	m.Food = int32(food)
	m.Saturation = float32(saturation)
	m.HealthInitialized = true
	if m.hooks.Health != nil {
		hook := m.hooks.Health
		h := float32(health)
		*fire = append(*fire, func() { hook(h) })
	}
	return nil
}

func (m *Mirror) handleTeams(p pk.Packet) error {
	r := bytes.NewReader(p.Data)
	var (
		name   pk.String
		action pk.Byte
	)
	if _, err := (pk.Tuple{&name, &action}).ReadFrom(r); err != nil {
		return err
	}
	readMembers := func() ([]string, error) {
		var count pk.VarInt
		if _, err := count.ReadFrom(r); err != nil {
			return nil, err
		}
		members := make([]string, 0, count)
		for i := 0; i < int(count); i++ {
			var member pk.String
			if _, err := member.ReadFrom(r); err != nil {
				return nil, err
			}
			members = append(members, string(member))
		}
		return members, nil
	}
	readInfo := func(team *Team) error {
		var (
			display, prefix, suffix pk.String
			flags                   pk.Byte
			visibility, collision   pk.String
			color                   pk.Byte
		)
		if _, err := (pk.Tuple{&display, &prefix, &suffix, &flags, &visibility, &collision, &color}).ReadFrom(r); err != nil {
			return err
		}
		team.DisplayName = string(display)
		team.Prefix = string(prefix)
		team.Suffix = string(suffix)
		team.FriendlyFlags = int8(flags)
		team.NameTagVisibility = string(visibility)
		team.CollisionRule = string(collision)
		team.Color = int8(color)
		return nil
	}
	switch action {
	case 0:
		team := &Team{Name: string(name)}
		if err := readInfo(team); err != nil {
			return err
		}
		members, err := readMembers()
		if err != nil {
			return err
		}
		team.Members = members
		m.Teams[team.Name] = team
	case 1:
		delete(m.Teams, string(name))
	case 2:
		if team, ok := m.Teams[string(name)]; ok {
			if err := readInfo(team); err != nil {
				return err
			}
		}
	case 3:
		members, err := readMembers()
		if err != nil {
			return err
		}
		if team, ok := m.Teams[string(name)]; ok {
		add:
			for _, member := range members {
				for _, existing := range team.Members {
					if existing == member {
						continue add
					}
				}
				team.Members = append(team.Members, member)
			}
		}
	case 4:
		members, err := readMembers()
		if err != nil {
			return err
		}
		if team, ok := m.Teams[string(name)]; ok {
			for _, member := range members {
				for i, existing := range team.Members {
					if existing == member {
						team.Members = append(team.Members[:i], team.Members[i+1:]...)
						break
					}
				}
			}
		}
	}
	return nil
}

func (m *Mirror) handleSpawnPosition(p pk.Packet) error {
	var pos proto.Position
	if err := p.Scan(&pos); err != nil {
		return err
	}
	m.SpawnPosition = pos
	return nil
}

func (m *Mirror) handleTimeUpdate(p pk.Packet) error {
	var worldAge, timeOfDay pk.Long
	if err := p.Scan(&worldAge, &timeOfDay); err != nil {
		return err
	}
	m.WorldAge = int64(worldAge)
	m.Time = int64(timeOfDay)
	return nil
}

func (m *Mirror) handleHeaderFooter(p pk.Packet) error {
	var header, footer chat.Message
	if err := p.Scan(&header, &footer); err != nil {
		return err
	}
	m.PlayerListHeader = &header
	m.PlayerListFooter = &footer
	if q := parseQueue(footer.ClearString()); q != nil {
		m.Queue = q
	}
	return nil
}
