package world

import (
	pk "github.com/Tnze/go-mc/net/packet"

	"github.com/reallyoldfogie/mc-keeper-go/proto"
)

// TrackServerbound folds the position-bearing serverbound packets a
// downstream client sends into the mirror so the next replay starts from
// where the player actually is. Packets the tracker does not care about are
// ignored.
func (m *Mirror) TrackServerbound(p pk.Packet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch p.ID {
	case proto.ServerboundPlayerPosition:
		var (
			x, y, z  pk.Double
			onGround pk.Boolean
		)
		if err := p.Scan(&x, &y, &z, &onGround); err != nil {
			return err
		}
		m.Player.X, m.Player.Y, m.Player.Z = float64(x), float64(y), float64(z)

	case proto.ServerboundPlayerPositionAndLook:
		var (
			x, y, z    pk.Double
			yaw, pitch pk.Float
			onGround   pk.Boolean
		)
		if err := p.Scan(&x, &y, &z, &yaw, &pitch, &onGround); err != nil {
			return err
		}
		m.Player.X, m.Player.Y, m.Player.Z = float64(x), float64(y), float64(z)
		m.Player.Yaw, m.Player.Pitch = float32(yaw), float32(pitch)

	case proto.ServerboundPlayerLook:
		var (
			yaw, pitch pk.Float
			onGround   pk.Boolean
		)
		if err := p.Scan(&yaw, &pitch, &onGround); err != nil {
			return err
		}
		m.Player.Yaw, m.Player.Pitch = float32(yaw), float32(pitch)

	case proto.ServerboundVehicleMove:
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

	case proto.ServerboundHeldItemChange:
		var slot pk.Short
		if err := p.Scan(&slot); err != nil {
			return err
		}
		if slot >= 0 && slot <= 8 {
			m.HeldItem = byte(slot)
		}
	}
	return nil
}
