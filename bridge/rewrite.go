// Package bridge splices an attached downstream client into a running
// upstream session: it replays the mirror, rewrites entity ids in both
// directions and pipes live traffic with zero reordering.
package bridge

import (
	"bytes"
	"fmt"

	pk "github.com/Tnze/go-mc/net/packet"

	"github.com/reallyoldfogie/mc-keeper-go/proto"
	"github.com/reallyoldfogie/mc-keeper-go/world"
)

// ClientEid is the entity id every downstream client knows itself by. The
// upstream self eid changes across reconnects; this one never does.
const ClientEid = 9_999_999

// leadingVarIntEid lists the clientbound packets whose first field is an
// entity id VarInt.
var leadingVarIntEid = map[int32]bool{
	proto.ClientboundAnimation:              true,
	proto.ClientboundBlockBreakAnimation:    true,
	proto.ClientboundEntityRelativeMove:     true,
	proto.ClientboundEntityLookRelativeMove: true,
	proto.ClientboundEntityLook:             true,
	proto.ClientboundUseBed:                 true,
	proto.ClientboundRemoveEntityEffect:     true,
	proto.ClientboundEntityHeadLook:         true,
	proto.ClientboundCamera:                 true,
	proto.ClientboundEntityVelocity:         true,
	proto.ClientboundEntityEquipment:        true,
	proto.ClientboundEntityTeleport:         true,
	proto.ClientboundEntityProperties:       true,
	proto.ClientboundEntityEffect:           true,
}

// swapEid exchanges the upstream self eid and the client eid, leaving every
// other id alone. Applying it twice is the identity.
func swapEid(v, selfEid int32) int32 {
	switch v {
	case selfEid:
		return ClientEid
	case ClientEid:
		return selfEid
	}
	return v
}

// RewriteClientbound maps upstream self-eid references onto the client eid.
// objectType resolves an eid to its spawn-object type for the firework
// metadata rule; it may be nil when no mirror is available.
func RewriteClientbound(p pk.Packet, selfEid int32, objectType func(eid int32) (int8, bool)) (pk.Packet, error) {
	switch {
	case leadingVarIntEid[p.ID]:
		return rewriteLeadingVarInt(p, selfEid)
	case p.ID == proto.ClientboundEntityStatus:
		return rewriteLeadingInt(p, selfEid)
	case p.ID == proto.ClientboundEntityMetadata:
		return rewriteMetadata(p, selfEid, objectType)
	case p.ID == proto.ClientboundSetPassengers:
		return rewritePassengers(p, selfEid)
	}
	return p, nil
}

// RewriteServerbound applies the downstream-to-upstream rules. forward is
// false for packets the proxy absorbs.
func RewriteServerbound(p pk.Packet, selfEid int32) (out pk.Packet, forward bool, err error) {
	switch p.ID {
	case proto.ServerboundTeleportConfirm, proto.ServerboundKeepAlive:
		return p, false, nil
	case proto.ServerboundEntityAction:
		out, err = rewriteLeadingVarInt(p, selfEid)
		return out, err == nil, err
	}
	return p, true, nil
}

func rewriteLeadingVarInt(p pk.Packet, selfEid int32) (pk.Packet, error) {
	r := bytes.NewReader(p.Data)
	var eid pk.VarInt
	if _, err := eid.ReadFrom(r); err != nil {
		return p, fmt.Errorf("leading eid: %w", err)
	}
	swapped := swapEid(int32(eid), selfEid)
	if swapped == int32(eid) {
		return p, nil
	}
	var buf bytes.Buffer
	pk.VarInt(swapped).WriteTo(&buf)
	buf.Write(p.Data[len(p.Data)-r.Len():])
	return pk.Packet{ID: p.ID, Data: buf.Bytes()}, nil
}

func rewriteLeadingInt(p pk.Packet, selfEid int32) (pk.Packet, error) {
	r := bytes.NewReader(p.Data)
	var eid pk.Int
	if _, err := eid.ReadFrom(r); err != nil {
		return p, fmt.Errorf("leading eid: %w", err)
	}
	swapped := swapEid(int32(eid), selfEid)
	if swapped == int32(eid) {
		return p, nil
	}
	var buf bytes.Buffer
	pk.Int(swapped).WriteTo(&buf)
	buf.Write(p.Data[len(p.Data)-r.Len():])
	return pk.Packet{ID: p.ID, Data: buf.Bytes()}, nil
}

// rewriteMetadata only touches firework entities, whose shooter reference at
// metadata index 7 carries an eid.
func rewriteMetadata(p pk.Packet, selfEid int32, objectType func(eid int32) (int8, bool)) (pk.Packet, error) {
	if objectType == nil {
		return p, nil
	}
	r := bytes.NewReader(p.Data)
	var eid pk.VarInt
	if _, err := eid.ReadFrom(r); err != nil {
		return p, fmt.Errorf("metadata eid: %w", err)
	}
	typ, ok := objectType(int32(eid))
	if !ok || typ != world.ObjectTypeFireworks {
		return p, nil
	}
	var meta proto.Metadata
	if _, err := meta.ReadFrom(r); err != nil {
		return p, fmt.Errorf("firework metadata: %w", err)
	}
	changed := false
	for i := range meta {
		if meta[i].Index == 7 && meta[i].Type == proto.MetaVarInt {
			if swapped := swapEid(meta[i].VarInt, selfEid); swapped != meta[i].VarInt {
				meta[i].VarInt = swapped
				changed = true
			}
		}
	}
	if !changed {
		return p, nil
	}
	return pk.Marshal(p.ID, eid, meta), nil
}

// rewritePassengers leaves the vehicle id untouched and swaps each rider.
func rewritePassengers(p pk.Packet, selfEid int32) (pk.Packet, error) {
	r := bytes.NewReader(p.Data)
	var vehicle, count pk.VarInt
	if _, err := (pk.Tuple{&vehicle, &count}).ReadFrom(r); err != nil {
		return p, fmt.Errorf("passenger header: %w", err)
	}
	fields := []pk.FieldEncoder{vehicle, count}
	changed := false
	for i := 0; i < int(count); i++ {
		var rider pk.VarInt
		if _, err := rider.ReadFrom(r); err != nil {
			return p, fmt.Errorf("passenger %d: %w", i, err)
		}
		swapped := swapEid(int32(rider), selfEid)
		if swapped != int32(rider) {
			changed = true
		}
		fields = append(fields, pk.VarInt(swapped))
	}
	if !changed {
		return p, nil
	}
	return pk.Marshal(p.ID, fields...), nil
}
