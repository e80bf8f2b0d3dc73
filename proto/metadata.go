package proto

import (
	"fmt"
	"io"

	pk "github.com/Tnze/go-mc/net/packet"
)

// Entity metadata value types for protocol 340.
const (
	MetaByte = iota
	MetaVarInt
	MetaFloat
	MetaString
	MetaChat
	MetaSlot
	MetaBoolean
	MetaRotation
	MetaPosition
	MetaOptPosition
	MetaDirection
	MetaOptUUID
	MetaOptBlockID
	MetaNBT
)

// metadataEnd terminates the entry stream on the wire.
const metadataEnd = 0xFF

// MetadataEntry is one entity metadata record. Which value field is
// meaningful depends on Type.
type MetadataEntry struct {
	Index byte
	Type  int32

	Byte     int8
	VarInt   int32
	Float    float32
	String   string // also carries MetaChat JSON text
	Slot     Slot
	Boolean  bool
	Rotation [3]float32
	Position Position
	HasValue bool     // presence flag for MetaOptPosition / MetaOptUUID
	UUID     pk.UUID  // MetaOptUUID
	NBT      []byte   // MetaNBT raw tag bytes
}

// Metadata is an ordered entity metadata entry list.
type Metadata []MetadataEntry

// ReadFrom implements pk.FieldDecoder.
func (m *Metadata) ReadFrom(r io.Reader) (int64, error) {
	*m = (*m)[:0]
	var n int64
	for {
		var index pk.UnsignedByte
		k, err := index.ReadFrom(r)
		n += k
		if err != nil {
			return n, err
		}
		if index == metadataEnd {
			return n, nil
		}
		var typ pk.VarInt
		k, err = typ.ReadFrom(r)
		n += k
		if err != nil {
			return n, err
		}
		entry := MetadataEntry{Index: byte(index), Type: int32(typ)}
		k, err = entry.readValue(r)
		n += k
		if err != nil {
			return n, fmt.Errorf("metadata index %d type %d: %w", index, typ, err)
		}
		*m = append(*m, entry)
	}
}

// WriteTo implements pk.FieldEncoder.
func (m Metadata) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, entry := range m {
		k, err := pk.Tuple{pk.UnsignedByte(entry.Index), pk.VarInt(entry.Type)}.WriteTo(w)
		n += k
		if err != nil {
			return n, err
		}
		k, err = entry.writeValue(w)
		n += k
		if err != nil {
			return n, err
		}
	}
	k, err := pk.UnsignedByte(metadataEnd).WriteTo(w)
	return n + k, err
}

func (e *MetadataEntry) readValue(r io.Reader) (int64, error) {
	switch e.Type {
	case MetaByte:
		var v pk.Byte
		n, err := v.ReadFrom(r)
		e.Byte = int8(v)
		return n, err
	case MetaVarInt, MetaDirection, MetaOptBlockID:
		var v pk.VarInt
		n, err := v.ReadFrom(r)
		e.VarInt = int32(v)
		return n, err
	case MetaFloat:
		var v pk.Float
		n, err := v.ReadFrom(r)
		e.Float = float32(v)
		return n, err
	case MetaString, MetaChat:
		var v pk.String
		n, err := v.ReadFrom(r)
		e.String = string(v)
		return n, err
	case MetaSlot:
		return e.Slot.ReadFrom(r)
	case MetaBoolean:
		var v pk.Boolean
		n, err := v.ReadFrom(r)
		e.Boolean = bool(v)
		return n, err
	case MetaRotation:
		var x, y, z pk.Float
		n, err := pk.Tuple{&x, &y, &z}.ReadFrom(r)
		e.Rotation = [3]float32{float32(x), float32(y), float32(z)}
		return n, err
	case MetaPosition:
		return e.Position.ReadFrom(r)
	case MetaOptPosition:
		var present pk.Boolean
		n, err := present.ReadFrom(r)
		if err != nil {
			return n, err
		}
		e.HasValue = bool(present)
		if !e.HasValue {
			return n, nil
		}
		k, err := e.Position.ReadFrom(r)
		return n + k, err
	case MetaOptUUID:
		var present pk.Boolean
		n, err := present.ReadFrom(r)
		if err != nil {
			return n, err
		}
		e.HasValue = bool(present)
		if !e.HasValue {
			return n, nil
		}
		k, err := e.UUID.ReadFrom(r)
		return n + k, err
	case MetaNBT:
		raw, n, err := ScanNBT(r)
		if err != nil {
			return n, err
		}
		e.NBT = raw
		return n, nil
	default:
		return 0, fmt.Errorf("unknown metadata type %d", e.Type)
	}
}

func (e MetadataEntry) writeValue(w io.Writer) (int64, error) {
	switch e.Type {
	case MetaByte:
		return pk.Byte(e.Byte).WriteTo(w)
	case MetaVarInt, MetaDirection, MetaOptBlockID:
		return pk.VarInt(e.VarInt).WriteTo(w)
	case MetaFloat:
		return pk.Float(e.Float).WriteTo(w)
	case MetaString, MetaChat:
		return pk.String(e.String).WriteTo(w)
	case MetaSlot:
		return e.Slot.WriteTo(w)
	case MetaBoolean:
		return pk.Boolean(e.Boolean).WriteTo(w)
	case MetaRotation:
		return pk.Tuple{
			pk.Float(e.Rotation[0]), pk.Float(e.Rotation[1]), pk.Float(e.Rotation[2]),
		}.WriteTo(w)
	case MetaPosition:
		return e.Position.WriteTo(w)
	case MetaOptPosition:
		if !e.HasValue {
			return pk.Boolean(false).WriteTo(w)
		}
		return pk.Tuple{pk.Boolean(true), e.Position}.WriteTo(w)
	case MetaOptUUID:
		if !e.HasValue {
			return pk.Boolean(false).WriteTo(w)
		}
		return pk.Tuple{pk.Boolean(true), e.UUID}.WriteTo(w)
	case MetaNBT:
		if len(e.NBT) == 0 {
			return pk.Byte(tagEnd).WriteTo(w)
		}
		n, err := w.Write(e.NBT)
		return int64(n), err
	default:
		return 0, fmt.Errorf("unknown metadata type %d", e.Type)
	}
}
