package proto

import (
	"io"

	pk "github.com/Tnze/go-mc/net/packet"
)

// EmptySlotID marks an empty item slot on the wire.
const EmptySlotID = -1

// Slot is a protocol-340 item stack. An ID of -1 encodes an empty slot, in
// which case the remaining fields are not present on the wire. NBT holds the
// raw tag bytes as received (nil when the item has no tag) so re-encoding is
// byte-exact.
type Slot struct {
	ID     int16
	Count  int8
	Damage int16
	NBT    []byte
}

// Empty reports whether the slot holds no item.
func (s Slot) Empty() bool { return s.ID == EmptySlotID }

// WriteTo implements pk.FieldEncoder.
func (s Slot) WriteTo(w io.Writer) (int64, error) {
	n, err := pk.Short(s.ID).WriteTo(w)
	if err != nil || s.Empty() {
		return n, err
	}
	m, err := pk.Byte(s.Count).WriteTo(w)
	n += m
	if err != nil {
		return n, err
	}
	m, err = pk.Short(s.Damage).WriteTo(w)
	n += m
	if err != nil {
		return n, err
	}
	if len(s.NBT) == 0 {
		m, err = pk.Byte(tagEnd).WriteTo(w)
		return n + m, err
	}
	k, err := w.Write(s.NBT)
	return n + int64(k), err
}

// ReadFrom implements pk.FieldDecoder.
func (s *Slot) ReadFrom(r io.Reader) (int64, error) {
	var id pk.Short
	n, err := id.ReadFrom(r)
	if err != nil {
		return n, err
	}
	s.ID = int16(id)
	s.Count, s.Damage, s.NBT = 0, 0, nil
	if s.Empty() {
		return n, nil
	}
	var (
		count  pk.Byte
		damage pk.Short
	)
	m, err := count.ReadFrom(r)
	n += m
	if err != nil {
		return n, err
	}
	m, err = damage.ReadFrom(r)
	n += m
	if err != nil {
		return n, err
	}
	s.Count = int8(count)
	s.Damage = int16(damage)
	raw, m, err := ScanNBT(r)
	n += m
	if err != nil {
		return n, err
	}
	if len(raw) > 1 {
		s.NBT = raw
	}
	return n, nil
}
