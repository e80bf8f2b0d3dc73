package proto

import (
	"io"

	pk "github.com/Tnze/go-mc/net/packet"
)

// Position is a block position packed into a single long the way protocol
// 340 does it: 26 bits of x, 12 bits of y, 26 bits of z, in that order from
// the most significant bit. Later revisions moved y to the low bits, so the
// go-mc built-in pk.Position cannot be used here.
type Position struct {
	X, Y, Z int
}

// WriteTo implements pk.FieldEncoder.
func (p Position) WriteTo(w io.Writer) (int64, error) {
	packed := (int64(p.X)&0x3FFFFFF)<<38 | (int64(p.Y)&0xFFF)<<26 | (int64(p.Z) & 0x3FFFFFF)
	return pk.Long(packed).WriteTo(w)
}

// ReadFrom implements pk.FieldDecoder. Coordinates are sign-extended from
// their packed widths.
func (p *Position) ReadFrom(r io.Reader) (int64, error) {
	var packed pk.Long
	n, err := packed.ReadFrom(r)
	if err != nil {
		return n, err
	}
	v := int64(packed)
	p.X = int(v >> 38)
	p.Y = int(v << 26 >> 52)
	p.Z = int(v << 38 >> 38)
	return n, nil
}
