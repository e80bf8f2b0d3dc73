package world

import (
	"bytes"
	"fmt"
	"io"

	pk "github.com/Tnze/go-mc/net/packet"

	"github.com/reallyoldfogie/mc-keeper-go/proto"
)

const (
	// SectionCount is the number of vertical 16-block slabs per column.
	SectionCount = 16
	// blocksPerSection is 16*16*16.
	blocksPerSection = 4096
	// lightBytes is half a byte of light per block.
	lightBytes = blocksPerSection / 2
	// directBits is the palette-less storage width this revision uses for
	// full global ids. Replay always re-encodes chunks at this width.
	directBits = 13
)

// Chunk is one cached 16x256x16 column.
type Chunk struct {
	X, Z          int32
	Sections      [SectionCount]*Section
	Biomes        [256]byte
	BlockEntities []BlockEntity
}

// Section is a 16x16x16 slab. Blocks hold global palette ids (id<<4 | meta).
// SkyLight is present only in the overworld.
type Section struct {
	Blocks     [blocksPerSection]uint16
	BlockLight [lightBytes]byte
	SkyLight   []byte
}

// BlockEntity is one block-entity compound, kept raw for byte-exact
// re-encoding, with its coordinates lifted out for lookups.
type BlockEntity struct {
	X, Y, Z int32
	Raw     []byte
}

// blockIndex addresses a block inside a section by world-local coordinates.
func blockIndex(x, y, z int) int {
	return (y&15)<<8 | (z&15)<<4 | (x & 15)
}

// SetBlock updates one block in the column, allocating nothing: changes to
// absent sections are dropped, matching how the protocol only changes blocks
// in loaded sections.
func (c *Chunk) SetBlock(x, y, z int, id uint16) {
	if y < 0 || y >= SectionCount*16 {
		return
	}
	sec := c.Sections[y>>4]
	if sec == nil {
		return
	}
	sec.Blocks[blockIndex(x, y, z)] = id
}

// Block reads one block, returning air for absent sections.
func (c *Chunk) Block(x, y, z int) uint16 {
	if y < 0 || y >= SectionCount*16 {
		return 0
	}
	sec := c.Sections[y>>4]
	if sec == nil {
		return 0
	}
	return sec.Blocks[blockIndex(x, y, z)]
}

// removeBlockEntity drops the block entity at the given world coordinates,
// if present.
func (c *Chunk) removeBlockEntity(x, y, z int32) {
	for i, be := range c.BlockEntities {
		if be.X == x && be.Y == y && be.Z == z {
			c.BlockEntities = append(c.BlockEntities[:i], c.BlockEntities[i+1:]...)
			return
		}
	}
}

// upsertBlockEntity replaces the compound at the same coordinates or
// appends.
func (c *Chunk) upsertBlockEntity(be BlockEntity) {
	for i := range c.BlockEntities {
		if c.BlockEntities[i].X == be.X && c.BlockEntities[i].Y == be.Y && c.BlockEntities[i].Z == be.Z {
			c.BlockEntities[i] = be
			return
		}
	}
	c.BlockEntities = append(c.BlockEntities, be)
}

// decodeChunkData parses a ChunkData payload. When full is false the
// decoded sections are merged into prev (which may be nil). overworld
// controls sky-light presence.
func decodeChunkData(p pk.Packet, overworld bool, prev *Chunk) (*Chunk, error) {
	r := bytes.NewReader(p.Data)
	var (
		x, z     pk.Int
		full     pk.Boolean
		mask     pk.VarInt
		dataSize pk.VarInt
	)
	if _, err := (pk.Tuple{&x, &z, &full, &mask, &dataSize}).ReadFrom(r); err != nil {
		return nil, fmt.Errorf("chunk header: %w", err)
	}
	if dataSize < 0 || int(dataSize) > r.Len() {
		return nil, fmt.Errorf("chunk data size %d exceeds packet", dataSize)
	}
	data := make([]byte, dataSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("chunk data: %w", err)
	}

	c := &Chunk{X: int32(x), Z: int32(z)}
	if !bool(full) && prev != nil {
		*c = *prev
	}

	dr := bytes.NewReader(data)
	for s := 0; s < SectionCount; s++ {
		if mask&(1<<s) == 0 {
			continue
		}
		sec, err := decodeSection(dr, overworld)
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", s, err)
		}
		c.Sections[s] = sec
	}
	if full {
		if _, err := io.ReadFull(dr, c.Biomes[:]); err != nil {
			return nil, fmt.Errorf("biomes: %w", err)
		}
	}

	var count pk.VarInt
	if _, err := count.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("block entity count: %w", err)
	}
	for i := 0; i < int(count); i++ {
		be, err := readBlockEntity(r)
		if err != nil {
			return nil, fmt.Errorf("block entity %d: %w", i, err)
		}
		c.upsertBlockEntity(be)
	}
	return c, nil
}

// readBlockEntity scans one NBT compound and lifts its coordinates.
func readBlockEntity(r io.Reader) (BlockEntity, error) {
	raw, _, err := proto.ScanNBT(r)
	if err != nil {
		return BlockEntity{}, err
	}
	var pos struct {
		X int32 `nbt:"x"`
		Y int32 `nbt:"y"`
		Z int32 `nbt:"z"`
	}
	if err := nbtUnmarshal(raw, &pos); err != nil {
		return BlockEntity{}, err
	}
	return BlockEntity{X: pos.X, Y: pos.Y, Z: pos.Z, Raw: raw}, nil
}

// decodeSection reads one palette-encoded section.
func decodeSection(r *bytes.Reader, overworld bool) (*Section, error) {
	var bits pk.UnsignedByte
	if _, err := bits.ReadFrom(r); err != nil {
		return nil, err
	}
	if bits == 0 || bits > 32 {
		return nil, fmt.Errorf("bits per block %d out of range", bits)
	}

	var paletteLen pk.VarInt
	if _, err := paletteLen.ReadFrom(r); err != nil {
		return nil, err
	}
	if paletteLen < 0 || int(paletteLen) > blocksPerSection {
		return nil, fmt.Errorf("palette length %d out of range", paletteLen)
	}
	var palette []uint16
	if bits <= 8 {
		palette = make([]uint16, paletteLen)
		for i := range palette {
			var id pk.VarInt
			if _, err := id.ReadFrom(r); err != nil {
				return nil, err
			}
			palette[i] = uint16(id)
		}
	} else {
		// Direct storage: the palette is empty, the stream carries global
		// ids at the stated width.
		for i := 0; i < int(paletteLen); i++ {
			var id pk.VarInt
			if _, err := id.ReadFrom(r); err != nil {
				return nil, err
			}
		}
	}

	var longCount pk.VarInt
	if _, err := longCount.ReadFrom(r); err != nil {
		return nil, err
	}
	want := (blocksPerSection*int(bits) + 63) / 64
	if int(longCount) != want {
		return nil, fmt.Errorf("data array length %d, want %d for %d bits", longCount, want, bits)
	}
	longs := make([]uint64, longCount)
	for i := range longs {
		var l pk.Long
		if _, err := l.ReadFrom(r); err != nil {
			return nil, err
		}
		longs[i] = uint64(l)
	}

	sec := &Section{}
	valueMask := uint64(1)<<bits - 1
	for i := 0; i < blocksPerSection; i++ {
		bitIndex := i * int(bits)
		long := bitIndex >> 6
		offset := uint(bitIndex & 63)
		v := longs[long] >> offset
		if offset+uint(bits) > 64 {
			v |= longs[long+1] << (64 - offset)
		}
		v &= valueMask
		if palette != nil {
			if int(v) >= len(palette) {
				return nil, fmt.Errorf("palette index %d out of range", v)
			}
			sec.Blocks[i] = palette[v]
		} else {
			sec.Blocks[i] = uint16(v)
		}
	}

	if _, err := io.ReadFull(r, sec.BlockLight[:]); err != nil {
		return nil, fmt.Errorf("block light: %w", err)
	}
	if overworld {
		sec.SkyLight = make([]byte, lightBytes)
		if _, err := io.ReadFull(r, sec.SkyLight); err != nil {
			return nil, fmt.Errorf("sky light: %w", err)
		}
	}
	return sec, nil
}

// EncodeChunkData re-encodes the column as a full ChunkData packet, direct
// palette at 13 bits, reusing the cached light buffers.
func EncodeChunkData(c *Chunk, overworld bool) pk.Packet {
	var data bytes.Buffer
	var mask int32
	for s, sec := range c.Sections {
		if sec == nil {
			continue
		}
		mask |= 1 << s
		encodeSection(&data, sec, overworld)
	}
	data.Write(c.Biomes[:])

	fields := []pk.FieldEncoder{
		pk.Int(c.X),
		pk.Int(c.Z),
		pk.Boolean(true),
		pk.VarInt(mask),
		pk.ByteArray(data.Bytes()),
		pk.VarInt(len(c.BlockEntities)),
	}
	for _, be := range c.BlockEntities {
		fields = append(fields, rawBytes(be.Raw))
	}
	return pk.Marshal(proto.ClientboundChunkData, fields...)
}

func encodeSection(w *bytes.Buffer, sec *Section, overworld bool) {
	pk.UnsignedByte(directBits).WriteTo(w)
	pk.VarInt(0).WriteTo(w) // no palette in direct mode

	longs := make([]uint64, (blocksPerSection*directBits+63)/64)
	for i, block := range sec.Blocks {
		bitIndex := i * directBits
		long := bitIndex >> 6
		offset := uint(bitIndex & 63)
		longs[long] |= uint64(block) << offset
		if offset+directBits > 64 {
			longs[long+1] |= uint64(block) >> (64 - offset)
		}
	}
	pk.VarInt(len(longs)).WriteTo(w)
	for _, l := range longs {
		pk.Long(l).WriteTo(w)
	}

	w.Write(sec.BlockLight[:])
	if overworld {
		if sec.SkyLight != nil {
			w.Write(sec.SkyLight)
		} else {
			w.Write(make([]byte, lightBytes))
		}
	}
}

// rawBytes splices pre-encoded bytes into pk.Marshal.
type rawBytes []byte

func (b rawBytes) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b)
	return int64(n), err
}
