package dump

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/klauspost/compress/gzip"
)

// maxRecordSize rejects obviously corrupt length prefixes. The largest legal
// packet of this protocol revision is a full chunk column, well under 2 MiB.
const maxRecordSize = 1 << 23

// Record is one framed dump entry.
type Record struct {
	Direction byte
	// Millis is the unix-millisecond capture timestamp.
	Millis  float64
	Payload []byte
}

// Packet decodes the payload into a packet struct.
func (r Record) Packet() (pk.Packet, error) {
	br := bytes.NewReader(r.Payload)
	var id pk.VarInt
	if _, err := id.ReadFrom(br); err != nil {
		return pk.Packet{}, fmt.Errorf("record packet id: %w", err)
	}
	data := make([]byte, br.Len())
	io.ReadFull(br, data)
	return pk.Packet{ID: int32(id), Data: data}, nil
}

// Reader replays a dump stream record by record.
type Reader struct {
	gz   *gzip.Reader
	file *os.File
}

// NewReader wraps an io.Reader holding a dump stream.
func NewReader(in io.Reader) (*Reader, error) {
	gz, err := gzip.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	return &Reader{gz: gz}, nil
}

// Open opens a dump file for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// Next returns the next record, or io.EOF at a clean end of stream. A
// truncated record is an error, not EOF.
func (r *Reader) Next() (Record, error) {
	var hdr [13]byte
	if _, err := io.ReadFull(r.gz, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, fmt.Errorf("truncated record header: %w", err)
		}
		return Record{}, err
	}
	length := binary.BigEndian.Uint32(hdr[0:4])
	if length > maxRecordSize {
		return Record{}, fmt.Errorf("record length %d exceeds limit", length)
	}
	rec := Record{
		Direction: hdr[4],
		Millis:    math.Float64frombits(binary.BigEndian.Uint64(hdr[5:13])),
		Payload:   make([]byte, length),
	}
	if _, err := io.ReadFull(r.gz, rec.Payload); err != nil {
		return Record{}, fmt.Errorf("truncated record payload: %w", err)
	}
	return rec, nil
}

// Close releases the gzip state and the file, if any.
func (r *Reader) Close() error {
	err := r.gz.Close()
	if r.file != nil {
		if cerr := r.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
