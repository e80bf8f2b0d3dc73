// Package dump records raw upstream traffic for one session. A dump is a
// gzip stream of framed records:
//
//	<u32 BE length> <u8 direction> <f64 BE unix-millis> <length bytes>
//
// where the payload bytes are the uncompressed packet (VarInt id followed by
// the body) and direction is 0 for inbound, 1 for outbound. Keep-alive
// echoes never reach the dump.
package dump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/klauspost/compress/gzip"
)

// Directions.
const (
	DirInbound  byte = 0
	DirOutbound byte = 1
)

// gzipLevel trades speed for size; dumps run for hours.
const gzipLevel = 4

// Writer streams packet records into a dump file.
//
// Usage:
//
//	w, _ := dump.Create("dumps", profileID)
//	defer w.Close()
//	_ = w.WritePacket(dump.DirInbound, p)
//
// Records are written incrementally; the writer retains nothing in memory
// beyond the gzip window.
type Writer struct {
	mu     sync.Mutex
	gz     *gzip.Writer
	file   *os.File // optional, when using Create()
	closed bool
	now    func() time.Time
}

// NewWriter starts a dump onto the provided io.Writer.
func NewWriter(out io.Writer) (*Writer, error) {
	gz, err := gzip.NewWriterLevel(out, gzipLevel)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	return &Writer{gz: gz, now: time.Now}, nil
}

// Create opens a new timestamped dump file under dir and returns a Writer
// that owns the file descriptor.
func Create(dir, profileID string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("dump dir: %w", err)
	}
	name := fmt.Sprintf("%s.%s.dump.gz",
		time.Now().UTC().Format("2006-01-02T15:04:05.000Z"), profileID)
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("dump file: %w", err)
	}
	w, err := NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.file = f
	return w, nil
}

// WritePacket appends one record, stamped with the current time.
func (w *Writer) WritePacket(direction byte, p pk.Packet) error {
	var payload bytes.Buffer
	if _, err := pk.VarInt(p.ID).WriteTo(&payload); err != nil {
		return err
	}
	payload.Write(p.Data)
	return w.writeRecord(direction, float64(w.now().UnixMilli()), payload.Bytes())
}

func (w *Writer) writeRecord(direction byte, millis float64, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("dump: writer closed")
	}

	var hdr [13]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(len(payload)))
	hdr[4] = direction
	binary.BigEndian.PutUint64(hdr[5:13], math.Float64bits(millis))
	if _, err := w.gz.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.gz.Write(payload)
	return err
}

// Close flushes the gzip stream and closes the file, if any.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.gz.Close(); err != nil {
		if w.file != nil {
			w.file.Close()
		}
		return err
	}
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
