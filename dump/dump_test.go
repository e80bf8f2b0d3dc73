package dump

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pk "github.com/Tnze/go-mc/net/packet"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	base := time.UnixMilli(1_700_000_000_000)
	tick := 0
	w.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}

	packets := []struct {
		dir byte
		p   pk.Packet
	}{
		{DirInbound, pk.Marshal(0x0F, pk.String(`{"text":"hi"}`), pk.Byte(0))},
		{DirOutbound, pk.Marshal(0x02, pk.String("hello"))},
		{DirInbound, pk.Packet{ID: 0x20, Data: bytes.Repeat([]byte{0xAB}, 4096)}},
	}
	for _, tt := range packets {
		if err := w.WritePacket(tt.dir, tt.p); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	for i, tt := range packets {
		rec, err := r.Next()
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if rec.Direction != tt.dir {
			t.Errorf("record %d direction = %d, want %d", i, rec.Direction, tt.dir)
		}
		got, err := rec.Packet()
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if got.ID != tt.p.ID || !bytes.Equal(got.Data, tt.p.Data) {
			t.Errorf("record %d packet mismatch", i)
		}
		if want := float64(base.UnixMilli() + int64(i) + 1); rec.Millis != want {
			t.Errorf("record %d millis = %v, want %v", i, rec.Millis, want)
		}
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("after last record: %v, want EOF", err)
	}
}

func TestWriterClosed(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.WritePacket(DirInbound, pk.Marshal(0x00)); err == nil {
		t.Error("write after close succeeded")
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestCreateAndValidate(t *testing.T) {
	dir := t.TempDir()
	const profileID = "d8d5a9237b2043d8883b1150148d6955"
	w, err := Create(dir, profileID)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		dir := DirInbound
		if i%2 == 1 {
			dir = DirOutbound
		}
		if err := w.WritePacket(dir, pk.Marshal(0x0F, pk.String("line"), pk.Byte(0))); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*."+profileID+".dump.gz"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("dump files = %v (%v), want one", matches, err)
	}
	if !strings.HasSuffix(matches[0], profileID+".dump.gz") {
		t.Errorf("file name %q", matches[0])
	}

	stats, err := ValidateFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if stats.Records != 5 || stats.Inbound != 3 || stats.Outbound != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.LastMillis < stats.FirstMillis {
		t.Errorf("timestamps not ordered: %v .. %v", stats.FirstMillis, stats.LastMillis)
	}
}

func TestValidateTruncated(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WritePacket(DirInbound, pk.Marshal(0x0F, pk.String("x"), pk.Byte(0))); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	// Re-compress a truncated copy so the gzip layer stays intact while the
	// record framing breaks.
	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	raw, err := io.ReadAll(r.gz)
	if err != nil {
		t.Fatal(err)
	}
	var cut bytes.Buffer
	w2, err := NewWriter(&cut)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w2.gz.Write(raw[:len(raw)-3]); err != nil {
		t.Fatal(err)
	}
	if err := w2.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "cut.dump.gz")
	if err := os.WriteFile(path, cut.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ValidateFile(path); err == nil {
		t.Error("truncated dump validated cleanly")
	}
}
