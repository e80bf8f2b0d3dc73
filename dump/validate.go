package dump

import (
	"errors"
	"io"
)

// Stats summarises a validated dump.
type Stats struct {
	Records  int
	Inbound  int
	Outbound int
	Bytes    int64
	// FirstMillis and LastMillis bound the capture window; zero when the
	// dump is empty.
	FirstMillis float64
	LastMillis  float64
}

// ValidateFile walks a dump file end to end, checking record framing and
// timestamp monotonicity are intact.
func ValidateFile(path string) (Stats, error) {
	r, err := Open(path)
	if err != nil {
		return Stats{}, err
	}
	defer r.Close()
	return Validate(r)
}

// Validate consumes a reader to a clean EOF.
func Validate(r *Reader) (Stats, error) {
	var stats Stats
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}
		if _, err := rec.Packet(); err != nil {
			return stats, err
		}
		if stats.Records == 0 {
			stats.FirstMillis = rec.Millis
		}
		stats.LastMillis = rec.Millis
		stats.Records++
		stats.Bytes += int64(len(rec.Payload))
		switch rec.Direction {
		case DirInbound:
			stats.Inbound++
		case DirOutbound:
			stats.Outbound++
		}
	}
}
