package proto

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// NBT tag type ids, per the binary NBT specification.
const (
	tagEnd = iota
	tagByte
	tagShort
	tagInt
	tagLong
	tagFloat
	tagDouble
	tagByteArray
	tagString
	tagList
	tagCompound
	tagIntArray
	tagLongArray
)

// maxNBTArray caps array lengths while scanning so a corrupt stream cannot
// ask for gigabytes.
const maxNBTArray = 1 << 24

// ScanNBT reads exactly one NBT tag (type byte, name, payload) from r and
// returns its raw bytes. A lone TAG_End byte is returned as a one-byte
// slice; callers treat it as "no tag". The go-mc nbt decoder cannot be used
// for this because it buffers ahead of the tag it parses, which would eat
// the packet fields that follow.
func ScanNBT(r io.Reader) ([]byte, int64, error) {
	s := nbtScanner{r: r}
	typ, err := s.readByte()
	if err != nil {
		return nil, s.n, err
	}
	if typ == tagEnd {
		return s.buf.Bytes(), s.n, nil
	}
	if err := s.skipString(); err != nil {
		return nil, s.n, fmt.Errorf("nbt root name: %w", err)
	}
	if err := s.skipPayload(typ); err != nil {
		return nil, s.n, fmt.Errorf("nbt payload: %w", err)
	}
	return s.buf.Bytes(), s.n, nil
}

type nbtScanner struct {
	r   io.Reader
	buf bytes.Buffer
	n   int64
}

func (s *nbtScanner) read(n int) ([]byte, error) {
	b := make([]byte, n)
	m, err := io.ReadFull(s.r, b)
	s.n += int64(m)
	if err != nil {
		return nil, err
	}
	s.buf.Write(b)
	return b, nil
}

func (s *nbtScanner) readByte() (byte, error) {
	b, err := s.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (s *nbtScanner) skipString() error {
	b, err := s.read(2)
	if err != nil {
		return err
	}
	_, err = s.read(int(binary.BigEndian.Uint16(b)))
	return err
}

func (s *nbtScanner) skipPayload(typ byte) error {
	switch typ {
	case tagByte:
		_, err := s.read(1)
		return err
	case tagShort:
		_, err := s.read(2)
		return err
	case tagInt, tagFloat:
		_, err := s.read(4)
		return err
	case tagLong, tagDouble:
		_, err := s.read(8)
		return err
	case tagByteArray, tagIntArray, tagLongArray:
		b, err := s.read(4)
		if err != nil {
			return err
		}
		n := int(int32(binary.BigEndian.Uint32(b)))
		if n < 0 || n > maxNBTArray {
			return fmt.Errorf("nbt array length %d out of range", n)
		}
		switch typ {
		case tagIntArray:
			n *= 4
		case tagLongArray:
			n *= 8
		}
		_, err = s.read(n)
		return err
	case tagString:
		return s.skipString()
	case tagList:
		elem, err := s.readByte()
		if err != nil {
			return err
		}
		b, err := s.read(4)
		if err != nil {
			return err
		}
		n := int(int32(binary.BigEndian.Uint32(b)))
		if n < 0 || n > maxNBTArray {
			return fmt.Errorf("nbt list length %d out of range", n)
		}
		for i := 0; i < n; i++ {
			if err := s.skipPayload(elem); err != nil {
				return err
			}
		}
		return nil
	case tagCompound:
		for {
			child, err := s.readByte()
			if err != nil {
				return err
			}
			if child == tagEnd {
				return nil
			}
			if err := s.skipString(); err != nil {
				return err
			}
			if err := s.skipPayload(child); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown nbt tag type %d", typ)
	}
}
