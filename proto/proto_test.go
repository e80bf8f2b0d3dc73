package proto

import (
	"bytes"
	"reflect"
	"testing"

	pk "github.com/Tnze/go-mc/net/packet"
)

func roundTrip(t *testing.T, enc pk.FieldEncoder, dec pk.FieldDecoder) {
	t.Helper()
	var buf bytes.Buffer
	if _, err := enc.WriteTo(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	n := buf.Len()
	read, err := dec.ReadFrom(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if int(read) != n {
		t.Fatalf("decode consumed %d of %d bytes", read, n)
	}
}

func TestPositionRoundTrip(t *testing.T) {
	cases := []Position{
		{0, 0, 0},
		{8, 65, 8},
		{-1, -1, -1},
		{33554431, 2047, 33554431},
		{-33554432, -2048, -33554432},
		{-14553, 70, 29012},
	}
	for _, want := range cases {
		var got Position
		roundTrip(t, want, &got)
		if got != want {
			t.Errorf("position %+v round-tripped to %+v", want, got)
		}
	}
}

func TestPositionPacking(t *testing.T) {
	// The y field occupies bits 26..37, unlike later revisions.
	var buf bytes.Buffer
	if _, err := (Position{X: 1, Y: 2, Z: 3}).WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	var raw pk.Long
	if _, err := raw.ReadFrom(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatal(err)
	}
	want := int64(1)<<38 | int64(2)<<26 | 3
	if int64(raw) != want {
		t.Fatalf("packed %#x, want %#x", int64(raw), want)
	}
}

func TestSlotRoundTrip(t *testing.T) {
	nbtTag := []byte{
		tagCompound, 0, 0, // unnamed root
		tagShort, 0, 6, 'D', 'a', 'm', 'a', 'g', 'e', 0, 3,
		tagEnd,
	}
	cases := []Slot{
		{ID: EmptySlotID},
		{ID: 276, Count: 1, Damage: 0},
		{ID: 1, Count: 64, Damage: 0},
		{ID: 276, Count: 1, Damage: 100, NBT: nbtTag},
	}
	for _, want := range cases {
		var got Slot
		roundTrip(t, want, &got)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("slot %+v round-tripped to %+v", want, got)
		}
	}
}

func TestSlotEmptyEncoding(t *testing.T) {
	var buf bytes.Buffer
	if _, err := (Slot{ID: EmptySlotID}).WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{0xFF, 0xFF}) {
		t.Fatalf("empty slot encoded as %x, want ffff", buf.Bytes())
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	want := Metadata{
		{Index: 0, Type: MetaByte, Byte: 0x20},
		{Index: 7, Type: MetaVarInt, VarInt: 12345},
		{Index: 2, Type: MetaString, String: "Steve"},
		{Index: 3, Type: MetaBoolean, Boolean: true},
		{Index: 6, Type: MetaFloat, Float: 19.5},
		{Index: 9, Type: MetaSlot, Slot: Slot{ID: 1, Count: 3}},
		{Index: 10, Type: MetaRotation, Rotation: [3]float32{0, 90, 180}},
		{Index: 11, Type: MetaOptPosition, HasValue: true, Position: Position{X: 1, Y: 2, Z: 3}},
		{Index: 12, Type: MetaOptUUID, HasValue: false},
	}
	var got Metadata
	roundTrip(t, want, &got)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("metadata round-trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestScanNBT(t *testing.T) {
	tag := []byte{
		tagCompound, 0, 4, 'r', 'o', 'o', 't',
		tagInt, 0, 1, 'x', 0, 0, 0, 42,
		tagList, 0, 1, 'l', tagByte, 0, 0, 0, 2, 7, 8,
		tagString, 0, 2, 'i', 'd', 0, 5, 'c', 'h', 'e', 's', 't',
		tagEnd,
	}
	trailer := []byte{0xDE, 0xAD}
	r := bytes.NewReader(append(append([]byte{}, tag...), trailer...))
	raw, n, err := ScanNBT(r)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !bytes.Equal(raw, tag) {
		t.Fatalf("scanned %x, want %x", raw, tag)
	}
	if int(n) != len(tag) {
		t.Fatalf("consumed %d bytes, want %d", n, len(tag))
	}
	if r.Len() != len(trailer) {
		t.Fatalf("scanner over-read: %d trailing bytes left, want %d", r.Len(), len(trailer))
	}
}

func TestScanNBTEndTag(t *testing.T) {
	raw, n, err := ScanNBT(bytes.NewReader([]byte{tagEnd, 1, 2, 3}))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || len(raw) != 1 || raw[0] != tagEnd {
		t.Fatalf("lone TAG_End scanned as %x (%d bytes)", raw, n)
	}
}

func TestAuthDigest(t *testing.T) {
	// Reference vectors for the signed two's-complement digest.
	cases := []struct{ in, want string }{
		{"Notch", "4ed1f46bbe04bc756bcb17c0c7ce3e4632f06a48"},
		{"jeb_", "-7c9d5b0044c130109a5d7b5fb5c317c02b4e28c1"},
		{"simon", "88e16a1019277b15d58faf0541e11910eb756f6"},
	}
	for _, c := range cases {
		if got := AuthDigest(c.in, nil, nil); got != c.want {
			t.Errorf("AuthDigest(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestEncryptionRoundTrip(t *testing.T) {
	keys, err := NewServerKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	secret, err := NewSharedSecret()
	if err != nil {
		t.Fatal(err)
	}
	encSecret, encToken, err := EncryptLoginPayload(keys.Public, secret, []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	gotSecret, err := keys.Decrypt(encSecret)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(gotSecret, secret) {
		t.Fatal("shared secret did not survive the RSA exchange")
	}
	gotToken, err := keys.Decrypt(encToken)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(gotToken, []byte{1, 2, 3, 4}) {
		t.Fatal("verify token did not survive the RSA exchange")
	}

	enc, dec, err := CipherStreams(secret)
	if err != nil {
		t.Fatal(err)
	}
	plain := []byte("framed packet bytes, one byte at a time")
	ct := make([]byte, len(plain))
	enc.XORKeyStream(ct, plain)
	pt := make([]byte, len(ct))
	dec.XORKeyStream(pt, ct)
	if !bytes.Equal(pt, plain) {
		t.Fatal("cfb8 streams are not inverses")
	}
}
