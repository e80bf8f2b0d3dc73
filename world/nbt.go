package world

import "github.com/Tnze/go-mc/nbt"

// nbtUnmarshal decodes a raw scanned tag into v, ignoring fields v does not
// name.
func nbtUnmarshal(raw []byte, v any) error {
	return nbt.Unmarshal(raw, v)
}
