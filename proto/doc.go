// Package proto implements the protocol-340 ("1.12.2") wire details that
// sit on top of the generic framing provided by github.com/Tnze/go-mc/net:
// packet id tables for both directions, the legacy packed block position,
// item slots, raw NBT scanning, entity metadata, the server list status
// document, and the login-phase crypto (auth digest, AES/CFB8 streams,
// RSA secret exchange).
//
// Types here implement the go-mc packet.Field interfaces so they compose
// with pk.Marshal and Packet.Scan like the built-in field types.
package proto
