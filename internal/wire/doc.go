// Package wire defines the operation messages exchanged between client
// endpoints and server processes, and their binary framing.
//
// Every operation is a tagged message carrying a transaction ID, a
// replication flag, the target entity class and name, and per-type
// payload fields. Messages are immutable once decoded.
//
// Frame layout:
//
//	[length:4][crc32:4][type:1][flags:1][txid:8][body...]
//
// All integers are big-endian. Strings are encoded as a 2-byte length
// followed by UTF-8 bytes; variable byte payloads as a 4-byte length
// followed by the bytes. The CRC covers everything after the checksum
// field. The body layout per type is fixed, so any self-describing
// transport can reproduce operation boundaries.
//
// @req RQ-0201
// @design DS-0201
package wire
