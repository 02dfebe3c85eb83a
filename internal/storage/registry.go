// Package storage defines the entity-record registry. A server process
// records every created entity (class, name, version, configuration) so
// a restarted process can re-materialize its entities; Destroy removes
// the record.
//
// Two backends exist: memory (sharded map, for pure in-process runs) and
// badgerstore (durable, optionally sealed at rest).
//
// @req RQ-0401
package storage

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/yndnr/entmesh-go/internal/core/domain"
)

// Registry persists entity records.
type Registry interface {
	// Put stores or overwrites the record for rec.Key().
	Put(rec domain.EntityRecord) error

	// Get returns the record for key; the bool reports existence.
	Get(key domain.EntityKey) (domain.EntityRecord, bool, error)

	// Delete removes the record for key. Deleting an absent record is
	// not an error.
	Delete(key domain.EntityKey) error

	// List returns all records, in no particular order.
	List() ([]domain.EntityRecord, error)

	// Close releases backend resources.
	Close() error
}

// ErrCorruptRecord is returned when a stored record cannot be decoded.
var ErrCorruptRecord = errors.New("storage: corrupt entity record")

// EncodeRecord serializes a record:
// [u16 class][u16 name][u64 version][u32 configuration]. Big-endian,
// same conventions as the operation frame codec.
func EncodeRecord(rec domain.EntityRecord) ([]byte, error) {
	if len(rec.ClassName) > math.MaxUint16 || len(rec.Name) > math.MaxUint16 {
		return nil, ErrCorruptRecord
	}
	buf := make([]byte, 0, 2+len(rec.ClassName)+2+len(rec.Name)+8+4+len(rec.Configuration))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(rec.ClassName)))
	buf = append(buf, rec.ClassName...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(rec.Name)))
	buf = append(buf, rec.Name...)
	buf = binary.BigEndian.AppendUint64(buf, rec.Version)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(rec.Configuration)))
	buf = append(buf, rec.Configuration...)
	return buf, nil
}

// DecodeRecord deserializes a record produced by EncodeRecord.
func DecodeRecord(data []byte) (domain.EntityRecord, error) {
	var rec domain.EntityRecord

	readString := func() (string, bool) {
		if len(data) < 2 {
			return "", false
		}
		n := int(binary.BigEndian.Uint16(data))
		data = data[2:]
		if len(data) < n {
			return "", false
		}
		s := string(data[:n])
		data = data[n:]
		return s, true
	}

	var ok bool
	if rec.ClassName, ok = readString(); !ok {
		return rec, ErrCorruptRecord
	}
	if rec.Name, ok = readString(); !ok {
		return rec, ErrCorruptRecord
	}
	if len(data) < 12 {
		return rec, ErrCorruptRecord
	}
	rec.Version = binary.BigEndian.Uint64(data)
	n := int(binary.BigEndian.Uint32(data[8:]))
	data = data[12:]
	if len(data) != n {
		return rec, ErrCorruptRecord
	}
	if n > 0 {
		rec.Configuration = append([]byte(nil), data...)
	}
	return rec, nil
}
