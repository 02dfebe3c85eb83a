package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/yndnr/entmesh-go/internal/core/domain"
)

// Frame constants.
const (
	// headerSize is the size of the frame header: length (4) + crc (4).
	headerSize = 8

	// envelopeSize is type (1) + flags (1) + txid (8).
	envelopeSize = 10

	// minFrameSize is the smallest legal frame: header + envelope.
	minFrameSize = headerSize + envelopeSize

	// flagReplicate marks an operation the passive must apply before the
	// active executes it.
	flagReplicate = 0x01
)

// Errors for message framing.
var (
	ErrCorruptFrame     = errors.New("wire: corrupt frame")
	ErrChecksumMismatch = errors.New("wire: checksum mismatch")
	ErrInvalidType      = errors.New("wire: invalid message type")
	ErrStringTooLong    = errors.New("wire: string exceeds 65535 bytes")
)

// Encode serializes a message into one self-describing frame.
func Encode(m *Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("wire: message is nil")
	}
	if _, ok := typeNames[m.Type]; !ok || m.Type == TypeUnspecified {
		return nil, ErrInvalidType
	}

	body, err := encodeBody(m)
	if err != nil {
		return nil, err
	}

	var flags byte
	if m.Replicate {
		flags |= flagReplicate
	}

	// Everything after the CRC field is covered by the CRC.
	covered := make([]byte, 0, envelopeSize+len(body))
	covered = append(covered, byte(m.Type), flags)
	covered = binary.BigEndian.AppendUint64(covered, m.TransactionID)
	covered = append(covered, body...)

	out := make([]byte, 0, headerSize+len(covered))
	out = binary.BigEndian.AppendUint32(out, uint32(len(covered)+4))
	out = binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(covered))
	out = append(out, covered...)
	return out, nil
}

// Decode parses one frame back into a message.
func Decode(frame []byte) (*Message, error) {
	if len(frame) < minFrameSize {
		return nil, ErrCorruptFrame
	}

	length := binary.BigEndian.Uint32(frame[:4])
	if int(length) != len(frame)-4 {
		return nil, ErrCorruptFrame
	}

	wantCRC := binary.BigEndian.Uint32(frame[4:8])
	covered := frame[8:]
	if crc32.ChecksumIEEE(covered) != wantCRC {
		return nil, ErrChecksumMismatch
	}

	t := Type(covered[0])
	if _, ok := typeNames[t]; !ok || t == TypeUnspecified {
		return nil, ErrInvalidType
	}

	m := &Message{
		Type:          t,
		Replicate:     covered[1]&flagReplicate != 0,
		TransactionID: binary.BigEndian.Uint64(covered[2:10]),
	}

	r := &reader{buf: covered[envelopeSize:]}
	if err := decodeBody(m, r); err != nil {
		return nil, err
	}
	if r.rem() != 0 {
		return nil, ErrCorruptFrame
	}
	return m, nil
}

func encodeBody(m *Message) ([]byte, error) {
	w := &writer{}

	switch m.Type {
	case TypeCreate, TypeSyncEntityStart:
		w.str(m.EntityClass)
		w.str(m.EntityName)
		w.u64(m.Version)
		w.bytes(m.Payload)

	case TypeDestroy, TypeSyncEntityEnd,
		TypeAcquireWriteLock, TypeReleaseWriteLock, TypeRestoreWriteLock:
		w.str(m.EntityClass)
		w.str(m.EntityName)

	case TypeFetch:
		w.str(m.EntityClass)
		w.str(m.EntityName)
		w.u64(m.ClientInstanceID)
		w.u64(m.Version)

	case TypeRelease:
		w.str(m.EntityClass)
		w.str(m.EntityName)
		w.u64(m.ClientInstanceID)

	case TypeInvoke, TypeReconnect:
		w.str(m.EntityClass)
		w.str(m.EntityName)
		w.u64(m.ClientInstanceID)
		w.bytes(m.Payload)

	case TypeSyncEntityKeyStart, TypeSyncEntityKeyEnd:
		w.str(m.EntityClass)
		w.str(m.EntityName)
		w.u32(m.ConcurrencyKey)

	case TypeSyncPayload:
		w.str(m.EntityClass)
		w.str(m.EntityName)
		w.u32(m.ConcurrencyKey)
		w.bytes(m.Payload)

	case TypeAck:
		// Envelope only.

	case TypeComplete:
		if m.HasPayload {
			w.u8(1)
			w.bytes(m.Payload)
		} else {
			w.u8(0)
		}
		if m.Err != nil {
			w.u8(1)
			w.str(m.Err.Code)
			w.str(m.Err.EntityClass)
			w.str(m.Err.EntityName)
			w.str(m.Err.Message)
			w.str(m.Err.Details)
		} else {
			w.u8(0)
		}

	case TypeInvokeOnClient:
		w.u64(m.ClientInstanceID)
		w.bytes(m.Payload)
	}

	return w.buf, w.err
}

func decodeBody(m *Message, r *reader) error {
	switch m.Type {
	case TypeCreate, TypeSyncEntityStart:
		m.EntityClass = r.str()
		m.EntityName = r.str()
		m.Version = r.u64()
		m.Payload = r.bytes()

	case TypeDestroy, TypeSyncEntityEnd,
		TypeAcquireWriteLock, TypeReleaseWriteLock, TypeRestoreWriteLock:
		m.EntityClass = r.str()
		m.EntityName = r.str()

	case TypeFetch:
		m.EntityClass = r.str()
		m.EntityName = r.str()
		m.ClientInstanceID = r.u64()
		m.Version = r.u64()

	case TypeRelease:
		m.EntityClass = r.str()
		m.EntityName = r.str()
		m.ClientInstanceID = r.u64()

	case TypeInvoke, TypeReconnect:
		m.EntityClass = r.str()
		m.EntityName = r.str()
		m.ClientInstanceID = r.u64()
		m.Payload = r.bytes()

	case TypeSyncEntityKeyStart, TypeSyncEntityKeyEnd:
		m.EntityClass = r.str()
		m.EntityName = r.str()
		m.ConcurrencyKey = r.u32()

	case TypeSyncPayload:
		m.EntityClass = r.str()
		m.EntityName = r.str()
		m.ConcurrencyKey = r.u32()
		m.Payload = r.bytes()

	case TypeAck:
		// Envelope only.

	case TypeComplete:
		if r.u8() == 1 {
			m.HasPayload = true
			m.Payload = r.bytes()
		}
		if r.u8() == 1 {
			m.Err = &domain.EntityError{
				Code:        r.str(),
				EntityClass: r.str(),
				EntityName:  r.str(),
				Message:     r.str(),
				Details:     r.str(),
			}
		}

	case TypeInvokeOnClient:
		m.ClientInstanceID = r.u64()
		m.Payload = r.bytes()
	}

	return r.err
}

// writer accumulates body bytes, capturing the first encoding error.
type writer struct {
	buf []byte
	err error
}

func (w *writer) u8(v byte) {
	w.buf = append(w.buf, v)
}

func (w *writer) u32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *writer) u64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

func (w *writer) str(s string) {
	if len(s) > math.MaxUint16 {
		if w.err == nil {
			w.err = ErrStringTooLong
		}
		return
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// reader consumes body bytes with bounds checking. After the first
// failure every accessor returns a zero value and the error sticks.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) rem() int {
	return len(r.buf) - r.off
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.rem() < n {
		r.err = ErrCorruptFrame
		return nil
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out
}

func (r *reader) u8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) str() string {
	b := r.take(2)
	if b == nil {
		return ""
	}
	n := int(binary.BigEndian.Uint16(b))
	s := r.take(n)
	if s == nil {
		return ""
	}
	return string(s)
}

func (r *reader) bytes() []byte {
	b := r.take(4)
	if b == nil {
		return nil
	}
	n := int(binary.BigEndian.Uint32(b))
	if r.rem() < n {
		r.err = ErrCorruptFrame
		return nil
	}
	out := make([]byte, n)
	copy(out, r.take(n))
	return out
}
