// Package wire implements the binary envelope exchanged between peers.
//
// An envelope is a flat record: a payload tag byte, three length-prefixed
// uuid strings, a millisecond timestamp, the sender's source endpoint in
// canonical textual form, and one of three payloads (text, file, ack).
// Encoding is deterministic; decoding fails closed on truncated or
// malformed input and never panics.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Payload tag bytes on the wire.
const (
	tagText byte = 1
	tagFile byte = 2
	tagAck  byte = 3
)

// maxStringLen bounds length-prefixed strings (uuids, endpoints, file names).
const maxStringLen = math.MaxUint16

var (
	// ErrTruncated indicates the input ended before the envelope did.
	ErrTruncated = errors.New("wire: truncated envelope")
	// ErrUnknownPayload indicates an unrecognised payload tag.
	ErrUnknownPayload = errors.New("wire: unknown payload tag")
	// ErrNoPayload indicates an envelope without a payload was given to Encode.
	ErrNoPayload = errors.New("wire: envelope has no payload")
	// ErrStringTooLong indicates a string field exceeds the 16-bit length prefix.
	ErrStringTooLong = errors.New("wire: string field too long")
)

// Payload is the tagged union carried by an envelope: exactly one of
// TextPayload, FilePayload or AckPayload.
type Payload interface {
	isPayload()
}

// TextPayload carries a chat text message.
type TextPayload struct {
	Text string
}

// FilePayload carries a named file body.
type FilePayload struct {
	Name string
	Data []byte
}

// AckPayload acknowledges receipt of an earlier message.
type AckPayload struct {
	MessageUUID string
}

func (TextPayload) isPayload() {}
func (FilePayload) isPayload() {}
func (AckPayload) isPayload()  {}

// Envelope is the unit of exchange between peers.
type Envelope struct {
	UUID           string
	SenderUUID     string
	RoomUUID       string
	TimestampMilli int64
	SourceEndpoint string
	Payload        Payload
}

// Encode serialises the envelope. It fails only on envelopes that cannot be
// represented (missing payload, oversized string fields); it performs no
// semantic validation.
func Encode(e *Envelope) ([]byte, error) {
	var tag byte
	switch e.Payload.(type) {
	case TextPayload:
		tag = tagText
	case FilePayload:
		tag = tagFile
	case AckPayload:
		tag = tagAck
	case nil:
		return nil, ErrNoPayload
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownPayload, e.Payload)
	}

	buf := []byte{tag}
	var err error
	for _, s := range []string{e.UUID, e.SenderUUID, e.RoomUUID} {
		if buf, err = appendString(buf, s); err != nil {
			return nil, err
		}
	}
	buf = binary.BigEndian.AppendUint64(buf, uint64(e.TimestampMilli))
	if buf, err = appendString(buf, e.SourceEndpoint); err != nil {
		return nil, err
	}

	switch p := e.Payload.(type) {
	case TextPayload:
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(p.Text)))
		buf = append(buf, p.Text...)
	case FilePayload:
		if buf, err = appendString(buf, p.Name); err != nil {
			return nil, err
		}
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(p.Data)))
		buf = append(buf, p.Data...)
	case AckPayload:
		if buf, err = appendString(buf, p.MessageUUID); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// Decode parses an envelope, failing closed on any malformed input.
func Decode(data []byte) (*Envelope, error) {
	if len(data) < 1 {
		return nil, ErrTruncated
	}
	tag := data[0]
	r := &reader{buf: data[1:]}

	e := &Envelope{}
	var err error
	if e.UUID, err = r.readString(); err != nil {
		return nil, err
	}
	if e.SenderUUID, err = r.readString(); err != nil {
		return nil, err
	}
	if e.RoomUUID, err = r.readString(); err != nil {
		return nil, err
	}
	ts, err := r.readUint64()
	if err != nil {
		return nil, err
	}
	e.TimestampMilli = int64(ts)
	if e.SourceEndpoint, err = r.readString(); err != nil {
		return nil, err
	}

	switch tag {
	case tagText:
		text, err := r.readBytes()
		if err != nil {
			return nil, err
		}
		e.Payload = TextPayload{Text: string(text)}
	case tagFile:
		name, err := r.readString()
		if err != nil {
			return nil, err
		}
		body, err := r.readBytes()
		if err != nil {
			return nil, err
		}
		e.Payload = FilePayload{Name: name, Data: body}
	case tagAck:
		acked, err := r.readString()
		if err != nil {
			return nil, err
		}
		e.Payload = AckPayload{MessageUUID: acked}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownPayload, tag)
	}

	if len(r.buf) != 0 {
		return nil, fmt.Errorf("wire: %d trailing bytes after envelope", len(r.buf))
	}
	return e, nil
}

// PeekMessageID decodes just enough of a raw frame to label it with a short
// message id for diagnostics. It reports false for undecodable frames.
func PeekMessageID(data []byte) (string, bool) {
	e, err := Decode(data)
	if err != nil {
		return "", false
	}
	if len(e.UUID) >= 8 {
		return e.UUID[:8], true
	}
	return e.UUID, true
}

func appendString(buf []byte, s string) ([]byte, error) {
	if len(s) > maxStringLen {
		return nil, ErrStringTooLong
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...), nil
}

type reader struct {
	buf []byte
}

func (r *reader) readString() (string, error) {
	if len(r.buf) < 2 {
		return "", ErrTruncated
	}
	n := int(binary.BigEndian.Uint16(r.buf[:2]))
	r.buf = r.buf[2:]
	if len(r.buf) < n {
		return "", ErrTruncated
	}
	s := string(r.buf[:n])
	r.buf = r.buf[n:]
	return s, nil
}

func (r *reader) readBytes() ([]byte, error) {
	if len(r.buf) < 4 {
		return nil, ErrTruncated
	}
	n := int(binary.BigEndian.Uint32(r.buf[:4]))
	r.buf = r.buf[4:]
	if len(r.buf) < n {
		return nil, ErrTruncated
	}
	out := make([]byte, n)
	copy(out, r.buf[:n])
	r.buf = r.buf[n:]
	return out, nil
}

func (r *reader) readUint64() (uint64, error) {
	if len(r.buf) < 8 {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint64(r.buf[:8])
	r.buf = r.buf[8:]
	return v, nil
}
