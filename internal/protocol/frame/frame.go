package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

const (
	HeaderLen     = 5
	MaxPayloadLen = 0xFFFF

	DefaultStartMarker byte = 0x1A
	DefaultKind        byte = 0x01
)

var (
	ErrPayloadTooLarge     = errors.New("frame: payload too large")
	ErrUnsupportedSeverity = errors.New("frame: unsupported severity")
	ErrEmptyInput          = errors.New("frame: empty input")
	ErrMalformedHeader     = errors.New("frame: malformed header")
	ErrLengthMismatch      = errors.New("frame: length mismatch")
	ErrInvalidEncoding     = errors.New("frame: payload is not valid utf-8")
)

// Header is the fixed 5-byte wire header.
type Header struct {
	Marker byte
	Length uint16
	Kind   byte
	Code   byte
}

// Record is one decoded log line.
type Record struct {
	Severity Severity
	Payload  string
}

// Layout holds the marker constants a device speaks. Offsets are fixed:
// marker at 0, length at 1-2, kind at 3, severity at 4.
type Layout struct {
	StartMarker byte
	Kind        byte
}

func DefaultLayout() Layout {
	return Layout{StartMarker: DefaultStartMarker, Kind: DefaultKind}
}

// Encode uses the default layout.
func Encode(r Record) ([]byte, error) {
	return DefaultLayout().Encode(r)
}

// Decode uses the default layout.
func Decode(b []byte) (Record, error) {
	return DefaultLayout().Decode(b)
}

// WriteRecord encodes r with the default layout and writes it in one call.
func WriteRecord(w io.Writer, r Record) error {
	b, err := Encode(r)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func (l Layout) Encode(r Record) ([]byte, error) {
	if len(r.Payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(r.Payload))
	}
	code, ok := r.Severity.code()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSeverity, r.Severity)
	}
	buf := make([]byte, HeaderLen+len(r.Payload))
	copy(buf, l.EncodeHeader(Header{
		Marker: l.StartMarker,
		Length: uint16(len(r.Payload)),
		Kind:   l.Kind,
		Code:   code,
	}))
	copy(buf[HeaderLen:], r.Payload)
	return buf, nil
}

func (l Layout) Decode(b []byte) (Record, error) {
	if len(b) == 0 {
		return Record{}, ErrEmptyInput
	}
	h, err := l.DecodeHeader(b)
	if err != nil {
		return Record{}, err
	}
	if len(b) != HeaderLen+int(h.Length) {
		return Record{}, fmt.Errorf("%w: declared=%d have=%d", ErrLengthMismatch, h.Length, len(b)-HeaderLen)
	}
	payload := b[HeaderLen:]
	if !utf8.Valid(payload) {
		return Record{}, ErrInvalidEncoding
	}
	return Record{Severity: severityFromCode(h.Code), Payload: string(payload)}, nil
}

func (l Layout) EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	buf[0] = h.Marker
	binary.BigEndian.PutUint16(buf[1:3], h.Length)
	buf[3] = h.Kind
	buf[4] = h.Code
	return buf
}

// DecodeHeader reads the first HeaderLen bytes of b and checks both markers.
func (l Layout) DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("%w: short header (%d bytes)", ErrMalformedHeader, len(b))
	}
	h := Header{
		Marker: b[0],
		Length: binary.BigEndian.Uint16(b[1:3]),
		Kind:   b[3],
		Code:   b[4],
	}
	if h.Marker != l.StartMarker || h.Kind != l.Kind {
		return Header{}, fmt.Errorf("%w: byte[0]=%02X byte[3]=%02X", ErrMalformedHeader, h.Marker, h.Kind)
	}
	return h, nil
}

// PayloadLen reads the declared payload length from a header that starts at
// b[0]. The caller guarantees len(b) >= 3.
func PayloadLen(b []byte) int {
	return int(binary.BigEndian.Uint16(b[1:3]))
}
