package protocol

import (
	"errors"
	"fmt"
	"io"
	"math"
)

var (
	// ErrProtocol marks a malformed or truncated frame. The connection it was
	// read from is no longer framed and must be treated as disconnected.
	ErrProtocol = errors.New("protocol error")

	// ErrOversized marks a frame whose declared content length exceeded the
	// reader's limit.
	ErrOversized = errors.New("oversized payload")
)

// OversizedError is returned by Decoder.Decode for a frame whose declared
// payload is too large. The payload has not been read yet.
type OversizedError struct {
	Header Header
	Max    uint64
}

func (e *OversizedError) Error() string {
	return fmt.Sprintf("%s: %s declared %d bytes, max %d", ErrOversized, e.Header.Code, e.Header.ContentLength, e.Max)
}

func (e *OversizedError) Is(target error) bool { return target == ErrOversized }

// ReadHeader reads exactly one header from r. A clean EOF before any header
// byte is returned as io.EOF; everything else short is ErrProtocol.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF {
			return Header{}, io.EOF
		}
		return Header{}, fmt.Errorf("%w: read header: %v", ErrProtocol, err)
	}
	var h Header
	if err := h.UnmarshalBinary(buf[:]); err != nil {
		return Header{}, err
	}
	return h, nil
}

// ReadPayload reads exactly n payload bytes from r.
func ReadPayload(r io.Reader, n uint64) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: read payload: %v", ErrProtocol, err)
	}
	return buf, nil
}

// Discard consumes exactly n bytes from r without retaining them.
func Discard(r io.Reader, n uint64) error {
	if n == 0 {
		return nil
	}
	if n > math.MaxInt64 {
		return fmt.Errorf("%w: cannot discard %d bytes", ErrProtocol, n)
	}
	copied, err := io.CopyN(io.Discard, r, int64(n))
	if err != nil {
		return fmt.Errorf("%w: discarded %d of %d bytes: %v", ErrProtocol, copied, n, err)
	}
	return nil
}

// Write sends e to w as a single write so concurrent frames never interleave
// on a shared writer.
func Write(w io.Writer, e Event) error {
	frame, _ := e.MarshalBinary()
	_, err := w.Write(frame)
	return err
}

// Decoder reads events from a byte stream in two phases: header first, then
// a payload whose size is checked against Max before anything is allocated.
type Decoder struct {
	r   io.Reader
	max uint64

	// skip is the payload of the last oversized frame, still unread.
	skip uint64
}

// NewDecoder returns a Decoder that rejects payloads larger than max.
// A zero max disables the limit.
func NewDecoder(r io.Reader, max uint64) *Decoder {
	return &Decoder{r: r, max: max}
}

// Decode reads the next event. An *OversizedError is returned as soon as the
// header is read; the payload is discarded by the next call to Decode, which
// keeps the stream aligned. Any other error is terminal.
func (d *Decoder) Decode() (Event, error) {
	if d.skip > 0 {
		n := d.skip
		d.skip = 0
		if err := Discard(d.r, n); err != nil {
			return Event{}, err
		}
	}
	h, err := ReadHeader(d.r)
	if err != nil {
		return Event{}, err
	}
	if d.max > 0 && h.ContentLength > d.max {
		d.skip = h.ContentLength
		return Event{}, &OversizedError{Header: h, Max: d.max}
	}
	content, err := ReadPayload(d.r, h.ContentLength)
	if err != nil {
		return Event{}, err
	}
	return Event{Code: h.Code, Originator: int(h.Originator), Content: content}, nil
}
