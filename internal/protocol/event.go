// Package protocol implements the framed binary event protocol spoken between
// the chat server and its clients. Every message is a fixed-size header
// followed by exactly ContentLength payload bytes.
package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// HeaderSize is the encoded size of a Header in bytes:
// code uint32 | originator int32 | content length uint64, big-endian.
const HeaderSize = 16

// DefaultMaxContentLength bounds the payload the server accepts from a client.
const DefaultMaxContentLength = 1024

// ServerOriginator is the originator id used for events produced by the server.
const ServerOriginator = 0

type Code uint32

const (
	CodeUndefined Code = iota
	CodeConnectionFailed
	CodeOversizedContent
	CodeUsernameRequest
	CodeUsernameSubmit
	CodeUsernameAccepted
	CodeUsernameRejected
	CodeServerShutdown
	CodeUserList
	CodeUserJoin
	CodeUserLeave
	CodeMessage
)

var codeNames = [...]string{
	CodeUndefined:        "undefined",
	CodeConnectionFailed: "connection_failed",
	CodeOversizedContent: "oversized_content",
	CodeUsernameRequest:  "username_request",
	CodeUsernameSubmit:   "username_submit",
	CodeUsernameAccepted: "username_accepted",
	CodeUsernameRejected: "username_rejected",
	CodeServerShutdown:   "server_shutdown",
	CodeUserList:         "user_list",
	CodeUserJoin:         "user_join",
	CodeUserLeave:        "user_leave",
	CodeMessage:          "message",
}

func (c Code) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("code(%d)", uint32(c))
}

// Valid reports whether c is a defined code other than CodeUndefined.
func (c Code) Valid() bool {
	return c > CodeUndefined && c <= CodeMessage
}

// ServerOnly reports whether c may only be produced by the server. A client
// sending one of these codes is not trusted.
func (c Code) ServerOnly() bool {
	switch c {
	case CodeConnectionFailed, CodeOversizedContent, CodeUsernameRequest,
		CodeUsernameAccepted, CodeUsernameRejected, CodeServerShutdown,
		CodeUserList, CodeUserJoin:
		return true
	}
	return false
}

// Header is the fixed-size prefix of every frame.
type Header struct {
	Code          Code
	Originator    int32
	ContentLength uint64
}

func (h Header) MarshalBinary() ([]byte, error) {
	return h.AppendBinary(make([]byte, 0, HeaderSize))
}

func (h Header) AppendBinary(b []byte) ([]byte, error) {
	b = binary.BigEndian.AppendUint32(b, uint32(h.Code))
	b = binary.BigEndian.AppendUint32(b, uint32(h.Originator))
	b = binary.BigEndian.AppendUint64(b, h.ContentLength)
	return b, nil
}

func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) != HeaderSize {
		return fmt.Errorf("%w: header is %d bytes, want %d", ErrProtocol, len(data), HeaderSize)
	}
	h.Code = Code(binary.BigEndian.Uint32(data[0:4]))
	h.Originator = int32(binary.BigEndian.Uint32(data[4:8]))
	h.ContentLength = binary.BigEndian.Uint64(data[8:16])
	return nil
}

// Event is a single protocol message. Content may be empty.
type Event struct {
	Code       Code
	Originator int
	Content    []byte
}

// NewTextEvent builds an event whose content is the given text.
func NewTextEvent(code Code, originator int, text string) Event {
	return Event{Code: code, Originator: originator, Content: []byte(text)}
}

func (e Event) Header() Header {
	return Header{
		Code:          e.Code,
		Originator:    int32(e.Originator),
		ContentLength: uint64(len(e.Content)),
	}
}

// Text returns the content up to the first NUL byte. Clients written against
// C strings terminate their payloads with one.
func (e Event) Text() string {
	if i := bytes.IndexByte(e.Content, 0); i >= 0 {
		return string(e.Content[:i])
	}
	return string(e.Content)
}

// Encode returns the header and payload bytes for e.
func Encode(e Event) (header, payload []byte) {
	header, _ = e.Header().MarshalBinary()
	return header, e.Content
}

// MarshalBinary returns e as one contiguous frame.
func (e Event) MarshalBinary() ([]byte, error) {
	frame := make([]byte, 0, HeaderSize+len(e.Content))
	frame, _ = e.Header().AppendBinary(frame)
	return append(frame, e.Content...), nil
}

// EncodeUserList packs names as NUL-terminated strings placed back to back.
func EncodeUserList(names []string) []byte {
	var buf bytes.Buffer
	for _, name := range names {
		buf.WriteString(name)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// DecodeUserList is the inverse of EncodeUserList. A trailing name without a
// terminator is still returned.
func DecodeUserList(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	names := strings.Split(strings.TrimSuffix(string(content), "\x00"), "\x00")
	return names
}
