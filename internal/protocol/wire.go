package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic bytes identify phpbridge-wire protocol frames.
var Magic = [2]byte{0x50, 0x42} // "PB"

// Version is the current protocol version.
const Version uint8 = 0x01

// FrameHeaderSize is the fixed size of a frame header in bytes.
const FrameHeaderSize = 14

// MaxPayloadSize bounds the payload ReadFrame accepts.
const MaxPayloadSize = 64 << 20

// Message types define the purpose of each frame.
const (
	TypeCall   uint8 = 0x01 // client → bridge: queue a call
	TypeResult uint8 = 0x02 // bridge → client: call result or call error
	TypeError  uint8 = 0x03 // bridge → client: frame could not be handled
	TypePing   uint8 = 0x04 // Health check (ping/pong)
	TypeClose  uint8 = 0x05 // Either: close the session
)

// Flags modify frame behavior.
const (
	FlagCBOR uint8 = 1 << 0 // Headers and payload are CBOR instead of msgpack
)

// Frame represents a single phpbridge-wire protocol frame.
type Frame struct {
	Type     uint8
	Flags    uint8
	StreamID uint16
	Headers  []byte // codec encoded
	Payload  []byte // codec encoded values
}

// TypeName returns a printable name for a frame type.
func TypeName(t uint8) string {
	switch t {
	case TypeCall:
		return "CALL"
	case TypeResult:
		return "RESULT"
	case TypeError:
		return "ERROR"
	case TypePing:
		return "PING"
	case TypeClose:
		return "CLOSE"
	}
	return fmt.Sprintf("0x%02x", t)
}

// WriteFrame encodes and writes a frame to the given writer.
func WriteFrame(w io.Writer, f *Frame) error {
	if len(f.Headers) > 1<<24-1 {
		return fmt.Errorf("frame headers too large: %d bytes", len(f.Headers))
	}

	header := make([]byte, FrameHeaderSize)
	header[0] = Magic[0]
	header[1] = Magic[1]
	header[2] = Version
	header[3] = f.Type
	header[4] = f.Flags
	binary.BigEndian.PutUint16(header[5:7], f.StreamID)

	// Header size as 3 bytes (big-endian uint24)
	hdrSize := len(f.Headers)
	header[7] = byte(hdrSize >> 16)
	header[8] = byte(hdrSize >> 8)
	header[9] = byte(hdrSize)

	binary.BigEndian.PutUint32(header[10:14], uint32(len(f.Payload)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if len(f.Headers) > 0 {
		if _, err := w.Write(f.Headers); err != nil {
			return fmt.Errorf("writing frame headers: %w", err)
		}
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return fmt.Errorf("writing frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads and decodes a frame from the given reader.
func ReadFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, FrameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("reading frame header: %w", err)
	}

	if header[0] != Magic[0] || header[1] != Magic[1] {
		return nil, fmt.Errorf("invalid magic bytes: 0x%02x%02x", header[0], header[1])
	}
	if header[2] != Version {
		return nil, fmt.Errorf("unsupported protocol version: %d", header[2])
	}

	f := &Frame{
		Type:     header[3],
		Flags:    header[4],
		StreamID: binary.BigEndian.Uint16(header[5:7]),
	}

	hdrSize := int(header[7])<<16 | int(header[8])<<8 | int(header[9])
	payloadSize := binary.BigEndian.Uint32(header[10:14])
	if payloadSize > MaxPayloadSize {
		return nil, fmt.Errorf("frame payload too large: %d bytes", payloadSize)
	}

	if hdrSize > 0 {
		f.Headers = make([]byte, hdrSize)
		if _, err := io.ReadFull(r, f.Headers); err != nil {
			return nil, fmt.Errorf("reading frame headers (%d bytes): %w", hdrSize, err)
		}
	}
	if payloadSize > 0 {
		f.Payload = make([]byte, payloadSize)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return nil, fmt.Errorf("reading frame payload (%d bytes): %w", payloadSize, err)
		}
	}

	return f, nil
}

// Codec returns the value codec selected by the frame flags.
func (f *Frame) Codec() Codec {
	return CodecForFlags(f.Flags)
}

// NewPingFrame creates a PING health check frame.
func NewPingFrame() *Frame {
	return &Frame{Type: TypePing, Payload: []byte("ping")}
}

// NewPongFrame creates a PONG response frame.
func NewPongFrame() *Frame {
	return &Frame{Type: TypePing, Payload: []byte("pong")}
}

// IsPing reports whether f is a ping that expects a pong.
func (f *Frame) IsPing() bool {
	return f.Type == TypePing && string(f.Payload) != "pong"
}

// NewCloseFrame creates a CLOSE frame.
func NewCloseFrame() *Frame {
	return &Frame{Type: TypeClose}
}

// NewErrorFrame creates an ERROR frame with a message.
func NewErrorFrame(streamID uint16, msg string) *Frame {
	return &Frame{Type: TypeError, StreamID: streamID, Payload: []byte(msg)}
}
