// Package stream carries encoded frames to a remote inference endpoint over
// a persistent binary websocket.
//
// Each websocket message is one chunk:
//
//	[1 byte isKeyFrame][8 bytes timestamp µs, little-endian][payload]
package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// HeaderSize is the fixed chunk header length.
const HeaderSize = 9

// ErrShortChunk is returned when decoding fewer than HeaderSize bytes.
var ErrShortChunk = errors.New("stream: chunk shorter than header")

// ErrBadFlag is returned when the keyframe byte is neither 0 nor 1.
var ErrBadFlag = errors.New("stream: invalid keyframe flag")

// Chunk is one encoded frame on the wire.
type Chunk struct {
	KeyFrame  bool
	Timestamp uint64 // microseconds
	Payload   []byte
}

// NewChunk builds a chunk stamped with t.
func NewChunk(keyFrame bool, t time.Time, payload []byte) Chunk {
	return Chunk{KeyFrame: keyFrame, Timestamp: Micros(t), Payload: payload}
}

// Micros converts t to the wire timestamp.
func Micros(t time.Time) uint64 {
	us := t.UnixMicro()
	if us < 0 {
		return 0
	}
	return uint64(us)
}

// Time converts the wire timestamp back to a time.Time.
func (c Chunk) Time() time.Time {
	return time.UnixMicro(int64(c.Timestamp))
}

// Len returns the encoded size of c.
func (c Chunk) Len() int {
	return HeaderSize + len(c.Payload)
}

// MarshalBinary encodes c into the wire format.
func (c Chunk) MarshalBinary() ([]byte, error) {
	return Encode(c), nil
}

// UnmarshalBinary decodes the wire format into c. The payload aliases data.
func (c *Chunk) UnmarshalBinary(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}

// Encode writes c into a new buffer.
func Encode(c Chunk) []byte {
	buf := make([]byte, c.Len())
	if c.KeyFrame {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint64(buf[1:HeaderSize], c.Timestamp)
	copy(buf[HeaderSize:], c.Payload)
	return buf
}

// Decode parses one chunk. The returned payload aliases data.
func Decode(data []byte) (Chunk, error) {
	if len(data) < HeaderSize {
		return Chunk{}, fmt.Errorf("%w: %d bytes", ErrShortChunk, len(data))
	}
	if data[0] > 1 {
		return Chunk{}, fmt.Errorf("%w: 0x%02x", ErrBadFlag, data[0])
	}
	return Chunk{
		KeyFrame:  data[0] == 1,
		Timestamp: binary.LittleEndian.Uint64(data[1:HeaderSize]),
		Payload:   data[HeaderSize:],
	}, nil
}
