package stream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

func TestEncodeLayout(t *testing.T) {
	c := Chunk{KeyFrame: true, Timestamp: 0x0102030405060708, Payload: []byte("abc")}
	got := Encode(c)

	if len(got) != HeaderSize+3 {
		t.Fatalf("len = %d, want %d", len(got), HeaderSize+3)
	}
	if got[0] != 1 {
		t.Errorf("flag byte = %d, want 1", got[0])
	}
	wantTS := []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}
	if !bytes.Equal(got[1:9], wantTS) {
		t.Errorf("timestamp bytes = %x, want little-endian %x", got[1:9], wantTS)
	}
	if string(got[9:]) != "abc" {
		t.Errorf("payload = %q", got[9:])
	}
}

func TestDecode(t *testing.T) {
	header := func(flag byte, ts uint64) []byte {
		b := make([]byte, HeaderSize)
		b[0] = flag
		binary.LittleEndian.PutUint64(b[1:], ts)
		return b
	}

	tests := []struct {
		name    string
		data    []byte
		want    Chunk
		wantErr error
	}{
		{
			name: "delta frame",
			data: append(header(0, 42), 'x', 'y'),
			want: Chunk{Timestamp: 42, Payload: []byte("xy")},
		},
		{
			name: "keyframe without payload",
			data: header(1, 7),
			want: Chunk{KeyFrame: true, Timestamp: 7, Payload: []byte{}},
		},
		{
			name:    "short",
			data:    []byte{1, 2, 3},
			wantErr: ErrShortChunk,
		},
		{
			name:    "bad flag",
			data:    header(9, 1),
			wantErr: ErrBadFlag,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.data)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got.KeyFrame != tt.want.KeyFrame || got.Timestamp != tt.want.Timestamp || !bytes.Equal(got.Payload, tt.want.Payload) {
				t.Errorf("Decode() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNewChunkTimestamp(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)
	c := NewChunk(false, ts, nil)
	if !c.Time().Equal(ts) {
		t.Errorf("Time() = %v, want %v", c.Time(), ts)
	}
	if Micros(time.Unix(-5, 0)) != 0 {
		t.Error("negative times should clamp to 0")
	}
}

func TestUnmarshalBinary(t *testing.T) {
	src := Chunk{KeyFrame: true, Timestamp: 99, Payload: []byte{1, 2}}
	data, _ := src.MarshalBinary()

	var dst Chunk
	if err := dst.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary() error = %v", err)
	}
	if !dst.KeyFrame || dst.Timestamp != 99 || !bytes.Equal(dst.Payload, src.Payload) {
		t.Errorf("got %+v", dst)
	}
}
