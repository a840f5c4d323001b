package api

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Frames are a 4-byte big-endian length prefix followed by one JSON
// document. The cap bounds a malformed or hostile peer; exceeding it is
// a transport error and the connection is torn down.
const MaxFrameSize = 4 << 20

// WriteFrame marshals v and writes one frame. Callers serialize writes
// per connection.
func WriteFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", len(body))
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadFrame reads one frame into v.
func ReadFrame(r io.Reader, v any) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("unmarshal frame: %w", err)
	}
	return nil
}
