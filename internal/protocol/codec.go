package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMalformed reports that buffered bytes can never parse into a frame.
// The decoder discards the bad buffer; the caller should drop and log, not
// terminate its read loop.
var ErrMalformed = errors.New("malformed frame")

// Encode serializes a frame to its wire bytes.
func Encode(f *Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encoding %s frame: %w", f.Op, err)
	}
	return data, nil
}

// Decoder assembles frames from socket reads. A single read may carry a
// byte fragment of a larger frame, or more than one frame; Feed buffers
// whatever arrives and Next yields complete frames as they become
// parseable.
//
// Not safe for concurrent use. The connection owns one Decoder and feeds
// it from its single reader loop.
type Decoder struct {
	buf bytes.Buffer
}

// Feed appends raw bytes from the socket to the decode buffer.
func (d *Decoder) Feed(p []byte) {
	d.buf.Write(p)
}

// Buffered reports how many undecoded bytes are pending.
func (d *Decoder) Buffered() int {
	return d.buf.Len()
}

// Next returns the next complete frame from the buffer.
//
// It distinguishes three outcomes: (frame, nil) when a complete frame was
// parsed and consumed, (nil, nil) when the buffer holds only a fragment and
// more bytes are needed, and (nil, ErrMalformed) when the buffer cannot
// parse; the malformed bytes are discarded so the next Feed starts clean.
func (d *Decoder) Next() (*Frame, error) {
	data := d.buf.Bytes()
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	var f Frame
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			// Syntactic prefix of a valid document. Wait for more bytes.
			return nil, nil
		}
		d.buf.Reset()
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	d.buf.Next(int(dec.InputOffset()))
	return &f, nil
}
