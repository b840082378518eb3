package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	seq := int64(5)
	in := &Frame{
		Op:    OpDispatch,
		Seq:   &seq,
		Event: EventMessageCreate,
		Data:  json.RawMessage(`{"content":"hi"}`),
	}

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var dec Decoder
	dec.Feed(data)
	out, err := dec.Next()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out == nil {
		t.Fatal("expected a complete frame")
	}

	if out.Op != in.Op {
		t.Errorf("op = %v, want %v", out.Op, in.Op)
	}
	if out.Sequence() != 5 {
		t.Errorf("sequence = %d, want 5", out.Sequence())
	}
	if out.Event != in.Event {
		t.Errorf("event = %q, want %q", out.Event, in.Event)
	}

	var payload struct {
		Content string `json:"content"`
	}
	if err := out.DecodePayload(&payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Content != "hi" {
		t.Errorf("content = %q, want hi", payload.Content)
	}
}

func TestDecoderPartialReads(t *testing.T) {
	wire := []byte(`{"op":0,"s":7,"t":"MESSAGE_CREATE","d":{"content":"split"}}`)

	var dec Decoder
	// Feed one byte at a time; every incomplete prefix must report
	// "try again", never malformed.
	for i, b := range wire[:len(wire)-1] {
		dec.Feed([]byte{b})
		f, err := dec.Next()
		if err != nil {
			t.Fatalf("byte %d: unexpected error: %v", i, err)
		}
		if f != nil {
			t.Fatalf("byte %d: frame completed early", i)
		}
	}

	dec.Feed(wire[len(wire)-1:])
	f, err := dec.Next()
	if err != nil {
		t.Fatalf("final byte: %v", err)
	}
	if f == nil {
		t.Fatal("expected complete frame after final byte")
	}
	if f.Sequence() != 7 || f.Event != EventMessageCreate {
		t.Errorf("got seq=%d event=%q", f.Sequence(), f.Event)
	}
}

func TestDecoderMultipleFramesInOneRead(t *testing.T) {
	var dec Decoder
	dec.Feed([]byte(`{"op":11}{"op":9}`))

	first, err := dec.Next()
	if err != nil || first == nil {
		t.Fatalf("first frame: %v, %v", first, err)
	}
	if first.Op != OpHeartbeatAck {
		t.Errorf("first op = %v, want heartbeat_ack", first.Op)
	}

	second, err := dec.Next()
	if err != nil || second == nil {
		t.Fatalf("second frame: %v, %v", second, err)
	}
	if second.Op != OpInvalidSession {
		t.Errorf("second op = %v, want invalid_session", second.Op)
	}

	third, err := dec.Next()
	if err != nil || third != nil {
		t.Fatalf("expected empty decoder, got %v, %v", third, err)
	}
}

func TestDecoderMalformedDiscardsBuffer(t *testing.T) {
	var dec Decoder
	dec.Feed([]byte(`{"op":"not a number"}`))

	if _, err := dec.Next(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
	if dec.Buffered() != 0 {
		t.Errorf("buffered = %d after malformed, want 0", dec.Buffered())
	}

	// The decoder recovers on the next well-formed frame.
	dec.Feed([]byte(`{"op":10,"d":{"heartbeat_interval":41250}}`))
	f, err := dec.Next()
	if err != nil || f == nil {
		t.Fatalf("recovery frame: %v, %v", f, err)
	}
	var hello HelloPayload
	if err := f.DecodePayload(&hello); err != nil {
		t.Fatalf("hello payload: %v", err)
	}
	if hello.HeartbeatIntervalMS != 41250 {
		t.Errorf("heartbeat_interval = %d, want 41250", hello.HeartbeatIntervalMS)
	}
}

func TestEventFromFrame(t *testing.T) {
	seq := int64(5)
	f := &Frame{
		Op:    OpDispatch,
		Seq:   &seq,
		Event: EventMessageCreate,
		Data:  json.RawMessage(`{"content":"hi","channel_id":"123","author":{"id":"42"}}`),
	}

	ev, err := EventFromFrame(f)
	if err != nil {
		t.Fatalf("event: %v", err)
	}
	if ev.Type != EventMessageCreate {
		t.Errorf("type = %q", ev.Type)
	}
	if ev.Seq != 5 {
		t.Errorf("seq = %d, want 5", ev.Seq)
	}

	if content, ok := ev.Str("content"); !ok || content != "hi" {
		t.Errorf("content = %q, %v", content, ok)
	}
	author, ok := ev.Document("author")
	if !ok {
		t.Fatal("author document missing")
	}
	if author["id"] != "42" {
		t.Errorf("author id = %v", author["id"])
	}
	if _, ok := ev.Str("missing"); ok {
		t.Error("missing field reported present")
	}
}

func TestEventFromFrameRejectsNonDispatch(t *testing.T) {
	if _, err := EventFromFrame(&Frame{Op: OpHello}); err == nil {
		t.Fatal("expected error for non-dispatch frame")
	}
	if _, err := EventFromFrame(&Frame{Op: OpDispatch}); err == nil {
		t.Fatal("expected error for dispatch frame without event name")
	}
	bad := &Frame{Op: OpDispatch, Event: EventMessageCreate, Data: json.RawMessage(`[1,2]`)}
	if _, err := EventFromFrame(bad); err == nil {
		t.Fatal("expected error for non-document payload")
	}
}
