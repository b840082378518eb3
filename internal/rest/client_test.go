package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Token: "test-token"}, testLogger())
}

func TestGetGatewayBot(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gateway/bot" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bot test-token" {
			t.Errorf("authorization = %q", got)
		}
		if r.Header.Get("X-Correlation-ID") == "" {
			t.Error("missing correlation id header")
		}
		json.NewEncoder(w).Encode(GatewayBot{URL: "wss://gateway.example", Shards: 2})
	}))

	g, err := c.GetGatewayBot(context.Background())
	if err != nil {
		t.Fatalf("GetGatewayBot: %v", err)
	}
	if g.URL != "wss://gateway.example" || g.Shards != 2 {
		t.Errorf("unexpected response %+v", g)
	}
}

func TestCreateMessage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/channels/42/messages" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var data MessageData
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if data.Content != "hello" {
			t.Errorf("content = %q", data.Content)
		}
		json.NewEncoder(w).Encode(Message{ID: "1", ChannelID: "42", Content: data.Content})
	}))

	msg, err := c.CreateMessage(context.Background(), "42", MessageData{Content: "hello"})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if msg.ID != "1" || msg.ChannelID != "42" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestAPIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"message":"401: Unauthorized"}`)
	}))

	_, err := c.GetGateway(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Errorf("status = %d", apiErr.Status)
	}
	if !strings.Contains(apiErr.Body, "Unauthorized") {
		t.Errorf("body = %q", apiErr.Body)
	}
}

func TestAPIErrorMarksSpan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"message":"rate limited"}`)
	}))
	t.Cleanup(srv.Close)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	c := New(Config{BaseURL: srv.URL, Token: "test-token"}, testLogger(),
		WithTracer(tp.Tracer("test")))

	_, err := c.GetGateway(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "rest.gateway" {
		t.Errorf("span name = %q", span.Name())
	}
	if span.Status().Code != codes.Error {
		t.Errorf("span status = %v, want error", span.Status().Code)
	}
	if !strings.Contains(span.Status().Description, "429") {
		t.Errorf("span status description = %q", span.Status().Description)
	}
}

func TestSayPrefixesMentions(t *testing.T) {
	var got MessageData
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		json.NewEncoder(w).Encode(Message{ID: "1", ChannelID: "42", Content: got.Content})
	}))

	msg := c.Say(context.Background(), "42", "pong", SayOptions{Mentions: []string{"7", "9"}})
	if msg == nil {
		t.Fatal("Say returned nil on success")
	}
	if got.Content != "<@7> <@9> pong" {
		t.Errorf("content = %q", got.Content)
	}
}

func TestSaySwallowsFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	if msg := c.Say(context.Background(), "42", "pong", SayOptions{}); msg != nil {
		t.Errorf("expected nil message on failure, got %+v", msg)
	}
}

func TestWhisperResolvesDM(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/@me/channels":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["recipient_id"] != "u1" {
				t.Errorf("recipient_id = %q", body["recipient_id"])
			}
			json.NewEncoder(w).Encode(Channel{ID: "dm-1", Type: 1})
		case "/channels/dm-1/messages":
			var data MessageData
			json.NewDecoder(r.Body).Decode(&data)
			json.NewEncoder(w).Encode(Message{ID: "2", ChannelID: "dm-1", Content: data.Content})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	msg := c.Whisper(context.Background(), "u1", "psst", SayOptions{})
	if msg == nil {
		t.Fatal("Whisper returned nil on success")
	}
	if msg.ChannelID != "dm-1" {
		t.Errorf("channel = %q", msg.ChannelID)
	}
}

func TestUploadFile(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing multipart: %v", err)
		}
		f, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("reading form file: %v", err)
		}
		defer f.Close()
		if header.Filename != "notes.txt" {
			t.Errorf("filename = %q", header.Filename)
		}
		content, _ := io.ReadAll(f)
		if string(content) != "file body" {
			t.Errorf("content = %q", content)
		}
		json.NewEncoder(w).Encode(Message{ID: "3", ChannelID: "42"})
	}))

	msg, err := c.UploadFile(context.Background(), "42", "notes.txt", strings.NewReader("file body"))
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if msg.ID != "3" {
		t.Errorf("unexpected message %+v", msg)
	}
}
