package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Embed color palette for status messages.
const (
	ColorInfo    = 0x7289da
	ColorWarning = 0xfaa61a
	ColorError   = 0xf04747
)

// Gateway is the response of the gateway bootstrap endpoint.
type Gateway struct {
	URL string `json:"url"`
}

// GatewayBot is the bot-scoped bootstrap response, including the
// recommended shard count.
type GatewayBot struct {
	URL    string `json:"url"`
	Shards int    `json:"shards"`
}

// Channel describes a text or DM channel.
type Channel struct {
	ID        string `json:"id"`
	Type      int    `json:"type"`
	Name      string `json:"name,omitempty"`
	GuildID   string `json:"guild_id,omitempty"`
	Recipient string `json:"recipient_id,omitempty"`
}

// EmbedField is one field of a rich embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Embed is a rich message embed.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

// MessageData is the request body for message creation.
type MessageData struct {
	Content string `json:"content,omitempty"`
	TTS     bool   `json:"tts,omitempty"`
	Embed   *Embed `json:"embed,omitempty"`
}

// Message is a created message as returned by the API.
type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

// GetGateway fetches the public gateway URL.
func (c *Client) GetGateway(ctx context.Context) (*Gateway, error) {
	var g Gateway
	if err := c.do(ctx, http.MethodGet, "/gateway", "gateway", nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// GetGatewayBot fetches the bot-scoped gateway URL and recommended shards.
func (c *Client) GetGatewayBot(ctx context.Context) (*GatewayBot, error) {
	var g GatewayBot
	if err := c.do(ctx, http.MethodGet, "/gateway/bot", "gateway_bot", nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// GetChannel fetches channel metadata by ID.
func (c *Client) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	var ch Channel
	if err := c.do(ctx, http.MethodGet, "/channels/"+channelID, "channel", nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// CreateMessage posts a message in the given channel.
func (c *Client) CreateMessage(ctx context.Context, channelID string, data MessageData) (*Message, error) {
	var msg Message
	path := "/channels/" + channelID + "/messages"
	if err := c.do(ctx, http.MethodPost, path, "create_message", data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// CreateDM opens (or reuses) a direct-message channel with the user.
func (c *Client) CreateDM(ctx context.Context, userID string) (*Channel, error) {
	var ch Channel
	body := map[string]string{"recipient_id": userID}
	if err := c.do(ctx, http.MethodPost, "/users/@me/channels", "create_dm", body, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// UploadFile posts a file attachment to the channel as a multipart request.
func (c *Client) UploadFile(ctx context.Context, channelID, name string, r io.Reader) (*Message, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("copying file content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	url := c.cfg.BaseURL + "/channels/" + channelID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.cfg.Token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("X-Correlation-ID", uuid.New().String())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(http.MethodPost, "upload_file", 0, start)
		return nil, fmt.Errorf("uploading %s: %w", name, err)
	}
	defer resp.Body.Close()
	c.record(http.MethodPost, "upload_file", resp.StatusCode, start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}
	var msg Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	return &msg, nil
}

// SayOptions tunes convenience message sending.
type SayOptions struct {
	Mentions []string // User IDs to mention ahead of the content.
	TTS      bool
	Embed    *Embed
}

// Say posts content to a channel, prefixing any requested mentions.
// Failures are logged as warnings rather than returned: callbacks use
// Say for best-effort chatter and must not crash on a flaky send.
func (c *Client) Say(ctx context.Context, channelID, content string, opts SayOptions) *Message {
	if len(opts.Mentions) > 0 {
		var sb strings.Builder
		for _, id := range opts.Mentions {
			sb.WriteString("<@")
			sb.WriteString(id)
			sb.WriteString("> ")
		}
		content = sb.String() + content
	}
	msg, err := c.CreateMessage(ctx, channelID, MessageData{
		Content: content,
		TTS:     opts.TTS,
		Embed:   opts.Embed,
	})
	if err != nil {
		c.logger.Warn("say failed",
			slog.String("channel_id", channelID),
			slog.String("error", err.Error()))
		return nil
	}
	return msg
}

// Whisper sends content to a user's DM channel, creating it on demand.
// Like Say, failures are warnings.
func (c *Client) Whisper(ctx context.Context, userID, content string, opts SayOptions) *Message {
	ch, err := c.CreateDM(ctx, userID)
	if err != nil {
		c.logger.Warn("whisper failed to open dm",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return nil
	}
	return c.Say(ctx, ch.ID, content, opts)
}
