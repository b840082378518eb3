package protocol

import (
	"encoding/json"
	"fmt"
)

// Event names delivered by Dispatch frames.
const (
	EventReady                    = "READY"
	EventResumed                  = "RESUMED"
	EventChannelCreate            = "CHANNEL_CREATE"
	EventChannelUpdate            = "CHANNEL_UPDATE"
	EventChannelDelete            = "CHANNEL_DELETE"
	EventChannelPinsUpdate        = "CHANNEL_PINS_UPDATE"
	EventGuildCreate              = "GUILD_CREATE"
	EventGuildUpdate              = "GUILD_UPDATE"
	EventGuildDelete              = "GUILD_DELETE"
	EventGuildBanAdd              = "GUILD_BAN_ADD"
	EventGuildBanRemove           = "GUILD_BAN_REMOVE"
	EventGuildEmojisUpdate        = "GUILD_EMOJIS_UPDATE"
	EventGuildIntegrationsUpdate  = "GUILD_INTEGRATIONS_UPDATE"
	EventGuildMemberAdd           = "GUILD_MEMBER_ADD"
	EventGuildMemberRemove        = "GUILD_MEMBER_REMOVE"
	EventGuildMemberUpdate        = "GUILD_MEMBER_UPDATE"
	EventGuildMembersChunk        = "GUILD_MEMBERS_CHUNK"
	EventGuildRoleCreate          = "GUILD_ROLE_CREATE"
	EventGuildRoleUpdate          = "GUILD_ROLE_UPDATE"
	EventGuildRoleDelete          = "GUILD_ROLE_DELETE"
	EventMessageCreate            = "MESSAGE_CREATE"
	EventMessageUpdate            = "MESSAGE_UPDATE"
	EventMessageDelete            = "MESSAGE_DELETE"
	EventMessageDeleteBulk        = "MESSAGE_DELETE_BULK"
	EventMessageReactionAdd       = "MESSAGE_REACTION_ADD"
	EventMessageReactionRemove    = "MESSAGE_REACTION_REMOVE"
	EventMessageReactionRemoveAll = "MESSAGE_REACTION_REMOVE_ALL"
	EventPresenceUpdate           = "PRESENCE_UPDATE"
	EventTypingStart              = "TYPING_START"
	EventUserUpdate               = "USER_UPDATE"
	EventVoiceStateUpdate         = "VOICE_STATE_UPDATE"
	EventVoiceServerUpdate        = "VOICE_SERVER_UPDATE"
	EventWebhooksUpdate           = "WEBHOOKS_UPDATE"
)

// Event is one application-level event decoded from a Dispatch frame.
// It is consumed exactly once by bus dispatch and has no identity beyond
// that single delivery. Fields are accessed by explicit key lookup so a
// missing field is a visible ok=false, not a silent zero.
type Event struct {
	Type   string
	Seq    int64
	Fields map[string]any
}

// EventFromFrame decodes a Dispatch frame into an Event.
func EventFromFrame(f *Frame) (*Event, error) {
	if f.Op != OpDispatch {
		return nil, fmt.Errorf("frame is %s, not dispatch", f.Op)
	}
	if f.Event == "" {
		return nil, fmt.Errorf("dispatch frame missing event name")
	}

	fields := make(map[string]any)
	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, &fields); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", f.Event, err)
		}
	}

	return &Event{
		Type:   f.Event,
		Seq:    f.Sequence(),
		Fields: fields,
	}, nil
}

// Str returns the named payload field as a string.
func (e *Event) Str(key string) (string, bool) {
	v, ok := e.Fields[key].(string)
	return v, ok
}

// Int returns the named payload field as an int64. JSON numbers decode
// as float64, so the value is converted.
func (e *Event) Int(key string) (int64, bool) {
	switch v := e.Fields[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}

// Document returns the named payload field as a nested document.
func (e *Event) Document(key string) (map[string]any, bool) {
	v, ok := e.Fields[key].(map[string]any)
	return v, ok
}
