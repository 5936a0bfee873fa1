// Package platform connects the moderator to the chat gateway. Inbound
// message events and guild channel snapshots arrive over NATS as JSON, and
// platform side effects are issued as NATS request/reply commands. All
// payloads follow a consistent envelope format with a type discriminator.
package platform

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/whisper/automod/internal/action"
)

// Event type constants published by the gateway.
const (
	TypeMessageCreate  = "message_create"
	TypeChannelsUpdate = "channels_update"
)

// Command ops. Each op is requested on messaging.PlatformSubject(op).
const (
	OpDeleteMessage = "delete_message"
	OpPostMessage   = "post_message"
	OpTimeoutMember = "timeout_member"
	OpKickMember    = "kick_member"
	OpSendDirect    = "send_direct"
)

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Envelope holds the event type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the raw bytes and extracts only the "type" field.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("platform: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("platform: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Gateway -> moderator events
// ---------------------------------------------------------------------------

// UserInfo describes a platform account.
type UserInfo struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Tag       string    `json:"tag"`
	Bot       bool      `json:"bot"`
	CreatedAt time.Time `json:"created_at"`
}

// MemberInfo is the author's guild membership plus the bot's authority over
// it, evaluated by the gateway when the event was emitted.
type MemberInfo struct {
	JoinedAt    *time.Time `json:"joined_at,omitempty"`
	Moderatable bool       `json:"moderatable"`
	Kickable    bool       `json:"kickable"`
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
}

// MessageEvent is emitted for every message created in a guild the bot can
// see. GuildID is empty for private messages.
type MessageEvent struct {
	Type        string       `json:"type"`
	ID          string       `json:"id"`
	GuildID     string       `json:"guild_id"`
	GuildName   string       `json:"guild_name"`
	ChannelID   string       `json:"channel_id"`
	ChannelName string       `json:"channel_name"`
	Author      UserInfo     `json:"author"`
	Member      *MemberInfo  `json:"member,omitempty"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
	Deletable   bool         `json:"deletable"`
	Timestamp   time.Time    `json:"timestamp"`
}

// User returns the author as an action user.
func (e MessageEvent) User() action.User {
	return action.User{ID: e.Author.ID, Username: e.Author.Username, Tag: e.Author.Tag}
}

// Message returns the event as the message the executor acts on.
func (e MessageEvent) Message() action.Message {
	return action.Message{
		ID:      e.ID,
		Guild:   action.Guild{ID: e.GuildID, Name: e.GuildName},
		Channel: action.Channel{ID: e.ChannelID, Name: e.ChannelName, Text: true},
		Author:  e.User(),
	}
}

// ActionMember returns the author's member handle, or nil when the event
// carries no member record.
func (e MessageEvent) ActionMember() *action.Member {
	if e.Member == nil {
		return nil
	}
	m := &action.Member{User: e.User()}
	if e.Member.JoinedAt != nil {
		m.JoinedAt = *e.Member.JoinedAt
	}
	return m
}

// ChannelInfo describes one guild channel.
type ChannelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"` // "text", "voice", "category", "forum", ...
}

// IsText reports whether messages can be posted to the channel.
func (c ChannelInfo) IsText() bool {
	return c.Kind == "text" || c.Kind == "announcement"
}

// ChannelsUpdate is a full snapshot of a guild's channels.
type ChannelsUpdate struct {
	Type     string        `json:"type"`
	GuildID  string        `json:"guild_id"`
	Channels []ChannelInfo `json:"channels"`
}

// ParseEvent decodes a gateway event and returns its type and concrete
// struct. Unknown event types are an error.
func ParseEvent(data []byte) (string, any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("platform: failed to parse event: %w", err)
	}

	var (
		ev  any
		err error
	)
	switch env.Type {
	case TypeMessageCreate:
		var m MessageEvent
		err = json.Unmarshal(env.Raw, &m)
		ev = m
	case TypeChannelsUpdate:
		var m ChannelsUpdate
		err = json.Unmarshal(env.Raw, &m)
		ev = m
	default:
		return env.Type, nil, fmt.Errorf("platform: unknown event type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("platform: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, ev, nil
}

// ---------------------------------------------------------------------------
// Moderator -> gateway commands
// ---------------------------------------------------------------------------

// DeleteMessageCmd removes a message.
type DeleteMessageCmd struct {
	RequestID string `json:"request_id"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// PostMessageCmd posts text to a channel.
type PostMessageCmd struct {
	RequestID string `json:"request_id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

// TimeoutMemberCmd suspends a member's ability to post.
type TimeoutMemberCmd struct {
	RequestID  string `json:"request_id"`
	GuildID    string `json:"guild_id"`
	UserID     string `json:"user_id"`
	DurationMs int64  `json:"duration_ms"`
	Reason     string `json:"reason"`
}

// KickMemberCmd removes a member from a guild.
type KickMemberCmd struct {
	RequestID string `json:"request_id"`
	GuildID   string `json:"guild_id"`
	UserID    string `json:"user_id"`
	Reason    string `json:"reason"`
}

// SendDirectCmd sends a private message to a user.
type SendDirectCmd struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
}

// CommandReply is the gateway's answer to every command.
type CommandReply struct {
	OK       bool   `json:"ok"`
	Code     string `json:"code,omitempty"`
	Error    string `json:"error,omitempty"`
	NoticeID string `json:"notice_id,omitempty"`
}

// Reply error codes the gateway may return.
const (
	CodeMissingPermissions = "missing_permissions"
	CodeUnknownMessage     = "unknown_message"
	CodeUnknownMember      = "unknown_member"
	CodeCannotMessageUser  = "cannot_message_user"
)

// CommandError is a command the gateway rejected.
type CommandError struct {
	Op      string
	Code    string
	Message string
}

func (e *CommandError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("platform: %s failed: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("platform: %s failed (%s): %s", e.Op, e.Code, e.Message)
}

// Err converts a rejected reply into a *CommandError.
func (r CommandReply) Err(op string) error {
	if r.OK {
		return nil
	}
	return &CommandError{Op: op, Code: r.Code, Message: r.Error}
}
