// Package action carries a moderation decision out against a live chat
// session. The Executor is an escalation state machine: when a destructive
// action is not permitted it degrades one step down the KICK -> MUTE -> DELETE
// ladder, and it always reports the outcome it actually achieved.
package action

import (
	"context"
	"time"
)

// User identifies a chat platform account.
type User struct {
	ID       string
	Username string
	Tag      string // display form, e.g. "name#0001"
}

// Mention renders the platform mention for u.
func (u User) Mention() string {
	return "<@" + u.ID + ">"
}

// Guild is a chat server.
type Guild struct {
	ID   string
	Name string
}

// Channel is a channel within a guild. Text is false for channels that
// cannot receive posted messages (voice, category, forum).
type Channel struct {
	ID   string
	Name string
	Text bool
}

// Message is the message that triggered moderation.
type Message struct {
	ID      string
	Guild   Guild
	Channel Channel
	Author  User
}

// Member is the author's membership in the guild. A nil *Member means the
// author has no member record and can be neither timed out nor removed.
type Member struct {
	User     User
	JoinedAt time.Time
}

// Notice is a handle to a message the executor posted.
type Notice struct {
	ID      string
	Channel Channel
}

// Session is the set of platform capabilities the executor needs. Capability
// predicates reflect the bot's authority over the target.
type Session interface {
	Deletable(msg Message) bool
	Delete(ctx context.Context, msg Message) error

	PostNotice(ctx context.Context, ch Channel, text string) (Notice, error)
	DeleteNotice(ctx context.Context, n Notice) error

	Moderatable(m *Member) bool
	Timeout(ctx context.Context, m *Member, d time.Duration, reason string) error

	Kickable(m *Member) bool
	Kick(ctx context.Context, m *Member, reason string) error

	// SendPrivate may fail when the user does not accept private messages.
	// Callers treat its error as best-effort.
	SendPrivate(ctx context.Context, u User, text string) error

	FindChannelByName(ctx context.Context, g Guild, name string) (Channel, bool)
}

// Target bundles the session with the message and member being acted on.
type Target struct {
	Session Session
	Message Message
	Member  *Member
}
