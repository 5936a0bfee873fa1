package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/whisper/automod/internal/action"
	"github.com/whisper/automod/internal/logging"
	"github.com/whisper/automod/internal/messaging"
	"github.com/whisper/automod/internal/metrics"
	"github.com/whisper/automod/internal/traces"
)

// Requester sends a request and waits for one reply. *messaging.NATSClient
// satisfies it.
type Requester interface {
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
}

// ChannelFinder resolves guild channels by name. *Directory satisfies it.
type ChannelFinder interface {
	FindChannel(ctx context.Context, guildID, name string) (action.Channel, bool, error)
}

// GatewayConfig holds command settings.
type GatewayConfig struct {
	// Timeout bounds each command round trip.
	Timeout time.Duration
}

// DefaultGatewayConfig returns sensible defaults.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{Timeout: 5 * time.Second}
}

// Gateway issues platform commands to the chat gateway.
type Gateway struct {
	req     Requester
	dir     ChannelFinder
	timeout time.Duration
}

// NewGateway creates a Gateway. dir may be nil, in which case no channel
// lookups succeed.
func NewGateway(req Requester, dir ChannelFinder, cfg GatewayConfig) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGatewayConfig().Timeout
	}
	return &Gateway{req: req, dir: dir, timeout: cfg.Timeout}
}

// Session binds the gateway to one message event. Capability predicates
// answer from the permission snapshot the event carries.
func (g *Gateway) Session(ev MessageEvent) *Session {
	return &Session{gw: g, ev: ev}
}

// Post sends text to a channel outside of any event.
func (g *Gateway) Post(ctx context.Context, ch action.Channel, text string) (action.Notice, error) {
	var reply CommandReply
	err := g.call(ctx, OpPostMessage, PostMessageCmd{
		RequestID: uuid.NewString(),
		ChannelID: ch.ID,
		Content:   text,
	}, &reply)
	if err != nil {
		return action.Notice{}, err
	}
	return action.Notice{ID: reply.NoticeID, Channel: ch}, nil
}

// DeleteMessage removes a message by id.
func (g *Gateway) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return g.call(ctx, OpDeleteMessage, DeleteMessageCmd{
		RequestID: uuid.NewString(),
		ChannelID: channelID,
		MessageID: messageID,
	}, nil)
}

// SendDirect sends a private message to a user.
func (g *Gateway) SendDirect(ctx context.Context, userID, text string) error {
	return g.call(ctx, OpSendDirect, SendDirectCmd{
		RequestID: uuid.NewString(),
		UserID:    userID,
		Content:   text,
	}, nil)
}

// call performs one command round trip. A reply with ok=false is returned as
// a *CommandError.
func (g *Gateway) call(ctx context.Context, op string, cmd any, out *CommandReply) (err error) {
	ctx, span := traces.StartSpan(ctx, "platform."+op, traces.Op(op))
	defer func() {
		traces.Fail(span, err)
		span.End()
	}()

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("platform: encode %s: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	raw, err := g.req.Request(ctx, messaging.PlatformSubject(op), data)
	metrics.PlatformLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("platform: %s: %w", op, err)
	}

	var reply CommandReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return fmt.Errorf("platform: decode %s reply: %w", op, err)
	}
	if err := reply.Err(op); err != nil {
		return err
	}
	if out != nil {
		*out = reply
	}
	return nil
}

// Session implements action.Session for one message event.
type Session struct {
	gw *Gateway
	ev MessageEvent
}

var _ action.Session = (*Session)(nil)

func (s *Session) Deletable(msg action.Message) bool {
	return msg.ID == s.ev.ID && s.ev.Deletable
}

func (s *Session) Delete(ctx context.Context, msg action.Message) error {
	return s.gw.DeleteMessage(ctx, msg.Channel.ID, msg.ID)
}

func (s *Session) PostNotice(ctx context.Context, ch action.Channel, text string) (action.Notice, error) {
	return s.gw.Post(ctx, ch, text)
}

func (s *Session) DeleteNotice(ctx context.Context, n action.Notice) error {
	return s.gw.DeleteMessage(ctx, n.Channel.ID, n.ID)
}

func (s *Session) Moderatable(m *action.Member) bool {
	return m != nil && s.ev.Member != nil && s.ev.Member.Moderatable && m.User.ID == s.ev.Author.ID
}

func (s *Session) Timeout(ctx context.Context, m *action.Member, d time.Duration, reason string) error {
	return s.gw.call(ctx, OpTimeoutMember, TimeoutMemberCmd{
		RequestID:  uuid.NewString(),
		GuildID:    s.ev.GuildID,
		UserID:     m.User.ID,
		DurationMs: d.Milliseconds(),
		Reason:     reason,
	}, nil)
}

func (s *Session) Kickable(m *action.Member) bool {
	return m != nil && s.ev.Member != nil && s.ev.Member.Kickable && m.User.ID == s.ev.Author.ID
}

func (s *Session) Kick(ctx context.Context, m *action.Member, reason string) error {
	return s.gw.call(ctx, OpKickMember, KickMemberCmd{
		RequestID: uuid.NewString(),
		GuildID:   s.ev.GuildID,
		UserID:    m.User.ID,
		Reason:    reason,
	}, nil)
}

func (s *Session) SendPrivate(ctx context.Context, u action.User, text string) error {
	return s.gw.SendDirect(ctx, u.ID, text)
}

// FindChannelByName looks the channel up in the directory. Lookup errors are
// logged and reported as not found.
func (s *Session) FindChannelByName(ctx context.Context, g action.Guild, name string) (action.Channel, bool) {
	if s.gw.dir == nil {
		return action.Channel{}, false
	}
	ch, ok, err := s.gw.dir.FindChannel(ctx, g.ID, name)
	if err != nil {
		logging.FromContext(ctx).Warn("channel lookup failed", "guild_id", g.ID, "name", name, "err", err)
		return action.Channel{}, false
	}
	return ch, ok
}
