package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/whisper/automod/internal/logging"
	"github.com/whisper/automod/internal/metrics"
	"github.com/whisper/automod/internal/moderation"
	"github.com/whisper/automod/internal/traces"
)

// Config holds executor settings.
type Config struct {
	Scheduler Scheduler
	// Now stamps mod-log entries.
	Now func() time.Time
	// CleanupTimeout bounds each deferred notice deletion.
	CleanupTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Scheduler:      TimerScheduler{},
		Now:            time.Now,
		CleanupTimeout: 5 * time.Second,
	}
}

// Outcome reports what an execution achieved.
type Outcome struct {
	Recommended moderation.Action
	Taken       moderation.Action
	// Path lists every state entered, starting with Recommended.
	Path []moderation.Action
	// Err is set when Taken is ERROR.
	Err error
}

// Degraded reports whether the executor fell back to a weaker action.
func (o Outcome) Degraded() bool {
	return len(o.Path) > 1
}

// Executor carries out moderation actions. It is safe for concurrent use;
// each Execute call keeps its own state.
type Executor struct {
	scheduler      Scheduler
	now            func() time.Time
	cleanupTimeout time.Duration
}

// NewExecutor creates an executor. Zero-valued config fields take defaults.
func NewExecutor(cfg Config) *Executor {
	def := DefaultConfig()
	if cfg.Scheduler == nil {
		cfg.Scheduler = def.Scheduler
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = def.CleanupTimeout
	}
	return &Executor{
		scheduler:      cfg.Scheduler,
		now:            cfg.Now,
		cleanupTimeout: cfg.CleanupTimeout,
	}
}

// execution is the state of one Execute call.
type execution struct {
	target    Target
	reasoning string
	deleted   bool
}

// Execute attempts the recommended action against t and returns the outcome.
// It never returns an error or panics: failures the handlers do not absorb
// are reported as an ERROR outcome with Err set.
func (e *Executor) Execute(ctx context.Context, recommended moderation.Action, t Target, reasoning string) (out Outcome) {
	out = Outcome{Recommended: recommended, Path: []moderation.Action{recommended}}
	log := logging.FromContext(ctx)

	ctx, span := traces.StartSpan(ctx, "action.Execute", traces.Action(string(recommended)))
	defer func() {
		span.SetAttributes(traces.Taken(string(out.Taken)))
		traces.Fail(span, out.Err)
		span.End()
	}()

	current := recommended
	defer func() {
		if r := recover(); r != nil {
			out.Taken = moderation.ActionError
			out.Err = fmt.Errorf("action: %s handler panicked: %v", current, r)
			log.Error("action handler panicked", "action", current, "panic", r)
		}
	}()

	if t.Session == nil {
		return e.fail(log, out, ErrNoSession)
	}
	if err := ctx.Err(); err != nil {
		return e.fail(log, out, fmt.Errorf("action: %w", err))
	}

	x := &execution{target: t, reasoning: reasoning}
	for steps := 0; ; steps++ {
		taken, err := e.dispatch(ctx, x, current)

		var de *degradeError
		if errors.As(err, &de) {
			next, ok := Degrade(current)
			if !ok || steps >= MaxDegradeSteps {
				return e.fail(log, out, err)
			}
			log.Warn("degrading action", "from", current, "to", next, "cause", de.cause)
			metrics.Degradations.WithLabelValues(string(current), string(next)).Inc()
			out.Path = append(out.Path, next)
			current = next
			continue
		}
		if err != nil {
			return e.fail(log, out, err)
		}

		out.Taken = taken
		return out
	}
}

func (e *Executor) fail(log *slog.Logger, out Outcome, err error) Outcome {
	log.Error("action failed", "recommended", out.Recommended, "err", err)
	out.Taken = moderation.ActionError
	out.Err = err
	return out
}

func (e *Executor) dispatch(ctx context.Context, x *execution, a moderation.Action) (moderation.Action, error) {
	switch a {
	case moderation.ActionAllow:
		return moderation.ActionAllow, nil
	case moderation.ActionCaptcha:
		return e.captcha(ctx, x), nil
	case moderation.ActionWarn:
		return e.warn(ctx, x), nil
	case moderation.ActionDelete:
		return e.delete(ctx, x), nil
	case moderation.ActionMute:
		return e.mute(ctx, x)
	case moderation.ActionKick:
		return e.kick(ctx, x)
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownAction, a)
	}
}

// captcha removes the message, asks the user to verify and holds them in a
// short timeout. Every step is best-effort.
func (e *Executor) captcha(ctx context.Context, x *execution) moderation.Action {
	t := x.target
	e.bestEffort(ctx, "captcha_delete", e.deleteMessage(ctx, x))
	e.bestEffort(ctx, "captcha_notice", e.postTimed(ctx, t.Session, t.Message.Channel, captchaNotice(t.Message.Author), captchaNoticeTTL))

	if t.Member != nil && t.Session.Moderatable(t.Member) {
		err := t.Session.Timeout(ctx, t.Member, CaptchaTimeout, "CAPTCHA verification required")
		e.bestEffort(ctx, "captcha_timeout", err)
	}
	return moderation.ActionCaptcha
}

func (e *Executor) warn(ctx context.Context, x *execution) moderation.Action {
	t := x.target
	err := e.postTimed(ctx, t.Session, t.Message.Channel, warnNotice(t.Message.Author, x.reasoning), warnNoticeTTL)
	e.bestEffort(ctx, "warn_notice", err)
	return moderation.ActionWarn
}

func (e *Executor) delete(ctx context.Context, x *execution) moderation.Action {
	t := x.target
	e.bestEffort(ctx, "delete_message", e.deleteMessage(ctx, x))
	e.bestEffort(ctx, "delete_notice", e.postTimed(ctx, t.Session, t.Message.Channel, deleteNotice(t.Message.Author), deleteNoticeTTL))
	e.bestEffort(ctx, "delete_dm", t.Session.SendPrivate(ctx, t.Message.Author, deletePrivate(t.Message.Guild, x.reasoning)))
	return moderation.ActionDelete
}

func (e *Executor) mute(ctx context.Context, x *execution) (moderation.Action, error) {
	t := x.target
	if err := e.deleteMessage(ctx, x); err != nil {
		return "", degrade(moderation.ActionMute, err)
	}
	if t.Member == nil || !t.Session.Moderatable(t.Member) {
		return "", degrade(moderation.ActionMute, ErrNotModeratable)
	}
	if err := t.Session.Timeout(ctx, t.Member, MuteDuration, moderationReason(x.reasoning)); err != nil {
		return "", degrade(moderation.ActionMute, fmt.Errorf("action: timeout: %w", err))
	}

	e.bestEffort(ctx, "mute_notice", e.postTimed(ctx, t.Session, t.Message.Channel, muteNotice(t.Message.Author, x.reasoning), muteNoticeTTL))
	e.bestEffort(ctx, "mute_dm", t.Session.SendPrivate(ctx, t.Message.Author, mutePrivate(t.Message.Guild, x.reasoning)))
	return moderation.ActionMute, nil
}

func (e *Executor) kick(ctx context.Context, x *execution) (moderation.Action, error) {
	t := x.target
	if err := e.deleteMessage(ctx, x); err != nil {
		return "", degrade(moderation.ActionKick, err)
	}
	if t.Member == nil || !t.Session.Kickable(t.Member) {
		return "", degrade(moderation.ActionKick, ErrNotKickable)
	}

	// The user can no longer be reached once removed.
	e.bestEffort(ctx, "kick_dm", t.Session.SendPrivate(ctx, t.Message.Author, kickPrivate(t.Message.Guild, x.reasoning)))

	if err := t.Session.Kick(ctx, t.Member, moderationReason(x.reasoning)); err != nil {
		return "", degrade(moderation.ActionKick, fmt.Errorf("action: kick: %w", err))
	}

	e.bestEffort(ctx, "kick_notice", e.postTimed(ctx, t.Session, t.Message.Channel, kickNotice(), kickNoticeTTL))
	e.notifyModLog(ctx, x)
	return moderation.ActionKick, nil
}

// notifyModLog records a removal in the guild's moderation-log channel, if
// it has one.
func (e *Executor) notifyModLog(ctx context.Context, x *execution) {
	t := x.target
	ch, ok := FindLogChannel(ctx, t.Session, t.Message.Guild)
	if !ok {
		logging.FromContext(ctx).Debug("no mod-log channel", "guild_id", t.Message.Guild.ID)
		return
	}
	_, err := t.Session.PostNotice(ctx, ch, modLogEntry(t.Message, x.reasoning, e.now()))
	e.bestEffort(ctx, "modlog", err)
}

// deleteMessage removes the triggering message once per execution.
func (e *Executor) deleteMessage(ctx context.Context, x *execution) error {
	t := x.target
	if x.deleted || !t.Session.Deletable(t.Message) {
		return nil
	}
	if err := t.Session.Delete(ctx, t.Message); err != nil {
		return fmt.Errorf("action: delete message: %w", err)
	}
	x.deleted = true
	return nil
}

// postTimed posts text to ch and schedules its removal after ttl.
func (e *Executor) postTimed(ctx context.Context, sess Session, ch Channel, text string, ttl time.Duration) error {
	n, err := sess.PostNotice(ctx, ch, text)
	if err != nil {
		return fmt.Errorf("action: post notice: %w", err)
	}

	log := logging.FromContext(ctx)
	e.scheduler.After(ttl, func() {
		cctx, cancel := context.WithTimeout(context.Background(), e.cleanupTimeout)
		defer cancel()
		if err := sess.DeleteNotice(cctx, n); err != nil {
			log.Debug("timed notice cleanup failed", "notice_id", n.ID, "err", err)
			metrics.BestEffortFailures.WithLabelValues("notice_cleanup").Inc()
		}
	})
	return nil
}

// bestEffort logs and discards err. Operations routed through here never
// change an outcome.
func (e *Executor) bestEffort(ctx context.Context, op string, err error) {
	if err == nil {
		return
	}
	logging.FromContext(ctx).Warn("best-effort step failed", "op", op, "err", err)
	metrics.BestEffortFailures.WithLabelValues(op).Inc()
}
