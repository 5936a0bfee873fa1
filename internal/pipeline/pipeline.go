// Package pipeline runs one message event through persistence lookups,
// classification, action execution, and bookkeeping.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/whisper/automod/internal/action"
	"github.com/whisper/automod/internal/features"
	"github.com/whisper/automod/internal/logging"
	"github.com/whisper/automod/internal/metrics"
	"github.com/whisper/automod/internal/moderation"
	"github.com/whisper/automod/internal/platform"
	"github.com/whisper/automod/internal/ratelimit"
	"github.com/whisper/automod/internal/store"
	"github.com/whisper/automod/internal/traces"
	"github.com/whisper/automod/internal/verify"
)

// Store is the persistence the pipeline needs. *store.Store satisfies it.
type Store interface {
	GetOrCreateUser(ctx context.Context, nu store.NewUser) (*store.User, error)
	GetOrCreateMember(ctx context.Context, userID int64, guildID string, joinedAt *time.Time) (*store.Member, error)
	RecentMessages(ctx context.Context, userID int64, guildID string, limit int) ([]store.Message, error)
	Warnings(ctx context.Context, userID int64, guildID string) ([]store.Warning, error)
	LogMessage(ctx context.Context, m store.Message) (store.Message, error)
	LogAction(ctx context.Context, a store.ModerationAction) (int64, error)
	AddWarning(ctx context.Context, userID int64, guildID string, actionID int64, reason, severity string) (int64, error)
	UpdateAverageRiskScore(ctx context.Context, userID int64) error
	SetCaptchaVerified(ctx context.Context, userID int64, verified bool) error
}

// Challenges issues and redeems verification codes. *verify.Store
// satisfies it.
type Challenges interface {
	Issue(ctx context.Context, guildID, userID string) (verify.Challenge, error)
	Redeem(ctx context.Context, guildID, userID, code string) error
	Cancel(ctx context.Context, guildID, userID string) error
}

// Limiter bounds verification attempts. *ratelimit.Limiter satisfies it.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
	Remaining(ctx context.Context, identifier string, rule ratelimit.Rule) (int, error)
	Reset(ctx context.Context, identifier string, rule ratelimit.Rule) error
}

// Executor carries out a recommended action. *action.Executor satisfies it.
type Executor interface {
	Execute(ctx context.Context, recommended moderation.Action, t action.Target, reasoning string) action.Outcome
}

// SessionFunc binds a platform session to one event. It must not return
// nil for events that carry a verification command.
type SessionFunc func(ev platform.MessageEvent) action.Session

// Deps are the handler's collaborators. Challenges and Limiter are
// optional; without Challenges verification commands are classified like
// any other message.
type Deps struct {
	Store      Store
	Executor   Executor
	Sessions   SessionFunc
	Challenges Challenges
	Limiter    Limiter
	Scheduler  action.Scheduler
	Logger     *slog.Logger

	// HistoryWindow is how many recent messages feed the classifier.
	HistoryWindow int
	Now           func() time.Time
}

// Result describes how one event was handled.
type Result struct {
	Skipped        bool
	Verification   VerifyResult // set for verification commands
	Classification moderation.ModerationResult
	Outcome        action.Outcome
}

// Handler processes message events. Handlers share no mutable state between
// events and are safe for concurrent use.
type Handler struct {
	store      Store
	exec       Executor
	sessions   SessionFunc
	challenges Challenges
	limiter    Limiter
	scheduler  action.Scheduler
	log        *slog.Logger
	window     int
	now        func() time.Time
}

// NewHandler validates deps and returns a handler.
func NewHandler(deps Deps) (*Handler, error) {
	if deps.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if deps.Executor == nil {
		return nil, errors.New("pipeline: executor is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("pipeline: session factory is required")
	}
	if deps.Scheduler == nil {
		deps.Scheduler = action.TimerScheduler{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.HistoryWindow < 0 {
		deps.HistoryWindow = 0
	}
	return &Handler{
		store:      deps.Store,
		exec:       deps.Executor,
		sessions:   deps.Sessions,
		challenges: deps.Challenges,
		limiter:    deps.Limiter,
		scheduler:  deps.Scheduler,
		log:        logging.Component(deps.Logger, "pipeline"),
		window:     deps.HistoryWindow,
		now:        deps.Now,
	}, nil
}

// Handle runs ev through the pipeline. Events from bots and events outside a
// guild are skipped. Persistence errors abort handling and are returned.
func (h *Handler) Handle(ctx context.Context, ev platform.MessageEvent) (Result, error) {
	if ev.Author.Bot || ev.GuildID == "" {
		return Result{Skipped: true}, nil
	}

	start := time.Now()
	ctx, span := traces.StartSpan(ctx, "pipeline.Handle", traces.GuildID(ev.GuildID), traces.MessageID(ev.ID))
	defer span.End()

	traceID := uuid.NewString()
	if sc := span.SpanContext(); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	log := h.log.With("message_id", ev.ID, "guild_id", ev.GuildID, "user_id", ev.Author.ID)
	ctx = logging.WithTraceID(logging.WithLogger(ctx, log), traceID)

	res, err := h.handle(ctx, ev)
	metrics.PipelineLatency.Observe(time.Since(start).Seconds())
	if res.Outcome.Taken != "" {
		span.SetAttributes(traces.Taken(string(res.Outcome.Taken)))
	}
	traces.Fail(span, err)
	return res, err
}

func (h *Handler) handle(ctx context.Context, ev platform.MessageEvent) (Result, error) {
	log := logging.FromContext(ctx)
	now := h.now()
	var joinedAt *time.Time
	if ev.Member != nil {
		joinedAt = ev.Member.JoinedAt
	}

	user, err := h.store.GetOrCreateUser(ctx, store.NewUser{
		PlatformID:       ev.Author.ID,
		Username:         ev.Author.Username,
		Discriminator:    discriminator(ev.Author.Tag),
		AccountCreatedAt: ev.Author.CreatedAt,
	})
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: %w", err)
	}
	if ev.Member != nil {
		if _, err := h.store.GetOrCreateMember(ctx, user.ID, ev.GuildID, joinedAt); err != nil {
			return Result{}, fmt.Errorf("pipeline: %w", err)
		}
	}

	if h.challenges != nil {
		if code, ok := verify.ParseCommand(ev.Content); ok {
			vr, err := h.handleVerify(ctx, ev, user, code)
			if err != nil {
				return Result{}, err
			}
			return Result{Verification: vr}, nil
		}
	}

	recent, err := h.store.RecentMessages(ctx, user.ID, ev.GuildID, h.window)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: %w", err)
	}
	warnings, err := h.store.Warnings(ctx, user.ID, ev.GuildID)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: %w", err)
	}

	history := make([]string, len(recent))
	for i, m := range recent {
		history[i] = m.Content
	}
	filenames := make([]string, len(ev.Attachments))
	for i, a := range ev.Attachments {
		filenames[i] = a.Filename
	}

	input := features.Extract(features.Snapshot{
		Content:         ev.Content,
		Filenames:       filenames,
		AccountCreated:  ev.Author.CreatedAt,
		JoinedAt:        joinedAt,
		History:         history,
		Warnings:        len(warnings),
		CaptchaVerified: user.CaptchaVerified,
		Now:             now,
	})

	logged, err := h.store.LogMessage(ctx, store.Message{
		MessageID:      ev.ID,
		UserID:         user.ID,
		GuildID:        ev.GuildID,
		ChannelID:      ev.ChannelID,
		Content:        ev.Content,
		HasAttachments: input.AttachmentsPresent,
		HasLinks:       input.LinksPresent,
		HasImages:      input.ImageUploaded,
	})
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: %w", err)
	}

	result := moderation.Classify(input)
	metrics.MessagesTotal.WithLabelValues(string(result.RiskLevel)).Inc()
	log.Info("message classified",
		"user_tag", ev.Author.Tag,
		"risk_score", result.RiskScore,
		"risk_level", result.RiskLevel,
		"categories", result.CategoryStrings(),
		"recommended", result.RecommendedAction,
	)

	outcome := h.exec.Execute(ctx, result.RecommendedAction, action.Target{
		Session: h.sessions(ev),
		Message: ev.Message(),
		Member:  ev.ActionMember(),
	}, result.Reasoning)
	metrics.ActionsTotal.WithLabelValues(string(outcome.Recommended), string(outcome.Taken)).Inc()
	if outcome.Taken != outcome.Recommended {
		log.Info("action outcome differs", "recommended", outcome.Recommended, "taken", outcome.Taken, "path", outcome.Path)
	}

	actionID, err := h.store.LogAction(ctx, store.ModerationAction{
		MessageRef:        logged.ID,
		UserID:            user.ID,
		GuildID:           ev.GuildID,
		RiskScore:         result.RiskScore,
		RiskLevel:         string(result.RiskLevel),
		Categories:        result.CategoryStrings(),
		RecommendedAction: string(result.RecommendedAction),
		ActionTaken:       string(outcome.Taken),
		Reasoning:         result.Reasoning,
	})
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: %w", err)
	}

	if recordsWarning(outcome.Taken) {
		severity := store.SeverityMedium
		if result.RiskLevel == moderation.LevelDangerous {
			severity = store.SeverityHigh
		}
		if _, err := h.store.AddWarning(ctx, user.ID, ev.GuildID, actionID, result.Reasoning, severity); err != nil {
			return Result{}, fmt.Errorf("pipeline: %w", err)
		}
	}

	if outcome.Taken == moderation.ActionCaptcha && h.challenges != nil {
		h.issueChallenge(ctx, ev)
	}

	if err := h.store.UpdateAverageRiskScore(ctx, user.ID); err != nil {
		return Result{}, fmt.Errorf("pipeline: %w", err)
	}

	return Result{Classification: result, Outcome: outcome}, nil
}

// recordsWarning reports whether an achieved outcome counts as a violation.
// ERROR counts: the message was judged a violation even though enforcement
// failed.
func recordsWarning(taken moderation.Action) bool {
	return taken != moderation.ActionAllow && taken != moderation.ActionCaptcha
}

// discriminator extracts the legacy "#1234" suffix of a tag.
func discriminator(tag string) string {
	for i := len(tag) - 1; i >= 0; i-- {
		if tag[i] == '#' {
			return tag[i+1:]
		}
	}
	return ""
}
