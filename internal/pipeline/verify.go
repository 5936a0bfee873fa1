package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/whisper/automod/internal/action"
	"github.com/whisper/automod/internal/logging"
	"github.com/whisper/automod/internal/metrics"
	"github.com/whisper/automod/internal/platform"
	"github.com/whisper/automod/internal/ratelimit"
	"github.com/whisper/automod/internal/store"
	"github.com/whisper/automod/internal/verify"
)

// VerifyResult is the outcome of a verification command.
type VerifyResult string

const (
	VerifyNone      VerifyResult = ""
	VerifyVerified  VerifyResult = "verified"
	VerifyRejected  VerifyResult = "rejected"
	VerifyThrottled VerifyResult = "throttled"
	VerifyAlready   VerifyResult = "already_verified"
)

const (
	verifyNoticeTTL = 15 * time.Second
	cleanupTimeout  = 5 * time.Second
)

// handleVerify redeems a submitted code. Verification commands are never
// classified or logged as messages.
func (h *Handler) handleVerify(ctx context.Context, ev platform.MessageEvent, user *store.User, code string) (VerifyResult, error) {
	log := logging.FromContext(ctx)
	sess := h.sessions(ev)
	msg := ev.Message()
	ident := ev.GuildID + ":" + ev.Author.ID

	// The command carries a one-time code; keep it out of the channel.
	if sess.Deletable(msg) {
		if err := sess.Delete(ctx, msg); err != nil {
			h.bestEffort(ctx, "verify_delete", err)
		}
	}

	if user.CaptchaVerified {
		if err := h.challenges.Cancel(ctx, ev.GuildID, ev.Author.ID); err != nil {
			h.bestEffort(ctx, "verify_cancel", err)
		}
		h.verifyNotice(ctx, sess, msg, fmt.Sprintf("✅ %s, you are already verified.", msg.Author.Mention()))
		return h.verifyDone(VerifyAlready), nil
	}

	if h.limiter != nil {
		// Allow fails open and reports the Redis error alongside.
		ok, err := h.limiter.Allow(ctx, ident, ratelimit.RuleVerify)
		if err != nil {
			log.Warn("verify rate limit unavailable", "err", err)
		}
		if !ok {
			h.verifyNotice(ctx, sess, msg, fmt.Sprintf(
				"⏳ %s, too many verification attempts. Please wait before trying again.", msg.Author.Mention()))
			return h.verifyDone(VerifyThrottled), nil
		}
	}

	err := h.challenges.Redeem(ctx, ev.GuildID, ev.Author.ID, code)
	switch {
	case err == nil:
	case errors.Is(err, verify.ErrMismatch), errors.Is(err, verify.ErrNoChallenge):
		text := fmt.Sprintf("❌ %s, that verification code is not valid.", msg.Author.Mention())
		if h.limiter != nil {
			if left, lerr := h.limiter.Remaining(ctx, ident, ratelimit.RuleVerify); lerr == nil {
				text += fmt.Sprintf(" Attempts left: %d.", left)
			}
		}
		log.Info("verification rejected", "reason", err)
		h.verifyNotice(ctx, sess, msg, text)
		return h.verifyDone(VerifyRejected), nil
	default:
		return VerifyNone, fmt.Errorf("pipeline: redeem challenge: %w", err)
	}

	if err := h.store.SetCaptchaVerified(ctx, user.ID, true); err != nil {
		return VerifyNone, fmt.Errorf("pipeline: %w", err)
	}
	if h.limiter != nil {
		if err := h.limiter.Reset(ctx, ident, ratelimit.RuleVerify); err != nil {
			log.Debug("verify rate limit reset failed", "err", err)
		}
	}

	log.Info("user verified")
	h.verifyNotice(ctx, sess, msg, fmt.Sprintf("✅ %s, verification complete. Thank you!", msg.Author.Mention()))
	return h.verifyDone(VerifyVerified), nil
}

func (h *Handler) verifyDone(r VerifyResult) VerifyResult {
	metrics.VerifyAttempts.WithLabelValues(string(r)).Inc()
	return r
}

// verifyNotice posts a reply that removes itself after verifyNoticeTTL.
func (h *Handler) verifyNotice(ctx context.Context, sess action.Session, msg action.Message, text string) {
	n, err := sess.PostNotice(ctx, msg.Channel, text)
	if err != nil {
		h.bestEffort(ctx, "verify_notice", err)
		return
	}
	log := logging.FromContext(ctx)
	h.scheduler.After(verifyNoticeTTL, func() {
		cctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if err := sess.DeleteNotice(cctx, n); err != nil {
			log.Debug("verify notice cleanup failed", "notice_id", n.ID, "err", err)
			metrics.BestEffortFailures.WithLabelValues("notice_cleanup").Inc()
		}
	})
}

// issueChallenge creates a verification challenge for the author and sends
// the code privately. A still pending challenge is not re-sent.
func (h *Handler) issueChallenge(ctx context.Context, ev platform.MessageEvent) {
	log := logging.FromContext(ctx)
	ch, err := h.challenges.Issue(ctx, ev.GuildID, ev.Author.ID)
	if err != nil {
		log.Error("issue verification challenge", "err", err)
		return
	}
	if !ch.New {
		return
	}
	text := fmt.Sprintf("Your verification code for **%s** is `%s`.\n\n"+
		"Reply in the server with `%s %s` to finish verification.",
		ev.GuildName, ch.Code, verify.Command, ch.Code)
	if err := h.sessions(ev).SendPrivate(ctx, ev.User(), text); err != nil {
		h.bestEffort(ctx, "verify_dm", err)
	}
}

func (h *Handler) bestEffort(ctx context.Context, op string, err error) {
	logging.FromContext(ctx).Warn("best-effort operation failed", "op", op, "err", err)
	metrics.BestEffortFailures.WithLabelValues(op).Inc()
}
