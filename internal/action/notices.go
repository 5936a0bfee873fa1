package action

import (
	"fmt"
	"time"

	"github.com/whisper/automod/internal/verify"
)

// Fixed durations of the action policy.
const (
	CaptchaTimeout = 5 * time.Minute
	MuteDuration   = 10 * time.Minute

	captchaNoticeTTL = 30 * time.Second
	warnNoticeTTL    = 20 * time.Second
	deleteNoticeTTL  = 15 * time.Second
	muteNoticeTTL    = 15 * time.Second
	kickNoticeTTL    = 20 * time.Second
)

func captchaNotice(u User) string {
	return fmt.Sprintf("⚠️ %s, your account is new or has been flagged. "+
		"Please complete CAPTCHA verification before posting.\n\n"+
		"To verify, use the command: `%s <code>` with the code sent to you privately.\n\n"+
		"This is a safety measure to protect our community from spam and malicious activity.",
		u.Mention(), verify.Command)
}

func warnNotice(u User, reasoning string) string {
	return fmt.Sprintf("⚠️ Warning %s: Your message has been flagged by our moderation system.\n\n"+
		"**Reason:** %s\n\n"+
		"Please review our community guidelines. Repeated violations may result in further action.",
		u.Mention(), reasoning)
}

func deleteNotice(u User) string {
	return fmt.Sprintf("🗑️ A message from %s was removed by our moderation system.\n\n"+
		"**Reason:** Violation detected\n\n"+
		"This action has been logged. Continued violations may result in timeout or removal from the server.",
		u.Mention())
}

func deletePrivate(g Guild, reasoning string) string {
	return fmt.Sprintf("Your message in **%s** was automatically removed.\n\n"+
		"**Reason:** %s\n\n"+
		"Please be mindful of our community guidelines. If you believe this was an error, contact a moderator.",
		g.Name, reasoning)
}

func muteNotice(u User, reasoning string) string {
	return fmt.Sprintf("🔇 %s has been temporarily muted for %s.\n\n"+
		"**Reason:** %s\n\n"+
		"This action has been logged. Repeated violations will result in longer timeouts or removal.",
		u.Mention(), humanMinutes(MuteDuration), reasoning)
}

func mutePrivate(g Guild, reasoning string) string {
	return fmt.Sprintf("You have been temporarily muted in **%s** for %s.\n\n"+
		"**Reason:** %s\n\n"+
		"Please review our community guidelines. Repeated violations may result in permanent removal.",
		g.Name, humanMinutes(MuteDuration), reasoning)
}

func kickPrivate(g Guild, reasoning string) string {
	return fmt.Sprintf("You have been removed from **%s**.\n\n"+
		"**Reason:** %s\n\n"+
		"Our moderation system detected severe violations of community guidelines. "+
		"If you believe this was an error, please contact the server administrators.",
		g.Name, reasoning)
}

func kickNotice() string {
	return "🚫 A user has been removed from the server by our moderation system.\n\n" +
		"**Reason:** Severe violation detected\n\n" +
		"This action has been logged and reviewed."
}

func modLogEntry(msg Message, reasoning string, at time.Time) string {
	return fmt.Sprintf("**[AUTO-KICK]**\nUser: %s (%s)\nReason: %s\nChannel: %s\nTime: %s",
		msg.Author.Tag, msg.Author.ID, reasoning, msg.Channel.Name, at.UTC().Format(time.RFC3339))
}

func moderationReason(reasoning string) string {
	return "Moderation system: " + reasoning
}

func humanMinutes(d time.Duration) string {
	return fmt.Sprintf("%d minutes", int(d.Minutes()))
}
