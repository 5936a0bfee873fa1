package moderation

// RiskLevel is the coarse severity bucket derived from a risk score.
type RiskLevel string

const (
	LevelSafe       RiskLevel = "SAFE"
	LevelSuspicious RiskLevel = "SUSPICIOUS"
	LevelDangerous  RiskLevel = "DANGEROUS"
)

// Rank orders levels so callers can compare severities.
func (l RiskLevel) Rank() int {
	switch l {
	case LevelSafe:
		return 0
	case LevelSuspicious:
		return 1
	case LevelDangerous:
		return 2
	default:
		return -1
	}
}

// Action is both a recommended moderation action and, once executed, the
// outcome that was actually carried out.
type Action string

const (
	ActionAllow   Action = "ALLOW"
	ActionCaptcha Action = "CAPTCHA"
	ActionWarn    Action = "WARN"
	ActionDelete  Action = "DELETE"
	ActionMute    Action = "MUTE"
	ActionKick    Action = "KICK"

	// ActionError is only ever an outcome, never a recommendation.
	ActionError Action = "ERROR"
)

// Category tags a detected violation or risk signal.
type Category string

const (
	CategoryNewUserUnverified   Category = "NEW_USER_UNVERIFIED"
	CategorySpam                Category = "SPAM"
	CategoryScam                Category = "SCAM"
	CategoryHarassment          Category = "HARASSMENT"
	CategoryExcessiveLength     Category = "EXCESSIVE_LENGTH"
	CategoryExcessiveCaps       Category = "EXCESSIVE_CAPS"
	CategoryRepetitiveMessaging Category = "REPETITIVE_MESSAGING"
	CategoryRapidMessaging      Category = "RAPID_MESSAGING"
	CategoryVeryNewAccount      Category = "VERY_NEW_ACCOUNT"
	CategoryNewAccount          Category = "NEW_ACCOUNT"
	CategoryImmediatePostJoin   Category = "IMMEDIATE_POST_JOIN"
	CategoryRecentJoin          Category = "RECENT_JOIN"
	CategoryContainsLinks       Category = "CONTAINS_LINKS"
	CategoryHasAttachments      Category = "HAS_ATTACHMENTS"
	CategoryRepeatOffender      Category = "REPEAT_OFFENDER"
)

// UnknownJoinAge is the ServerJoinAgeMinutes sentinel for a user without a
// member record.
const UnknownJoinAge = 999

// ModerationInput is the per-message snapshot the classifier scores.
type ModerationInput struct {
	MessageContent string `json:"message_content"`
	// MessageHistory holds prior messages from the same user in the same
	// server, most recent first.
	MessageHistory        []string `json:"message_history"`
	UserAccountAgeDays    int      `json:"user_account_age_days"`
	ServerJoinAgeMinutes  int      `json:"server_join_age_minutes"`
	AttachmentsPresent    bool     `json:"attachments_present"`
	LinksPresent          bool     `json:"links_present"`
	ImageUploaded         bool     `json:"image_uploaded"`
	PreviousWarningsCount int      `json:"previous_warnings_count"`
	CaptchaVerified       bool     `json:"captcha_verified"`
}

// ModerationResult is the classifier output. Categories are unique and kept in
// detection order so the generated reasoning is stable.
type ModerationResult struct {
	RiskScore         int        `json:"risk_score"`
	RiskLevel         RiskLevel  `json:"risk_level"`
	Categories        []Category `json:"detected_categories"`
	RecommendedAction Action     `json:"recommended_action"`
	Reasoning         string     `json:"reasoning"`
}

// HasCategory reports whether c was detected.
func (r ModerationResult) HasCategory(c Category) bool {
	for _, got := range r.Categories {
		if got == c {
			return true
		}
	}
	return false
}

// CategoryStrings returns the categories as plain strings, for storage.
func (r ModerationResult) CategoryStrings() []string {
	out := make([]string, len(r.Categories))
	for i, c := range r.Categories {
		out[i] = string(c)
	}
	return out
}
