package moderation

import (
	"strings"
	"unicode/utf8"
)

const (
	// Score bounds.
	MinScore = 0
	MaxScore = 100

	// Level breakpoints: scores up to SafeMax are SAFE, up to SuspiciousMax
	// SUSPICIOUS, anything above DANGEROUS.
	SafeMax       = 30
	SuspiciousMax = 65

	captchaGateScore = 50
	captchaReasoning = "New or flagged user has not completed CAPTCHA verification. " +
		"Temporarily restricting messaging until verification is complete."

	maxContentChars = 1500
	capsMinChars    = 20
	capsMaxRatio    = 0.7

	repeatWindow  = 3
	rapidWindow   = 5
	repeatPenalty = 10
	repeatCap     = 25
)

// signals accumulates score contributions and categories in detection order.
type signals struct {
	score      int
	categories []Category
}

func (s *signals) add(c Category, points int) {
	s.score += points
	for _, got := range s.categories {
		if got == c {
			return
		}
	}
	s.categories = append(s.categories, c)
}

// Classify scores in and derives its level, recommended action and
// reasoning. It never fails; every input maps to a defined result.
func Classify(in ModerationInput) ModerationResult {
	if RequiresCaptcha(in) {
		return ModerationResult{
			RiskScore:         captchaGateScore,
			RiskLevel:         LevelSuspicious,
			Categories:        []Category{CategoryNewUserUnverified},
			RecommendedAction: ActionCaptcha,
			Reasoning:         captchaReasoning,
		}
	}

	var s signals
	analyzeContent(&s, in.MessageContent)
	analyzeBehavior(&s, in.MessageHistory, in.MessageContent)
	analyzeAccount(&s, in.UserAccountAgeDays, in.ServerJoinAgeMinutes)
	analyzeAttachments(&s, in.AttachmentsPresent, in.LinksPresent, in.ImageUploaded)

	if in.PreviousWarningsCount > 0 {
		s.add(CategoryRepeatOffender, min(in.PreviousWarningsCount*repeatPenalty, repeatCap))
	}

	score := ClampScore(s.score)
	level := LevelForScore(score)
	return ModerationResult{
		RiskScore:         score,
		RiskLevel:         level,
		Categories:        s.categories,
		RecommendedAction: Decide(score, level, in.PreviousWarningsCount),
		Reasoning:         Explain(score, level, s.categories, in.PreviousWarningsCount),
	}
}

// RequiresCaptcha reports whether an unverified user is new to the platform,
// new to the server, or already warned, in which case classification stops
// at the verification gate.
func RequiresCaptcha(in ModerationInput) bool {
	if in.CaptchaVerified {
		return false
	}
	return in.UserAccountAgeDays < 7 ||
		in.ServerJoinAgeMinutes < 10 ||
		in.PreviousWarningsCount > 0
}

// ClampScore bounds score to [MinScore, MaxScore].
func ClampScore(score int) int {
	return max(MinScore, min(score, MaxScore))
}

// LevelForScore maps a clamped score onto its risk level.
func LevelForScore(score int) RiskLevel {
	switch {
	case score <= SafeMax:
		return LevelSafe
	case score <= SuspiciousMax:
		return LevelSuspicious
	default:
		return LevelDangerous
	}
}

func analyzeContent(s *signals, content string) {
	for _, fam := range contentFamilies {
		if n := len(fam.matchedRules(content)); n > 0 {
			s.add(fam.category, n*fam.weight)
		}
	}

	chars := utf8.RuneCountInString(content)
	if chars > maxContentChars {
		s.add(CategoryExcessiveLength, 10)
	}
	if chars > capsMinChars && capsRatio(content, chars) > capsMaxRatio {
		s.add(CategoryExcessiveCaps, 10)
	}
}

// capsRatio is the share of ASCII uppercase letters among all characters.
func capsRatio(content string, chars int) float64 {
	if chars == 0 {
		return 0
	}
	upper := 0
	for _, r := range content {
		if r >= 'A' && r <= 'Z' {
			upper++
		}
	}
	return float64(upper) / float64(chars)
}

func analyzeBehavior(s *signals, history []string, current string) {
	if len(history) >= repeatWindow {
		repeated := true
		for _, prev := range history[:repeatWindow] {
			if !strings.EqualFold(prev, current) {
				repeated = false
				break
			}
		}
		if repeated {
			s.add(CategoryRepetitiveMessaging, 20)
		}
	}

	if len(history) >= rapidWindow {
		s.add(CategoryRapidMessaging, 15)
	}
}

func analyzeAccount(s *signals, accountAgeDays, joinAgeMinutes int) {
	switch {
	case accountAgeDays < 1:
		s.add(CategoryVeryNewAccount, 20)
	case accountAgeDays < 7:
		s.add(CategoryNewAccount, 10)
	}

	switch {
	case joinAgeMinutes < 5:
		s.add(CategoryImmediatePostJoin, 15)
	case joinAgeMinutes < 30:
		s.add(CategoryRecentJoin, 8)
	}
}

func analyzeAttachments(s *signals, attachments, links, images bool) {
	if links {
		s.add(CategoryContainsLinks, 10)
	}
	if attachments || images {
		s.add(CategoryHasAttachments, 5)
	}
}
