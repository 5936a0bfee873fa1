package moderation

import (
	"regexp"
)

// Compiled once at package init and safe for concurrent use.
var (
	massMentionPattern = regexp.MustCompile(`(?i)@everyone|@here`)
	promoPattern       = regexp.MustCompile(`(?i)\b(buy|shop|discount|free|prize|winner|click here|limited time)\b`)

	fakePrizePattern = regexp.MustCompile(`(?i)\b(free nitro|discord nitro|steam gift|gift card|prize)\b`)
	socialEngPattern = regexp.MustCompile(`(?i)\b(verify account|click link|dm me|check dm)\b`)
	linkShortPattern = regexp.MustCompile(`(?i)bit\.ly|tinyurl|shorturl`)
	selfHarmPattern  = regexp.MustCompile(`(?i)\b(kill yourself|kys|die|h8|fck|btch)\b`)
	insultPattern    = regexp.MustCompile(`(?i)\b(idiot|stupid|dumb|loser|trash)\b`)
)

// charRunThreshold is the shortest run of one repeated character counted as
// spam.
const charRunThreshold = 11

// contentRule is one named detection technique. A technique scores once no
// matter how many times it matches.
type contentRule struct {
	name  string
	match func(string) bool
}

// ruleFamily groups the techniques that contribute to one category.
type ruleFamily struct {
	category Category
	weight   int
	rules    []contentRule
}

// contentFamilies is the content rule table, evaluated in order.
var contentFamilies = []ruleFamily{
	{category: CategorySpam, weight: 15, rules: []contentRule{
		{name: "char_run", match: hasCharRun},
		{name: "mass_mention", match: massMentionPattern.MatchString},
		{name: "promotional", match: promoPattern.MatchString},
	}},
	{category: CategoryScam, weight: 25, rules: []contentRule{
		{name: "fake_prize", match: fakePrizePattern.MatchString},
		{name: "social_engineering", match: socialEngPattern.MatchString},
		{name: "link_shortener", match: linkShortPattern.MatchString},
	}},
	{category: CategoryHarassment, weight: 20, rules: []contentRule{
		{name: "self_harm_incitement", match: selfHarmPattern.MatchString},
		{name: "insult", match: insultPattern.MatchString},
	}},
}

// matchedRules returns the names of the techniques in f that match text.
func (f ruleFamily) matchedRules(text string) []string {
	var names []string
	for _, r := range f.rules {
		if r.match(text) {
			names = append(names, r.name)
		}
	}
	return names
}

// hasCharRun returns true if text contains charRunThreshold or more
// consecutive identical characters. RE2 has no backreferences, so this is a
// linear scan. Line breaks end a run.
func hasCharRun(text string) bool {
	count := 0
	prev := rune(-1)
	for _, r := range text {
		if r == '\n' || r == '\r' {
			count = 0
			prev = -1
			continue
		}
		if r == prev {
			count++
		} else {
			count = 1
			prev = r
		}
		if count >= charRunThreshold {
			return true
		}
	}
	return false
}
