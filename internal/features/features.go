// Package features derives classifier inputs from a raw message and the
// author's persisted record.
package features

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/whisper/automod/internal/moderation"
)

var linkPattern = regexp.MustCompile(`(?i)https?://\S+|www\.\S+|\b[a-z0-9-]+\.(?:com|net|org|io|gg|xyz|co|me|tv|bot)\b`)

var imageExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
	"webp": true,
	"bmp":  true,
}

// AccountAgeDays returns the whole days between created and now. Creation
// times in the future count as zero.
func AccountAgeDays(created, now time.Time) int {
	days := math.Floor(now.Sub(created).Hours() / 24)
	if days < 0 {
		return 0
	}
	return int(days)
}

// JoinAgeMinutes returns the whole minutes since joined, or
// moderation.UnknownJoinAge when there is no membership record.
func JoinAgeMinutes(joined *time.Time, now time.Time) int {
	if joined == nil || joined.IsZero() {
		return moderation.UnknownJoinAge
	}
	mins := math.Floor(now.Sub(*joined).Minutes())
	if mins < 0 {
		return 0
	}
	return int(mins)
}

// DetectLinks reports whether content contains a URL, a www. host or a bare
// domain under a common TLD.
func DetectLinks(content string) bool {
	return linkPattern.MatchString(content)
}

// DetectImages reports whether any filename has an image extension. A name
// without a dot is treated as its own extension.
func DetectImages(filenames []string) bool {
	for _, name := range filenames {
		ext := name
		if i := strings.LastIndexByte(name, '.'); i >= 0 {
			ext = name[i+1:]
		}
		if imageExtensions[strings.ToLower(ext)] {
			return true
		}
	}
	return false
}

// Snapshot is everything known about a message at classification time.
type Snapshot struct {
	Content         string
	Filenames       []string
	AccountCreated  time.Time
	JoinedAt        *time.Time // nil when the author has no member record
	History         []string   // stored content of recent messages, newest first
	Warnings        int
	CaptchaVerified bool
	Now             time.Time
}

// Extract builds the classifier input for s.
func Extract(s Snapshot) moderation.ModerationInput {
	history := s.History
	if history == nil {
		history = []string{}
	}
	return moderation.ModerationInput{
		MessageContent:        s.Content,
		MessageHistory:        history,
		UserAccountAgeDays:    AccountAgeDays(s.AccountCreated, s.Now),
		ServerJoinAgeMinutes:  JoinAgeMinutes(s.JoinedAt, s.Now),
		AttachmentsPresent:    len(s.Filenames) > 0,
		LinksPresent:          DetectLinks(s.Content),
		ImageUploaded:         DetectImages(s.Filenames),
		PreviousWarningsCount: s.Warnings,
		CaptchaVerified:       s.CaptchaVerified,
	}
}
