package features

import (
	"testing"
	"time"

	"github.com/whisper/automod/internal/moderation"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestAccountAgeDays(t *testing.T) {
	tests := []struct {
		name    string
		created time.Time
		want    int
	}{
		{"same instant", now, 0},
		{"23 hours", now.Add(-23 * time.Hour), 0},
		{"exactly one day", now.Add(-24 * time.Hour), 1},
		{"100 days and change", now.Add(-100*24*time.Hour - 5*time.Hour), 100},
		{"future", now.Add(time.Hour), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AccountAgeDays(tt.created, now); got != tt.want {
				t.Errorf("AccountAgeDays = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestJoinAgeMinutes(t *testing.T) {
	at := func(d time.Duration) *time.Time {
		v := now.Add(-d)
		return &v
	}
	tests := []struct {
		name   string
		joined *time.Time
		want   int
	}{
		{"no member record", nil, moderation.UnknownJoinAge},
		{"zero join time", &time.Time{}, moderation.UnknownJoinAge},
		{"59 seconds", at(59 * time.Second), 0},
		{"ten minutes", at(10 * time.Minute), 10},
		{"two days", at(48 * time.Hour), 2880},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JoinAgeMinutes(tt.joined, now); got != tt.want {
				t.Errorf("JoinAgeMinutes = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDetectLinks(t *testing.T) {
	tests := []struct {
		content string
		want    bool
	}{
		{"hi everyone", false},
		{"see https://example.org/path", true},
		{"http://x", true},
		{"go to www.somewhere", true},
		{"visit example.com today", true},
		{"JOIN MY-SERVER.GG", true},
		{"free.bot", true},
		{"example.community", false},
		{"notes.txt", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := DetectLinks(tt.content); got != tt.want {
			t.Errorf("DetectLinks(%q) = %v, want %v", tt.content, got, tt.want)
		}
	}
}

func TestDetectImages(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  bool
	}{
		{"none", nil, false},
		{"document", []string{"report.pdf"}, false},
		{"png", []string{"cat.png"}, true},
		{"upper case", []string{"CAT.JPEG"}, true},
		{"second attachment", []string{"a.zip", "b.webp"}, true},
		{"double extension", []string{"archive.png.exe"}, false},
		{"bare extension name", []string{"gif"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectImages(tt.files); got != tt.want {
				t.Errorf("DetectImages(%v) = %v, want %v", tt.files, got, tt.want)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	joined := now.Add(-30 * time.Minute)
	in := Extract(Snapshot{
		Content:         "check www.prize.xyz",
		Filenames:       []string{"proof.jpg"},
		AccountCreated:  now.Add(-3 * 24 * time.Hour),
		JoinedAt:        &joined,
		History:         []string{"earlier", "older"},
		Warnings:        2,
		CaptchaVerified: true,
		Now:             now,
	})

	want := moderation.ModerationInput{
		MessageContent:        "check www.prize.xyz",
		MessageHistory:        []string{"earlier", "older"},
		UserAccountAgeDays:    3,
		ServerJoinAgeMinutes:  30,
		AttachmentsPresent:    true,
		LinksPresent:          true,
		ImageUploaded:         true,
		PreviousWarningsCount: 2,
		CaptchaVerified:       true,
	}
	if in.MessageContent != want.MessageContent ||
		len(in.MessageHistory) != 2 ||
		in.UserAccountAgeDays != want.UserAccountAgeDays ||
		in.ServerJoinAgeMinutes != want.ServerJoinAgeMinutes ||
		in.AttachmentsPresent != want.AttachmentsPresent ||
		in.LinksPresent != want.LinksPresent ||
		in.ImageUploaded != want.ImageUploaded ||
		in.PreviousWarningsCount != want.PreviousWarningsCount ||
		in.CaptchaVerified != want.CaptchaVerified {
		t.Errorf("Extract = %+v, want %+v", in, want)
	}
}

func TestExtract_Empty(t *testing.T) {
	in := Extract(Snapshot{Now: now, AccountCreated: now})
	if in.MessageHistory == nil || len(in.MessageHistory) != 0 {
		t.Errorf("MessageHistory = %v, want empty non-nil", in.MessageHistory)
	}
	if in.ServerJoinAgeMinutes != moderation.UnknownJoinAge {
		t.Errorf("ServerJoinAgeMinutes = %d, want %d", in.ServerJoinAgeMinutes, moderation.UnknownJoinAge)
	}
	if in.AttachmentsPresent || in.LinksPresent || in.ImageUploaded {
		t.Errorf("unexpected flags: %+v", in)
	}
}
