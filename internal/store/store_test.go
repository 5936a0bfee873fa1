package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// newTestStore migrates and connects to the database at TEST_DATABASE_URL.
// Tests that call it are skipped when the variable is unset or the server
// is unreachable.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", url)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		t.Skipf("postgres not available: %v", err)
	}
	if err := Migrate(url); err != nil {
		db.Close()
		t.Fatalf("Migrate() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

// testUser creates a user with a unique platform id.
func testUser(t *testing.T, s *Store) *User {
	t.Helper()
	u, err := s.GetOrCreateUser(context.Background(), NewUser{
		PlatformID:       "test_" + uuid.NewString(),
		Username:         "tester",
		AccountCreatedAt: time.Now().Add(-48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("GetOrCreateUser() error: %v", err)
	}
	return u
}

func TestContentHash(t *testing.T) {
	// sha256("") and sha256("abc")
	tests := []struct {
		in   string
		want string
	}{
		{"", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
	}
	for _, tt := range tests {
		if got := ContentHash(tt.in); got != tt.want {
			t.Errorf("ContentHash(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestAddWarning_InvalidSeverity(t *testing.T) {
	s := NewStore(nil)
	if _, err := s.AddWarning(context.Background(), 1, "g", 0, "r", "CRITICAL"); err == nil {
		t.Error("expected error for invalid severity")
	}
}

func TestGetOrCreateUser_RequiresPlatformID(t *testing.T) {
	s := NewStore(nil)
	if _, err := s.GetOrCreateUser(context.Background(), NewUser{}); err == nil {
		t.Error("expected error for empty platform id")
	}
}

func TestRecentMessages_ZeroLimit(t *testing.T) {
	s := NewStore(nil)
	msgs, err := s.RecentMessages(context.Background(), 1, "g", 0)
	if err != nil || msgs != nil {
		t.Errorf("RecentMessages(limit 0) = %v, %v", msgs, err)
	}
}

func TestGetOrCreateUser_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := testUser(t, s)
	second, err := s.GetOrCreateUser(ctx, NewUser{PlatformID: first.PlatformID, Username: "renamed"})
	if err != nil {
		t.Fatalf("GetOrCreateUser() error: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("ID = %d, want %d", second.ID, first.ID)
	}
	if second.Username != "renamed" {
		t.Errorf("Username = %q, want renamed", second.Username)
	}
	if second.CaptchaVerified {
		t.Error("new user must start unverified")
	}

	got, err := s.UserByPlatformID(ctx, first.PlatformID)
	if err != nil || got.ID != first.ID {
		t.Errorf("UserByPlatformID = %+v, %v", got, err)
	}
	if _, err := s.UserByPlatformID(ctx, "test_missing_"+uuid.NewString()); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("missing user err = %v, want sql.ErrNoRows", err)
	}
}

func TestGetOrCreateMember_KeepsJoinTime(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := testUser(t, s)

	joined := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	m1, err := s.GetOrCreateMember(ctx, u.ID, "test_guild", &joined)
	if err != nil {
		t.Fatalf("GetOrCreateMember() error: %v", err)
	}
	later := time.Now().UTC()
	m2, err := s.GetOrCreateMember(ctx, u.ID, "test_guild", &later)
	if err != nil {
		t.Fatalf("GetOrCreateMember() error: %v", err)
	}
	if m1.ID != m2.ID {
		t.Errorf("member id changed: %d -> %d", m1.ID, m2.ID)
	}
	if m2.JoinedAt == nil || !m2.JoinedAt.Equal(joined) {
		t.Errorf("JoinedAt = %v, want %v", m2.JoinedAt, joined)
	}
}

func TestLogMessage_RecentMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := testUser(t, s)

	for i, content := range []string{"first", "second", "third"} {
		m, err := s.LogMessage(ctx, Message{
			MessageID: uuid.NewString(),
			UserID:    u.ID,
			GuildID:   "test_guild",
			ChannelID: "c1",
			Content:   content,
			HasLinks:  i == 1,
		})
		if err != nil {
			t.Fatalf("LogMessage() error: %v", err)
		}
		if m.ID == 0 || m.ContentHash != ContentHash(content) || m.Length != len(content) {
			t.Errorf("LogMessage() = %+v", m)
		}
	}

	recent, err := s.RecentMessages(ctx, u.ID, "test_guild", 2)
	if err != nil {
		t.Fatalf("RecentMessages() error: %v", err)
	}
	if len(recent) != 2 || recent[0].Content != "third" || recent[1].Content != "second" {
		t.Errorf("RecentMessages = %+v", recent)
	}
	if !recent[1].HasLinks {
		t.Error("HasLinks not persisted")
	}

	other, err := s.RecentMessages(ctx, u.ID, "test_other_guild", 5)
	if err != nil || len(other) != 0 {
		t.Errorf("other guild = %v, %v", other, err)
	}
}

func TestLogMessage_LengthCountsRunes(t *testing.T) {
	s := newTestStore(t)
	u := testUser(t, s)
	m, err := s.LogMessage(context.Background(), Message{MessageID: "m", UserID: u.ID, GuildID: "test_guild", ChannelID: "c", Content: "héllo 👋"})
	if err != nil {
		t.Fatalf("LogMessage() error: %v", err)
	}
	if m.Length != 7 {
		t.Errorf("Length = %d, want 7", m.Length)
	}
}

func TestAddWarning_RecomputesCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := testUser(t, s)
	if _, err := s.GetOrCreateMember(ctx, u.ID, "test_g1", nil); err != nil {
		t.Fatalf("GetOrCreateMember() error: %v", err)
	}

	msg, err := s.LogMessage(ctx, Message{MessageID: "m1", UserID: u.ID, GuildID: "test_g1", ChannelID: "c", Content: "x"})
	if err != nil {
		t.Fatalf("LogMessage() error: %v", err)
	}
	actionID, err := s.LogAction(ctx, ModerationAction{
		MessageRef:        msg.ID,
		UserID:            u.ID,
		GuildID:           "test_g1",
		RiskScore:         45,
		RiskLevel:         "SUSPICIOUS",
		Categories:        []string{"SCAM", "LINK_SPAM"},
		RecommendedAction: "DELETE",
		ActionTaken:       "DELETE",
		Reasoning:         "Detected: SCAM, LINK_SPAM",
	})
	if err != nil {
		t.Fatalf("LogAction() error: %v", err)
	}

	if _, err := s.AddWarning(ctx, u.ID, "test_g1", actionID, "scam", SeverityMedium); err != nil {
		t.Fatalf("AddWarning() error: %v", err)
	}
	if _, err := s.AddWarning(ctx, u.ID, "test_g1", 0, "manual", SeverityLow); err != nil {
		t.Fatalf("AddWarning() error: %v", err)
	}
	if _, err := s.AddWarning(ctx, u.ID, "test_g2", 0, "other guild", SeverityHigh); err != nil {
		t.Fatalf("AddWarning() error: %v", err)
	}

	warnings, err := s.Warnings(ctx, u.ID, "test_g1")
	if err != nil {
		t.Fatalf("Warnings() error: %v", err)
	}
	if len(warnings) != 2 {
		t.Fatalf("Warnings = %d, want 2", len(warnings))
	}
	if warnings[0].Reason != "manual" || warnings[0].ModerationActionID.Valid {
		t.Errorf("newest warning = %+v", warnings[0])
	}
	if !warnings[1].ModerationActionID.Valid || warnings[1].ModerationActionID.Int64 != actionID {
		t.Errorf("oldest warning = %+v", warnings[1])
	}

	got, err := s.UserByPlatformID(ctx, u.PlatformID)
	if err != nil {
		t.Fatalf("UserByPlatformID() error: %v", err)
	}
	if got.TotalWarnings != 3 {
		t.Errorf("TotalWarnings = %d, want 3", got.TotalWarnings)
	}
	m, err := s.GetOrCreateMember(ctx, u.ID, "test_g1", nil)
	if err != nil {
		t.Fatalf("GetOrCreateMember() error: %v", err)
	}
	if m.ServerWarnings != 2 {
		t.Errorf("ServerWarnings = %d, want 2", m.ServerWarnings)
	}
}

func TestUpdateAverageRiskScore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := testUser(t, s)

	// No actions: unchanged.
	if err := s.UpdateAverageRiskScore(ctx, u.ID); err != nil {
		t.Fatalf("UpdateAverageRiskScore() error: %v", err)
	}

	msg, err := s.LogMessage(ctx, Message{MessageID: "m", UserID: u.ID, GuildID: "test_g", ChannelID: "c", Content: "x"})
	if err != nil {
		t.Fatalf("LogMessage() error: %v", err)
	}
	for _, score := range []int{10, 20, 30} {
		if _, err := s.LogAction(ctx, ModerationAction{
			MessageRef: msg.ID, UserID: u.ID, GuildID: "test_g", RiskScore: score, RiskLevel: "SAFE",
			RecommendedAction: "ALLOW", ActionTaken: "ALLOW", Reasoning: "No significant risk factors detected.",
		}); err != nil {
			t.Fatalf("LogAction() error: %v", err)
		}
	}
	if err := s.UpdateAverageRiskScore(ctx, u.ID); err != nil {
		t.Fatalf("UpdateAverageRiskScore() error: %v", err)
	}

	got, err := s.UserByPlatformID(ctx, u.PlatformID)
	if err != nil {
		t.Fatalf("UserByPlatformID() error: %v", err)
	}
	if got.AverageRiskScore != 20 {
		t.Errorf("AverageRiskScore = %v, want 20", got.AverageRiskScore)
	}
}

func TestSetCaptchaVerified(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := testUser(t, s)

	if err := s.SetCaptchaVerified(ctx, u.ID, true); err != nil {
		t.Fatalf("SetCaptchaVerified(true) error: %v", err)
	}
	got, _ := s.UserByPlatformID(ctx, u.PlatformID)
	if !got.CaptchaVerified || got.CaptchaVerifiedAt == nil {
		t.Errorf("after verify: %+v", got)
	}

	if err := s.SetCaptchaVerified(ctx, u.ID, false); err != nil {
		t.Fatalf("SetCaptchaVerified(false) error: %v", err)
	}
	got, _ = s.UserByPlatformID(ctx, u.PlatformID)
	if got.CaptchaVerified || got.CaptchaVerifiedAt != nil {
		t.Errorf("after unverify: %+v", got)
	}

	if err := s.SetCaptchaVerified(ctx, -1, true); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("unknown user err = %v, want sql.ErrNoRows", err)
	}
}
