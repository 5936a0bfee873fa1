// Package store provides PostgreSQL-backed persistence for moderation
// state: platform users and their guild memberships, logged messages,
// moderation actions, and warnings.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/lib/pq"
)

// Warning severities, matching the CHECK constraint on user_warnings.
const (
	SeverityLow    = "LOW"
	SeverityMedium = "MEDIUM"
	SeverityHigh   = "HIGH"
)

var validSeverities = map[string]bool{
	SeverityLow:    true,
	SeverityMedium: true,
	SeverityHigh:   true,
}

// User is a platform account as persisted.
type User struct {
	ID                int64
	PlatformID        string
	Username          string
	Discriminator     string
	AccountCreatedAt  time.Time
	FirstSeenAt       time.Time
	CaptchaVerified   bool
	CaptchaVerifiedAt *time.Time
	TotalWarnings     int
	AverageRiskScore  float64
}

// NewUser is the platform data needed to create a user.
type NewUser struct {
	PlatformID       string
	Username         string
	Discriminator    string
	AccountCreatedAt time.Time
}

// Member is a user's membership in one guild.
type Member struct {
	ID             int64
	UserID         int64
	GuildID        string
	JoinedAt       *time.Time
	ServerWarnings int
}

// Message is a logged message.
type Message struct {
	ID             int64
	MessageID      string
	UserID         int64
	GuildID        string
	ChannelID      string
	Content        string
	ContentHash    string
	Length         int
	HasAttachments bool
	HasLinks       bool
	HasImages      bool
	CreatedAt      time.Time
}

// ModerationAction is one classification and its executed outcome.
type ModerationAction struct {
	ID                int64
	MessageRef        int64 // Message.ID of the triggering message
	UserID            int64
	GuildID           string
	RiskScore         int
	RiskLevel         string
	Categories        []string
	RecommendedAction string
	ActionTaken       string
	Reasoning         string
	CreatedAt         time.Time
}

// Warning is a recorded violation.
type Warning struct {
	ID                 int64
	UserID             int64
	GuildID            string
	ModerationActionID sql.NullInt64
	Reason             string
	Severity           string
	CreatedAt          time.Time
}

// ContentHash returns the hex sha256 of content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Store manages moderation state in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const userColumns = `id, platform_user_id, username, discriminator, account_created_at, first_seen_at,
	captcha_verified, captcha_verified_at, total_warnings, average_risk_score`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var (
		u          User
		verifiedAt sql.NullTime
	)
	err := row.Scan(&u.ID, &u.PlatformID, &u.Username, &u.Discriminator, &u.AccountCreatedAt, &u.FirstSeenAt,
		&u.CaptchaVerified, &verifiedAt, &u.TotalWarnings, &u.AverageRiskScore)
	if err != nil {
		return nil, err
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		u.CaptchaVerifiedAt = &t
	}
	return &u, nil
}

// GetOrCreateUser returns the user with nu.PlatformID, creating it on first
// sight. The stored username follows the latest value seen.
func (s *Store) GetOrCreateUser(ctx context.Context, nu NewUser) (*User, error) {
	if nu.PlatformID == "" {
		return nil, errors.New("store: user without platform id")
	}
	disc := nu.Discriminator
	if disc == "" {
		disc = "0"
	}

	query := `
		INSERT INTO users (platform_user_id, username, discriminator, account_created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (platform_user_id) DO UPDATE SET username = EXCLUDED.username
		RETURNING ` + userColumns

	u, err := scanUser(s.db.QueryRowContext(ctx, query, nu.PlatformID, nu.Username, disc, nu.AccountCreatedAt))
	if err != nil {
		return nil, fmt.Errorf("store: get or create user: %w", err)
	}
	return u, nil
}

// UserByPlatformID returns the user with the given platform id, or
// sql.ErrNoRows.
func (s *Store) UserByPlatformID(ctx context.Context, platformID string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE platform_user_id = $1`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, platformID))
	if err != nil {
		return nil, fmt.Errorf("store: user by platform id: %w", err)
	}
	return u, nil
}

// GetOrCreateMember returns userID's membership in guildID, creating it on
// first sight. A known join time is never overwritten.
func (s *Store) GetOrCreateMember(ctx context.Context, userID int64, guildID string, joinedAt *time.Time) (*Member, error) {
	const query = `
		INSERT INTO server_members (user_id, guild_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, guild_id)
		DO UPDATE SET joined_at = COALESCE(server_members.joined_at, EXCLUDED.joined_at)
		RETURNING id, user_id, guild_id, joined_at, server_warnings`

	var (
		m      Member
		joined sql.NullTime
	)
	var arg any
	if joinedAt != nil {
		arg = *joinedAt
	}
	err := s.db.QueryRowContext(ctx, query, userID, guildID, arg).
		Scan(&m.ID, &m.UserID, &m.GuildID, &joined, &m.ServerWarnings)
	if err != nil {
		return nil, fmt.Errorf("store: get or create member: %w", err)
	}
	if joined.Valid {
		t := joined.Time
		m.JoinedAt = &t
	}
	return &m, nil
}

// RecentMessages returns up to limit of the user's latest messages in
// guildID, newest first.
func (s *Store) RecentMessages(ctx context.Context, userID int64, guildID string, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	const query = `
		SELECT id, message_id, user_id, guild_id, channel_id, content, content_hash, message_length,
		       has_attachments, has_links, has_images, created_at
		FROM messages
		WHERE user_id = $1 AND guild_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, userID, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.MessageID, &m.UserID, &m.GuildID, &m.ChannelID, &m.Content, &m.ContentHash,
			&m.Length, &m.HasAttachments, &m.HasLinks, &m.HasImages, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent messages: %w", err)
	}
	return out, nil
}

// Warnings returns the user's warnings in guildID, newest first.
func (s *Store) Warnings(ctx context.Context, userID int64, guildID string) ([]Warning, error) {
	const query = `
		SELECT id, user_id, guild_id, moderation_action_id, warning_reason, severity, created_at
		FROM user_warnings
		WHERE user_id = $1 AND guild_id = $2
		ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, userID, guildID)
	if err != nil {
		return nil, fmt.Errorf("store: warnings: %w", err)
	}
	defer rows.Close()

	var out []Warning
	for rows.Next() {
		var w Warning
		if err := rows.Scan(&w.ID, &w.UserID, &w.GuildID, &w.ModerationActionID, &w.Reason, &w.Severity, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan warning: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: warnings: %w", err)
	}
	return out, nil
}

// LogMessage inserts m and returns it with ID, hash, length and CreatedAt
// filled in. Length counts characters, not bytes.
func (s *Store) LogMessage(ctx context.Context, m Message) (Message, error) {
	m.ContentHash = ContentHash(m.Content)
	m.Length = utf8.RuneCountInString(m.Content)

	const query = `
		INSERT INTO messages (message_id, user_id, guild_id, channel_id, content, content_hash, message_length,
		                      has_attachments, has_links, has_images)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		m.MessageID, m.UserID, m.GuildID, m.ChannelID, m.Content, m.ContentHash, m.Length,
		m.HasAttachments, m.HasLinks, m.HasImages,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("store: insert message: %w", err)
	}
	return m, nil
}

// LogAction inserts a moderation action and returns its id.
func (s *Store) LogAction(ctx context.Context, a ModerationAction) (int64, error) {
	categories := a.Categories
	if categories == nil {
		categories = []string{}
	}

	const query = `
		INSERT INTO moderation_actions (message_ref, user_id, guild_id, risk_score, risk_level, detected_categories,
		                                recommended_action, action_taken, reasoning)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	var id int64
	err := s.db.QueryRowContext(ctx, query,
		a.MessageRef, a.UserID, a.GuildID, a.RiskScore, a.RiskLevel, pq.Array(categories),
		a.RecommendedAction, a.ActionTaken, a.Reasoning,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: insert action: %w", err)
	}
	return id, nil
}

// AddWarning records a warning and recomputes the user's total and
// per-guild warning counts in the same transaction.
func (s *Store) AddWarning(ctx context.Context, userID int64, guildID string, actionID int64, reason, severity string) (int64, error) {
	if !validSeverities[severity] {
		return 0, fmt.Errorf("store: invalid severity %q", severity)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: add warning: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var ref any
	if actionID > 0 {
		ref = actionID
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO user_warnings (user_id, guild_id, moderation_action_id, warning_reason, severity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		userID, guildID, ref, reason, severity,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: insert warning: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE users
		SET total_warnings = (SELECT COUNT(*) FROM user_warnings WHERE user_id = $1)
		WHERE id = $1`, userID); err != nil {
		return 0, fmt.Errorf("store: update total warnings: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE server_members
		SET server_warnings = (SELECT COUNT(*) FROM user_warnings WHERE user_id = $1 AND guild_id = $2)
		WHERE user_id = $1 AND guild_id = $2`, userID, guildID); err != nil {
		return 0, fmt.Errorf("store: update server warnings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: add warning: commit: %w", err)
	}
	return id, nil
}

// UpdateAverageRiskScore sets the user's average risk score to the mean of
// all their moderation actions, rounded to two decimals. Users with no
// actions are left unchanged.
func (s *Store) UpdateAverageRiskScore(ctx context.Context, userID int64) error {
	const query = `
		UPDATE users
		SET average_risk_score = agg.avg_score
		FROM (
			SELECT ROUND(AVG(risk_score)::numeric, 2) AS avg_score
			FROM moderation_actions
			WHERE user_id = $1
			HAVING COUNT(*) > 0
		) AS agg
		WHERE users.id = $1`

	if _, err := s.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("store: update average risk score: %w", err)
	}
	return nil
}

// SetCaptchaVerified records the outcome of a verification challenge.
func (s *Store) SetCaptchaVerified(ctx context.Context, userID int64, verified bool) error {
	const query = `
		UPDATE users
		SET captcha_verified = $2::boolean,
		    captcha_verified_at = CASE WHEN $2::boolean THEN NOW() ELSE NULL END
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, userID, verified)
	if err != nil {
		return fmt.Errorf("store: set captcha verified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: set captcha verified: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: set captcha verified: %w", sql.ErrNoRows)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
