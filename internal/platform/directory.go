package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/whisper/automod/internal/action"
)

const (
	// ChannelsPrefix is the Redis key prefix for per-guild channel hashes.
	//
	//	Key:   channels:<guild_id>
	//	Field: <channel name>
	//	Value: JSON-encoded action.Channel
	ChannelsPrefix = "channels:"

	// ChannelsTTL bounds how long a snapshot is trusted without a refresh.
	ChannelsTTL = 24 * time.Hour
)

type storedChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Text bool   `json:"text"`
}

// Directory keeps each guild's channels in Redis so any replica can resolve
// a channel by name.
type Directory struct {
	client *redis.Client
}

// NewDirectory creates a Directory backed by the given Redis client.
func NewDirectory(client *redis.Client) *Directory {
	return &Directory{client: client}
}

// Apply replaces the stored snapshot for u.GuildID. When several channels
// share a name the first text channel wins, then the first channel of any
// kind.
func (d *Directory) Apply(ctx context.Context, u ChannelsUpdate) error {
	if u.GuildID == "" {
		return errors.New("platform: channels update without guild id")
	}

	byName := make(map[string]storedChannel, len(u.Channels))
	for _, ch := range u.Channels {
		prev, seen := byName[ch.Name]
		if seen && (prev.Text || !ch.IsText()) {
			continue
		}
		byName[ch.Name] = storedChannel{ID: ch.ID, Name: ch.Name, Text: ch.IsText()}
	}

	fields := make(map[string]interface{}, len(byName))
	for name, ch := range byName {
		raw, err := json.Marshal(ch)
		if err != nil {
			return fmt.Errorf("platform: encode channel %q: %w", name, err)
		}
		fields[name] = string(raw)
	}

	key := ChannelsPrefix + u.GuildID
	pipe := d.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(fields) > 0 {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, ChannelsTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("platform: store channels for %s: %w", u.GuildID, err)
	}
	return nil
}

// FindChannel returns the channel named name in guildID. A missing guild or
// channel is reported as ok=false with a nil error.
func (d *Directory) FindChannel(ctx context.Context, guildID, name string) (action.Channel, bool, error) {
	raw, err := d.client.HGet(ctx, ChannelsPrefix+guildID, name).Result()
	if errors.Is(err, redis.Nil) {
		return action.Channel{}, false, nil
	}
	if err != nil {
		return action.Channel{}, false, fmt.Errorf("platform: lookup channel %q: %w", name, err)
	}

	var ch storedChannel
	if err := json.Unmarshal([]byte(raw), &ch); err != nil {
		return action.Channel{}, false, fmt.Errorf("platform: decode channel %q: %w", name, err)
	}
	return action.Channel{ID: ch.ID, Name: ch.Name, Text: ch.Text}, true, nil
}
