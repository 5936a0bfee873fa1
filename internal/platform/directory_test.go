package platform

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

// newTestDirectory connects to a local Redis and removes test guild keys
// before and after the test. Tests that call it require Redis on
// localhost:6379 and are skipped otherwise.
func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	clean := func() {
		iter := client.Scan(ctx, 0, ChannelsPrefix+"test_*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	}
	clean()
	t.Cleanup(func() {
		clean()
		client.Close()
	})
	return NewDirectory(client)
}

func TestDirectory_ApplyAndFind(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	err := dir.Apply(ctx, ChannelsUpdate{GuildID: "test_g1", Channels: []ChannelInfo{
		{ID: "v1", Name: "mod-log", Kind: "voice"},
		{ID: "t1", Name: "mod-log", Kind: "text"},
		{ID: "t2", Name: "mod-log", Kind: "text"},
		{ID: "t3", Name: "general", Kind: "text"},
	}})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	ch, ok, err := dir.FindChannel(ctx, "test_g1", "mod-log")
	if err != nil || !ok {
		t.Fatalf("FindChannel() = %v, %v", ok, err)
	}
	if ch.ID != "t1" || !ch.Text {
		t.Errorf("mod-log = %+v, want first text channel t1", ch)
	}

	if _, ok, _ := dir.FindChannel(ctx, "test_g1", "audit-log"); ok {
		t.Error("expected audit-log to be missing")
	}
	if _, ok, _ := dir.FindChannel(ctx, "test_unknown", "mod-log"); ok {
		t.Error("expected unknown guild to have no channels")
	}
}

func TestDirectory_ApplyReplaces(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	if err := dir.Apply(ctx, ChannelsUpdate{GuildID: "test_g2", Channels: []ChannelInfo{{ID: "t1", Name: "logs", Kind: "text"}}}); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if err := dir.Apply(ctx, ChannelsUpdate{GuildID: "test_g2", Channels: []ChannelInfo{{ID: "t2", Name: "modlog", Kind: "text"}}}); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	if _, ok, _ := dir.FindChannel(ctx, "test_g2", "logs"); ok {
		t.Error("stale channel survived snapshot replace")
	}
	if _, ok, _ := dir.FindChannel(ctx, "test_g2", "modlog"); !ok {
		t.Error("new channel missing")
	}

	if err := dir.Apply(ctx, ChannelsUpdate{GuildID: "test_g2"}); err != nil {
		t.Fatalf("Apply(empty) error: %v", err)
	}
	if _, ok, _ := dir.FindChannel(ctx, "test_g2", "modlog"); ok {
		t.Error("empty snapshot should clear the guild")
	}
}

func TestDirectory_ApplyRequiresGuild(t *testing.T) {
	dir := NewDirectory(nil)
	if err := dir.Apply(context.Background(), ChannelsUpdate{}); err == nil {
		t.Error("expected error for missing guild id")
	}
}
