package platform

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/automod/internal/action"
)

type request struct {
	subject string
	body    map[string]any
}

type fakeRequester struct {
	mu       sync.Mutex
	requests []request
	replies  map[string]CommandReply
	err      error
}

func (f *fakeRequester) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("request without deadline")
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.requests = append(f.requests, request{subject: subject, body: body})
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	reply, ok := f.replies[subject]
	if !ok {
		reply = CommandReply{OK: true}
	}
	return json.Marshal(reply)
}

type fakeFinder struct {
	channels map[string]action.Channel
	err      error
}

func (f fakeFinder) FindChannel(_ context.Context, _ string, name string) (action.Channel, bool, error) {
	if f.err != nil {
		return action.Channel{}, false, f.err
	}
	ch, ok := f.channels[name]
	return ch, ok, nil
}

func testEvent() MessageEvent {
	return MessageEvent{
		Type:        TypeMessageCreate,
		ID:          "m1",
		GuildID:     "g1",
		GuildName:   "Guild",
		ChannelID:   "c1",
		ChannelName: "general",
		Author:      UserInfo{ID: "u1", Username: "alice", Tag: "alice#0001"},
		Member:      &MemberInfo{Moderatable: true, Kickable: true},
		Content:     "hi",
		Deletable:   true,
	}
}

func TestSession_Capabilities(t *testing.T) {
	ev := testEvent()
	gw := NewGateway(&fakeRequester{}, nil, GatewayConfig{})
	sess := gw.Session(ev)
	member := ev.ActionMember()

	assert.True(t, sess.Deletable(ev.Message()))
	assert.False(t, sess.Deletable(action.Message{ID: "other"}))
	assert.True(t, sess.Moderatable(member))
	assert.True(t, sess.Kickable(member))
	assert.False(t, sess.Moderatable(nil))
	assert.False(t, sess.Kickable(&action.Member{User: action.User{ID: "someone-else"}}))

	ev.Member = &MemberInfo{}
	ev.Deletable = false
	sess = gw.Session(ev)
	assert.False(t, sess.Deletable(ev.Message()))
	assert.False(t, sess.Moderatable(member))
	assert.False(t, sess.Kickable(member))
}

func TestSession_Commands(t *testing.T) {
	req := &fakeRequester{replies: map[string]CommandReply{
		"platform.post_message": {OK: true, NoticeID: "n42"},
	}}
	ev := testEvent()
	sess := NewGateway(req, nil, GatewayConfig{Timeout: time.Second}).Session(ev)
	ctx := context.Background()
	member := ev.ActionMember()

	require.NoError(t, sess.Delete(ctx, ev.Message()))
	notice, err := sess.PostNotice(ctx, ev.Message().Channel, "notice")
	require.NoError(t, err)
	assert.Equal(t, "n42", notice.ID)
	require.NoError(t, sess.DeleteNotice(ctx, notice))
	require.NoError(t, sess.Timeout(ctx, member, 10*time.Minute, "spam"))
	require.NoError(t, sess.Kick(ctx, member, "scam"))
	require.NoError(t, sess.SendPrivate(ctx, ev.User(), "dm"))

	subjects := make([]string, len(req.requests))
	for i, r := range req.requests {
		subjects[i] = r.subject
		assert.NotEmpty(t, r.body["request_id"])
	}
	assert.Equal(t, []string{
		"platform.delete_message",
		"platform.post_message",
		"platform.delete_message",
		"platform.timeout_member",
		"platform.kick_member",
		"platform.send_direct",
	}, subjects)

	assert.Equal(t, "m1", req.requests[0].body["message_id"])
	assert.Equal(t, "n42", req.requests[2].body["message_id"])
	assert.Equal(t, float64(600000), req.requests[3].body["duration_ms"])
	assert.Equal(t, "g1", req.requests[4].body["guild_id"])
	assert.Equal(t, "u1", req.requests[5].body["user_id"])
}

func TestSession_RejectedCommand(t *testing.T) {
	req := &fakeRequester{replies: map[string]CommandReply{
		"platform.kick_member": {Code: CodeMissingPermissions, Error: "Missing Permissions"},
	}}
	ev := testEvent()
	sess := NewGateway(req, nil, GatewayConfig{}).Session(ev)

	err := sess.Kick(context.Background(), ev.ActionMember(), "r")
	var cerr *CommandError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CodeMissingPermissions, cerr.Code)
}

func TestSession_TransportError(t *testing.T) {
	req := &fakeRequester{err: errors.New("nats: timeout")}
	sess := NewGateway(req, nil, GatewayConfig{}).Session(testEvent())

	_, err := sess.PostNotice(context.Background(), action.Channel{ID: "c1"}, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "post_message")
}

func TestSession_FindChannelByName(t *testing.T) {
	g := action.Guild{ID: "g1"}

	sess := NewGateway(&fakeRequester{}, fakeFinder{channels: map[string]action.Channel{
		"mod-log": {ID: "c9", Name: "mod-log", Text: true},
	}}, GatewayConfig{}).Session(testEvent())
	ch, ok := sess.FindChannelByName(context.Background(), g, "mod-log")
	assert.True(t, ok)
	assert.Equal(t, "c9", ch.ID)

	_, ok = sess.FindChannelByName(context.Background(), g, "logs")
	assert.False(t, ok)

	failing := NewGateway(&fakeRequester{}, fakeFinder{err: errors.New("redis down")}, GatewayConfig{}).Session(testEvent())
	_, ok = failing.FindChannelByName(context.Background(), g, "mod-log")
	assert.False(t, ok)

	noDir := NewGateway(&fakeRequester{}, nil, GatewayConfig{}).Session(testEvent())
	_, ok = noDir.FindChannelByName(context.Background(), g, "mod-log")
	assert.False(t, ok)
}

func TestSession_DrivesExecutor(t *testing.T) {
	req := &fakeRequester{replies: map[string]CommandReply{
		"platform.kick_member": {Code: CodeMissingPermissions, Error: "Missing Permissions"},
	}}
	ev := testEvent()
	sess := NewGateway(req, nil, GatewayConfig{}).Session(ev)
	exec := action.NewExecutor(action.Config{Scheduler: action.NewManualScheduler()})

	out := exec.Execute(context.Background(), "KICK", action.Target{
		Session: sess,
		Message: ev.Message(),
		Member:  ev.ActionMember(),
	}, "Detected: SCAM")

	assert.Equal(t, "MUTE", string(out.Taken))
}
