package action

import "context"

// LogChannelNames are the conventional moderation-log channel names, in
// lookup order.
var LogChannelNames = []string{"mod-log", "modlog", "mod-logs", "audit-log", "logs"}

// FindLogChannel returns the first text channel in g whose name is one of
// LogChannelNames. Having no such channel is not an error.
func FindLogChannel(ctx context.Context, sess Session, g Guild) (Channel, bool) {
	for _, name := range LogChannelNames {
		ch, ok := sess.FindChannelByName(ctx, g, name)
		if ok && ch.Text {
			return ch, true
		}
	}
	return Channel{}, false
}
