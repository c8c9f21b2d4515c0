package slack

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ideavolution/coordinator/internal/logger"
	"github.com/slack-go/slack"
)

// ChannelResolver resolves the ops channel name to an id once and caches it
type ChannelResolver struct {
	client *slack.Client
	cache  map[string]string // name -> id
	mu     sync.RWMutex
}

// NewChannelResolver creates a new channel resolver
func NewChannelResolver(client *slack.Client) *ChannelResolver {
	return &ChannelResolver{
		client: client,
		cache:  make(map[string]string),
	}
}

// ResolveChannel accepts a channel id (C01234567890) or a name with or
// without the leading '#'
func (r *ChannelResolver) ResolveChannel(ctx context.Context, nameOrID string) (string, error) {
	if nameOrID == "" {
		return "", fmt.Errorf("channel name/ID is empty")
	}
	if isChannelID(nameOrID) {
		return nameOrID, nil
	}

	name := strings.TrimPrefix(nameOrID, "#")

	r.mu.RLock()
	id, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	id, err := r.lookupChannel(ctx, name)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.cache[name] = id
	r.mu.Unlock()

	logger.DebugKV(ctx, "Resolved Slack channel", "channel", name, "channel_id", id)
	return id, nil
}

// lookupChannel pages through public and private channels looking for name
func (r *ChannelResolver) lookupChannel(ctx context.Context, name string) (string, error) {
	params := &slack.GetConversationsParameters{
		ExcludeArchived: true,
		Limit:           500,
		Types:           []string{"public_channel", "private_channel"},
	}
	for {
		channels, cursor, err := r.client.GetConversationsContext(ctx, params)
		if err != nil {
			return "", fmt.Errorf("failed to list channels: %w", err)
		}
		for _, ch := range channels {
			if ch.Name == name {
				return ch.ID, nil
			}
		}
		if cursor == "" {
			return "", fmt.Errorf("channel '%s' not found", name)
		}
		params.Cursor = cursor
	}
}

// isChannelID checks if a string looks like a Slack channel ID:
// C followed by upper-case alphanumerics, 9 to 15 characters in total
func isChannelID(s string) bool {
	if len(s) < 9 || len(s) > 15 || !strings.HasPrefix(s, "C") {
		return false
	}
	for _, c := range s[1:] {
		if !((c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}
