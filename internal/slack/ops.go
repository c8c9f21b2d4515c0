// Package slack posts operational notices about alerts nobody picked up to
// a Slack channel watched by the coordination team.
package slack

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ideavolution/coordinator/internal/lifecycle"
	"github.com/ideavolution/coordinator/internal/logger"
	"github.com/ideavolution/coordinator/internal/services"
	"github.com/ideavolution/coordinator/internal/utils"
	"github.com/slack-go/slack"
)

const noticeQueueSize = 64

// OpsNotifier implements services.Notifier. It reacts only to alerts that
// expired unanswered or were cancelled by a background job; everything else
// is ignored. Posting happens on a worker so Notify never blocks.
type OpsNotifier struct {
	client   *slack.Client
	resolver *ChannelResolver
	channel  string

	mu      sync.RWMutex
	stopped bool
	queue   chan services.Change
	wg      sync.WaitGroup
}

// NewOpsNotifier creates a notifier posting to channel with the bot token.
// Extra options are passed to the Slack client.
func NewOpsNotifier(botToken, channel string, options ...slack.Option) *OpsNotifier {
	options = append([]slack.Option{slack.OptionDebug(false)}, options...)
	client := slack.New(botToken, options...)
	return &OpsNotifier{
		client:   client,
		resolver: NewChannelResolver(client),
		channel:  channel,
		queue:    make(chan services.Change, noticeQueueSize),
	}
}

// Wants reports whether a change warrants an ops notice
func Wants(ch services.Change) bool {
	switch ch.Kind {
	case services.ChangeExpired:
		return true
	case services.ChangeCancelled:
		return ch.Actor.Role == lifecycle.RoleSystem
	}
	return false
}

// Notify implements services.Notifier
func (n *OpsNotifier) Notify(ctx context.Context, ch services.Change) {
	if !Wants(ch) {
		return
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.stopped {
		return
	}
	select {
	case n.queue <- ch:
	default:
		logger.WarnKV(ctx, "Dropping Slack ops notice; queue full", "alert_id", ch.Alert.ID)
	}
}

// Start runs the posting worker until Stop is called
func (n *OpsNotifier) Start(ctx context.Context) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for ch := range n.queue {
			if err := n.post(ctx, ch); err != nil {
				logger.WarnKV(ctx, "Failed to post Slack ops notice", "alert_id", ch.Alert.ID, "error", err)
			}
		}
	}()
	logger.InfoKV(ctx, "Slack ops notifier started", "channel", n.channel)
}

// Stop drains queued notices and waits for the worker
func (n *OpsNotifier) Stop() {
	n.mu.Lock()
	if !n.stopped {
		n.stopped = true
		close(n.queue)
	}
	n.mu.Unlock()
	n.wg.Wait()
}

func (n *OpsNotifier) post(ctx context.Context, ch services.Change) error {
	channelID, err := n.resolver.ResolveChannel(ctx, n.channel)
	if err != nil {
		return err
	}

	postCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	text := FormatNotice(ch)
	_, _, err = n.client.PostMessageContext(postCtx, channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)),
	)
	if err != nil {
		return fmt.Errorf("chat.postMessage: %w", err)
	}
	return nil
}

const noticeNotesLimit = 140

// FormatNotice renders the mrkdwn text of an ops notice
func FormatNotice(ch services.Change) string {
	a := ch.Alert
	items := make([]string, 0, len(a.FoodItems))
	for _, it := range a.FoodItems {
		items = append(items, fmt.Sprintf("%d %s %s", it.Quantity, it.Unit, it.Name))
	}

	var b strings.Builder
	switch ch.Kind {
	case services.ChangeExpired:
		fmt.Fprintf(&b, ":hourglass: *Donation expired unanswered*\n")
		fmt.Fprintf(&b, "Offered to %d food bank(s), none accepted in time", len(a.NotifiedFoodbanks))
		if waited := a.UpdatedAt.Sub(a.CreatedAt); waited > 0 {
			fmt.Fprintf(&b, " (open %s)", utils.FormatDuration(waited.Truncate(time.Second)))
		}
		b.WriteString(".\n")
	default:
		fmt.Fprintf(&b, ":no_entry: *Donation cancelled*")
		if a.CancelReason != "" {
			fmt.Fprintf(&b, " (%s)", a.CancelReason)
		}
		b.WriteString("\n")
		if a.FoodbankID != "" {
			fmt.Fprintf(&b, "Accepted by food bank `%s` but no driver was assigned.\n", a.FoodbankID)
		}
	}
	fmt.Fprintf(&b, "Alert `%s` from restaurant `%s`", a.ID, a.RestaurantID)
	if len(items) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(items, ", "))
	}
	if a.Notes != "" {
		fmt.Fprintf(&b, "\n> %s", utils.TruncateText(a.Notes, noticeNotesLimit))
	}
	return b.String()
}
