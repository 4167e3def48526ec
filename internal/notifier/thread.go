package notifier

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ricirt/missedmail/internal/domain"
)

// thread is one conversation section of the digest.
type thread struct {
	Header string
	Blocks []senderBlock
}

// senderBlock is a run of consecutive messages by one sender.
type senderBlock struct {
	Sender     string
	ShowSender bool
	Lines      []string
}

// buildThreads groups missed messages by conversation. Threads are ordered
// by their first missed message; missed is already chronological.
func (n *Notifier) buildThreads(ctx context.Context, log *zap.Logger, user *domain.User, missed []*domain.Message) []thread {
	var (
		order  []string
		groups = make(map[string][]*domain.Message)
	)
	for _, m := range missed {
		key := domain.ConversationOf(m).Key()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], m)
	}

	threads := make([]thread, 0, len(order))
	for _, key := range order {
		msgs := groups[key]
		first := msgs[0]
		switch first.RecipientType {
		case domain.RecipientStream:
			shown := append(n.topicContext(ctx, log, user, first), msgs...)
			threads = append(threads, thread{
				Header: first.StreamName + " > " + first.Topic,
				Blocks: senderBlocks(shown, true),
			})
		default:
			// In a one-to-one conversation the header already names the sender.
			threads = append(threads, thread{
				Header: privateHeader(user, first),
				Blocks: senderBlocks(msgs, first.RecipientType == domain.RecipientHuddle),
			})
		}
	}
	return threads
}

// topicContext returns earlier messages of first's topic. Failure only costs
// the context, never the digest.
func (n *Notifier) topicContext(ctx context.Context, log *zap.Logger, user *domain.User, first *domain.Message) []*domain.Message {
	if n.cfg.ContextMessages <= 0 {
		return nil
	}
	prior, err := n.store.TopicContext(ctx, user.ID, first.StreamID, first.Topic, first.ID, n.cfg.ContextMessages)
	if err != nil {
		log.Warn("topic context lookup failed", zap.Int64("message_id", first.ID), zap.Error(err))
		return nil
	}
	return prior
}

// privateHeader names everyone on the conversation except the recipient.
func privateHeader(user *domain.User, m *domain.Message) string {
	var others []string
	for _, p := range m.Participants {
		if p.ID != user.ID {
			others = append(others, p.FullName)
		}
	}
	if len(others) == 0 {
		// A note to self.
		return "You"
	}
	sort.Strings(others)
	return "You and " + strings.Join(others, ", ")
}

func senderBlocks(msgs []*domain.Message, showSender bool) []senderBlock {
	var blocks []senderBlock
	var lastSender int64 = -1
	for _, m := range msgs {
		if len(blocks) == 0 || m.Sender.ID != lastSender {
			blocks = append(blocks, senderBlock{Sender: m.Sender.FullName, ShowSender: showSender})
			lastSender = m.Sender.ID
		}
		b := &blocks[len(blocks)-1]
		b.Lines = append(b.Lines, strings.TrimSpace(m.Content))
	}
	return blocks
}
