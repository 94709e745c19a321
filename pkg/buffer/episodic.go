package buffer

import (
	"fmt"
	"strings"
	"time"
)

// episode is one time/topic-bounded grouping of messages.
type episode struct {
	messages []Message
	summary  string
}

func (e *episode) start() time.Time {
	if len(e.messages) == 0 {
		return time.Time{}
	}
	return e.messages[0].Timestamp
}

func (e *episode) end() time.Time {
	if len(e.messages) == 0 {
		return time.Time{}
	}
	return e.messages[len(e.messages)-1].Timestamp
}

var transitionPhrases = []string{
	"let's talk about",
	"changing the subject",
	"moving on",
	"on another note",
	"switching topics",
	"new topic",
	"different question",
}

// episodicBuffer partitions messages into episodes split on time gaps,
// size limits, and explicit topic transitions.
type episodicBuffer struct {
	cfg            Config
	episodes       []*episode
	maxEpisodeSize int
}

func newEpisodicBuffer(cfg Config) *episodicBuffer {
	size := cfg.MaxSize / 5
	if size < 5 {
		size = 5
	}
	return &episodicBuffer{cfg: cfg, maxEpisodeSize: size}
}

func (b *episodicBuffer) Add(msg Message) error {
	if b.shouldStartEpisode(msg) {
		b.finalizeCurrent()
		b.episodes = append(b.episodes, &episode{})
	}
	cur := b.episodes[len(b.episodes)-1]
	cur.messages = append(cur.messages, msg)
	b.Trim()
	return nil
}

// shouldStartEpisode applies the four boundary rules in order: no open
// episode, inactivity gap, episode size cap, explicit topic transition.
func (b *episodicBuffer) shouldStartEpisode(msg Message) bool {
	if len(b.episodes) == 0 {
		return true
	}
	cur := b.episodes[len(b.episodes)-1]
	if len(cur.messages) == 0 {
		return false
	}
	if msg.Timestamp.Sub(cur.end()) > b.cfg.EpisodeTimeout {
		return true
	}
	if len(cur.messages) >= b.maxEpisodeSize {
		return true
	}
	lower := strings.ToLower(msg.Content)
	for _, phrase := range transitionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// finalizeCurrent summarizes the episode being closed, when it is
// substantial enough to warrant one.
func (b *episodicBuffer) finalizeCurrent() {
	if len(b.episodes) == 0 {
		return
	}
	cur := b.episodes[len(b.episodes)-1]
	if len(cur.messages) >= 3 && cur.summary == "" {
		cur.summary = summarizeEpisode(cur)
	}
}

// Trim drops messages from the oldest episode forward until the total is
// within MaxSize. Emptied episodes are removed entirely.
func (b *episodicBuffer) Trim() {
	for b.total() > b.cfg.MaxSize && len(b.episodes) > 0 {
		oldest := b.episodes[0]
		over := b.total() - b.cfg.MaxSize
		if over >= len(oldest.messages) {
			b.episodes = b.episodes[1:]
			continue
		}
		oldest.messages = oldest.messages[over:]
	}
}

func (b *episodicBuffer) total() int {
	n := 0
	for _, ep := range b.episodes {
		n += len(ep.messages)
	}
	return n
}

func (b *episodicBuffer) Messages() []Message {
	out := make([]Message, 0, b.total())
	for _, ep := range b.episodes {
		out = append(out, ep.messages...)
	}
	return out
}

func (b *episodicBuffer) Clear() {
	b.episodes = nil
}

func (b *episodicBuffer) Len() int { return b.total() }

// Episodes returns the message groups, oldest first.
func (b *episodicBuffer) Episodes() [][]Message {
	out := make([][]Message, 0, len(b.episodes))
	for _, ep := range b.episodes {
		msgs := make([]Message, len(ep.messages))
		copy(msgs, ep.messages)
		out = append(out, msgs)
	}
	return out
}

func (b *episodicBuffer) Context() string {
	var parts []string
	for i, ep := range b.episodes {
		if len(ep.messages) == 0 {
			continue
		}
		header := fmt.Sprintf("--- episode %d ---", i+1)
		if ep.summary != "" {
			header += " " + ep.summary
		}
		parts = append(parts, header)
		for _, msg := range ep.messages {
			parts = append(parts, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
		}
	}
	return strings.Join(parts, "\n")
}

// summarizeEpisode renders message counts, an inferred topic, the episode
// duration, and truncated first/last content.
func summarizeEpisode(ep *episode) string {
	msgs := ep.messages
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d messages", len(msgs))
	if topics := extractTopics(msgs, 1); len(topics) > 0 {
		fmt.Fprintf(&sb, " about %s", topics[0])
	}
	if d := ep.end().Sub(ep.start()); d > 0 {
		fmt.Fprintf(&sb, " over %s", d.Round(time.Second))
	}
	fmt.Fprintf(&sb, ", from %q to %q",
		truncate(msgs[0].Content, 40), truncate(msgs[len(msgs)-1].Content, 40))
	return sb.String()
}
