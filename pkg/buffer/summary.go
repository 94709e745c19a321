package buffer

import (
	"fmt"
	"sort"
	"strings"
)

const maxRetainedSummaries = 5

// summaryBuffer keeps recent messages plus a rolling list of summary
// strings covering everything it has evicted.
type summaryBuffer struct {
	cfg       Config
	messages  []Message
	summaries []string
}

func newSummaryBuffer(cfg Config) *summaryBuffer {
	return &summaryBuffer{cfg: cfg}
}

func (b *summaryBuffer) Add(msg Message) error {
	b.messages = append(b.messages, msg)
	if len(b.messages) >= b.cfg.SummarizationThreshold {
		if err := b.summarizeOldest(); err != nil {
			return &Error{Strategy: Summary, Op: "summarize", Err: err}
		}
	}
	b.Trim()
	return nil
}

// summarizeOldest folds the oldest half of the current messages into one
// summary string. The summary is produced before any mutation so a failure
// leaves the buffer untouched.
func (b *summaryBuffer) summarizeOldest() error {
	half := len(b.messages) / 2
	if half == 0 {
		return nil
	}
	summary := summarizeMessages(b.messages[:half])

	b.summaries = append(b.summaries, summary)
	for len(b.summaries) > maxRetainedSummaries {
		b.summaries = b.summaries[1:]
	}
	b.messages = append([]Message(nil), b.messages[half:]...)
	return nil
}

func (b *summaryBuffer) Trim() {
	for len(b.messages) > b.cfg.MaxSize {
		b.messages = b.messages[1:]
	}
}

func (b *summaryBuffer) Messages() []Message {
	out := make([]Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// Summaries returns the rolling summary strings, oldest first.
func (b *summaryBuffer) Summaries() []string {
	out := make([]string, len(b.summaries))
	copy(out, b.summaries)
	return out
}

func (b *summaryBuffer) Clear() {
	b.messages = nil
	b.summaries = nil
}

func (b *summaryBuffer) Len() int { return len(b.messages) }

func (b *summaryBuffer) Context() string {
	var parts []string
	for _, s := range b.summaries {
		parts = append(parts, "[summary] "+s)
	}
	for _, msg := range b.messages {
		parts = append(parts, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}
	return strings.Join(parts, "\n")
}

// summarizeMessages renders a heuristic one-line summary: counts by role,
// dominant topic keywords, and truncated first/last content.
func summarizeMessages(msgs []Message) string {
	if len(msgs) == 0 {
		return ""
	}
	roleCounts := map[string]int{}
	for _, m := range msgs {
		roleCounts[m.Role]++
	}
	roles := make([]string, 0, len(roleCounts))
	for role := range roleCounts {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	counts := make([]string, 0, len(roles))
	for _, role := range roles {
		counts = append(counts, fmt.Sprintf("%d %s", roleCounts[role], role))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d messages (%s)", len(msgs), strings.Join(counts, ", "))
	if topics := extractTopics(msgs, 3); len(topics) > 0 {
		fmt.Fprintf(&sb, "; topics: %s", strings.Join(topics, ", "))
	}
	fmt.Fprintf(&sb, "; started %q", truncate(msgs[0].Content, 60))
	if len(msgs) > 1 {
		fmt.Fprintf(&sb, "; ended %q", truncate(msgs[len(msgs)-1].Content, 60))
	}
	return sb.String()
}

// extractTopics picks the most frequent non-trivial words across msgs.
func extractTopics(msgs []Message, limit int) []string {
	freq := map[string]int{}
	for _, m := range msgs {
		for _, word := range strings.Fields(strings.ToLower(m.Content)) {
			word = strings.Trim(word, ".,!?;:\"'()[]")
			if len(word) < 5 || stopWords[word] {
				continue
			}
			freq[word]++
		}
	}
	type wc struct {
		word  string
		count int
	}
	scored := make([]wc, 0, len(freq))
	for w, c := range freq {
		if c >= 2 {
			scored = append(scored, wc{w, c})
		}
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].count == scored[j].count {
			return scored[i].word < scored[j].word
		}
		return scored[i].count > scored[j].count
	})
	out := make([]string, 0, limit)
	for _, s := range scored {
		out = append(out, s.word)
		if len(out) >= limit {
			break
		}
	}
	return out
}

var stopWords = map[string]bool{
	"about": true, "after": true, "again": true, "before": true,
	"being": true, "could": true, "doing": true, "going": true,
	"having": true, "other": true, "should": true, "their": true,
	"there": true, "these": true, "thing": true, "things": true,
	"think": true, "those": true, "where": true, "which": true,
	"while": true, "would": true, "really": true, "please": true,
}
