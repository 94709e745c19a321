package memory

import (
	"sort"
	"strings"
	"time"
)

const (
	maxKeyPoints     = 10
	maxSummaryTopics = 5
)

// topicKeywords are domain words scanned for in item content when deriving
// topics beyond the explicit tag union.
var topicKeywords = []string{
	"error", "deploy", "config", "database", "schedule",
	"payment", "report", "workflow", "approval", "search",
}

var positiveWords = []string{"thanks", "great", "perfect", "good", "works", "solved"}
var negativeWords = []string{"error", "fail", "wrong", "broken", "issue", "problem"}

// summarizeItems builds the statistical digest for a session's live items.
// Runtime and form state are attached by the caller.
func summarizeItems(sessionID string, items []Item) SessionSummary {
	sum := SessionSummary{
		SessionID: sessionID,
		ItemCount: len(items),
		Sentiment: "neutral",
	}
	if len(items) == 0 {
		return sum
	}

	var (
		totalLen   int
		executions = map[string]struct{}{}
		agents     = map[string]struct{}{}
		tagSet     = map[string]struct{}{}
		posHits    int
		negHits    int
	)
	first, last := items[0].Timestamp, items[0].Timestamp
	for _, it := range items {
		totalLen += len(it.Content)
		if it.Timestamp.Before(first) {
			first = it.Timestamp
		}
		if it.Timestamp.After(last) {
			last = it.Timestamp
		}
		if it.Metadata.ExecutionID != "" {
			executions[it.Metadata.ExecutionID] = struct{}{}
		}
		if it.Metadata.AgentID != "" {
			agents[it.Metadata.AgentID] = struct{}{}
		}
		if it.Metadata.HumanInteraction {
			sum.HumanInteractions++
		}
		if it.Metadata.ToolCall != "" {
			sum.ToolCalls++
		}
		for _, tag := range it.Metadata.Tags {
			tagSet[tag] = struct{}{}
		}
		lower := strings.ToLower(it.Content)
		for _, w := range positiveWords {
			if strings.Contains(lower, w) {
				posHits++
			}
		}
		for _, w := range negativeWords {
			if strings.Contains(lower, w) {
				negHits++
			}
		}
	}

	sum.TokenCount = totalLen / 4
	sum.TimeSpan = last.Sub(first)
	sum.Executions = len(executions)
	sum.Agents = len(agents)
	sum.KeyPoints = extractKeyPoints(items)
	sum.Topics = extractSummaryTopics(items, tagSet)
	switch {
	case posHits > negHits:
		sum.Sentiment = "positive"
	case negHits > posHits:
		sum.Sentiment = "negative"
	}
	return sum
}

// extractKeyPoints keeps questions and short high-importance statements,
// most recent last, capped at maxKeyPoints.
func extractKeyPoints(items []Item) []string {
	var points []string
	for _, it := range items {
		content := strings.TrimSpace(it.Content)
		if content == "" {
			continue
		}
		isQuestion := strings.Contains(content, "?")
		isImportant := it.Metadata.Importance >= 0.8 && len(content) <= 200
		if !isQuestion && !isImportant {
			continue
		}
		if len(content) > 200 {
			content = content[:200] + "..."
		}
		points = append(points, content)
	}
	if len(points) > maxKeyPoints {
		points = points[len(points)-maxKeyPoints:]
	}
	return points
}

// extractSummaryTopics unions explicit tags with keyword hits in content.
func extractSummaryTopics(items []Item, tagSet map[string]struct{}) []string {
	topics := make(map[string]struct{}, len(tagSet))
	for tag := range tagSet {
		topics[tag] = struct{}{}
	}
	for _, it := range items {
		lower := strings.ToLower(it.Content)
		for _, kw := range topicKeywords {
			if strings.Contains(lower, kw) {
				topics[kw] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(topics))
	for t := range topics {
		out = append(out, t)
	}
	sort.Strings(out)
	if len(out) > maxSummaryTopics {
		out = out[:maxSummaryTopics]
	}
	return out
}

// liveItems filters out items whose TTL has elapsed as of now.
func liveItems(items []Item, ttl time.Duration, now time.Time) []Item {
	if ttl <= 0 {
		return items
	}
	cutoff := now.Add(-ttl)
	live := items[:0:0]
	for _, it := range items {
		if it.Timestamp.After(cutoff) {
			live = append(live, it)
		}
	}
	return live
}
