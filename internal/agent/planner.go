package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// searchHints are phrases that suggest a question needs fresh information.
var searchHints = []string{
	"latest", "today", "current", "currently", "recent", "news", "this week",
	"this year", "price", "release", "version", "who won", "who is", "search",
	"look up", "weather", "score", "2025", "2026",
}

// NeedsSearch reports whether a prompt should be answered with web search.
// Research mode always searches.
func NeedsSearch(prompt string, researchMode bool) bool {
	if researchMode {
		return true
	}
	lower := strings.ToLower(prompt)
	for _, hint := range searchHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

const maxQueryLen = 200

const plannerPrompt = `You plan web searches. Reply with a JSON array of at most %d short search queries that together answer the user's question. Reply with the JSON array only.`

// PlanQueries returns up to max search queries for prompt. With max > 1 it
// asks the model and falls back to the prompt itself when the model is
// unavailable or its answer cannot be parsed.
func PlanQueries(ctx context.Context, model ChatModel, prompt string, max int) []string {
	fallback := []string{truncate(strings.TrimSpace(prompt), maxQueryLen)}
	if max <= 1 || model == nil {
		return fallback
	}

	answer, err := model.Complete(ctx, []ChatMessage{
		{Role: RoleSystem, Content: fmt.Sprintf(plannerPrompt, max)},
		{Role: RoleUser, Content: prompt},
	})
	if err != nil {
		return fallback
	}

	queries := parseQueries(answer, max)
	if len(queries) == 0 {
		return fallback
	}
	return queries
}

func parseQueries(answer string, max int) []string {
	answer = strings.TrimSpace(answer)
	answer = strings.TrimPrefix(answer, "```json")
	answer = strings.TrimPrefix(answer, "```")
	answer = strings.TrimSuffix(answer, "```")

	var raw []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(answer)), &raw); err != nil {
		return nil
	}

	seen := make(map[string]bool, len(raw))
	var queries []string
	for _, q := range raw {
		q = truncate(strings.TrimSpace(q), maxQueryLen)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		queries = append(queries, q)
		if len(queries) == max {
			break
		}
	}
	return queries
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
