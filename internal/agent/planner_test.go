package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeedsSearch(t *testing.T) {
	tests := []struct {
		prompt   string
		research bool
		want     bool
	}{
		{"What is the latest Go release?", false, true},
		{"Who won the match today", false, true},
		{"Write a haiku about autumn", false, false},
		{"Write a haiku about autumn", true, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NeedsSearch(tt.prompt, tt.research), tt.prompt)
	}
}

func TestPlanQueriesSingleQueryUsesPrompt(t *testing.T) {
	model := &fakeModel{completion: `["ignored"]`}

	got := PlanQueries(context.Background(), model, "  go 1.24 iterators  ", 1)

	assert.Equal(t, []string{"go 1.24 iterators"}, got)
	assert.Zero(t, model.completeCalls)
}

func TestPlanQueriesParsesModelAnswer(t *testing.T) {
	model := &fakeModel{completion: "```json\n[\"go iterators\", \"Go Iterators\", \"range over func\", \"\", \"extra\"]\n```"}

	got := PlanQueries(context.Background(), model, "explain go iterators", 2)

	assert.Equal(t, []string{"go iterators", "range over func"}, got)
}

func TestPlanQueriesFallsBack(t *testing.T) {
	long := strings.Repeat("é", 150)

	tests := []struct {
		name  string
		model *fakeModel
	}{
		{"model error", &fakeModel{completeErr: errors.New("boom")}},
		{"not json", &fakeModel{completion: "search for things"}},
		{"empty array", &fakeModel{completion: "[]"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanQueries(context.Background(), tt.model, long, 3)
			assert.Len(t, got, 1)
			assert.LessOrEqual(t, len(got[0]), maxQueryLen)
			assert.True(t, strings.HasPrefix(long, got[0]))
		})
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	assert.Equal(t, "ab", truncate("ab", 5))
	assert.Equal(t, "a", truncate("aé", 2))
	assert.Equal(t, "aé", truncate("aéb", 3))
}
