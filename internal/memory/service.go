package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/eternisai/agent-stream/internal/logger"
	"github.com/eternisai/agent-stream/internal/storage"
)

// Fact types, in the order they are rendered.
const (
	FactWorkContext     = "work_context"
	FactPersonalContext = "personal_context"
	FactTopOfMind       = "top_of_mind"
)

var sectionTitles = map[string]string{
	FactWorkContext:     "**Work context**",
	FactPersonalContext: "**Personal context**",
	FactTopOfMind:       "**Top of mind**",
}

// Memory is the formatted set of facts about one user.
type Memory struct {
	// Prompt is the text added to the system prompt; empty without facts.
	Prompt string
	// Count is the number of facts included in Prompt.
	Count int
}

// Service handles user memory/facts retrieval and formatting.
type Service struct {
	facts  storage.FactStore
	logger *logger.Logger
}

// NewService creates a new memory service.
func NewService(facts storage.FactStore, log *logger.Logger) *Service {
	return &Service{
		facts:  facts,
		logger: log.WithComponent("memory"),
	}
}

// GetFormattedMemory fetches all facts for a user and formats them into a prompt string.
func (s *Service) GetFormattedMemory(ctx context.Context, userID string) (Memory, error) {
	if userID == "" {
		return Memory{}, nil
	}

	facts, err := s.facts.ListFacts(ctx, userID)
	if err != nil {
		s.logger.Error("failed to fetch user facts",
			"error", err.Error(),
			"user_id", userID,
		)
		return Memory{}, fmt.Errorf("failed to fetch user facts: %w", err)
	}

	mem := Format(facts)
	if mem.Count > 0 {
		s.logger.Debug("formatted user memory",
			"user_id", userID,
			"fact_count", mem.Count,
		)
	}
	return mem, nil
}

// Format groups facts by type. Facts of unknown types are left out.
func Format(facts []storage.Fact) Memory {
	grouped := map[string][]string{}
	count := 0
	for _, fact := range facts {
		if _, ok := sectionTitles[fact.FactType]; !ok {
			continue
		}
		grouped[fact.FactType] = append(grouped[fact.FactType], "- "+fact.FactBody)
		count++
	}
	if count == 0 {
		return Memory{}
	}

	sections := []string{"Users facts and memories:"}
	for _, factType := range []string{FactWorkContext, FactPersonalContext, FactTopOfMind} {
		if lines := grouped[factType]; len(lines) > 0 {
			sections = append(sections, sectionTitles[factType], strings.Join(lines, "\n"))
		}
	}

	return Memory{Prompt: strings.Join(sections, "\n\n"), Count: count}
}
