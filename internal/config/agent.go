package config

import (
	"errors"
	"fmt"
)

// AgentConfig controls the research agent. It is read from the `agent:`
// section of the config file.
type AgentConfig struct {
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`

	// Query planning.
	MaxQueries         int `yaml:"max_queries"`
	ResearchMaxQueries int `yaml:"research_max_queries"`

	// Pages fetched per answer.
	MaxSources         int `yaml:"max_sources"`
	ResearchMaxSources int `yaml:"research_max_sources"`

	ScrapeConcurrency    int `yaml:"scrape_concurrency"`
	ScrapeTimeoutSeconds int `yaml:"scrape_timeout_seconds"`
	MaxPageBytes         int `yaml:"max_page_bytes"`

	// Number of earlier chat messages passed to the agent.
	HistoryLimit int `yaml:"history_limit"`
}

const defaultSystemPrompt = `You are a helpful research assistant. Answer clearly and cite the sources you were given by their URL when you rely on them. If the sources do not answer the question, say so.`

// DefaultAgentConfig returns the settings used when the config file is absent.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Model:                "gpt-4o-mini",
		SystemPrompt:         defaultSystemPrompt,
		MaxQueries:           1,
		ResearchMaxQueries:   3,
		MaxSources:           3,
		ResearchMaxSources:   6,
		ScrapeConcurrency:    4,
		ScrapeTimeoutSeconds: 10,
		MaxPageBytes:         2 << 20,
		HistoryLimit:         20,
	}
}

// Validate checks the agent settings.
func (c *AgentConfig) Validate() error {
	if c.Model == "" {
		return errors.New("agent.model must not be empty")
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = defaultSystemPrompt
	}

	for name, v := range map[string]int{
		"max_queries":            c.MaxQueries,
		"research_max_queries":   c.ResearchMaxQueries,
		"max_sources":            c.MaxSources,
		"research_max_sources":   c.ResearchMaxSources,
		"scrape_concurrency":     c.ScrapeConcurrency,
		"scrape_timeout_seconds": c.ScrapeTimeoutSeconds,
		"max_page_bytes":         c.MaxPageBytes,
	} {
		if v <= 0 {
			return fmt.Errorf("agent.%s must be positive, got %d", name, v)
		}
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("agent.history_limit must not be negative, got %d", c.HistoryLimit)
	}
	return nil
}
