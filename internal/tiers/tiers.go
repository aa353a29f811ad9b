package tiers

import (
	"fmt"
	"slices"
	"time"
)

// Tier represents a subscription tier.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// Config defines the limits and features for a subscription tier.
//
// Message limits use a sliding one-hour window rather than a fixed reset
// time: a message sent at 10:15 stops counting at 11:15.
type Config struct {
	// Identity
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`

	// Streamed replies per sliding hour (0 = unlimited).
	HourlyMessages int `json:"hourly_messages"`

	// Allowed features (empty = no special features)
	AllowedFeatures []Feature `json:"allowed_features"`
}

// Feature represents a feature that can be allowed per tier.
type Feature string

const (
	// FeatureResearchMode enables deepResearchMode on stream requests.
	FeatureResearchMode Feature = "research_mode"
)

// Window is the rate-limit window used by every tier.
const Window = time.Hour

// Table maps tier names to their configurations.
type Table map[Tier]Config

// Configs is the default tier table.
var Configs = Table{
	TierFree: {
		Name:           "free",
		DisplayName:    "Free",
		HourlyMessages: 20,
		// Free tier does NOT have research mode
		AllowedFeatures: []Feature{},
	},
	TierPro: {
		Name:            "pro",
		DisplayName:     "Pro",
		HourlyMessages:  200,
		AllowedFeatures: []Feature{FeatureResearchMode},
	},
}

// WithHourlyLimits returns a copy of t with the hourly message limits replaced.
// Non-positive values keep the existing limit.
func (t Table) WithHourlyLimits(free, pro int) Table {
	out := make(Table, len(t))
	for k, v := range t {
		v.AllowedFeatures = slices.Clone(v.AllowedFeatures)
		out[k] = v
	}
	if c, ok := out[TierFree]; ok && free > 0 {
		c.HourlyMessages = free
		out[TierFree] = c
	}
	if c, ok := out[TierPro]; ok && pro > 0 {
		c.HourlyMessages = pro
		out[TierPro] = c
	}
	return out
}

// Get returns the config for a tier.
func (t Table) Get(tier Tier) (Config, error) {
	config, exists := t[tier]
	if !exists {
		return Config{}, fmt.Errorf("unknown tier: %s", tier)
	}
	return config, nil
}

// Get returns the default config for a tier.
func Get(tier Tier) (Config, error) {
	return Configs.Get(tier)
}

// IsFeatureAllowed checks if a feature is allowed for this tier.
func (c Config) IsFeatureAllowed(feature Feature) bool {
	return slices.Contains(c.AllowedFeatures, feature)
}

// Unlimited reports whether the tier has no hourly message limit.
func (c Config) Unlimited() bool {
	return c.HourlyMessages <= 0
}
