package models

import (
	"time"

	"gorm.io/datatypes"
)

// FeatureFlag is a rollout-gated flag definition. Percentage, segment,
// environment and date filters are independent gates; every configured gate
// must pass for the flag to be on for a given user.
type FeatureFlag struct {
	Key         string `gorm:"primaryKey" json:"key"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `gorm:"default:true" json:"enabled"`
	// Value is an optional static payload (bool, string, number or object)
	// returned instead of plain true when the flag is on.
	Value datatypes.JSON `gorm:"type:jsonb" json:"value,omitempty"`
	// RolloutPercentage gates by deterministic user bucket when set (0-100).
	// nil means no percentage gate.
	RolloutPercentage *int                        `json:"rollout_percentage,omitempty"`
	Segments          datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"segments,omitempty"`
	Environments      datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"environments,omitempty"`
	StartDate         *time.Time                  `json:"start_date,omitempty"`
	EndDate           *time.Time                  `json:"end_date,omitempty"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
}

// UserContext is the ambient evaluation context for feature flags. It is set
// per request/session, not stored.
type UserContext struct {
	UserID      string   `json:"user_id,omitempty"`
	Tier        string   `json:"tier,omitempty"`
	Segments    []string `json:"segments,omitempty"`
	Environment string   `json:"environment,omitempty"`
}

// FlagConfig is the import/export bundle for admin tooling and test fixtures.
type FlagConfig struct {
	Flags       map[string]FeatureFlag `json:"flags"`
	UserContext UserContext            `json:"user_context"`
	Overrides   map[string]any         `json:"overrides,omitempty"`
}
