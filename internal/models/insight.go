package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// InsightCategory tags an insight with the area of finances it concerns
type InsightCategory string

const (
	InsightCategorySpending   InsightCategory = "spending"
	InsightCategorySavings    InsightCategory = "savings"
	InsightCategoryIncome     InsightCategory = "income"
	InsightCategoryInvestment InsightCategory = "investment"
	InsightCategoryDebt       InsightCategory = "debt"
	InsightCategoryGoal       InsightCategory = "goal"
)

// InsightCategories lists every valid category
var InsightCategories = []InsightCategory{
	InsightCategorySpending,
	InsightCategorySavings,
	InsightCategoryIncome,
	InsightCategoryInvestment,
	InsightCategoryDebt,
	InsightCategoryGoal,
}

// IsValid reports whether c is a known category
func (c InsightCategory) IsValid() bool {
	for _, known := range InsightCategories {
		if c == known {
			return true
		}
	}
	return false
}

// InsightCacheEntry is one generated insight. Entries with a nil InvalidatedAt are active.
type InsightCacheEntry struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Category      InsightCategory `json:"category"`
	Title         string          `json:"title"`
	Body          string          `json:"body"`
	Priority      int             `json:"priority"`
	GeneratedAt   time.Time       `json:"generated_at"`
	InvalidatedAt *time.Time      `json:"invalidated_at,omitempty"`
	Snapshot      json.RawMessage `json:"-"`
}

// IsActive reports whether the entry has not been invalidated
func (e *InsightCacheEntry) IsActive() bool {
	return e.InvalidatedAt == nil
}
