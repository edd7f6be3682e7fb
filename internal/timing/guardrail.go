// Package timing flags ledger entries whose settlement timing deviates from
// the expected cadence of their category. Checks are advisory: they produce
// exceptions for review and never block ledger writes or classification.
package timing

import (
	"fmt"

	"github.com/finfold/reckon/internal/model"
)

// CadenceRule describes the expected posting cadence for a category: a
// monthly anchor day plus a tolerance window in days.
type CadenceRule struct {
	Category      string `yaml:"category"`
	AnchorDay     int    `yaml:"anchor_day"`
	ToleranceDays int    `yaml:"tolerance_days"`
}

// cadenceWrap is the modulus for circular day-of-month distance. Using the
// shortest month keeps end-of-month postings within reach of a day-1 anchor
// in every month, at the cost of slightly loose windows in 31-day months.
const cadenceWrap = 28

// Guardrail checks classified entries against configured cadences.
type Guardrail struct {
	rules map[string]CadenceRule
}

// NewGuardrail builds a guardrail from cadence configuration. Categories
// without a cadence rule are never checked.
func NewGuardrail(rules []CadenceRule) *Guardrail {
	g := &Guardrail{rules: make(map[string]CadenceRule, len(rules))}
	for _, rule := range rules {
		g.rules[rule.Category] = rule
	}
	return g
}

// Check returns a TIMING exception when the entry posted outside the
// tolerance window around its category's anchor day, or nil when the timing
// is unremarkable or no cadence is configured for the category.
func (g *Guardrail) Check(entry model.LedgerEntry, category string) *model.Exception {
	rule, ok := g.rules[category]
	if !ok {
		return nil
	}

	day := entry.PostedAt.Day()
	dist := wrapDistance(day, rule.AnchorDay)
	if dist <= rule.ToleranceDays {
		return nil
	}

	return &model.Exception{
		CompanyID:     entry.CompanyID,
		Kind:          model.ExceptionTiming,
		LedgerEntryID: entry.ID,
		RawEventID:    entry.Provenance.SourceEventID,
		Reason: fmt.Sprintf("%s posted on day %d, %d days from expected anchor day %d (tolerance ±%d)",
			category, day, dist, rule.AnchorDay, rule.ToleranceDays),
	}
}

// wrapDistance measures circular day-of-month distance so a posting late in
// the month is close to an early anchor of the next period.
func wrapDistance(day, anchor int) int {
	d := (day - anchor) % cadenceWrap
	if d < 0 {
		d += cadenceWrap
	}
	if cadenceWrap-d < d {
		return cadenceWrap - d
	}
	return d
}
