package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/finfold/reckon/internal/model"
)

// Input carries the descriptive fields of a ledger entry that classification
// may inspect.
type Input struct {
	Description string
	Kind        model.EventKind
	Account     string
}

// Result is the outcome of classifying one input. Classification itself is
// deterministic; Status reflects the separate threshold/locked-account policy
// gate applied afterwards.
type Result struct {
	Category       string
	Account        string
	Policy         model.Policy
	RuleName       string
	Note           string
	Status         model.ClassificationStatus
	Confidence     float64
	LockedOverride bool
}

// scopeOrder is the fixed precedence of rule bands. Scopes are never mixed
// within one pass.
var scopeOrder = []model.RuleScope{model.ScopeVendor, model.ScopeRegex, model.ScopeSourceKind}

// Classifier evaluates a loaded ruleset against ledger entries.
type Classifier struct {
	bands    map[model.RuleScope][]model.ClassificationRule
	compiled map[string]*regexp.Regexp
	locked   map[string]struct{}
	settings Settings
}

// NewClassifier builds a classifier from a validated ruleset. Regex patterns
// are compiled once here, case-insensitively.
func NewClassifier(rs *Ruleset) (*Classifier, error) {
	c := &Classifier{
		bands:    byScope(rs.Rules),
		compiled: make(map[string]*regexp.Regexp),
		locked:   make(map[string]struct{}, len(rs.Settings.LockedAccounts)),
		settings: rs.Settings,
	}

	for _, rule := range c.bands[model.ScopeRegex] {
		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: invalid regex: %w", rule.Name, err)
		}
		c.compiled[rule.Name] = re
	}

	for _, account := range rs.Settings.LockedAccounts {
		c.locked[account] = struct{}{}
	}

	return c, nil
}

// Classify evaluates the input against each scope band in precedence order.
// Within a band, rules run in ascending priority; the first match wins and
// evaluation stops. No rule matching anywhere yields UNKNOWN/OTHER rather
// than a guess.
func (c *Classifier) Classify(input Input) Result {
	for _, scope := range scopeOrder {
		for _, rule := range c.bands[scope] {
			if !c.matches(rule, input) {
				continue
			}
			return c.gate(Result{
				Category:   rule.Category,
				Account:    rule.Account,
				Policy:     rule.Policy,
				RuleName:   rule.Name,
				Confidence: rule.Confidence,
			})
		}
	}

	return Result{
		Category: model.CategoryUnknown,
		Policy:   model.PolicyOther,
		Status:   model.StatusNeedsReview,
		Note:     "no rule matched",
	}
}

func (c *Classifier) matches(rule model.ClassificationRule, input Input) bool {
	switch rule.Scope {
	case model.ScopeVendor:
		return strings.Contains(strings.ToLower(input.Description), strings.ToLower(rule.Pattern))
	case model.ScopeRegex:
		re, ok := c.compiled[rule.Name]
		return ok && re.MatchString(input.Description)
	case model.ScopeSourceKind:
		return rule.Kind == "" || rule.Kind == input.Kind
	}
	return false
}

// gate applies the policy checks that follow deterministic matching: the
// locked-accounts override, then the confidence thresholds deciding whether
// the result posts automatically or queues for human confirmation.
func (c *Classifier) gate(r Result) Result {
	if _, locked := c.locked[r.Account]; locked {
		r.Status = model.StatusNeedsReview
		r.LockedOverride = true
		r.Note = fmt.Sprintf("account %s is locked; manual review required", r.Account)
		return r
	}

	switch {
	case r.Confidence >= c.settings.AutoPostThreshold:
		r.Status = model.StatusAutoPosted
	case r.Confidence >= c.settings.ReviewThreshold:
		r.Status = model.StatusNeedsReview
	default:
		r.Status = model.StatusNeedsReview
		r.Note = "confidence below review threshold"
	}
	return r
}
