// Package rules implements the deterministic, priority-ordered rule
// classification layer that maps ledger entries to business categories and
// payment-urgency policies.
package rules

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/finfold/reckon/internal/common"
	"github.com/finfold/reckon/internal/model"
	"github.com/finfold/reckon/internal/timing"
)

// Settings holds the global classification policy supplied alongside the
// rules: accounts that may never be auto-posted to, and the confidence bands
// that gate automatic posting versus human review.
type Settings struct {
	LockedAccounts    []string `yaml:"locked_accounts"`
	AutoPostThreshold float64  `yaml:"auto_post_threshold"`
	ReviewThreshold   float64  `yaml:"review_threshold"`
}

// Ruleset is a versioned, ordered list of classification rules plus global
// settings. It is read-only input for a classification run.
type Ruleset struct {
	Settings Settings
	Rules    []model.ClassificationRule
	Cadences []timing.CadenceRule
	Version  int
}

// ruleDoc is the YAML wire shape of a single rule.
type ruleDoc struct {
	Name       string  `yaml:"name"`
	Scope      string  `yaml:"scope"`
	Pattern    string  `yaml:"pattern"`
	Kind       string  `yaml:"kind"`
	Category   string  `yaml:"category"`
	Account    string  `yaml:"account"`
	Policy     string  `yaml:"policy"`
	Priority   int     `yaml:"priority"`
	Confidence float64 `yaml:"confidence"`
}

// rulesetDoc is the YAML wire shape of a ruleset file.
type rulesetDoc struct {
	Settings Settings             `yaml:"settings"`
	Rules    []ruleDoc            `yaml:"rules"`
	Cadences []timing.CadenceRule `yaml:"cadences"`
	Version  int                  `yaml:"version"`
}

// LoadRuleset reads and validates a ruleset from a YAML file.
func LoadRuleset(path string) (*Ruleset, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("failed to open ruleset: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseRuleset(f)
}

// ParseRuleset decodes and validates a ruleset document.
func ParseRuleset(r io.Reader) (*Ruleset, error) {
	var doc rulesetDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode ruleset: %w", err)
	}

	rs := &Ruleset{
		Version: doc.Version,
		Settings: Settings{
			LockedAccounts:    doc.Settings.LockedAccounts,
			AutoPostThreshold: doc.Settings.AutoPostThreshold,
			ReviewThreshold:   doc.Settings.ReviewThreshold,
		},
	}

	if rs.Settings.AutoPostThreshold == 0 {
		rs.Settings.AutoPostThreshold = 0.9
	}
	if rs.Settings.ReviewThreshold == 0 {
		rs.Settings.ReviewThreshold = 0.5
	}
	if rs.Settings.ReviewThreshold > rs.Settings.AutoPostThreshold {
		return nil, fmt.Errorf("%w: review threshold %.2f exceeds auto-post threshold %.2f",
			common.ErrInvalidConfig, rs.Settings.ReviewThreshold, rs.Settings.AutoPostThreshold)
	}

	for i, rd := range doc.Rules {
		rule, err := convertRule(rd)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rd.Name, err)
		}
		rs.Rules = append(rs.Rules, rule)
	}

	for i, cad := range doc.Cadences {
		if cad.Category == "" {
			return nil, fmt.Errorf("cadence %d: %w: category is required", i, common.ErrInvalidConfig)
		}
		if cad.AnchorDay < 1 || cad.AnchorDay > 31 {
			return nil, fmt.Errorf("cadence %d (%s): %w: anchor day must be between 1 and 31",
				i, cad.Category, common.ErrInvalidConfig)
		}
		if cad.ToleranceDays < 0 {
			return nil, fmt.Errorf("cadence %d (%s): %w: tolerance must not be negative",
				i, cad.Category, common.ErrInvalidConfig)
		}
		rs.Cadences = append(rs.Cadences, cad)
	}

	return rs, nil
}

func convertRule(rd ruleDoc) (model.ClassificationRule, error) {
	var zero model.ClassificationRule

	if rd.Name == "" {
		return zero, fmt.Errorf("%w: rule name is required", common.ErrInvalidConfig)
	}
	if rd.Category == "" {
		return zero, fmt.Errorf("%w: category is required", common.ErrInvalidConfig)
	}

	scope := model.RuleScope(rd.Scope)
	switch scope {
	case model.ScopeVendor, model.ScopeRegex:
		if rd.Pattern == "" {
			return zero, fmt.Errorf("%w: pattern is required for scope %s", common.ErrInvalidConfig, scope)
		}
	case model.ScopeSourceKind:
		// Pattern unused; kind may be empty to act as the catch-all default.
	default:
		return zero, fmt.Errorf("%w: unknown scope %q", common.ErrInvalidConfig, rd.Scope)
	}

	if scope == model.ScopeRegex {
		if _, err := regexp.Compile("(?i)" + rd.Pattern); err != nil {
			return zero, fmt.Errorf("%w: invalid regex %q: %v", common.ErrInvalidConfig, rd.Pattern, err)
		}
	}

	policy := model.Policy(rd.Policy)
	switch policy {
	case model.PolicyMustPay, model.PolicyCanDelay, model.PolicyDiscretionary, model.PolicyOther:
	case "":
		policy = model.PolicyOther
	default:
		return zero, fmt.Errorf("%w: unknown policy %q", common.ErrInvalidConfig, rd.Policy)
	}

	confidence := rd.Confidence
	if confidence == 0 {
		confidence = 1.0
	}
	if confidence < 0 || confidence > 1 {
		return zero, fmt.Errorf("%w: confidence must be between 0 and 1", common.ErrInvalidConfig)
	}

	return model.ClassificationRule{
		Name:       rd.Name,
		Scope:      scope,
		Pattern:    rd.Pattern,
		Kind:       model.EventKind(rd.Kind),
		Category:   rd.Category,
		Account:    rd.Account,
		Policy:     policy,
		Priority:   rd.Priority,
		Confidence: confidence,
	}, nil
}

// byScope partitions rules into precedence bands and sorts each band by
// ascending priority. Equal priorities keep declaration order; that is a
// documented assumption, not a contract.
func byScope(rules []model.ClassificationRule) map[model.RuleScope][]model.ClassificationRule {
	bands := make(map[model.RuleScope][]model.ClassificationRule)
	for _, rule := range rules {
		bands[rule.Scope] = append(bands[rule.Scope], rule)
	}
	for scope := range bands {
		band := bands[scope]
		sort.SliceStable(band, func(i, j int) bool {
			return band[i].Priority < band[j].Priority
		})
	}
	return bands
}
