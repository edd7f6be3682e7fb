package model

import "time"

// RuleScope determines which band of the precedence order a rule belongs to.
// Scopes are evaluated VENDOR first, then REGEX, then SOURCE_KIND defaults;
// scopes are never mixed within one pass.
type RuleScope string

// Rule scope constants.
const (
	ScopeVendor     RuleScope = "VENDOR"
	ScopeRegex      RuleScope = "REGEX"
	ScopeSourceKind RuleScope = "SOURCE_KIND"
)

// Policy is the payment-urgency bucket assigned to a cash outflow.
type Policy string

// Policy constants.
const (
	PolicyMustPay       Policy = "MUST_PAY"
	PolicyCanDelay      Policy = "CAN_DELAY"
	PolicyDiscretionary Policy = "DISCRETIONARY"
	PolicyOther         Policy = "OTHER"
)

// CategoryUnknown is assigned when no rule in any scope matches.
const CategoryUnknown = "UNKNOWN"

// ClassificationRule maps descriptive fields of a ledger entry to a business
// category and payment-urgency policy. Rules are read-only policy input for a
// classification run; lower priority values are evaluated first.
type ClassificationRule struct {
	Name       string
	Scope      RuleScope
	Pattern    string    // substring (VENDOR) or regular expression (REGEX)
	Kind       EventKind // SOURCE_KIND only: the event kind this default covers
	Category   string
	Account    string // ledger account the category posts to
	Policy     Policy
	Priority   int
	Confidence float64
}

// ClassificationStatus indicates how a classification result is routed.
type ClassificationStatus string

// Classification status constants.
const (
	StatusAutoPosted  ClassificationStatus = "AUTO_POSTED"
	StatusNeedsReview ClassificationStatus = "NEEDS_REVIEW"
)

// Classification is the persisted outcome of classifying one ledger entry.
type Classification struct {
	ClassifiedAt  time.Time
	LedgerEntryID string
	Category      string
	Account       string
	Policy        Policy
	Status        ClassificationStatus
	RuleName      string
	Notes         string
	Confidence    float64
}
