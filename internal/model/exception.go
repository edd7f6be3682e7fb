package model

import "time"

// ExceptionKind classifies an anomaly record.
type ExceptionKind string

// ExceptionTiming flags a ledger entry posted outside its expected cadence
// window.
const ExceptionTiming ExceptionKind = "TIMING"

// Exception is an advisory anomaly surfaced for human review. The engine
// creates exceptions but never resolves them on its own, and an exception
// never blocks ledger writes or classification.
type Exception struct {
	CreatedAt     time.Time
	ID            string
	CompanyID     string
	Kind          ExceptionKind
	Reason        string
	LedgerEntryID string
	RawEventID    string
}
