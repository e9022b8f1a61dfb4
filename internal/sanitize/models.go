// Package sanitize is the anonymization gate: the only path by which text may
// reach the external analytical service. Scanning is pattern-based and leans
// toward recall; an indeterminate scan reads as a positive detection, and a
// single detected span blocks the whole text. There is no redaction mode.
package sanitize

import (
	"sort"

	id "sanctum/pkg/domain"
)

// SpanKind names the class of identifying information a detector matched.
type SpanKind string

const (
	KindPersonName    SpanKind = "person_name"
	KindDateOfBirth   SpanKind = "date_of_birth"
	KindDiagnosisCode SpanKind = "diagnosis_code"
	KindVerbatimQuote SpanKind = "verbatim_quote"
	KindSSN           SpanKind = "ssn"
	KindPhoneNumber   SpanKind = "phone_number"
	KindEmailAddress  SpanKind = "email_address"
	KindMRN           SpanKind = "medical_record_number"
)

// DetectedSpan is one classifier hit. Start and End are byte offsets into the
// scanned text. The excerpt stays in process: it never serializes and never
// reaches the ledger, which records kinds and offsets only.
type DetectedSpan struct {
	Kind  SpanKind `json:"kind"`
	Start int      `json:"start"`
	End   int      `json:"end"`

	Excerpt string `json:"-"`
}

// Decision is the gate outcome for one query.
type Decision string

const (
	DecisionAllowed Decision = "allowed"
	DecisionBlocked Decision = "blocked"
)

// Block reasons surfaced to callers and recorded in ledger details.
const (
	ReasonPHIDetected      = "phi_detected"
	ReasonDetectionFailure = "detection_failure"
)

// QueryResult is the outcome of one sanitize-and-query call. Text carries the
// unchanged input only when the decision is Allowed; Response carries the
// analytical service's answer when the call went through.
type QueryResult struct {
	Decision     Decision
	Reason       string
	Spans        []DetectedSpan
	Text         string
	Response     string
	AuditEntryID id.EntryID
}

// Kinds returns the sorted, deduplicated span kinds of a scan.
func Kinds(spans []DetectedSpan) []string {
	seen := make(map[string]struct{}, len(spans))
	var kinds []string
	for _, s := range spans {
		k := string(s.Kind)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
