package sanitize

import (
	"context"
	"regexp"
	"sort"

	dErrors "sanctum/pkg/domain-errors"
)

// DefaultMaxTextBytes bounds a single scan. Oversized text cannot be scanned
// confidently, so it fails closed rather than being truncated.
const DefaultMaxTextBytes = 64 << 10

// detector pairs a span kind with one pattern. When the pattern has a capture
// group the group is the span; otherwise the whole match is.
type detector struct {
	kind SpanKind
	re   *regexp.Regexp
}

// Detection patterns. Heuristics lean toward recall: a false block costs the
// caller a retry with better-abstracted text, a false allow leaks PHI.
var (
	// Honorific followed by capitalized name(s): "Mr. John Smith", "Dr Alvarez".
	reHonorificName = regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Mx|Dr|Prof)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?\b`)
	// Clinical reference by name: "client John Smith", "patient Doe".
	reClientName = regexp.MustCompile(`\b(?i:client|patient)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)\b`)
	// A TitleCase pair after a lowercase word reads as a mid-sentence name:
	// "saw Jane Doe yesterday". Sentence-leading pairs are not caught; the
	// honorific and clinical patterns cover the common phrasings.
	reMidSentenceName = regexp.MustCompile(`[a-z0-9][,;:]?\s+([A-Z][a-z]+\s+[A-Z][a-z]+)\b`)

	reISODate   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	reSlashDate = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`)
	reMonthDate = regexp.MustCompile(`(?i)\b(?:january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`)
	// The marker alone is enough; a birth date usually follows in some format.
	reDOBMarker = regexp.MustCompile(`(?i)\b(?:dob|d\.o\.b\.?|date\s+of\s+birth|born\s+on)\b`)

	// ICD-10 code shape: letter, two digits, optional decimal subcode (F41.1).
	// Matches some non-codes ("B12"); that is the accepted recall bias.
	reICD10 = regexp.MustCompile(`\b[A-Z]\d{2}(?:\.\d{1,4})?\b`)
	reDSM   = regexp.MustCompile(`(?i)\bDSM-?(?:IV|V|5)(?:-TR)?\b`)

	// Long quoted runs read as verbatim session content.
	reLongQuote = regexp.MustCompile(`["“][^"”]{30,}["”]`)

	reSSN = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	// No leading boundary assertion: "(" sits between two non-word
	// characters, so \b would reject the parenthesized form.
	rePhone = regexp.MustCompile(`(?:\+?1[-.\s])?(?:\(\d{3}\)\s?|\b\d{3}[-.\s])\d{3}[-.\s]\d{4}\b`)
	reEmail = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	reMRN   = regexp.MustCompile(`(?i)\b(?:mrn|medical\s+record(?:\s+number)?)\b[:#\s]*\d{3,}\b`)
)

func defaultDetectors() []detector {
	return []detector{
		{KindPersonName, reHonorificName},
		{KindPersonName, reClientName},
		{KindPersonName, reMidSentenceName},
		{KindDateOfBirth, reISODate},
		{KindDateOfBirth, reSlashDate},
		{KindDateOfBirth, reMonthDate},
		{KindDateOfBirth, reDOBMarker},
		{KindDiagnosisCode, reICD10},
		{KindDiagnosisCode, reDSM},
		{KindVerbatimQuote, reLongQuote},
		{KindSSN, reSSN},
		{KindPhoneNumber, rePhone},
		{KindEmailAddress, reEmail},
		{KindMRN, reMRN},
	}
}

// Classifier scans outbound text for identifying information. Stateless and
// safe for concurrent use; Scan is a pure function of its text.
type Classifier struct {
	maxTextBytes int
	detectors    []detector
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithMaxTextBytes sets the scan size limit.
func WithMaxTextBytes(n int) ClassifierOption {
	return func(c *Classifier) {
		if n > 0 {
			c.maxTextBytes = n
		}
	}
}

// NewClassifier constructs a classifier with the standard detector set.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		maxTextBytes: DefaultMaxTextBytes,
		detectors:    defaultDetectors(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Scan runs every detector over text and returns all hits ordered by offset.
// Empty text is trivially clean. Any condition that prevents a complete,
// trustworthy scan (oversized input, context cancellation, a panicking
// detector) returns DetectionFailure; callers must treat that as Blocked,
// never Allowed.
func (c *Classifier) Scan(ctx context.Context, text string) (spans []DetectedSpan, err error) {
	defer func() {
		if r := recover(); r != nil {
			spans = nil
			err = dErrors.Newf(dErrors.CodeDetectionFailure, "detector panicked: %v", r)
		}
	}()

	if text == "" {
		return nil, nil
	}
	if len(text) > c.maxTextBytes {
		return nil, dErrors.Newf(dErrors.CodeDetectionFailure, "text exceeds the %d byte scan limit", c.maxTextBytes)
	}

	for _, d := range c.detectors {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, dErrors.Wrap(ctxErr, dErrors.CodeDetectionFailure, "scan aborted")
		}
		spans = append(spans, d.scan(text)...)
	}
	return dedupeSpans(spans), nil
}

func (d detector) scan(text string) []DetectedSpan {
	var spans []DetectedSpan
	for _, m := range d.re.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		if len(m) >= 4 && m[2] >= 0 {
			start, end = m[2], m[3]
		}
		spans = append(spans, DetectedSpan{
			Kind:    d.kind,
			Start:   start,
			End:     end,
			Excerpt: text[start:end],
		})
	}
	return spans
}

// dedupeSpans drops exact duplicates (several name patterns can hit the same
// words) and orders spans by position.
func dedupeSpans(spans []DetectedSpan) []DetectedSpan {
	if len(spans) == 0 {
		return nil
	}
	type key struct {
		kind       SpanKind
		start, end int
	}
	seen := make(map[key]struct{}, len(spans))
	out := spans[:0]
	for _, s := range spans {
		k := key{s.Kind, s.Start, s.End}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		if out[i].End != out[j].End {
			return out[i].End < out[j].End
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}
