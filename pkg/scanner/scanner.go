// Package scanner inspects uploaded payloads for malicious content before
// they are persisted.
//
// Scanning is best-effort. Every variant reports one of three verdicts, and
// callers treat Unavailable as Clean: a missing or broken scanner never
// blocks an upload on its own.
package scanner

import "context"

// Verdict is the outcome of a scan.
type Verdict int

const (
	// Clean means the scanner ran and found nothing.
	Clean Verdict = iota

	// Suspicious means the scanner flagged the payload.
	Suspicious

	// Unavailable means no scanner could inspect the payload.
	Unavailable
)

func (v Verdict) String() string {
	switch v {
	case Clean:
		return "clean"
	case Suspicious:
		return "suspicious"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Scanner inspects a payload.
type Scanner interface {
	// Scan inspects data and returns its verdict. It must not retain data.
	Scan(ctx context.Context, data []byte) Verdict

	// Name identifies the scanner in logs and metrics.
	Name() string
}

// Absent is the scanner used when none is installed. It always reports
// Unavailable.
type Absent struct{}

func (Absent) Scan(context.Context, []byte) Verdict { return Unavailable }

func (Absent) Name() string { return "none" }

// Func adapts a function to the Scanner interface.
type Func func(ctx context.Context, data []byte) Verdict

func (f Func) Scan(ctx context.Context, data []byte) Verdict { return f(ctx, data) }

func (f Func) Name() string { return "func" }
