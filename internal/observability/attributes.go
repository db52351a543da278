// Package observability provides pipeline and polling metrics.
package observability

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrKind    = "kind"
	attrOutcome = "outcome"
	attrPhase   = "phase"
)

// Poll outcomes
const (
	OutcomePending   = "pending"
	OutcomeReady     = "ready"
	OutcomeFailed    = "failed"
	OutcomeTransient = "transient"
)

// Run outcomes
const (
	RunComplete  = "complete"
	RunError     = "error"
	RunCancelled = "cancelled"
)

func kindAttr(kind string) attribute.KeyValue {
	return attribute.String(attrKind, kind)
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}

func phaseAttr(phase string) attribute.KeyValue {
	return attribute.String(attrPhase, phase)
}
