package dispatcher

import (
	"context"
	"strings"
)

// Priority is a queue tier. Lower values are served first.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
	numPriorities
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	}
	return "unknown"
}

// Class is the resource budget an execution draws from.
type Class int

const (
	ClassAccelerator Class = iota
	ClassGeneral
	numClasses
)

func (c Class) String() string {
	switch c {
	case ClassAccelerator:
		return "accelerator"
	case ClassGeneral:
		return "general"
	}
	return "unknown"
}

// Request tags recognized by PriorityFor.
const (
	TagEvidence   = "evidence"
	TagRealtime   = "realtime"
	TagBackground = "background"
)

var transcriptionPatterns = []string{"whisper", "transcri", "speech"}

// Request is one inference submission.
type Request struct {
	ModelID string
	Input   any
	Tags    []string
}

// Runner executes inference against resident models. *registry.Registry
// implements it.
type Runner interface {
	Run(ctx context.Context, modelID string, input any) (any, error)
	RunBatch(ctx context.Context, modelID string, inputs []any) ([]any, []error)
}

// PriorityFor assigns the queue tier from tags and the target model:
// evidence work and realtime transcription go first, background work last.
func PriorityFor(modelID string, tags []string) Priority {
	if hasTag(tags, TagEvidence) {
		return PriorityHigh
	}
	if hasTag(tags, TagRealtime) && containsAny(modelID, transcriptionPatterns) {
		return PriorityHigh
	}
	if hasTag(tags, TagBackground) {
		return PriorityLow
	}
	return PriorityNormal
}

// ClassFor maps small models to the general-purpose budget and everything
// else to the accelerator.
func ClassFor(modelID string) Class {
	if containsAny(modelID, []string{"tiny", "small"}) {
		return ClassGeneral
	}
	return ClassAccelerator
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if strings.EqualFold(strings.TrimSpace(t), want) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	s = strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
