package main

import "fmt"

// WorkItem is one ledger row scheduled for submission. Index is the row
// number in the ledger file and never changes.
type WorkItem struct {
	Index int
	Link  string
	Label string
	Note  string
}

// Identity is a throwaway credential pair for the target site
type Identity struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OutcomeKind tags the result of processing one work item
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeQuotaExhausted
	OutcomeTransientFetchFailure
	OutcomeOtherFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeQuotaExhausted:
		return "quota_exhausted"
	case OutcomeTransientFetchFailure:
		return "transient_fetch_failure"
	case OutcomeOtherFailure:
		return "other_failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// ItemOutcome is the tagged result of one attempt. Location is set for
// successes (the capture directory), Message for failures.
type ItemOutcome struct {
	Kind     OutcomeKind
	Location string
	Message  string
}

func successOutcome(location string) ItemOutcome {
	return ItemOutcome{Kind: OutcomeSuccess, Location: location}
}

func failureOutcome(format string, args ...interface{}) ItemOutcome {
	return ItemOutcome{Kind: OutcomeOtherFailure, Message: fmt.Sprintf(format, args...)}
}

// ItemResult tracks the final outcome of each ledger row
type ItemResult struct {
	Index    int
	Link     string
	Outcome  ItemOutcome
	Attempts int
}

// Succeeded reports whether the row was captured
func (r ItemResult) Succeeded() bool {
	return r.Outcome.Kind == OutcomeSuccess
}

// CompletionState is where the submission state machine stopped
type CompletionState int

const (
	StateCompleted CompletionState = iota
	StateQuotaExhausted
	StateTransientFetchFailure
	StateTimedOut
)

func (s CompletionState) String() string {
	switch s {
	case StateCompleted:
		return "completed"
	case StateQuotaExhausted:
		return "quota_exhausted"
	case StateTransientFetchFailure:
		return "transient_fetch_failure"
	case StateTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// LoopState is the cursor over the work items of one run.
// Invariant: 0 <= Cursor <= Total. Cursor only moves forward.
type LoopState struct {
	Cursor int
	Total  int
}

// Drained reports whether every item has been visited
func (s LoopState) Drained() bool {
	return s.Cursor >= s.Total
}

// Advance moves the cursor to the next item
func (s *LoopState) Advance() {
	if s.Cursor < s.Total {
		s.Cursor++
	}
}
