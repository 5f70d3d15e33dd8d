package main

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// FaultDetector classifies a page snapshot
type FaultDetector struct {
	completion   *regexp.Regexp
	quotaPhrases []string
	fetchPhrases []string
}

// NewFaultDetector compiles the completion pattern and keeps the phrase sets
func NewFaultDetector(settings FaultSettings) (*FaultDetector, error) {
	completion, err := regexp.Compile(settings.CompletionPattern)
	if err != nil {
		return nil, fmt.Errorf("compiling completion pattern: %w", err)
	}
	return &FaultDetector{
		completion:   completion,
		quotaPhrases: settings.QuotaPhrases,
		fetchPhrases: settings.FetchFailurePhrases,
	}, nil
}

// Classify looks at one snapshot. Quota wins over fetch failure and both
// win over a matching location. done is false while still processing.
func (d *FaultDetector) Classify(text, location string) (state CompletionState, done bool) {
	if containsAny(text, d.quotaPhrases) {
		return StateQuotaExhausted, true
	}
	if containsAny(text, d.fetchPhrases) {
		return StateTransientFetchFailure, true
	}
	if d.completion.MatchString(location) {
		return StateCompleted, true
	}
	return StateTimedOut, false
}

func containsAny(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

// SubmissionAgent enters a link on the submission page and waits for the
// site to finish with it
type SubmissionAgent struct {
	detector     *FaultDetector
	policy       PollPolicy
	settleDelay  time.Duration
	dismissDelay time.Duration
	logger       *zap.Logger
}

// NewSubmissionAgent creates a submission agent from settings
func NewSubmissionAgent(settings *Settings, logger *zap.Logger) (*SubmissionAgent, error) {
	detector, err := NewFaultDetector(settings.Faults)
	if err != nil {
		return nil, err
	}
	return &SubmissionAgent{
		detector:     detector,
		policy:       settings.PollPolicy(),
		settleDelay:  settings.Timing.SettleDelay,
		dismissDelay: settings.Timing.DismissDelay,
		logger:       orNop(logger).Named("submit"),
	}, nil
}

// Submit clears the link input, enters link and presses Enter
func (a *SubmissionAgent) Submit(ctx context.Context, page Page, link string) error {
	input, err := FindControl(ctx, page, RoleLinkInput)
	if err != nil {
		if errors.Is(err, ErrControlNotFound) {
			return fmt.Errorf("%w: %v", ErrInputNotFound, err)
		}
		return err
	}

	if err := input.Fill(ctx, link); err != nil {
		return fmt.Errorf("entering link: %w", err)
	}
	if err := input.PressEnter(ctx); err != nil {
		return fmt.Errorf("pressing enter: %w", err)
	}
	a.logger.Info("  → Link submitted", zap.String("link", link))

	return sleep(ctx, a.settleDelay)
}

// AwaitCompletion polls the page until it completes, reports a fault or the
// attempts run out. On completion the result dialog is dismissed with two
// Escape presses.
func (a *SubmissionAgent) AwaitCompletion(ctx context.Context, page Page) (CompletionState, error) {
	state, err := Poll(ctx, a.policy, func(ctx context.Context, attempt int) (CompletionState, bool, error) {
		text, err := page.Text(ctx)
		if err != nil {
			a.logger.Debug("Reading page text failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		location, err := page.Location(ctx)
		if err != nil {
			a.logger.Debug("Reading page location failed", zap.Int("attempt", attempt), zap.Error(err))
		}

		state, done := a.detector.Classify(text, location)
		if !done {
			a.logger.Debug("Still processing", zap.Int("attempt", attempt), zap.String("location", location))
		}
		return state, done, nil
	})
	if errors.Is(err, ErrPollExhausted) {
		a.logger.Warn("Completion not detected", zap.Int("attempts", a.policy.MaxAttempts))
		return StateTimedOut, nil
	}
	if err != nil {
		return StateTimedOut, err
	}

	if state == StateCompleted {
		a.dismissResultDialog(ctx, page)
	}
	return state, nil
}

func (a *SubmissionAgent) dismissResultDialog(ctx context.Context, page Page) {
	for i := 0; i < 2; i++ {
		if i > 0 {
			if err := sleep(ctx, a.dismissDelay); err != nil {
				return
			}
		}
		if err := page.PressEscape(ctx); err != nil {
			a.logger.Debug("Escape press failed", zap.Error(err))
		}
	}
}
