package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Registrar signs an identity up in a session
type Registrar interface {
	Register(ctx context.Context, s *Session, id Identity) RegistrationResult
}

// Submitter enters a link and waits for the site's verdict
type Submitter interface {
	Submit(ctx context.Context, page Page, link string) error
	AwaitCompletion(ctx context.Context, page Page) (CompletionState, error)
}

// Capturer saves the current page
type Capturer interface {
	Capture(ctx context.Context, page Page) (*CaptureResult, error)
}

// Suppressor keeps overlays off the session's page
type Suppressor interface {
	Activate(ctx context.Context, s *Session)
	Deactivate(ctx context.Context, s *Session)
	ForceClean(ctx context.Context, s *Session) (int, error)
	Blocked(ctx context.Context, s *Session) int
}

// IdentitySource hands out fresh identities
type IdentitySource interface {
	Next() Identity
}

// Collaborators are the components the harvester drives
type Collaborators struct {
	Sessions   SessionProvider
	Registrar  Registrar
	Submitter  Submitter
	Capturer   Capturer
	Suppressor Suppressor
	Identities IdentitySource
}

// DefaultCollaborators wires the browser backed components from settings
func DefaultCollaborators(settings *Settings, logger *zap.Logger) (Collaborators, error) {
	submitter, err := NewSubmissionAgent(settings, logger)
	if err != nil {
		return Collaborators{}, fmt.Errorf("creating submission agent: %w", err)
	}
	suppressor := NewPopupSuppressor(settings, logger)
	return Collaborators{
		Sessions:   NewBrowserProvider(settings, logger),
		Registrar:  NewRegistrationAgent(suppressor, settings.Timing.StepDelay, logger),
		Submitter:  submitter,
		Capturer:   NewPageCapturer(settings, logger),
		Suppressor: suppressor,
		Identities: NewIdentityGenerator(settings.Identity),
	}, nil
}

// Harvester walks the ledger through one browser session, rotating the
// session and identity when the account runs out of quota
type Harvester struct {
	settings *Settings
	ledger   *Ledger
	c        Collaborators
	limiter  *rate.Limiter
	logger   *zap.Logger

	session *Session
	state   LoopState
}

// NewHarvester creates a harvester over ledger
func NewHarvester(settings *Settings, ledger *Ledger, c Collaborators, logger *zap.Logger) *Harvester {
	limit := rate.Inf
	if settings.Timing.ItemDelay > 0 {
		limit = rate.Every(settings.Timing.ItemDelay)
	}
	return &Harvester{
		settings: settings,
		ledger:   ledger,
		c:        c,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   orNop(logger).Named("harvester"),
	}
}

// State returns the loop cursor
func (h *Harvester) State() LoopState {
	return h.state
}

// Session returns the live session, nil before bootstrap or after Close
func (h *Harvester) Session() *Session {
	return h.session
}

// Run registers an identity and processes every work item in ledger order.
// Item failures are recorded and never stop the run; a returned error is
// fatal and a diagnostic screenshot has been attempted. The session is left
// open for the caller to Close.
func (h *Harvester) Run(ctx context.Context) (results []ItemResult, err error) {
	items := h.workItems()
	h.state = LoopState{Total: len(items)}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("harvest aborted by panic: %v", r)
		}
		if err != nil {
			h.logger.Error("Harvest aborted", zap.Int("cursor", h.state.Cursor), zap.Error(err))
			h.saveDiagnostic()
		}
	}()

	h.logger.Info("Processing links...", zap.Int("items", len(items)), zap.String("ledger", h.ledger.Path()))
	if h.state.Drained() {
		return results, nil
	}

	if err := h.openSession(ctx); err != nil {
		return results, err
	}
	registration := h.register(ctx)
	if !registration.Success {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		return results, fmt.Errorf("initial registration: %w", registration.Err)
	}

	for !h.state.Drained() {
		if err := h.limiter.Wait(ctx); err != nil {
			return results, err
		}

		item := items[h.state.Cursor]
		h.logger.Info(fmt.Sprintf("[%d/%d] Processing", h.state.Cursor+1, h.state.Total),
			zap.Int("row", item.Index), zap.String("link", item.Link))

		result, err := h.processItem(ctx, item)
		if err != nil {
			return results, err
		}
		results = append(results, result)

		if result.Succeeded() {
			h.logger.Info("✓ Captured", zap.Int("row", item.Index), zap.String("directory", result.Outcome.Location))
		} else {
			h.logger.Warn("✗ Failed", zap.Int("row", item.Index),
				zap.Stringer("outcome", result.Outcome.Kind), zap.String("reason", result.Outcome.Message))
		}

		h.state.Advance()
		if !h.state.Drained() {
			// the next Wait blocks until item_delay after this item ended
			h.limiter.Reserve()
		}
	}

	h.summarize(ctx, results)
	return results, nil
}

// Close deactivates the suppressor and releases the session
func (h *Harvester) Close(ctx context.Context) {
	if h.session == nil {
		return
	}
	h.c.Suppressor.Deactivate(ctx, h.session)
	h.c.Sessions.Close(h.session)
	h.session = nil
}

// workItems returns the rows to visit, dropping rows already marked with
// the failure note when configured to
func (h *Harvester) workItems() []WorkItem {
	all := h.ledger.Items(h.settings.StartRow())
	if !h.settings.Ledger.SkipAnnotated {
		return all
	}
	note := h.settings.FailureNote()
	items := make([]WorkItem, 0, len(all))
	for _, item := range all {
		if item.Note == note {
			h.logger.Info("Skipping annotated row", zap.Int("row", item.Index), zap.String("note", note))
			continue
		}
		items = append(items, item)
	}
	return items
}

// processItem runs one work item to its final outcome. Quota exhaustion
// rotates the session and identity and retries exactly once. Only fatal
// conditions are returned as errors.
func (h *Harvester) processItem(ctx context.Context, item WorkItem) (ItemResult, error) {
	result := ItemResult{Index: item.Index, Link: item.Link}

	if !ValidateLink(item.Link) {
		result.Outcome = failureOutcome("invalid link %q", item.Link)
		return result, nil
	}

	outcome, err := h.attempt(ctx, item)
	result.Attempts = 1
	if err != nil {
		return result, err
	}

	if outcome.Kind == OutcomeQuotaExhausted {
		h.logger.Warn("Quota exhausted, rotating session and identity", zap.Int("row", item.Index))
		registration, err := h.rotate(ctx)
		if err != nil {
			return result, err
		}
		if registration.Success {
			outcome, err = h.attempt(ctx, item)
			result.Attempts = 2
			if err != nil {
				return result, err
			}
			if outcome.Kind == OutcomeQuotaExhausted {
				outcome = failureOutcome("quota exhausted after identity rotation")
			}
		} else {
			outcome = failureOutcome("registration after quota exhaustion failed: %v", registration.Err)
		}
	}

	if outcome.Kind == OutcomeTransientFetchFailure {
		if err := h.ledger.Annotate(item.Index, h.settings.FailureNote()); err != nil {
			h.logger.Warn("Annotating row failed", zap.Int("row", item.Index), zap.Error(err))
		}
	}

	result.Outcome = outcome
	return result, nil
}

// attempt submits item once in the current session
func (h *Harvester) attempt(ctx context.Context, item WorkItem) (ItemOutcome, error) {
	if h.session.Closed() {
		return ItemOutcome{}, ErrNoSession
	}
	page := h.session.Page

	if err := page.Navigate(ctx, h.settings.SubmissionURL); err != nil {
		if ctx.Err() != nil {
			return ItemOutcome{}, ctx.Err()
		}
		return failureOutcome("opening submission page: %v", err), nil
	}
	if err := sleep(ctx, h.settings.Timing.PageReadyDelay); err != nil {
		return ItemOutcome{}, err
	}
	if _, err := h.c.Suppressor.ForceClean(ctx, h.session); err != nil {
		h.logger.Debug("Force clean before submission failed", zap.Error(err))
	}

	if err := h.c.Submitter.Submit(ctx, page, item.Link); err != nil {
		if ctx.Err() != nil {
			return ItemOutcome{}, ctx.Err()
		}
		return failureOutcome("submitting link: %v", err), nil
	}

	state, err := h.c.Submitter.AwaitCompletion(ctx, page)
	if err != nil {
		if ctx.Err() != nil {
			return ItemOutcome{}, ctx.Err()
		}
		return failureOutcome("awaiting completion: %v", err), nil
	}

	switch state {
	case StateCompleted:
		capture, err := h.c.Capturer.Capture(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return ItemOutcome{}, ctx.Err()
			}
			return failureOutcome("capturing page: %v", err), nil
		}
		return successOutcome(capture.Directory), nil
	case StateQuotaExhausted:
		return ItemOutcome{Kind: OutcomeQuotaExhausted, Message: "quota exhausted"}, nil
	case StateTransientFetchFailure:
		return ItemOutcome{Kind: OutcomeTransientFetchFailure, Message: "transient fetch failure"}, nil
	default:
		return failureOutcome("completion not detected"), nil
	}
}

// rotate replaces the session with a fresh one and registers a new
// identity in it. The returned error is fatal; a failed registration is not.
func (h *Harvester) rotate(ctx context.Context) (RegistrationResult, error) {
	h.Close(ctx)
	if err := h.openSession(ctx); err != nil {
		return RegistrationResult{}, err
	}
	result := h.register(ctx)
	if !result.Success && ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

// openSession opens a session, loads the registration page and activates
// the suppressor. Only launch failures and cancellation are returned;
// a page that fails to load surfaces as a registration failure.
func (h *Harvester) openSession(ctx context.Context) error {
	session, err := h.c.Sessions.Open(ctx)
	if err != nil {
		return err
	}
	h.session = session

	if err := session.Page.Navigate(ctx, h.settings.RegistrationURL); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.logger.Warn("Registration page did not load", zap.String("url", h.settings.RegistrationURL), zap.Error(err))
	}
	if err := sleep(ctx, h.settings.Timing.PageReadyDelay); err != nil {
		return err
	}
	h.c.Suppressor.Activate(ctx, session)
	return nil
}

// register signs a fresh identity up in the current session
func (h *Harvester) register(ctx context.Context) RegistrationResult {
	id := h.c.Identities.Next()
	result := h.c.Registrar.Register(ctx, h.session, id)
	if !result.Success {
		h.logger.Error("Registration failed", zap.String("email", id.Email), zap.Error(result.Err))
		return result
	}
	h.session.Identity = id
	h.logger.Info("✓ Registered", zap.String("email", id.Email), zap.String("session", h.session.ID))
	if err := sleep(ctx, h.settings.Timing.PostRegisterDelay); err != nil {
		return RegistrationResult{Identity: id, Err: err}
	}
	return result
}

// saveDiagnostic screenshots the live page after a fatal error
func (h *Harvester) saveDiagnostic() {
	path := h.settings.DiagnosticScreenshot
	if path == "" || h.session.Closed() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	data, err := h.session.Page.Screenshot(ctx, false)
	if err != nil {
		h.logger.Warn("Diagnostic screenshot failed", zap.Error(err))
		return
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			h.logger.Warn("Diagnostic screenshot failed", zap.Error(err))
			return
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		h.logger.Warn("Diagnostic screenshot failed", zap.Error(err))
		return
	}
	h.logger.Info("Diagnostic screenshot saved", zap.String("path", path))
}

func (h *Harvester) summarize(ctx context.Context, results []ItemResult) {
	counts := make(map[OutcomeKind]int)
	for _, r := range results {
		counts[r.Outcome.Kind]++
	}
	h.logger.Info("Harvest complete",
		zap.Int("items", len(results)),
		zap.Int("captured", counts[OutcomeSuccess]),
		zap.Int("fetch_failures", counts[OutcomeTransientFetchFailure]),
		zap.Int("other_failures", counts[OutcomeOtherFailure]),
		zap.Int("overlays_blocked", h.c.Suppressor.Blocked(ctx, h.session)))
}
