package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RegistrationResult is what one registration attempt produced
type RegistrationResult struct {
	Success  bool
	Identity Identity
	Err      error
}

// Cleaner removes overlays that would block form input
type Cleaner interface {
	ForceClean(ctx context.Context, s *Session) (int, error)
}

// RegistrationAgent signs a fresh identity up on the registration page
type RegistrationAgent struct {
	cleaner   Cleaner
	stepDelay time.Duration
	logger    *zap.Logger
}

// NewRegistrationAgent creates a registration agent. cleaner may be nil.
func NewRegistrationAgent(cleaner Cleaner, stepDelay time.Duration, logger *zap.Logger) *RegistrationAgent {
	return &RegistrationAgent{
		cleaner:   cleaner,
		stepDelay: stepDelay,
		logger:    orNop(logger).Named("register"),
	}
}

// CheckForm returns an IncompleteFormError naming every missing control
func (a *RegistrationAgent) CheckForm(ctx context.Context, page Page) error {
	var missing []string
	for _, role := range []ControlRole{RoleEmail, RolePassword, RoleSubmit} {
		if !HasControl(ctx, page, role) {
			missing = append(missing, string(role))
		}
	}
	if len(missing) > 0 {
		return &IncompleteFormError{Missing: missing}
	}
	return nil
}

// Register fills and submits the registration form with id. Success means
// the submit click went through; nothing server side is confirmed.
func (a *RegistrationAgent) Register(ctx context.Context, s *Session, id Identity) RegistrationResult {
	result := RegistrationResult{Identity: id}
	if s.Closed() {
		result.Err = ErrNoSession
		return result
	}
	page := s.Page

	a.logger.Info("→ Registering", zap.String("email", id.Email))

	if err := a.CheckForm(ctx, page); err != nil {
		result.Err = err
		return result
	}

	if a.cleaner != nil {
		if _, err := a.cleaner.ForceClean(ctx, s); err != nil {
			a.logger.Debug("Force clean before registration failed", zap.Error(err))
		}
	}

	if err := a.fill(ctx, page, RoleEmail, id.Email); err != nil {
		result.Err = err
		return result
	}
	if err := sleep(ctx, a.stepDelay); err != nil {
		result.Err = err
		return result
	}

	if err := a.fill(ctx, page, RolePassword, id.Password); err != nil {
		result.Err = err
		return result
	}
	if err := sleep(ctx, a.stepDelay); err != nil {
		result.Err = err
		return result
	}

	submit, err := FindControl(ctx, page, RoleSubmit)
	if err != nil {
		result.Err = err
		return result
	}
	if err := submit.Click(ctx); err != nil {
		result.Err = fmt.Errorf("clicking submit: %w", err)
		return result
	}

	s.Identity = id
	result.Success = true
	a.logger.Info("✓ Registration submitted", zap.String("email", id.Email))
	return result
}

func (a *RegistrationAgent) fill(ctx context.Context, page Page, role ControlRole, value string) error {
	el, err := FindControl(ctx, page, role)
	if err != nil {
		return err
	}
	if err := el.Fill(ctx, value); err != nil {
		return fmt.Errorf("filling %s: %w", role, err)
	}
	return nil
}
