package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is one live browser context with a single page and the identity
// registered in it. Only the harvester creates and closes sessions.
type Session struct {
	ID        string
	Page      Page
	Identity  Identity
	StartedAt time.Time

	release func() error
	closed  bool
}

// NewSession wraps page in a session; release is called once on close
func NewSession(page Page, release func() error) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Page:      page,
		StartedAt: time.Now(),
		release:   release,
	}
}

// Closed reports whether the session has been released
func (s *Session) Closed() bool {
	return s == nil || s.closed
}

// SessionProvider opens and closes browser sessions
type SessionProvider interface {
	Open(ctx context.Context) (*Session, error)
	Close(session *Session)
}

// closeSession releases s once; errors are logged, never returned
func closeSession(s *Session, logger *zap.Logger) {
	if s.Closed() {
		return
	}
	s.closed = true
	if s.release == nil {
		return
	}
	if err := s.release(); err != nil {
		logger.Warn("Session close failed", zap.String("session", s.ID), zap.Error(err))
		return
	}
	logger.Info("Session closed", zap.String("session", s.ID))
}

// BrowserProvider launches a local Chromium through rod for every session
type BrowserProvider struct {
	settings BrowserSettings
	timeout  time.Duration
	logger   *zap.Logger
}

// NewBrowserProvider creates a provider from the browser settings
func NewBrowserProvider(settings *Settings, logger *zap.Logger) *BrowserProvider {
	return &BrowserProvider{
		settings: settings.Browser,
		timeout:  settings.NavigationTimeout(),
		logger:   orNop(logger).Named("session"),
	}
}

// Open starts a browser, creates an incognito page and sizes its viewport
func (p *BrowserProvider) Open(ctx context.Context) (*Session, error) {
	l := launcher.New().Headless(p.settings.Headless)
	if p.settings.Bin != "" {
		l = l.Bin(p.settings.Bin)
	}
	controlURL, err := l.Context(ctx).Launch()
	if err != nil {
		return nil, &LaunchError{Err: err}
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, &LaunchError{Err: fmt.Errorf("connecting to browser: %w", err)}
	}
	if p.settings.SlowMotion > 0 {
		browser = browser.SlowMotion(p.settings.SlowMotion)
	}

	release := func() error {
		err := browser.Close()
		l.Kill()
		return err
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, &LaunchError{Err: errors.Join(fmt.Errorf("incognito context: %w", err), release())}
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, &LaunchError{Err: errors.Join(fmt.Errorf("creating page: %w", err), release())}
	}

	if p.settings.ViewportWidth > 0 && p.settings.ViewportHeight > 0 {
		if err := (proto.EmulationSetDeviceMetricsOverride{
			Width:             p.settings.ViewportWidth,
			Height:            p.settings.ViewportHeight,
			DeviceScaleFactor: 1.0,
			Mobile:            false,
		}).Call(page); err != nil {
			p.logger.Warn("Failed to set viewport", zap.Error(err))
		}
	}

	session := NewSession(newRodPage(page, p.timeout), release)
	p.logger.Info("Session opened",
		zap.String("session", session.ID),
		zap.Bool("headless", p.settings.Headless))
	return session, nil
}

// Close releases the browser behind s. Safe on nil and on closed sessions.
func (p *BrowserProvider) Close(s *Session) {
	closeSession(s, p.logger)
}
