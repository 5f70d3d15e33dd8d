package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

//go:embed scripts/overlay.css
var overlayStyle string

//go:embed scripts/overlay_guard.js
var overlayGuardScript string

//go:embed scripts/force_clean.js
var forceCleanScript string

const (
	scanOverlaysJS    = `() => window.__overlayGuard ? window.__overlayGuard.scan() : 0`
	stopOverlaysJS    = `() => { if (window.__overlayGuard) { window.__overlayGuard.stop(); } }`
	blockedOverlaysJS = `() => window.__overlayGuard ? window.__overlayGuard.blocked() : 0`

	escapePresses   = 3
	escapeGap       = 300 * time.Millisecond
	closeClickPause = 500 * time.Millisecond
)

// OverlayWatcher runs a sweep on a fixed interval until stopped
type OverlayWatcher struct {
	interval time.Duration
	sweep    func(ctx context.Context) error
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewOverlayWatcher creates a stopped watcher
func NewOverlayWatcher(interval time.Duration, sweep func(ctx context.Context) error, logger *zap.Logger) *OverlayWatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &OverlayWatcher{interval: interval, sweep: sweep, logger: orNop(logger)}
}

// Start launches the sweep goroutine. A running watcher is left alone.
func (w *OverlayWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.sweep(ctx); err != nil && ctx.Err() == nil {
					w.logger.Debug("Overlay sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

// Stop cancels the sweep goroutine and waits for it to exit
func (w *OverlayWatcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the sweep goroutine is active
func (w *OverlayWatcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

// PopupSuppressor keeps promotional dialogs and guide overlays off the
// page. All of its failures are logged and swallowed.
type PopupSuppressor struct {
	interval time.Duration
	markers  []string
	logger   *zap.Logger

	page       Page
	watcher    *OverlayWatcher
	removeHook func() error
}

// NewPopupSuppressor creates an inactive suppressor
func NewPopupSuppressor(settings *Settings, logger *zap.Logger) *PopupSuppressor {
	return &PopupSuppressor{
		interval: settings.SweepInterval(),
		markers:  settings.Overlay.PromoMarkers,
		logger:   orNop(logger).Named("popup"),
	}
}

// Active reports whether the suppressor is attached to a page
func (p *PopupSuppressor) Active() bool {
	return p.page != nil
}

// Activate hides known overlays with CSS, installs the in-page guard on the
// current and every later document, starts the periodic sweep and closes
// whatever is already open
func (p *PopupSuppressor) Activate(ctx context.Context, s *Session) {
	if s.Closed() {
		p.logger.Warn("Popup suppressor not activated", zap.Error(ErrNoSession))
		return
	}
	if p.page != nil {
		p.Deactivate(ctx, nil)
	}
	page := s.Page
	p.page = page

	if err := page.InjectStyle(ctx, overlayStyle); err != nil {
		p.logger.Warn("Overlay stylesheet not injected", zap.Error(err))
	}

	script := p.guardScript()
	remove, err := page.InstallScript(ctx, script)
	if err != nil {
		p.logger.Warn("Overlay guard not installed for new documents", zap.Error(err))
	} else {
		p.removeHook = remove
	}
	if _, err := page.Eval(ctx, "() => {\n"+script+"\n}"); err != nil {
		p.logger.Warn("Overlay guard not started on current document", zap.Error(err))
	}

	p.watcher = NewOverlayWatcher(p.interval, func(ctx context.Context) error {
		_, err := page.Eval(ctx, scanOverlaysJS)
		return err
	}, p.logger)
	p.watcher.Start(ctx)

	p.dismissOpen(ctx, page)
	p.logger.Info("Popup suppressor active", zap.String("session", s.ID))
}

// Deactivate stops the sweep, drops the new-document hook and disconnects
// the in-page observer. Safe to call when inactive.
func (p *PopupSuppressor) Deactivate(ctx context.Context, s *Session) {
	if p.watcher != nil {
		p.watcher.Stop()
		p.watcher = nil
	}
	if p.removeHook != nil {
		if err := p.removeHook(); err != nil {
			p.logger.Debug("Removing overlay guard hook failed", zap.Error(err))
		}
		p.removeHook = nil
	}
	if p.page == nil {
		return
	}
	if s == nil || !s.Closed() {
		if _, err := p.page.Eval(ctx, stopOverlaysJS); err != nil {
			p.logger.Debug("Stopping overlay guard failed", zap.Error(err))
		}
	}
	p.page = nil
	p.logger.Debug("Popup suppressor inactive")
}

// ForceClean removes overlay nodes that carry promotional text or are open
// dialogs, and returns how many were removed
func (p *PopupSuppressor) ForceClean(ctx context.Context, s *Session) (int, error) {
	if s.Closed() {
		return 0, ErrNoSession
	}
	markers := p.markers
	if markers == nil {
		markers = []string{}
	}

	out, err := s.Page.Eval(ctx, forceCleanScript, markers)
	if err != nil {
		p.logger.Warn("Force clean failed", zap.Error(err))
		return 0, err
	}
	removed, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, errors.Join(errors.New("unexpected force clean result"), err)
	}
	p.logger.Info("Overlays force cleaned", zap.Int("removed", removed))
	return removed, nil
}

// Blocked returns how many overlays the in-page guard has dismissed
func (p *PopupSuppressor) Blocked(ctx context.Context, s *Session) int {
	if s.Closed() {
		return 0
	}
	out, err := s.Page.Eval(ctx, blockedOverlaysJS)
	if err != nil {
		p.logger.Debug("Reading blocked overlay count failed", zap.Error(err))
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0
	}
	return n
}

// dismissOpen presses Escape a few times and clicks a visible close control
func (p *PopupSuppressor) dismissOpen(ctx context.Context, page Page) {
	for i := 0; i < escapePresses; i++ {
		if err := page.PressEscape(ctx); err != nil {
			p.logger.Debug("Escape press failed", zap.Error(err))
		}
		if err := sleep(ctx, escapeGap); err != nil {
			return
		}
	}

	el, err := FindControl(ctx, page, RoleClose)
	if err != nil {
		return
	}
	if err := el.Click(ctx); err != nil {
		p.logger.Debug("Close control click failed", zap.Error(err))
		return
	}
	_ = sleep(ctx, closeClickPause)
}

// guardScript returns the in-page guard with the promo markers filled in
func (p *PopupSuppressor) guardScript() string {
	markers := p.markers
	if markers == nil {
		markers = []string{}
	}
	data, err := json.Marshal(markers)
	if err != nil {
		data = []byte("[]")
	}
	return strings.Replace(overlayGuardScript, "__PROMO_MARKERS__", string(data), 1)
}
