package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testSettings returns the embedded defaults with every pause removed
func testSettings(t *testing.T) *Settings {
	t.Helper()
	settings, err := parseSettings(nil)
	require.NoError(t, err)

	settings.OutputDirectory = t.TempDir()
	settings.DiagnosticScreenshot = ""
	settings.Browser.SlowMotion = 0
	settings.Timing = TimingSettings{}
	settings.Poll = PollSettings{Interval: time.Millisecond, MaxAttempts: 3}
	settings.Overlay.SweepInterval = time.Millisecond
	return settings
}

type fakeElement struct {
	mu       sync.Mutex
	fills    []string
	clicks   int
	enters   int
	fillErr  error
	clickErr error
}

func (e *fakeElement) Fill(ctx context.Context, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fillErr != nil {
		return e.fillErr
	}
	e.fills = append(e.fills, value)
	return nil
}

func (e *fakeElement) Click(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.clickErr != nil {
		return e.clickErr
	}
	e.clicks++
	return nil
}

func (e *fakeElement) PressEnter(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enters++
	return nil
}

// fakePage is an in-memory Page. Controls are keyed by Strategy.String().
type fakePage struct {
	mu sync.Mutex

	location string
	title    string
	html     string
	texts    []string // successive Text results, the last one repeats

	controls map[string]*fakeElement
	queryErr map[string]error
	evalFunc func(js string, args []interface{}) (string, error)

	navigateErr   error
	screenshot    []byte
	screenshotErr error
	pdf           []byte
	pdfErr        error

	navigations []string
	queries     []string
	evals       []string
	styles      []string
	installed   []string
	removed     int
	escapes     int
	textReads   int
}

func newFakePage() *fakePage {
	return &fakePage{
		controls:   make(map[string]*fakeElement),
		queryErr:   make(map[string]error),
		screenshot: []byte("png"),
		pdf:        []byte("%PDF-1.4"),
	}
}

// withControl registers an element found by the given strategy
func (p *fakePage) withControl(s Strategy) *fakeElement {
	el := &fakeElement{}
	p.controls[s.String()] = el
	return el
}

// withRole registers an element for the first strategy of role
func (p *fakePage) withRole(role ControlRole) *fakeElement {
	return p.withControl(Strategies(role)[0])
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigations = append(p.navigations, url)
	if p.navigateErr != nil {
		return p.navigateErr
	}
	p.location = url
	return nil
}

func (p *fakePage) Location(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location, nil
}

func (p *fakePage) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

func (p *fakePage) Text(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.textReads++
	if len(p.texts) == 0 {
		return "", nil
	}
	text := p.texts[0]
	if len(p.texts) > 1 {
		p.texts = p.texts[1:]
	}
	return text, nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *fakePage) Query(ctx context.Context, selector, textPattern string) (Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := Strategy{Selector: selector, TextPattern: textPattern}.String()
	p.queries = append(p.queries, key)
	if err, ok := p.queryErr[key]; ok {
		return nil, err
	}
	if el, ok := p.controls[key]; ok {
		return el, nil
	}
	return nil, ErrControlNotFound
}

func (p *fakePage) Eval(ctx context.Context, js string, args ...interface{}) (string, error) {
	p.mu.Lock()
	p.evals = append(p.evals, js)
	evalFunc := p.evalFunc
	p.mu.Unlock()
	if evalFunc != nil {
		return evalFunc(js, args)
	}
	return "", nil
}

func (p *fakePage) InjectStyle(ctx context.Context, css string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.styles = append(p.styles, css)
	return nil
}

func (p *fakePage) InstallScript(ctx context.Context, js string) (func() error, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.installed = append(p.installed, js)
	return func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.removed++
		return nil
	}, nil
}

func (p *fakePage) PressEscape(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.escapes++
	return nil
}

func (p *fakePage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.screenshot, p.screenshotErr
}

func (p *fakePage) PDF(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pdf, p.pdfErr
}

func (p *fakePage) evalCount(substr string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, js := range p.evals {
		if strings.Contains(js, substr) {
			n++
		}
	}
	return n
}

// fakeProvider hands out sessions over fresh fake pages
type fakeProvider struct {
	openErrs []error // consumed per Open call, nil entries succeed
	pages    []*fakePage
	opened   []*Session
	closed   int
	newPage  func() *fakePage
}

func (p *fakeProvider) Open(ctx context.Context) (*Session, error) {
	if len(p.openErrs) > 0 {
		err := p.openErrs[0]
		p.openErrs = p.openErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	page := newFakePage()
	if p.newPage != nil {
		page = p.newPage()
	}
	p.pages = append(p.pages, page)
	session := NewSession(page, func() error {
		p.closed++
		return nil
	})
	p.opened = append(p.opened, session)
	return session, nil
}

func (p *fakeProvider) Close(s *Session) {
	closeSession(s, orNop(nil))
}

// fakeRegistrar returns queued results, then success
type fakeRegistrar struct {
	results    []RegistrationResult
	identities []Identity
}

func (r *fakeRegistrar) Register(ctx context.Context, s *Session, id Identity) RegistrationResult {
	r.identities = append(r.identities, id)
	if len(r.results) > 0 {
		result := r.results[0]
		r.results = r.results[1:]
		result.Identity = id
		return result
	}
	return RegistrationResult{Success: true, Identity: id}
}

// fakeSubmitter replays completion states per link; unscripted links complete
type fakeSubmitter struct {
	states      map[string][]CompletionState
	submitErr   map[string]error
	submitted   []string
	submittedAt []time.Time
}

func (s *fakeSubmitter) Submit(ctx context.Context, page Page, link string) error {
	s.submitted = append(s.submitted, link)
	s.submittedAt = append(s.submittedAt, time.Now())
	if err := s.submitErr[link]; err != nil {
		return err
	}
	if fp, ok := page.(*fakePage); ok {
		fp.mu.Lock()
		fp.location = link
		fp.mu.Unlock()
	}
	return nil
}

func (s *fakeSubmitter) AwaitCompletion(ctx context.Context, page Page) (CompletionState, error) {
	if err := ctx.Err(); err != nil {
		return StateTimedOut, err
	}
	link, _ := page.Location(ctx)
	queue := s.states[link]
	if len(queue) == 0 {
		return StateCompleted, nil
	}
	state := queue[0]
	s.states[link] = queue[1:]
	return state, nil
}

func (s *fakeSubmitter) count(link string) int {
	n := 0
	for _, l := range s.submitted {
		if l == link {
			n++
		}
	}
	return n
}

type fakeCapturer struct {
	err        error
	delay      time.Duration
	captured   []string
	capturedAt []time.Time
}

func (c *fakeCapturer) Capture(ctx context.Context, page Page) (*CaptureResult, error) {
	time.Sleep(c.delay)
	c.capturedAt = append(c.capturedAt, time.Now())
	if c.err != nil {
		return nil, c.err
	}
	location, _ := page.Location(ctx)
	c.captured = append(c.captured, location)
	return &CaptureResult{Directory: fmt.Sprintf("saved-pages/capture-%d", len(c.captured))}, nil
}

type fakeSuppressor struct {
	activated   int
	deactivated int
	cleaned     int
}

func (s *fakeSuppressor) Activate(ctx context.Context, session *Session)   { s.activated++ }
func (s *fakeSuppressor) Deactivate(ctx context.Context, session *Session) { s.deactivated++ }

func (s *fakeSuppressor) ForceClean(ctx context.Context, session *Session) (int, error) {
	s.cleaned++
	return 0, nil
}

func (s *fakeSuppressor) Blocked(ctx context.Context, session *Session) int { return 0 }

type sequenceIdentities struct {
	n int
}

func (s *sequenceIdentities) Next() Identity {
	s.n++
	email := fmt.Sprintf("user%d@example.com", s.n)
	return Identity{Email: email, Password: email}
}

var errBoom = errors.New("boom")
