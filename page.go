package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// Page is the slice of a browser tab the agents need
type Page interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Text(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	// Query returns the first visible element matching selector whose text
	// matches textPattern (a JS regex, empty for any), or ErrControlNotFound.
	Query(ctx context.Context, selector, textPattern string) (Element, error)
	// Eval runs a JS function expression and returns its result; strings
	// come back raw, everything else as JSON.
	Eval(ctx context.Context, js string, args ...interface{}) (string, error)
	InjectStyle(ctx context.Context, css string) error
	// InstallScript evaluates js on every new document until remove is called
	InstallScript(ctx context.Context, js string) (remove func() error, err error)
	PressEscape(ctx context.Context) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	PDF(ctx context.Context) ([]byte, error)
}

// Element is a located control
type Element interface {
	Fill(ctx context.Context, value string) error
	Click(ctx context.Context) error
	PressEnter(ctx context.Context) error
}

// A4 in inches, 1cm margins
const (
	pdfPaperWidth  = 8.27
	pdfPaperHeight = 11.69
	pdfMargin      = 0.3937
)

type rodPage struct {
	page    *rod.Page
	timeout time.Duration
}

func newRodPage(page *rod.Page, navigationTimeout time.Duration) *rodPage {
	return &rodPage{page: page, timeout: navigationTimeout}
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx).Timeout(p.timeout)
	defer page.CancelTimeout()

	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("waiting for %s to load: %w", url, err)
	}
	return nil
}

func (p *rodPage) Location(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("reading page info: %w", err)
	}
	return info.URL, nil
}

func (p *rodPage) Title(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("reading page info: %w", err)
	}
	return info.Title, nil
}

func (p *rodPage) Text(ctx context.Context) (string, error) {
	return p.Eval(ctx, `() => document.body ? document.body.innerText : ""`)
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	html, err := p.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("reading page html: %w", err)
	}
	return html, nil
}

func (p *rodPage) Query(ctx context.Context, selector, textPattern string) (Element, error) {
	page := p.page.Context(ctx)

	var (
		found bool
		el    *rod.Element
		err   error
	)
	if textPattern == "" {
		found, el, err = page.Has(selector)
	} else {
		found, el, err = page.HasR(selector, textPattern)
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", selector, err)
	}
	if !found {
		return nil, ErrControlNotFound
	}

	visible, err := el.Visible()
	if err != nil || !visible {
		return nil, ErrControlNotFound
	}
	return &rodElement{el: el}, nil
}

func (p *rodPage) Eval(ctx context.Context, js string, args ...interface{}) (string, error) {
	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return "", fmt.Errorf("evaluating script: %w", err)
	}
	if res == nil {
		return "", nil
	}

	switch v := res.Value.Val().(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encoding script result: %w", err)
		}
		return string(data), nil
	}
}

func (p *rodPage) InjectStyle(ctx context.Context, css string) error {
	if err := p.page.Context(ctx).AddStyleTag("", css); err != nil {
		return fmt.Errorf("injecting style: %w", err)
	}
	return nil
}

func (p *rodPage) InstallScript(ctx context.Context, js string) (func() error, error) {
	remove, err := p.page.Context(ctx).EvalOnNewDocument(js)
	if err != nil {
		return nil, fmt.Errorf("installing script: %w", err)
	}
	return remove, nil
}

func (p *rodPage) PressEscape(ctx context.Context) error {
	return p.page.Context(ctx).Keyboard.Type(input.Escape)
}

func (p *rodPage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	data, err := p.page.Context(ctx).Screenshot(fullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("taking screenshot: %w", err)
	}
	return data, nil
}

func (p *rodPage) PDF(ctx context.Context) ([]byte, error) {
	stream, err := p.page.Context(ctx).PDF(&proto.PagePrintToPDF{
		PrintBackground: true,
		PaperWidth:      gson.Num(pdfPaperWidth),
		PaperHeight:     gson.Num(pdfPaperHeight),
		MarginTop:       gson.Num(pdfMargin),
		MarginBottom:    gson.Num(pdfMargin),
		MarginLeft:      gson.Num(pdfMargin),
		MarginRight:     gson.Num(pdfMargin),
	})
	if err != nil {
		return nil, fmt.Errorf("printing pdf: %w", err)
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("reading pdf stream: %w", err)
	}
	return data, nil
}

type rodElement struct {
	el *rod.Element
}

// Fill clears the control and types value into it
func (e *rodElement) Fill(ctx context.Context, value string) error {
	el := e.el.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("selecting text: %w", err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("typing value: %w", err)
	}
	return nil
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) PressEnter(ctx context.Context) error {
	return e.el.Context(ctx).Type(input.Enter)
}
