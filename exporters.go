package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

//go:embed scripts/extract_styles.js
var extractStylesScript string

//go:embed scripts/extract_scripts.js
var extractScriptsScript string

// Exporter produces one file of a capture
type Exporter interface {
	Kind() string
	FileName() string
	Export(ctx context.Context, page Page, snap *Snapshot) ([]byte, error)
}

// HTMLExporter writes the serialized DOM
type HTMLExporter struct{}

func (e *HTMLExporter) Kind() string     { return "html" }
func (e *HTMLExporter) FileName() string { return "index.html" }

func (e *HTMLExporter) Export(ctx context.Context, page Page, snap *Snapshot) ([]byte, error) {
	return []byte(snap.HTML), nil
}

// ScreenshotExporter writes a full page PNG
type ScreenshotExporter struct{}

func (e *ScreenshotExporter) Kind() string     { return "screenshot" }
func (e *ScreenshotExporter) FileName() string { return "screenshot.png" }

func (e *ScreenshotExporter) Export(ctx context.Context, page Page, snap *Snapshot) ([]byte, error) {
	return page.Screenshot(ctx, true)
}

// PDFExporter prints the page to A4
type PDFExporter struct{}

func (e *PDFExporter) Kind() string     { return "pdf" }
func (e *PDFExporter) FileName() string { return "page.pdf" }

func (e *PDFExporter) Export(ctx context.Context, page Page, snap *Snapshot) ([]byte, error) {
	return page.PDF(ctx)
}

// StylesExporter collects every readable stylesheet rule and inline style
type StylesExporter struct{}

func (e *StylesExporter) Kind() string     { return "css" }
func (e *StylesExporter) FileName() string { return "styles.css" }

func (e *StylesExporter) Export(ctx context.Context, page Page, snap *Snapshot) ([]byte, error) {
	css, err := page.Eval(ctx, extractStylesScript)
	if err != nil {
		return nil, fmt.Errorf("extracting styles: %w", err)
	}
	snap.Styles = css
	return []byte(css), nil
}

// ScriptsExporter collects inline scripts and notes external ones
type ScriptsExporter struct{}

func (e *ScriptsExporter) Kind() string     { return "js" }
func (e *ScriptsExporter) FileName() string { return "scripts.js" }

func (e *ScriptsExporter) Export(ctx context.Context, page Page, snap *Snapshot) ([]byte, error) {
	js, err := page.Eval(ctx, extractScriptsScript)
	if err != nil {
		return nil, fmt.Errorf("extracting scripts: %w", err)
	}
	snap.Scripts = js
	return []byte(js), nil
}

// MarkdownExporter converts the readable part of the page to markdown,
// falling back to the whole document
type MarkdownExporter struct {
	converter *md.Converter
}

// NewMarkdownExporter creates a markdown exporter
func NewMarkdownExporter() *MarkdownExporter {
	return &MarkdownExporter{converter: md.NewConverter("", true, nil)}
}

func (e *MarkdownExporter) Kind() string     { return "markdown" }
func (e *MarkdownExporter) FileName() string { return "content.md" }

func (e *MarkdownExporter) Export(ctx context.Context, page Page, snap *Snapshot) ([]byte, error) {
	source := snap.Readable
	if strings.TrimSpace(source) == "" {
		source = snap.HTML
	}
	markdown, err := e.converter.ConvertString(source)
	if err != nil {
		return nil, fmt.Errorf("converting HTML to markdown: %w", err)
	}
	if snap.Metadata.Title != "" {
		markdown = fmt.Sprintf("# %s\n\n%s", snap.Metadata.Title, markdown)
	}
	return []byte(markdown), nil
}

// MetadataExporter writes metadata.json
type MetadataExporter struct{}

func (e *MetadataExporter) Kind() string     { return "metadata" }
func (e *MetadataExporter) FileName() string { return "metadata.json" }

func (e *MetadataExporter) Export(ctx context.Context, page Page, snap *Snapshot) ([]byte, error) {
	return json.MarshalIndent(snap.Metadata, "", "  ")
}

// OfflineExporter appends the extracted styles, the metadata and the
// extracted scripts to <head> so the page can be viewed without the site
type OfflineExporter struct{}

func (e *OfflineExporter) Kind() string     { return "offline" }
func (e *OfflineExporter) FileName() string { return "offline.html" }

func (e *OfflineExporter) Export(ctx context.Context, page Page, snap *Snapshot) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return nil, fmt.Errorf("parsing page html: %w", err)
	}

	metadata, err := json.MarshalIndent(snap.Metadata, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}

	var b strings.Builder
	b.WriteString("<style>\n/* Extracted CSS Styles */\n")
	b.WriteString(escapeRawText(snap.Styles, "style"))
	b.WriteString("\n</style>\n<script>\n/* Page Metadata */\nwindow.pageMetadata = ")
	b.WriteString(escapeRawText(string(metadata), "script"))
	b.WriteString(";\n\n/* Extracted JavaScript */\n")
	b.WriteString(escapeRawText(snap.Scripts, "script"))
	b.WriteString("\n</script>\n")

	doc.Find("head").AppendHtml(b.String())

	html, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("rendering offline html: %w", err)
	}
	return []byte(html), nil
}

// escapeRawText keeps embedded text from closing its raw text element early
func escapeRawText(text, tag string) string {
	return strings.ReplaceAll(text, "</"+tag, `<\/`+tag)
}
