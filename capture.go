package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxCaptureNameAttempts = 1000

// CaptureMetadata describes one capture; it is written to metadata.json and
// embedded in the offline document
type CaptureMetadata struct {
	ID        string            `json:"id"`
	URL       string            `json:"url"`
	Title     string            `json:"title"`
	Excerpt   string            `json:"excerpt,omitempty"`
	Timestamp string            `json:"timestamp"`
	FileName  string            `json:"fileName"`
	Files     map[string]string `json:"files"`
}

// Snapshot is the page state shared by the exporters of one capture
type Snapshot struct {
	HTML     string
	Readable string
	Metadata CaptureMetadata

	// filled in by exporters that run earlier in the chain
	Styles  string
	Scripts string
}

// CaptureResult is where a capture landed
type CaptureResult struct {
	Directory string
	Files     []string
	Metadata  CaptureMetadata
}

// PageCapturer saves the current page as a directory of artifacts
type PageCapturer struct {
	outputDir string
	prefix    string
	exporters []Exporter
	now       func() time.Time
	logger    *zap.Logger
}

// NewPageCapturer creates a capturer with the default exporter chain
func NewPageCapturer(settings *Settings, logger *zap.Logger) *PageCapturer {
	outputDir := settings.OutputDirectory
	if outputDir == "" {
		outputDir = "saved-pages"
	}
	prefix := settings.Capture.Prefix
	if prefix == "" {
		prefix = "capture"
	}

	c := &PageCapturer{
		outputDir: outputDir,
		prefix:    prefix,
		now:       time.Now,
		logger:    orNop(logger).Named("capture"),
	}

	// Order matters: offline.html embeds what styles and scripts extracted
	c.AddExporter(&HTMLExporter{})
	c.AddExporter(&ScreenshotExporter{})
	c.AddExporter(&PDFExporter{})
	c.AddExporter(&StylesExporter{})
	c.AddExporter(&ScriptsExporter{})
	c.AddExporter(NewMarkdownExporter())
	c.AddExporter(&MetadataExporter{})
	c.AddExporter(&OfflineExporter{})
	return c
}

// AddExporter appends an exporter to the chain
func (c *PageCapturer) AddExporter(e Exporter) {
	c.exporters = append(c.exporters, e)
}

// Capture writes every artifact of the current page. Any failing exporter
// fails the whole capture and the partial directory is removed.
func (c *PageCapturer) Capture(ctx context.Context, page Page) (*CaptureResult, error) {
	location, err := page.Location(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading location: %w", err)
	}
	title, err := page.Title(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading title: %w", err)
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading html: %w", err)
	}

	if err := os.MkdirAll(c.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	name, now, err := c.createCaptureDir(location, c.now())
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(c.outputDir, name)

	snap := &Snapshot{
		HTML: html,
		Metadata: CaptureMetadata{
			ID:        uuid.NewString(),
			URL:       location,
			Title:     title,
			Timestamp: now.UTC().Format(time.RFC3339Nano),
			FileName:  name,
			Files:     make(map[string]string, len(c.exporters)),
		},
	}
	for _, e := range c.exporters {
		snap.Metadata.Files[e.Kind()] = e.FileName()
	}
	c.applyReadability(snap, location)

	c.logger.Info("  → Saving page", zap.String("title", snap.Metadata.Title), zap.String("directory", dir))

	result := &CaptureResult{Directory: dir, Metadata: snap.Metadata}
	for _, e := range c.exporters {
		data, err := e.Export(ctx, page, snap)
		if err == nil {
			err = os.WriteFile(filepath.Join(dir, e.FileName()), data, 0644)
		}
		if err != nil {
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				c.logger.Warn("Removing partial capture failed", zap.String("directory", dir), zap.Error(rmErr))
			}
			return nil, fmt.Errorf("exporting %s: %w", e.FileName(), err)
		}
		result.Files = append(result.Files, e.FileName())
	}

	c.logger.Info("  ✓ Page saved", zap.String("directory", dir), zap.Int("files", len(result.Files)))
	return result, nil
}

// createCaptureDir creates a directory no other capture owns. A name that
// is taken moves the timestamp forward one millisecond.
func (c *PageCapturer) createCaptureDir(location string, at time.Time) (string, time.Time, error) {
	for i := 0; i < maxCaptureNameAttempts; i++ {
		name := captureName(c.prefix, location, at)
		err := os.Mkdir(filepath.Join(c.outputDir, name), 0755)
		if err == nil {
			return name, at, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", at, fmt.Errorf("creating capture directory: %w", err)
		}
		at = at.Add(time.Millisecond)
	}
	return "", at, fmt.Errorf("creating capture directory: no free name for %s", location)
}

// applyReadability fills the excerpt, the readable body and a missing title
func (c *PageCapturer) applyReadability(snap *Snapshot, location string) {
	pageURL, err := url.Parse(location)
	if err != nil {
		return
	}
	article, err := readability.FromReader(strings.NewReader(snap.HTML), pageURL)
	if err != nil {
		c.logger.Debug("Readability extraction failed", zap.Error(err))
		return
	}
	snap.Readable = article.Content
	snap.Metadata.Excerpt = strings.TrimSpace(article.Excerpt)
	if snap.Metadata.Title == "" {
		snap.Metadata.Title = article.Title
	}
}

// captureName is <prefix>-<last path segment, at most 20 chars>-<timestamp>
func captureName(prefix, location string, at time.Time) string {
	segment := location
	if u, err := url.Parse(location); err == nil {
		segment = u.Path
	}
	segment = strings.TrimRight(segment, "/")
	if i := strings.LastIndex(segment, "/"); i >= 0 {
		segment = segment[i+1:]
	}
	segment = sanitizeSegment(segment)
	if r := []rune(segment); len(r) > 20 {
		segment = string(r[:20])
	}
	if segment == "" {
		segment = "page"
	}

	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(at.UTC().Format("2006-01-02T15:04:05.000Z"))
	return fmt.Sprintf("%s-%s-%s", prefix, segment, stamp)
}

func sanitizeSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, s)
}
