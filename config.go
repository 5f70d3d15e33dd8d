package main

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigDir = ".link-harvester"

//go:embed config/settings.yaml
var defaultSettings string

// LedgerSettings describes where the work list lives and how to read it
type LedgerSettings struct {
	Path          string `yaml:"path"`
	Encoding      string `yaml:"encoding"`
	StartRow      int    `yaml:"start_row"`
	SkipAnnotated bool   `yaml:"skip_annotated"`
	FailureNote   string `yaml:"failure_note"`
}

// BrowserSettings configures the browser session
type BrowserSettings struct {
	Headless          bool          `yaml:"headless"`
	Bin               string        `yaml:"bin"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	SlowMotion        time.Duration `yaml:"slow_motion"`
	ViewportWidth     int           `yaml:"viewport_width"`
	ViewportHeight    int           `yaml:"viewport_height"`
}

// TimingSettings holds the fixed pauses between interactions
type TimingSettings struct {
	PageReadyDelay    time.Duration `yaml:"page_ready_delay"`
	StepDelay         time.Duration `yaml:"step_delay"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
	PostRegisterDelay time.Duration `yaml:"post_register_delay"`
	DismissDelay      time.Duration `yaml:"dismiss_delay"`
	ItemDelay         time.Duration `yaml:"item_delay"`
}

// PollSettings bounds completion detection
type PollSettings struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// FaultSettings holds the page signatures used to classify a submission
type FaultSettings struct {
	CompletionPattern   string   `yaml:"completion_pattern"`
	QuotaPhrases        []string `yaml:"quota_phrases"`
	FetchFailurePhrases []string `yaml:"fetch_failure_phrases"`
}

// OverlaySettings configures the popup suppressor
type OverlaySettings struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	PromoMarkers  []string      `yaml:"promo_markers"`
}

// IdentitySettings configures generated credentials
type IdentitySettings struct {
	Prefix   string `yaml:"prefix"`
	Domain   string `yaml:"domain"`
	Password string `yaml:"password"`
}

// CaptureSettings configures snapshot naming
type CaptureSettings struct {
	Prefix string `yaml:"prefix"`
}

// Settings represents the YAML configuration structure
type Settings struct {
	RegistrationURL      string           `yaml:"registration_url"`
	SubmissionURL        string           `yaml:"submission_url"`
	OutputDirectory      string           `yaml:"output_directory"`
	DiagnosticScreenshot string           `yaml:"diagnostic_screenshot"`
	KeepOpen             bool             `yaml:"keep_open"`
	Ledger               LedgerSettings   `yaml:"ledger"`
	Browser              BrowserSettings  `yaml:"browser"`
	Timing               TimingSettings   `yaml:"timing"`
	Poll                 PollSettings     `yaml:"poll"`
	Faults               FaultSettings    `yaml:"faults"`
	Overlay              OverlaySettings  `yaml:"overlay"`
	Identity             IdentitySettings `yaml:"identity"`
	Capture              CaptureSettings  `yaml:"capture"`
}

// NavigationTimeout returns the per-navigation timeout
func (s *Settings) NavigationTimeout() time.Duration {
	if s.Browser.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return s.Browser.NavigationTimeout
}

// PollPolicy returns the completion polling policy
func (s *Settings) PollPolicy() PollPolicy {
	policy := PollPolicy{Interval: s.Poll.Interval, MaxAttempts: s.Poll.MaxAttempts}
	if policy.Interval <= 0 {
		policy.Interval = 2 * time.Second
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 30
	}
	return policy
}

// SweepInterval returns how often the overlay guard re-scans the page
func (s *Settings) SweepInterval() time.Duration {
	if s.Overlay.SweepInterval <= 0 {
		return 2 * time.Second
	}
	return s.Overlay.SweepInterval
}

// StartRow returns the first ledger row to process (row 0 is the header)
func (s *Settings) StartRow() int {
	if s.Ledger.StartRow < 0 {
		return 0
	}
	return s.Ledger.StartRow
}

// FailureNote returns the marker written to rows that hit a fetch failure
func (s *Settings) FailureNote() string {
	if s.Ledger.FailureNote == "" {
		return "网络请求失败"
	}
	return s.Ledger.FailureNote
}

// Validate checks the settings that the run cannot do without
func (s *Settings) Validate() error {
	if s.RegistrationURL == "" {
		return fmt.Errorf("registration_url is required")
	}
	if s.SubmissionURL == "" {
		return fmt.Errorf("submission_url is required")
	}
	if !ValidateLink(s.RegistrationURL) {
		return fmt.Errorf("registration_url is not an absolute URL: %s", s.RegistrationURL)
	}
	if !ValidateLink(s.SubmissionURL) {
		return fmt.Errorf("submission_url is not an absolute URL: %s", s.SubmissionURL)
	}
	if s.Ledger.Path == "" {
		return fmt.Errorf("ledger.path is required")
	}
	if s.Faults.CompletionPattern == "" {
		return fmt.Errorf("faults.completion_pattern is required")
	}
	if _, err := regexp.Compile(s.Faults.CompletionPattern); err != nil {
		return fmt.Errorf("faults.completion_pattern: %w", err)
	}
	return nil
}

// GetConfigPath returns the full path to a config file
func GetConfigPath(filename string) string {
	return filepath.Join(defaultConfigDir, filename)
}

// parseSettings decodes YAML on top of the embedded defaults
func parseSettings(data []byte) (*Settings, error) {
	var settings Settings
	if err := yaml.Unmarshal([]byte(defaultSettings), &settings); err != nil {
		return nil, fmt.Errorf("parsing embedded settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}
	return &settings, nil
}

// loadSettings loads settings from a YAML file with fallback to the embedded defaults
func loadSettings(settingsPath string) (*Settings, error) {
	data, err := os.ReadFile(settingsPath)
	if os.IsNotExist(err) {
		return parseSettings(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings file %s: %w", settingsPath, err)
	}
	return parseSettings(data)
}

// loadSettingsRequired loads settings from a YAML file, failing if the file doesn't exist
func loadSettingsRequired(settingsPath string) (*Settings, error) {
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("reading settings file %s: %w", settingsPath, err)
	}
	return parseSettings(data)
}

// ensureConfigExists creates the config directory and writes settings.yaml if needed
func ensureConfigExists() error {
	if err := os.MkdirAll(defaultConfigDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	settingsFile := GetConfigPath("settings.yaml")
	if _, err := os.Stat(settingsFile); os.IsNotExist(err) {
		if err := os.WriteFile(settingsFile, []byte(defaultSettings), 0644); err != nil {
			return fmt.Errorf("writing settings.yaml: %w", err)
		}
	}
	return nil
}
