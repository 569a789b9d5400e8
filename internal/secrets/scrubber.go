// Package secrets keeps credentials found in document text from leaving
// the process. Detection uses the gitleaks default rule set.
package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
	"go.uber.org/zap"
)

// Marker replaces every detected secret.
const Marker = "[REDACTED]"

// Finding is a detected secret.
type Finding struct {
	RuleID string
	Line   int
	Match  string
}

// Scrubber detects and redacts secrets. It satisfies llm.Scrubber.
type Scrubber struct {
	allow  []*regexp.Regexp
	logger *zap.Logger
}

// New creates a Scrubber. Matches of any allow pattern are never redacted.
func New(allow []string, logger *zap.Logger) (*Scrubber, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scrubber{logger: logger}
	for _, p := range allow {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid allow pattern %q: %w", p, err)
		}
		s.allow = append(s.allow, re)
	}
	return s, nil
}

// Detect scans content with a fresh gitleaks detector. Detectors accumulate
// findings internally, so one is built per call.
func (s *Scrubber) Detect(content string) ([]Finding, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("creating gitleaks detector: %w", err)
	}
	if len(s.allow) > 0 {
		al := &gitleaksConfig.Allowlist{Description: "adminrag allow patterns"}
		for _, re := range s.allow {
			al.Regexes = append(al.Regexes, (*gitleaksRegexp.Regexp)(re))
		}
		detector.Config.Allowlists = append(detector.Config.Allowlists, al)
	}

	found := detector.DetectString(content)
	out := make([]Finding, 0, len(found))
	for _, f := range found {
		if f.Secret == "" {
			continue
		}
		out = append(out, Finding{RuleID: f.RuleID, Line: f.StartLine, Match: f.Secret})
	}
	return out, nil
}

// Redact replaces every detected secret with Marker. If detection itself
// fails the content is returned unchanged and the failure is logged.
func (s *Scrubber) Redact(content string) string {
	if strings.TrimSpace(content) == "" {
		return content
	}
	findings, err := s.Detect(content)
	if err != nil {
		s.logger.Warn("secret detection failed", zap.Error(err))
		return content
	}
	if len(findings) == 0 {
		return content
	}

	// Longest first so a secret containing another is replaced whole.
	secrets := make([]string, 0, len(findings))
	rules := make([]string, 0, len(findings))
	for _, f := range findings {
		secrets = append(secrets, f.Match)
		rules = append(rules, f.RuleID)
	}
	sort.SliceStable(secrets, func(i, j int) bool { return len(secrets[i]) > len(secrets[j]) })
	for _, sec := range secrets {
		content = strings.ReplaceAll(content, sec, Marker)
	}

	s.logger.Info("secrets redacted from prompt",
		zap.Int("count", len(findings)),
		zap.Strings("rules", rules))
	return content
}
