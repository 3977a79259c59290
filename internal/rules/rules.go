// Package rules holds the data-driven part of scoring: the country allow-list
// and per-tour amount bands. Both are versioned data loaded from YAML, not
// environment configuration, and can be swapped at runtime through Provider.
package rules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Band is the inclusive [Min, Max] amount range, in minor units, seen for a tour.
type Band struct {
	Min int64 `yaml:"min"`
	Max int64 `yaml:"max"`
}

// RuleSet is one immutable version of the scoring data.
type RuleSet struct {
	Version          string
	allowedCountries map[string]bool
	tours            map[string]Band
}

type fileFormat struct {
	Version          string          `yaml:"version"`
	AllowedCountries []string        `yaml:"allowed_countries"`
	Tours            map[string]Band `yaml:"tours"`
}

// New builds a RuleSet, normalising country codes to upper case.
func New(version string, countries []string, tours map[string]Band) (*RuleSet, error) {
	if strings.TrimSpace(version) == "" {
		return nil, errors.New("rules: version is required")
	}
	rs := &RuleSet{
		Version:          version,
		allowedCountries: make(map[string]bool, len(countries)),
		tours:            make(map[string]Band, len(tours)),
	}
	for _, c := range countries {
		rs.allowedCountries[strings.ToUpper(strings.TrimSpace(c))] = true
	}
	for id, b := range tours {
		if b.Min < 0 || b.Max < b.Min {
			return nil, fmt.Errorf("rules: tour %q has invalid band [%d,%d]", id, b.Min, b.Max)
		}
		rs.tours[id] = b
	}
	return rs, nil
}

// Default is the built-in rule set used when no file is configured.
func Default() *RuleSet {
	rs, _ := New("builtin-1",
		[]string{"JP", "US", "GB", "CA", "AU", "NZ", "SG"},
		map[string]Band{
			"night-tour":    {Min: 8000, Max: 20000},
			"food-tour":     {Min: 6000, Max: 15000},
			"day-trip-fuji": {Min: 12000, Max: 35000},
			"temple-walk":   {Min: 3000, Max: 9000},
			"private-guide": {Min: 25000, Max: 120000},
		})
	return rs
}

// Parse decodes the YAML rule file format.
func Parse(data []byte) (*RuleSet, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("rules: parse: %w", err)
	}
	return New(f.Version, f.AllowedCountries, f.Tours)
}

// CountryAllowed reports whether code is on the allow-list.
func (r *RuleSet) CountryAllowed(code string) bool {
	return r.allowedCountries[strings.ToUpper(code)]
}

// AmountUsual reports whether amount lies inside the tour's band.
// An unknown tour is never usual.
func (r *RuleSet) AmountUsual(tourID string, amount int64) bool {
	b, ok := r.tours[tourID]
	if !ok {
		return false
	}
	return amount >= b.Min && amount <= b.Max
}

// Band returns the band for tourID, if known.
func (r *RuleSet) Band(tourID string) (Band, bool) {
	b, ok := r.tours[tourID]
	return b, ok
}

// ─── Sources ──────────────────────────────────────────────────────────────────

// Source loads the current version of the rules from wherever they live.
type Source interface {
	Load(ctx context.Context) (*RuleSet, error)
}

// FileSource reads a YAML rule file from disk on every Load.
type FileSource struct {
	Path string
}

func (s FileSource) Load(_ context.Context) (*RuleSet, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", s.Path, err)
	}
	return Parse(data)
}

// StaticSource always returns the same rule set.
type StaticSource struct {
	Rules *RuleSet
}

func (s StaticSource) Load(_ context.Context) (*RuleSet, error) {
	return s.Rules, nil
}

// ─── Provider ─────────────────────────────────────────────────────────────────

// Provider serves the current rule set and swaps it atomically on Refresh.
// Readers never block and always see one complete version.
type Provider struct {
	src     Source
	current atomic.Pointer[RuleSet]
}

// NewProvider loads the initial version from src.
func NewProvider(ctx context.Context, src Source) (*Provider, error) {
	p := &Provider{src: src}
	if _, err := p.Refresh(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Static wraps a fixed rule set, mainly for tests.
func Static(rs *RuleSet) *Provider {
	p := &Provider{src: StaticSource{Rules: rs}}
	p.current.Store(rs)
	return p
}

// Current returns the rule set in force.
func (p *Provider) Current() *RuleSet {
	return p.current.Load()
}

// Refresh reloads from the source. On error the previous version stays.
func (p *Provider) Refresh(ctx context.Context) (*RuleSet, error) {
	rs, err := p.src.Load(ctx)
	if err != nil {
		return nil, err
	}
	p.current.Store(rs)
	return rs, nil
}
