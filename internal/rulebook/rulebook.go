// Package rulebook holds the data-driven tables that map a rail's raw
// (status, error) codes onto the canonical lifecycle.
package rulebook

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"
	_ "time/tzdata" // rulebooks name IANA zones; containers may lack zoneinfo

	"settlement-reconciler/internal/core/domain"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Kind is the classification family of a rail status code.
type Kind string

const (
	KindQueued   Kind = "queued"
	KindSuccess  Kind = "success"
	KindFailed   Kind = "failed"
	KindDeleted  Kind = "deleted"
	KindOutage   Kind = "outage"
	KindReturned Kind = "returned"
	KindPending  Kind = "pending"
)

func (k Kind) valid() bool {
	switch k {
	case KindQueued, KindSuccess, KindFailed, KindDeleted, KindOutage, KindReturned, KindPending:
		return true
	}
	return false
}

// ErrUnknownRulebook is returned when a name is neither built in nor a readable file.
var ErrUnknownRulebook = errors.New("unknown rulebook")

// Rule maps a raw (status, error) pair to a Kind. An empty Error matches any error code.
type Rule struct {
	Status string `yaml:"status"`
	Error  string `yaml:"error"`
	Kind   Kind   `yaml:"kind"`
	Reason string `yaml:"reason"`
}

// Rulebook is the classification table of one rail.
type Rulebook struct {
	Rail            string            `yaml:"rail"`
	Cutoff          string            `yaml:"cutoff"` // HH:MM, local to Timezone
	Timezone        string            `yaml:"timezone"`
	WindowExtraDays int               `yaml:"window_extra_days"`
	Rules           []Rule            `yaml:"rules"`
	ReturnReasons   map[string]string `yaml:"return_reasons"`

	loc          *time.Location
	cutoffHour   int
	cutoffMinute int
	exact        map[[2]string]Rule
	byStatus     map[string]Rule
}

// Parse decodes and validates a YAML rulebook.
func Parse(data []byte) (*Rulebook, error) {
	var rb Rulebook
	if err := yaml.Unmarshal(data, &rb); err != nil {
		return nil, fmt.Errorf("decoding rulebook: %w", err)
	}
	if err := rb.compile(); err != nil {
		return nil, fmt.Errorf("rulebook %q: %w", rb.Rail, err)
	}
	return &rb, nil
}

// Load reads a rulebook from a YAML file.
func Load(file string) (*Rulebook, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading rulebook: %w", err)
	}
	return Parse(data)
}

// Builtin returns an embedded rulebook by rail name.
func Builtin(name string) (*Rulebook, error) {
	data, err := builtinFS.ReadFile(path.Join("builtin", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRulebook, name)
	}
	return Parse(data)
}

// BuiltinNames lists the embedded rulebooks.
func BuiltinNames() []string {
	entries, _ := builtinFS.ReadDir("builtin")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Resolve returns the built-in rulebook called ref, or loads ref as a file path.
func Resolve(ref string) (*Rulebook, error) {
	if rb, err := Builtin(ref); err == nil {
		return rb, nil
	}
	if strings.HasSuffix(ref, ".yaml") || strings.HasSuffix(ref, ".yml") || strings.ContainsRune(ref, os.PathSeparator) {
		return Load(ref)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownRulebook, ref)
}

func (rb *Rulebook) compile() error {
	if rb.Rail == "" {
		return errors.New("rail is required")
	}

	tz := rb.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("loading timezone: %w", err)
	}
	rb.loc = loc

	if rb.Cutoff == "" {
		rb.Cutoff = "00:00"
	}
	cutoff, err := time.Parse("15:04", rb.Cutoff)
	if err != nil {
		return fmt.Errorf("parsing cutoff %q: %w", rb.Cutoff, err)
	}
	rb.cutoffHour, rb.cutoffMinute = cutoff.Hour(), cutoff.Minute()

	if rb.WindowExtraDays < 0 {
		return errors.New("window_extra_days must not be negative")
	}

	rb.exact = make(map[[2]string]Rule)
	rb.byStatus = make(map[string]Rule)
	for i, r := range rb.Rules {
		if r.Status == "" {
			return fmt.Errorf("rule %d: status is required", i)
		}
		if !r.Kind.valid() {
			return fmt.Errorf("rule %d: unknown kind %q", i, r.Kind)
		}
		if r.Reason != "" && !validReason(r.Reason) {
			return fmt.Errorf("rule %d: unknown reason %q", i, r.Reason)
		}
		if r.Error == "" {
			if _, dup := rb.byStatus[r.Status]; dup {
				return fmt.Errorf("rule %d: duplicate status %q", i, r.Status)
			}
			rb.byStatus[r.Status] = r
			continue
		}
		key := [2]string{r.Status, r.Error}
		if _, dup := rb.exact[key]; dup {
			return fmt.Errorf("rule %d: duplicate rule %s/%s", i, r.Status, r.Error)
		}
		rb.exact[key] = r
	}

	for code, reason := range rb.ReturnReasons {
		if !validReason(reason) {
			return fmt.Errorf("return reason %s: unknown reason %q", code, reason)
		}
	}
	return nil
}

func validReason(r string) bool {
	switch domain.ReasonCode(r) {
	case domain.ReasonBadAccountNumber, domain.ReasonNameMismatch, domain.ReasonOther:
		return true
	}
	return false
}

// Lookup finds the rule for a raw status and error code.
// An exact (status, error) rule wins over the status-only rule.
func (rb *Rulebook) Lookup(status, errCode string) (Rule, bool) {
	if errCode != "" {
		if r, ok := rb.exact[[2]string{status, errCode}]; ok {
			return r, true
		}
	}
	r, ok := rb.byStatus[status]
	return r, ok
}

// ReasonFor maps a rail error or return code through the lookup table.
func (rb *Rulebook) ReasonFor(code string) domain.ReasonCode {
	if r, ok := rb.ReturnReasons[code]; ok {
		return domain.ReasonCode(r)
	}
	return domain.ReasonOther
}

// Location is the time zone the cutoff and settlement dates are expressed in.
func (rb *Rulebook) Location() *time.Location {
	return rb.loc
}

// CutoffOn returns the business cutoff instant on the given settlement date.
func (rb *Rulebook) CutoffOn(settlementDate time.Time) time.Time {
	y, m, d := settlementDate.Date()
	return time.Date(y, m, d, rb.cutoffHour, rb.cutoffMinute, 0, 0, rb.loc)
}

// Today returns the calendar day of now in the rail's zone, as UTC midnight.
func (rb *Rulebook) Today(now time.Time) time.Time {
	y, m, d := now.In(rb.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Window returns the query window for a settlement date.
func (rb *Rulebook) Window(settlementDate time.Time) domain.DateWindow {
	y, m, d := settlementDate.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return domain.DateWindow{From: from, To: from.AddDate(0, 0, rb.WindowExtraDays)}
}
