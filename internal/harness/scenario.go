package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/namehist/internal/config"
	"github.com/roach88/namehist/internal/history"
)

// Scenario defines a reconciliation scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the initial clock reading in milliseconds since the epoch.
	Start int64 `yaml:"start"`

	// Policy holds the freshness TTLs. Unset TTLs use the defaults.
	Policy PolicySpec `yaml:"policy"`

	// Accounts maps the aliases used by steps and assertions to identifiers.
	Accounts map[string]string `yaml:"accounts"`

	// Seed is written to the store before the first step.
	Seed []Seed `yaml:"seed,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final store and profile source state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// PolicySpec holds the freshness TTLs as duration strings.
type PolicySpec struct {
	UnchangedTTL string `yaml:"unchanged_ttl,omitempty"`
	ChangedTTL   string `yaml:"changed_ttl,omitempty"`
}

// Seed is pre-existing state for one account.
type Seed struct {
	Account string     `yaml:"account"`
	Names   []SeedName `yaml:"names,omitempty"`

	// Source is the provenance tag for the seeded names (default import).
	Source *int `yaml:"source,omitempty"`

	// Checked, when set, writes check metadata for the account.
	Checked *SeedCheck `yaml:"checked,omitempty"`
}

// SeedName is one seeded history element. A missing changedToAt marks the
// first known name.
type SeedName struct {
	Name        string `yaml:"name"`
	ChangedToAt *int64 `yaml:"changedToAt,omitempty"`
}

// Element converts n to a history element.
func (n SeedName) Element() history.Element {
	if n.ChangedToAt == nil {
		return history.NewInitialElement(n.Name)
	}
	return history.NewElement(n.Name, msTime(*n.ChangedToAt))
}

// SeedCheck is seeded check metadata.
type SeedCheck struct {
	At      int64 `yaml:"at"` // ms since epoch, stored at second resolution
	Changed bool  `yaml:"changed"`
}

// Step is one scenario action. Exactly one of Advance, Upstream and Resolve
// is set.
type Step struct {
	// Advance moves the clock forward (e.g. "2h", "500" for 500ms).
	Advance string `yaml:"advance,omitempty"`

	// Upstream reconfigures the profile source for one account.
	Upstream *UpstreamStep `yaml:"upstream,omitempty"`

	// Resolve is the alias of the account to look up.
	Resolve string `yaml:"resolve,omitempty"`

	// Concurrent runs that many parallel lookups instead of one.
	Concurrent int `yaml:"concurrent,omitempty"`

	// Expect checks the outcome of a resolve step.
	Expect *Expect `yaml:"expect,omitempty"`
}

// UpstreamStep sets the answer of the profile source for an account.
type UpstreamStep struct {
	Account string `yaml:"account"`

	// Name is the current name to answer with.
	Name string `yaml:"name,omitempty"`

	// Fail makes the source fail instead: unavailable, transport or malformed.
	Fail string `yaml:"fail,omitempty"`

	// Status is the upstream status for fail: unavailable (default 404).
	Status int `yaml:"status,omitempty"`
}

// Upstream failure modes.
const (
	FailUnavailable = "unavailable"
	FailTransport   = "transport"
	FailMalformed   = "malformed"
)

// Expect specifies the expected outcome of a resolve step.
type Expect struct {
	// Names is the expected returned history, by name.
	Names []string `yaml:"names,omitempty"`

	// Fetches is the expected number of profile source calls made by the step.
	Fetches *int `yaml:"fetches,omitempty"`

	// Error is the expected failure kind (e.g. "fetch-unavailable").
	// Empty means the lookup must succeed.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is history, metadata, fetch_count or identifiers.
	Type string `yaml:"type"`

	// Account is the alias the assertion applies to (all but identifiers).
	Account string `yaml:"account,omitempty"`

	// Names is the expected stored history (history).
	Names []string `yaml:"names,omitempty"`

	// Changed is the expected last-check outcome (metadata).
	Changed *bool `yaml:"changed,omitempty"`

	// CheckedAt is the expected last-check time in ms (metadata), compared at
	// second resolution.
	CheckedAt *int64 `yaml:"checked_at,omitempty"`

	// Absent asserts that no metadata exists (metadata).
	Absent bool `yaml:"absent,omitempty"`

	// Count is the expected count (fetch_count, identifiers).
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertHistory     = "history"
	AssertMetadata    = "metadata"
	AssertFetchCount  = "fetch_count"
	AssertIdentifiers = "identifiers"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarioFiles lists the .yaml and .yml files under dir, sorted.
// A non-empty filter is a glob matched against the file name without extension.
func FindScenarioFiles(dir, filter string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})

	sort.Strings(files)
	return files, err
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Start < 0 {
		return fmt.Errorf("start must not be negative")
	}

	if _, err := s.Policy.policy(); err != nil {
		return err
	}

	if len(s.Accounts) == 0 {
		return fmt.Errorf("accounts map is required and must be non-empty")
	}
	for alias, raw := range s.Accounts {
		if _, err := history.ParseID(raw); err != nil {
			return fmt.Errorf("accounts.%s: %w", alias, err)
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, seed := range s.Seed {
		if err := s.checkAccount(seed.Account); err != nil {
			return fmt.Errorf("seed[%d]: %w", i, err)
		}
		for j, n := range seed.Names {
			if n.Name == "" {
				return fmt.Errorf("seed[%d].names[%d]: name is required", i, j)
			}
		}
	}

	for i, step := range s.Steps {
		if err := s.validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := s.validateAssertion(assertion); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}

	return nil
}

func (s *Scenario) checkAccount(alias string) error {
	if alias == "" {
		return fmt.Errorf("account is required")
	}
	if _, ok := s.Accounts[alias]; !ok {
		return fmt.Errorf("unknown account %q", alias)
	}
	return nil
}

func (s *Scenario) validateStep(step Step) error {
	set := 0
	if step.Advance != "" {
		set++
	}
	if step.Upstream != nil {
		set++
	}
	if step.Resolve != "" {
		set++
	}
	if set != 1 {
		return fmt.Errorf("exactly one of advance, upstream or resolve is required")
	}

	switch {
	case step.Advance != "":
		if _, err := config.ParseDuration(step.Advance); err != nil {
			return fmt.Errorf("advance: %w", err)
		}
	case step.Upstream != nil:
		u := step.Upstream
		if err := s.checkAccount(u.Account); err != nil {
			return fmt.Errorf("upstream: %w", err)
		}
		if (u.Name == "") == (u.Fail == "") {
			return fmt.Errorf("upstream: exactly one of name or fail is required")
		}
		switch u.Fail {
		case "", FailUnavailable, FailTransport, FailMalformed:
		default:
			return fmt.Errorf("upstream: unknown failure %q", u.Fail)
		}
	case step.Resolve != "":
		if err := s.checkAccount(step.Resolve); err != nil {
			return fmt.Errorf("resolve: %w", err)
		}
		if step.Concurrent < 0 {
			return fmt.Errorf("concurrent must not be negative")
		}
	}

	if step.Expect != nil && step.Resolve == "" {
		return fmt.Errorf("expect is only valid on resolve steps")
	}
	return nil
}

func (s *Scenario) validateAssertion(a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("type is required")
	case AssertHistory:
		return s.checkAccount(a.Account)
	case AssertMetadata:
		if err := s.checkAccount(a.Account); err != nil {
			return err
		}
		if a.Absent && (a.Changed != nil || a.CheckedAt != nil) {
			return fmt.Errorf("absent excludes changed and checked_at")
		}
		if !a.Absent && a.Changed == nil && a.CheckedAt == nil {
			return fmt.Errorf("metadata needs absent, changed or checked_at")
		}
	case AssertFetchCount:
		if err := s.checkAccount(a.Account); err != nil {
			return err
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("count must be set and non-negative for fetch_count")
		}
	case AssertIdentifiers:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("count must be set and non-negative for identifiers")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
