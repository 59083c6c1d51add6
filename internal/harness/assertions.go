package harness

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/namehist/internal/store"
	"github.com/roach88/namehist/internal/testutil"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Account  string // Account alias, empty for identifiers
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Account != "" {
		fmt.Fprintf(&buf, " (%s)", e.Account)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n  Actual: %s", e.Expected, e.Actual)

	return buf.String()
}

// AssertionContext is what assertions are evaluated against.
type AssertionContext struct {
	Ctx      context.Context
	Store    *store.Store
	Fetcher  *testutil.FakeFetcher
	Accounts map[string]uuid.UUID
}

// EvaluateAssertions evaluates all assertions and returns one message per failure.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertHistory:
			err = assertHistory(actx, assertion)
		case AssertMetadata:
			err = assertMetadata(actx, assertion)
		case AssertFetchCount:
			err = assertFetchCount(actx, assertion)
		case AssertIdentifiers:
			err = assertIdentifiers(actx, assertion)
		default:
			err = fmt.Errorf("unknown assertion type %q", assertion.Type)
		}

		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	return errs
}

// assertHistory checks the stored names of an account, in order.
func assertHistory(actx *AssertionContext, a Assertion) error {
	stored, err := actx.Store.GetHistory(actx.Ctx, actx.Accounts[a.Account])
	if err != nil {
		return fmt.Errorf("read history of %s: %w", a.Account, err)
	}

	want := a.Names
	if want == nil {
		want = []string{}
	}
	if got := elementNames(stored); !reflect.DeepEqual(want, got) {
		return &AssertionError{
			Type:     AssertHistory,
			Account:  a.Account,
			Expected: fmt.Sprintf("%v", want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

// assertMetadata checks the stored check metadata of an account.
// Times compare at second resolution, the resolution metadata is stored at.
func assertMetadata(actx *AssertionContext, a Assertion) error {
	meta, err := actx.Store.GetMetadata(actx.Ctx, actx.Accounts[a.Account])
	if err != nil {
		return fmt.Errorf("read metadata of %s: %w", a.Account, err)
	}

	fail := func(expected, actual string) error {
		return &AssertionError{Type: AssertMetadata, Account: a.Account, Expected: expected, Actual: actual}
	}

	if a.Absent {
		if meta != nil {
			return fail("no metadata", fmt.Sprintf("checked at %d (changed: %t)",
				meta.LastChecked.UnixMilli(), meta.LastCheckChanged))
		}
		return nil
	}
	if meta == nil {
		return fail("metadata", "no metadata")
	}

	if a.Changed != nil && *a.Changed != meta.LastCheckChanged {
		return fail(fmt.Sprintf("changed: %t", *a.Changed), fmt.Sprintf("changed: %t", meta.LastCheckChanged))
	}
	if a.CheckedAt != nil {
		want := msTime(*a.CheckedAt).Unix()
		if got := meta.LastChecked.Unix(); want != got {
			return fail(fmt.Sprintf("checked at second %d", want), fmt.Sprintf("checked at second %d", got))
		}
	}
	return nil
}

// assertFetchCount checks how often the profile source was asked for an account.
func assertFetchCount(actx *AssertionContext, a Assertion) error {
	if got := actx.Fetcher.Calls(actx.Accounts[a.Account]); got != *a.Count {
		return &AssertionError{
			Type:     AssertFetchCount,
			Account:  a.Account,
			Expected: fmt.Sprintf("%d fetches", *a.Count),
			Actual:   fmt.Sprintf("%d fetches", got),
		}
	}
	return nil
}

// assertIdentifiers checks how many identifiers have stored history.
func assertIdentifiers(actx *AssertionContext, a Assertion) error {
	n, err := actx.Store.CountIdentifiers(actx.Ctx)
	if err != nil {
		return fmt.Errorf("count identifiers: %w", err)
	}
	if n != int64(*a.Count) {
		return &AssertionError{
			Type:     AssertIdentifiers,
			Expected: fmt.Sprintf("%d identifiers", *a.Count),
			Actual:   fmt.Sprintf("%d identifiers", n),
		}
	}
	return nil
}
