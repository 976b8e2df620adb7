package logquery

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loghistory/internal/db"
)

type staticCatalog map[string]map[string]string

func (c staticCatalog) Slugs() []string {
	out := make([]string, 0, len(c))
	for slug := range c {
		out = append(out, slug)
	}
	return out
}

func (c staticCatalog) TranslatedMessages(slug string) map[string]string { return c[slug] }

func newTestBuilder(catalog MessageCatalog) *clauseBuilder {
	return &clauseBuilder{
		dialect: "sqlite",
		tables:  db.TableNames{Events: "events", Contexts: "contexts"},
		catalog: catalog,
	}
}

func TestBuildPermissionScopeAlwaysFirst(t *testing.T) {
	b := newTestBuilder(nil)
	preds := b.build(&QuerySpec{Type: TypeOverview, Page: 1, PageSize: 30}, []string{"UserLogger"})

	require.NotEmpty(t, preds)
	sql, args := renderOne(preds[0], "sqlite")
	assert.Equal(t, "logger IN (?)", sql)
	assert.Equal(t, []any{"UserLogger"}, args)
}

func TestBuildEmptyPermissionsMatchNothing(t *testing.T) {
	b := newTestBuilder(nil)
	preds := b.build(&QuerySpec{Type: TypeOverview, Page: 1, PageSize: 30}, nil)

	sql, _ := renderPreds(preds, "sqlite")
	assert.Contains(t, sql, "logger IN (NULL)")
}

func TestBuildExclusionIsNegatedTwin(t *testing.T) {
	b := newTestBuilder(nil)
	spec := &QuerySpec{
		Type: TypeOverview, Page: 1, PageSize: 30,
		Loggers:        []string{"A"},
		ExcludeLoggers: []string{"A"},
	}
	sql, _ := renderPreds(b.build(spec, []string{"A", "B"}), "sqlite")

	// Inclusion and exclusion are independent AND-ed conditions, so an
	// exclusion always wins when both name the same value.
	assert.Contains(t, sql, "logger IN (?)")
	assert.Contains(t, sql, "logger NOT IN (?)")
}

func TestBuildDateBounds(t *testing.T) {
	from := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 5, 10, 23, 59, 59, 0, time.UTC)
	spec := &QuerySpec{Type: TypeOverview, Page: 1, PageSize: 30, DateFrom: &from, DateTo: &to}

	sql, args := renderPreds(newTestBuilder(nil).build(spec, []string{"A"}), "sqlite")
	assert.Contains(t, sql, "date >= ?")
	assert.Contains(t, sql, "date <= ?")
	assert.Contains(t, args, from)
	assert.Contains(t, args, to)
}

func TestBuildUsersGoThroughContextTable(t *testing.T) {
	spec := &QuerySpec{Type: TypeOverview, Page: 1, PageSize: 30, Users: []string{"7"}}
	sql, args := renderPreds(newTestBuilder(nil).build(spec, []string{"A"}), "sqlite")

	assert.Contains(t, sql, "SELECT history_id FROM contexts WHERE key = ? AND value IN (?)")
	assert.Contains(t, args, ContextKeyUserID)
	assert.Contains(t, args, "7")
}

func TestBuildMessagesPairLoggerWithKey(t *testing.T) {
	spec := &QuerySpec{
		Type: TypeOverview, Page: 1, PageSize: 30,
		Messages: map[string][]string{"UserLogger": {"user_logged_in"}},
	}
	sql, args := renderPreds(newTestBuilder(nil).build(spec, []string{"A"}), "sqlite")

	assert.Contains(t, sql, "logger = ?")
	assert.Contains(t, args, "UserLogger")
	assert.Contains(t, args, ContextKeyMessageKey)
	assert.Contains(t, args, "user_logged_in")
}

func TestSearchClauseAndOfTokens(t *testing.T) {
	p := newTestBuilder(nil).searchClause("failed login")
	require.NotNil(t, p)
	sql, args := renderOne(p, "sqlite")

	// Every token must match within one field family; families are OR-ed.
	assert.Equal(t, 2, strings.Count(sql, "message LIKE"))
	assert.Equal(t, 2, strings.Count(sql, "logger LIKE"))
	assert.Contains(t, args, "%failed%")
	assert.Contains(t, args, "%login%")
}

func TestSearchClauseEmptyPhrase(t *testing.T) {
	assert.Nil(t, newTestBuilder(nil).searchClause("  , "))
}

func TestSearchClauseTranslatedDetour(t *testing.T) {
	catalog := staticCatalog{
		"UserLogger": {
			"user_logged_in":    "Signed in successfully",
			"user_login_failed": "Wrong password",
		},
	}
	p := newTestBuilder(catalog).searchClause("signed successfully")
	require.NotNil(t, p)
	sql, args := renderOne(p, "sqlite")

	// The translated template containing all tokens maps back to its
	// (logger, message key) pair; the non-matching template does not.
	assert.Contains(t, sql, "logger = ?")
	assert.Contains(t, args, "user_logged_in")
	assert.NotContains(t, args, "user_login_failed")
}

func TestSearchTokens(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, searchTokens("a b,c"))
	assert.Empty(t, searchTokens(" ,\t\n"))
}
