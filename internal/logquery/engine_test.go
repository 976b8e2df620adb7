package logquery

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loghistory/internal/config"
	"loghistory/internal/db"
)

type staticPerms []string

func (p staticPerms) ReadableLoggerSlugs(Viewer) []string { return p }

func newTestStore(t *testing.T) *db.Store {
	t.Helper()
	cfg := &config.Config{DatabaseURL: "sqlite://" + filepath.Join(t.TempDir(), "log.db")}
	store, err := db.Open(cfg)
	require.NoError(t, err)
	return store
}

func newTestEngine(t *testing.T, perms PermissionSource, catalog MessageCatalog) (*Engine, *db.Store) {
	t.Helper()
	store := newTestStore(t)
	engine := New(Options{
		Store:           store,
		Permissions:     perms,
		Catalog:         catalog,
		Location:        time.UTC,
		DefaultPageSize: 30,
	})
	return engine, store
}

var testBase = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func seedEvent(t *testing.T, store *db.Store, at time.Time, logger, level, message string, ctx map[string]string) uint64 {
	t.Helper()
	id, err := store.AppendEvent(db.Entry{
		Date:      at,
		Logger:    logger,
		Level:     level,
		Message:   message,
		Initiator: "system",
		Context:   ctx,
	})
	require.NoError(t, err)
	return id
}

func TestFullGroupingCollapsesAdjacentOccasions(t *testing.T) {
	engine, store := newTestEngine(t, staticPerms{"AppLogger"}, nil)

	var ids []uint64
	for i := 0; i < 5; i++ {
		ids = append(ids, seedEvent(t, store, testBase.Add(time.Duration(i)*time.Minute),
			"AppLogger", "error", "Connection lost", nil))
	}

	res, err := engine.Query(map[string]any{}, Viewer{ID: 1})
	require.NoError(t, err)

	require.Len(t, res.LogRows, 1)
	row := res.LogRows[0]
	assert.Equal(t, ids[4], row.ID)
	assert.Equal(t, ids[0], row.MinID)
	assert.Equal(t, uint64(5), row.SubsequentOccasions)
	assert.Equal(t, int64(1), res.TotalRowCount)
	assert.Equal(t, ids[4], res.MaxID)
	assert.Equal(t, ids[0], res.MinID)
}

func TestFullGroupingSplitsOnInterveningEvent(t *testing.T) {
	engine, store := newTestEngine(t, staticPerms{"AppLogger"}, nil)

	// Chronologically: A A B A A. Adjacency is what groups, not identity,
	// so the B in the middle splits the As into two groups.
	seedEvent(t, store, testBase, "AppLogger", "error", "Connection lost", nil)
	seedEvent(t, store, testBase.Add(1*time.Minute), "AppLogger", "error", "Connection lost", nil)
	seedEvent(t, store, testBase.Add(2*time.Minute), "AppLogger", "info", "Reconnected", nil)
	seedEvent(t, store, testBase.Add(3*time.Minute), "AppLogger", "error", "Connection lost", nil)
	seedEvent(t, store, testBase.Add(4*time.Minute), "AppLogger", "error", "Connection lost", nil)

	res, err := engine.Query(map[string]any{}, Viewer{ID: 1})
	require.NoError(t, err)

	require.Len(t, res.LogRows, 3)
	assert.Equal(t, int64(3), res.TotalRowCount)
	assert.Equal(t, uint64(2), res.LogRows[0].SubsequentOccasions)
	assert.Equal(t, uint64(1), res.LogRows[1].SubsequentOccasions)
	assert.Equal(t, uint64(2), res.LogRows[2].SubsequentOccasions)
	// Newest first.
	assert.Equal(t, "Connection lost", res.LogRows[0].Message)
	assert.Equal(t, "Reconnected", res.LogRows[1].Message)
}

func TestUngroupedForcesSimpleStrategy(t *testing.T) {
	engine, store := newTestEngine(t, staticPerms{"AppLogger"}, nil)

	for i := 0; i < 5; i++ {
		seedEvent(t, store, testBase.Add(time.Duration(i)*time.Minute),
			"AppLogger", "error", "Connection lost", nil)
	}

	res, err := engine.Query(map[string]any{"ungrouped": "1"}, Viewer{ID: 1})
	require.NoError(t, err)

	require.Len(t, res.LogRows, 5)
	assert.Equal(t, int64(5), res.TotalRowCount)
	for _, row := range res.LogRows {
		assert.Equal(t, uint64(1), row.SubsequentOccasions)
	}
	// Still newest first.
	assert.Greater(t, res.LogRows[0].ID, res.LogRows[4].ID)
}

func TestOccasionsExpansion(t *testing.T) {
	engine, store := newTestEngine(t, staticPerms{"AppLogger"}, nil)

	var ids []uint64
	for i := 0; i < 5; i++ {
		ids = append(ids, seedEvent(t, store, testBase.Add(time.Duration(i)*time.Minute),
			"AppLogger", "error", "Connection lost", nil))
	}

	res, err := engine.Query(map[string]any{}, Viewer{ID: 1})
	require.NoError(t, err)
	require.Len(t, res.LogRows, 1)
	rep := res.LogRows[0]

	exp, err := engine.Query(map[string]any{
		"type":           "occasions",
		"logRowID":       int(rep.ID),
		"occasionsID":    rep.OccasionsID,
		"occasionsCount": int(rep.SubsequentOccasions),
	}, Viewer{ID: 1})
	require.NoError(t, err)

	// The four siblings older than the representative, newest first.
	require.Len(t, exp.LogRows, 4)
	assert.Equal(t, ids[3], exp.LogRows[0].ID)
	assert.Equal(t, ids[0], exp.LogRows[3].ID)
}

func TestOccasionsMaxReturnCapsFetch(t *testing.T) {
	engine, store := newTestEngine(t, staticPerms{"AppLogger"}, nil)

	for i := 0; i < 5; i++ {
		seedEvent(t, store, testBase.Add(time.Duration(i)*time.Minute),
			"AppLogger", "error", "Connection lost", nil)
	}

	res, err := engine.Query(map[string]any{}, Viewer{ID: 1})
	require.NoError(t, err)
	rep := res.LogRows[0]

	exp, err := engine.Query(map[string]any{
		"type":                    "occasions",
		"logRowID":                int(rep.ID),
		"occasionsID":             rep.OccasionsID,
		"occasionsCount":          5,
		"occasionsCountMaxReturn": 2,
	}, Viewer{ID: 1})
	require.NoError(t, err)
	assert.Len(t, exp.LogRows, 2)
}

func TestExclusionWinsOverInclusion(t *testing.T) {
	engine, store := newTestEngine(t, staticPerms{"A", "B"}, nil)

	seedEvent(t, store, testBase, "A", "info", "from A", nil)
	seedEvent(t, store, testBase.Add(time.Minute), "B", "info", "from B", nil)

	res, err := engine.Query(map[string]any{
		"loggers":         "A,B",
		"exclude_loggers": "A",
	}, Viewer{ID: 1})
	require.NoError(t, err)

	require.Len(t, res.LogRows, 1)
	assert.Equal(t, "B", res.LogRows[0].Logger)
}

func TestPermissionScopeLimitsResults(t *testing.T) {
	engine, store := newTestEngine(t, staticPerms{"Visible"}, nil)

	seedEvent(t, store, testBase, "Visible", "info", "shown", nil)
	seedEvent(t, store, testBase.Add(time.Minute), "Hidden", "info", "not shown", nil)

	res, err := engine.Query(map[string]any{}, Viewer{ID: 1})
	require.NoError(t, err)
	require.Len(t, res.LogRows, 1)
	assert.Equal(t, "Visible", res.LogRows[0].Logger)

	// Asking for the hidden logger explicitly does not get around the scope.
	res, err = engine.Query(map[string]any{"loggers": "Hidden"}, Viewer{ID: 1})
	require.NoError(t, err)
	assert.Empty(t, res.LogRows)
}

func TestZeroPermissionsYieldEmptyResultNotError(t *testing.T) {
	engine, store := newTestEngine(t, staticPerms{}, nil)
	seedEvent(t, store, testBase, "AppLogger", "info", "x", nil)

	res, err := engine.Query(map[string]any{}, Viewer{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.TotalRowCount)
	assert.Empty(t, res.LogRows)
}

func TestDateFilterBoundaries(t *testing.T) {
	engine, store := newTestEngine(t, staticPerms{"AppLogger"}, nil)

	seedEvent(t, store, time.Date(2026, 5, 9, 23, 59, 59, 0, time.UTC), "AppLogger", "info", "before", nil)
	seedEvent(t, store, time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC), "AppLogger", "info", "first", nil)
	seedEvent(t, store, time.Date(2026, 5, 10, 23, 59, 59, 0, time.UTC), "AppLogger", "info", "last", nil)
	seedEvent(t, store, time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC), "AppLogger", "info", "after", nil)

	res, err := engine.Query(map[string]any{
		"date_from": "2026-05-10",
		"date_to":   "2026-05-10",
		"ungrouped": "1",
	}, Viewer{ID: 1})
	require.NoError(t, err)

	require.Len(t, res.LogRows, 2)
	assert.Equal(t, "last", res.LogRows[0].Message)
	assert.Equal(t, "first", res.LogRows[1].Message)
}

func TestSearchMatchesContextValues(t *testing.T) {
	engine, store := newTestEngine(t, staticPerms{"AppLogger"}, nil)

	seedEvent(t, store, testBase, "AppLogger", "info", "Order placed",
		map[string]string{"customer": "johndoe"})
	seedEvent(t, store, testBase.Add(time.Minute), "AppLogger", "info", "Order placed",
		map[string]string{"customer": "janedoe"})

	res, err := engine.Query(map[string]any{"search": "johndoe", "ungrouped": "1"}, Viewer{ID: 1})
	require.NoError(t, err)

	require.Len(t, res.LogRows, 1)
	assert.Equal(t, "johndoe", res.LogRows[0].Context["customer"])
}

func TestSearchTranslatedMessageDetour(t *testing.T) {
	catalog := staticCatalog{
		"UserLogger": {"user_logged_in": "Signed in successfully"},
	}
	engine, store := newTestEngine(t, staticPerms{"UserLogger"}, catalog)

	// The stored message is the untranslated template; only the catalog
	// knows the user-facing text the search phrase appears in.
	seedEvent(t, store, testBase, "UserLogger", "info", "{user} logged in",
		map[string]string{ContextKeyMessageKey: "user_logged_in"})
	seedEvent(t, store, testBase.Add(time.Minute), "UserLogger", "info", "{user} logged out",
		map[string]string{ContextKeyMessageKey: "user_logged_out"})

	res, err := engine.Query(map[string]any{"search": "signed successfully", "ungrouped": "1"}, Viewer{ID: 1})
	require.NoError(t, err)

	require.Len(t, res.LogRows, 1)
	assert.Equal(t, "user_logged_in", res.LogRows[0].ContextMessageKey)
}

func TestExcludeSearch(t *testing.T) {
	engine, store := newTestEngine(t, staticPerms{"AppLogger"}, nil)

	seedEvent(t, store, testBase, "AppLogger", "info", "payment accepted", nil)
	seedEvent(t, store, testBase.Add(time.Minute), "AppLogger", "info", "payment declined", nil)

	res, err := engine.Query(map[string]any{"exclude_search": "declined", "ungrouped": "1"}, Viewer{ID: 1})
	require.NoError(t, err)

	require.Len(t, res.LogRows, 1)
	assert.Equal(t, "payment accepted", res.LogRows[0].Message)
}

func TestUserFilterViaContext(t *testing.T) {
	engine, store := newTestEngine(t, staticPerms{"AppLogger"}, nil)

	seedEvent(t, store, testBase, "AppLogger", "info", "one",
		map[string]string{ContextKeyUserID: "7"})
	seedEvent(t, store, testBase.Add(time.Minute), "AppLogger", "info", "two",
		map[string]string{ContextKeyUserID: "8"})
	seedEvent(t, store, testBase.Add(2*time.Minute), "AppLogger", "info", "three", nil)

	res, err := engine.Query(map[string]any{"users": "7", "ungrouped": "1"}, Viewer{ID: 1})
	require.NoError(t, err)
	require.Len(t, res.LogRows, 1)
	assert.Equal(t, "one", res.LogRows[0].Message)

	res, err = engine.Query(map[string]any{"exclude_users": "7", "ungrouped": "1"}, Viewer{ID: 1})
	require.NoError(t, err)
	require.Len(t, res.LogRows, 2)
}

func TestContextEnrichment(t *testing.T) {
	engine, store := newTestEngine(t, staticPerms{"AppLogger"}, nil)

	seedEvent(t, store, testBase, "AppLogger", "info", "with context",
		map[string]string{"order_id": "42", ContextKeyMessageKey: "order_placed"})
	seedEvent(t, store, testBase.Add(time.Minute), "AppLogger", "info", "bare", nil)

	res, err := engine.Query(map[string]any{"ungrouped": "1"}, Viewer{ID: 1})
	require.NoError(t, err)
	require.Len(t, res.LogRows, 2)

	// Context maps are never nil, even for events without rows.
	require.NotNil(t, res.LogRows[0].Context)
	assert.Empty(t, res.LogRows[0].Context)

	assert.Equal(t, "42", res.LogRows[1].Context["order_id"])
	assert.Equal(t, "order_placed", res.LogRows[1].ContextMessageKey)
}

func TestStickyRowsPrepended(t *testing.T) {
	engine, store := newTestEngine(t, staticPerms{"AppLogger"}, nil)

	seedEvent(t, store, testBase, "AppLogger", "warning", "pinned announcement",
		map[string]string{ContextKeySticky: "1"})
	seedEvent(t, store, testBase.Add(time.Minute), "AppLogger", "info", "regular one", nil)
	seedEvent(t, store, testBase.Add(2*time.Minute), "AppLogger", "info", "regular two", nil)

	res, err := engine.Query(map[string]any{"include_sticky": "1", "ungrouped": "1"}, Viewer{ID: 1})
	require.NoError(t, err)

	// The sticky row leads regardless of its date, flagged, and the total
	// still reflects the normal result set only.
	require.NotEmpty(t, res.LogRows)
	assert.True(t, res.LogRows[0].Sticky)
	assert.Equal(t, "pinned announcement", res.LogRows[0].Message)
	assert.Equal(t, int64(3), res.TotalRowCount)
	assert.Equal(t, len(res.LogRows), res.LogRowsCount)
}

func TestOnlySticky(t *testing.T) {
	engine, store := newTestEngine(t, staticPerms{"AppLogger"}, nil)

	seedEvent(t, store, testBase, "AppLogger", "warning", "pinned",
		map[string]string{ContextKeySticky: "1"})
	seedEvent(t, store, testBase.Add(time.Minute), "AppLogger", "info", "regular", nil)

	res, err := engine.Query(map[string]any{"only_sticky": "1", "ungrouped": "1"}, Viewer{ID: 1})
	require.NoError(t, err)

	require.Len(t, res.LogRows, 1)
	assert.Equal(t, "pinned", res.LogRows[0].Message)
}

func TestPaginationInvariants(t *testing.T) {
	engine, store := newTestEngine(t, staticPerms{"AppLogger"}, nil)

	// Five distinct occasion groups.
	for i, msg := range []string{"one", "two", "three", "four", "five"} {
		seedEvent(t, store, testBase.Add(time.Duration(i)*time.Minute), "AppLogger", "info", msg, nil)
	}

	res, err := engine.Query(map[string]any{"posts_per_page": "2"}, Viewer{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.TotalRowCount)
	assert.Equal(t, 3, res.PagesCount)
	assert.Equal(t, 1, res.PageCurrent)
	assert.Equal(t, int64(1), res.PageRowsFrom)
	assert.Equal(t, int64(2), res.PageRowsTo)
	assert.Len(t, res.LogRows, 2)
	assert.Equal(t, "five", res.LogRows[0].Message)

	res, err = engine.Query(map[string]any{"posts_per_page": "2", "paged": "3"}, Viewer{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, res.PageCurrent)
	assert.Equal(t, int64(5), res.PageRowsFrom)
	assert.Equal(t, int64(5), res.PageRowsTo)
	require.Len(t, res.LogRows, 1)
	assert.Equal(t, "one", res.LogRows[0].Message)
}

func TestCacheHitAndEpochInvalidation(t *testing.T) {
	engine, store := newTestEngine(t, staticPerms{"AppLogger"}, nil)
	seedEvent(t, store, testBase, "AppLogger", "info", "cached", nil)

	first, err := engine.Query(map[string]any{}, Viewer{ID: 1})
	require.NoError(t, err)
	assert.False(t, first.CachedResult)

	second, err := engine.Query(map[string]any{}, Viewer{ID: 1})
	require.NoError(t, err)
	assert.True(t, second.CachedResult)
	assert.Equal(t, first.TotalRowCount, second.TotalRowCount)

	// A different viewer never shares an entry.
	other, err := engine.Query(map[string]any{}, Viewer{ID: 2})
	require.NoError(t, err)
	assert.False(t, other.CachedResult)

	// Writers rotate the epoch; the next identical query recomputes.
	seedEvent(t, store, testBase.Add(time.Hour), "AppLogger", "info", "new event", nil)
	engine.Epoch().Bump()

	third, err := engine.Query(map[string]any{}, Viewer{ID: 1})
	require.NoError(t, err)
	assert.False(t, third.CachedResult)
	assert.Equal(t, first.TotalRowCount+1, third.TotalRowCount)
}

func TestSurroundingEvents(t *testing.T) {
	engine, store := newTestEngine(t, staticPerms{"AppLogger"}, nil)

	var ids []uint64
	for i := 0; i < 11; i++ {
		ids = append(ids, seedEvent(t, store, testBase.Add(time.Duration(i)*time.Minute),
			"AppLogger", "info", "event", nil))
	}
	center := ids[5]

	res, err := engine.Query(map[string]any{
		"surrounding_event_id": int(center),
		"surrounding_count":    "5",
	}, Viewer{})
	require.NoError(t, err)

	assert.Equal(t, center, res.CenterEventID)
	assert.Equal(t, 5, res.EventsBefore)
	assert.Equal(t, 5, res.EventsAfter)
	require.Len(t, res.LogRows, 11)
	// Newest first, center in the middle.
	assert.Equal(t, ids[10], res.LogRows[0].ID)
	assert.Equal(t, center, res.LogRows[5].ID)
	assert.Equal(t, ids[0], res.LogRows[10].ID)
}

func TestSurroundingBypassesPermissions(t *testing.T) {
	engine, store := newTestEngine(t, staticPerms{}, nil)
	id := seedEvent(t, store, testBase, "HiddenLogger", "info", "secret", nil)

	res, err := engine.Surrounding(id, 5)
	require.NoError(t, err)
	require.Len(t, res.LogRows, 1)
	assert.Equal(t, "HiddenLogger", res.LogRows[0].Logger)
}

func TestSurroundingUnknownCenter(t *testing.T) {
	engine, _ := newTestEngine(t, staticPerms{"AppLogger"}, nil)

	_, err := engine.Surrounding(999, 5)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestSurroundingCountClamped(t *testing.T) {
	engine, store := newTestEngine(t, staticPerms{"AppLogger"}, nil)

	for i := 0; i < 120; i++ {
		seedEvent(t, store, testBase.Add(time.Duration(i)*time.Second), "AppLogger", "info", "e", nil)
	}

	res, err := engine.Surrounding(60, 500)
	require.NoError(t, err)
	assert.Equal(t, MaxSurroundingCount, res.EventsBefore)
	assert.Equal(t, MaxSurroundingCount, res.EventsAfter)
}

func TestSurroundingValidation(t *testing.T) {
	engine, _ := newTestEngine(t, staticPerms{"AppLogger"}, nil)

	_, err := engine.Query(map[string]any{"surrounding_event_id": "0"}, Viewer{})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "surrounding_event_id", vErr.Field)
}

func TestMissingTableRecovery(t *testing.T) {
	engine, store := newTestEngine(t, staticPerms{"AppLogger"}, nil)

	require.NoError(t, store.DB.Migrator().DropTable(&db.Event{}, &db.EventContext{}))

	// The first query after the tables vanish recreates them and retries.
	res, err := engine.Query(map[string]any{}, Viewer{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.TotalRowCount)
}

func TestSearchRequiresAllTokens(t *testing.T) {
	engine, store := newTestEngine(t, staticPerms{"AppLogger"}, nil)

	seedEvent(t, store, testBase, "AppLogger", "error", "payment failed", nil)
	seedEvent(t, store, testBase.Add(time.Minute), "AppLogger", "error", "payment accepted", nil)

	res, err := engine.Query(map[string]any{"search": "payment failed", "ungrouped": "1"}, Viewer{ID: 1})
	require.NoError(t, err)
	require.Len(t, res.LogRows, 1)
	assert.Equal(t, "payment failed", res.LogRows[0].Message)

	// One matching token is not enough.
	res, err = engine.Query(map[string]any{"search": "payment missing", "ungrouped": "1"}, Viewer{ID: 1})
	require.NoError(t, err)
	assert.Empty(t, res.LogRows)
}
