package logquery

import (
	"fmt"
	"time"

	"loghistory/internal/db"
)

// Engine is the log query engine. It is stateless per call: every Query
// is a self-contained request/response on the calling goroutine, one or
// two database round trips, no locks and no transactions. All
// collaborators are injected; the engine never reaches for globals.
type Engine struct {
	store   *db.Store
	perms   PermissionSource
	catalog MessageCatalog
	cache   *ResultCache
	epoch   *Epoch
	norm    Normalizer
}

// Options wires an Engine.
type Options struct {
	Store       *db.Store
	Permissions PermissionSource
	Catalog     MessageCatalog
	Epoch       *Epoch

	// Location is the timezone for expanding bare date filters.
	Location *time.Location

	// DefaultPageSize is the pager size when a request has none.
	DefaultPageSize int

	CacheSize int
	CacheTTL  time.Duration
}

// New builds an Engine. Epoch may be shared with the write path so that
// appends invalidate cached pages.
func New(opts Options) *Engine {
	epoch := opts.Epoch
	if epoch == nil {
		epoch = NewEpoch()
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Engine{
		store:   opts.Store,
		perms:   opts.Permissions,
		catalog: opts.Catalog,
		epoch:   epoch,
		cache:   NewResultCache(opts.CacheSize, ttl, epoch),
		norm: Normalizer{
			Location:        opts.Location,
			DefaultPageSize: opts.DefaultPageSize,
		},
	}
}

// Epoch returns the engine's cache epoch so writers can bump it.
func (e *Engine) Epoch() *Epoch { return e.epoch }

// Query is the primary entry point: validate and normalize args, build
// the filter clauses, run the grouping strategy, enrich with context and
// return the (possibly cached) result envelope.
//
// When args contain surrounding_event_id the request is routed to the
// surrounding-events resolver instead, which bypasses all filters and
// permission scoping; see Surrounding.
func (e *Engine) Query(args map[string]any, viewer Viewer) (*Result, error) {
	if _, ok := args["surrounding_event_id"]; ok {
		return e.surroundingFromArgs(args)
	}

	spec, err := e.norm.Normalize(args)
	if err != nil {
		return nil, err
	}
	return e.QuerySpec(spec, viewer)
}

// QuerySpec runs an already-normalized spec.
func (e *Engine) QuerySpec(spec *QuerySpec, viewer Viewer) (*Result, error) {
	key := e.cache.Key(spec, viewer)
	if res, ok := e.cache.Get(key); ok {
		return res, nil
	}

	readable := e.perms.ReadableLoggerSlugs(viewer)

	var (
		res *Result
		err error
	)
	if spec.Type == TypeOccasions {
		res, err = e.runOccasions(spec, readable)
	} else {
		res, err = e.runOverview(spec, readable)
	}
	if err != nil {
		return nil, err
	}

	e.cache.Put(key, res)
	return res, nil
}

// runOverview serves the overview/single feed: grouped (or raw) rows,
// paginated, enriched, with sticky events prepended when asked for.
func (e *Engine) runOverview(spec *QuerySpec, readable []string) (*Result, error) {
	builder := &clauseBuilder{
		dialect: e.store.Dialect(),
		tables:  e.store.Tables(),
		catalog: e.catalog,
	}
	whereSQL, whereArgs := renderPreds(builder.build(spec, readable), e.store.Dialect())

	useSimple := spec.Ungrouped || !e.store.SupportsOrderedGrouping()

	var pg *page
	err := e.withSchemaRetry(func() error {
		var runErr error
		if useSimple {
			pg, runErr = e.runSimple(whereSQL, whereArgs, spec.Page, spec.PageSize)
		} else {
			pg, runErr = e.runFullGrouping(whereSQL, whereArgs, spec.Page, spec.PageSize)
		}
		return runErr
	})
	if err != nil {
		return nil, &DatabaseError{Err: err}
	}

	if err := e.attachContext(pg.rows); err != nil {
		return nil, &DatabaseError{Err: err}
	}

	res := assembleEnvelope(spec, pg)

	if spec.IncludeSticky && !spec.OnlySticky {
		sticky, err := e.fetchSticky(readable)
		if err != nil {
			return nil, &DatabaseError{Err: err}
		}
		if len(sticky) > 0 {
			if err := e.attachContext(sticky); err != nil {
				return nil, &DatabaseError{Err: err}
			}
			res.LogRows = append(sticky, res.LogRows...)
			res.LogRowsCount = len(res.LogRows)
		}
	}

	return res, nil
}

// runOccasions expands one collapsed group: the siblings sharing the
// clicked row's occasions token, older than the clicked row itself. Most
// filters are ignored; the permission scope still applies.
func (e *Engine) runOccasions(spec *QuerySpec, readable []string) (*Result, error) {
	limit := spec.OccasionsCount
	if spec.OccasionsCountMaxReturn > 0 && spec.OccasionsCountMaxReturn < limit {
		limit = spec.OccasionsCountMaxReturn
	}

	preds := []pred{
		in{col: "logger", vals: anySlice(readable)},
		cmp{col: "occasions_id", op: "=", val: spec.OccasionsID},
		cmp{col: "id", op: "<", val: spec.LogRowID},
	}
	whereSQL, whereArgs := renderPreds(preds, e.store.Dialect())

	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s ORDER BY date DESC, id DESC LIMIT ?",
		e.store.Tables().Events, whereSQL)
	args := append(whereArgs, limit)

	var events []db.Event
	err := e.withSchemaRetry(func() error {
		return e.store.DB.Raw(sql, args...).Scan(&events).Error
	})
	if err != nil {
		return nil, &DatabaseError{Err: err}
	}

	rows := make([]Row, 0, len(events))
	for _, ev := range events {
		rows = append(rows, eventRow(ev))
	}
	if err := e.attachContext(rows); err != nil {
		return nil, &DatabaseError{Err: err}
	}

	return assembleEnvelope(spec, &page{rows: rows, total: int64(len(rows))}), nil
}

// withSchemaRetry runs fn, and if it failed because the underlying tables
// are missing, recreates the schema and retries exactly once. Every other
// database error propagates unmodified.
func (e *Engine) withSchemaRetry(fn func() error) error {
	err := fn()
	if err == nil || !e.store.IsMissingTableError(err) {
		return err
	}
	if mErr := e.store.EnsureSchema(); mErr != nil {
		return err
	}
	return fn()
}
