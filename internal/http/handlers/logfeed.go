package handlers

import (
	"time"

	"github.com/valyala/fasthttp"

	dbpkg "loghistory/internal/db"
	"loghistory/internal/loggers"
	"loghistory/internal/logquery"
)

// queryArgKeys are the filter parameters the feed endpoint forwards to the
// engine. Everything arrives as a string; the normalizer owns validation
// and type coercion.
var queryArgKeys = []string{
	"type", "paged", "posts_per_page",
	"date_from", "date_to",
	"search", "exclude_search",
	"loggers", "exclude_loggers",
	"loglevels", "exclude_loglevels",
	"messages", "exclude_messages",
	"users", "exclude_users",
	"initiator", "exclude_initiator",
	"context", "exclude_context",
	"only_sticky", "include_sticky", "ungrouped",
	"logRowID", "occasionsID", "occasionsCount", "occasionsCountMaxReturn",
}

// LogFeed serves the main query endpoint: the grouped, paginated,
// permission-scoped event feed (types overview/single/occasions).
func LogFeed(engine *logquery.Engine) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}

		args := map[string]any{}
		for _, key := range queryArgKeys {
			if v := ctx.QueryArgs().Peek(key); len(v) > 0 {
				args[key] = string(v)
			}
		}

		start := time.Now()
		res, err := engine.Query(args, viewerFor(user))
		if err != nil {
			engineErrResponse(ctx, err)
			return
		}

		queryType := "overview"
		if t, ok := args["type"].(string); ok && t != "" {
			queryType = t
		}
		observeQuery(queryType, res.CachedResult, time.Since(start))

		jsonResponse(ctx, res)
	}
}

// SurroundingEvents serves the debug mode: N events before and after a
// center event, ignoring all filters and permission scoping. The engine
// documents that callers authorize this themselves, which is why the
// route is admin-only.
func SurroundingEvents(engine *logquery.Engine) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if _, ok := MustUser(ctx); !ok {
			return
		}

		args := map[string]any{}
		if v := ctx.QueryArgs().Peek("surrounding_event_id"); len(v) > 0 {
			args["surrounding_event_id"] = string(v)
		}
		if v := ctx.QueryArgs().Peek("surrounding_count"); len(v) > 0 {
			args["surrounding_count"] = string(v)
		}
		if _, present := args["surrounding_event_id"]; !present {
			errResponse(ctx, fasthttp.StatusBadRequest, "surrounding_event_id required")
			return
		}

		start := time.Now()
		res, err := engine.Query(args, logquery.Viewer{})
		if err != nil {
			engineErrResponse(ctx, err)
			return
		}
		observeQuery("surrounding", false, time.Since(start))

		jsonResponse(ctx, res)
	}
}

// ClearLog removes every event and context row, rotates the cache epoch
// and appends a system audit event recording who cleared the log.
func ClearLog(store *dbpkg.Store, epoch *logquery.Epoch) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}

		if err := store.DB.Where("1 = 1").Delete(&dbpkg.EventContext{}).Error; err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to clear log")
			return
		}
		if err := store.DB.Where("1 = 1").Delete(&dbpkg.Event{}).Error; err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to clear log")
			return
		}
		epoch.Bump()

		auditSelf(store, epoch, loggers.SlugSystem, "notice", "log_cleared",
			"Log cleared by {username}", "web_user", user.ID,
			map[string]string{"username": user.Username})

		jsonResponse(ctx, map[string]any{"status": "cleared"})
	}
}

// OccasionsFeed expands one collapsed occasion group. It is LogFeed with
// the result type pinned, so clients don't have to pass type=occasions.
func OccasionsFeed(engine *logquery.Engine) fasthttp.RequestHandler {
	feed := LogFeed(engine)
	return func(ctx *fasthttp.RequestCtx) {
		ctx.QueryArgs().Set("type", string(logquery.TypeOccasions))
		feed(ctx)
	}
}
