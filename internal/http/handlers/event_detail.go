package handlers

import (
	"strconv"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "loghistory/internal/db"
	"loghistory/internal/logquery"
)

// EventDetail returns one event with its merged context map. Unlike the
// surrounding-events mode this is permission-scoped: the event's logger
// must be readable by the viewer or the row is reported as not found
// (not 403, to avoid confirming the id exists).
func EventDetail(store *dbpkg.Store, perms logquery.PermissionSource) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		idVal := ctx.UserValue("id")
		if idVal == nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "id required")
			return
		}
		idStr, ok := idVal.(string)
		if !ok {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid id")
			return
		}
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil || id == 0 {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid id")
			return
		}

		var e dbpkg.Event
		if err := store.DB.First(&e, id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				errResponse(ctx, fasthttp.StatusNotFound, "event not found")
				return
			}
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to load event")
			return
		}

		readable := perms.ReadableLoggerSlugs(viewerFor(user))
		allowed := false
		for _, slug := range readable {
			if slug == e.Logger {
				allowed = true
				break
			}
		}
		if !allowed {
			errResponse(ctx, fasthttp.StatusNotFound, "event not found")
			return
		}

		var ctxRows []dbpkg.EventContext
		if err := store.DB.Where("history_id = ?", e.ID).Order("context_id ASC").Find(&ctxRows).Error; err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to load event context")
			return
		}
		contextMap := map[string]string{}
		for _, c := range ctxRows {
			if _, exists := contextMap[c.Key]; !exists {
				contextMap[c.Key] = c.Value
			}
		}

		jsonResponse(ctx, map[string]any{
			"id":                  e.ID,
			"date":                e.Date,
			"logger":              e.Logger,
			"level":               e.Level,
			"message":             e.Message,
			"initiator":           e.Initiator,
			"occasions_id":        e.OccasionsID,
			"context":             contextMap,
			"context_message_key": contextMap[logquery.ContextKeyMessageKey],
		})
	}
}
