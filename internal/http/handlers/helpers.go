package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	dbpkg "loghistory/internal/db"
	httpctx "loghistory/internal/http/ctx"
	"loghistory/internal/logquery"
)

// MustUser returns the current user from context, or sends 401 and returns (nil, false).
func MustUser(ctx *fasthttp.RequestCtx) (*dbpkg.User, bool) {
	u, ok := httpctx.UserFromCtx(ctx)
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
		ctx.SetBodyString("unauthorized")
		return nil, false
	}
	user, ok := u.(*dbpkg.User)
	if !ok || user == nil {
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
		ctx.SetBodyString("unauthorized")
		return nil, false
	}
	return user, true
}

// viewerFor maps a dashboard user to the query engine's viewer identity.
func viewerFor(user *dbpkg.User) logquery.Viewer {
	return logquery.Viewer{ID: user.ID, Admin: user.IsAdmin}
}

// RequestLogger returns fasthttp middleware that logs method, path, status, duration.
func RequestLogger(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		log.Printf("%s %s -> %d (%s) ip=%s", ctx.Method(), ctx.Path(), ctx.Response.StatusCode(), time.Since(start), ctx.RemoteAddr())
	}
}

func jsonResponse(ctx *fasthttp.RequestCtx, data any) {
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(data)
	ctx.SetBody(body)
}

func errResponse(ctx *fasthttp.RequestCtx, code int, msg string) {
	ctx.SetStatusCode(code)
	ctx.SetBodyString(msg)
}

// engineErrResponse maps the engine's error taxonomy onto HTTP statuses.
func engineErrResponse(ctx *fasthttp.RequestCtx, err error) {
	var vErr *logquery.ValidationError
	if errors.As(err, &vErr) {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		jsonResponse(ctx, map[string]any{"error": vErr.Error(), "field": vErr.Field})
		return
	}
	if errors.Is(err, logquery.ErrEventNotFound) {
		errResponse(ctx, fasthttp.StatusNotFound, "event not found")
		return
	}
	var dbErr *logquery.DatabaseError
	if errors.As(err, &dbErr) {
		log.Printf("log query database error: %v", dbErr.Err)
		errResponse(ctx, fasthttp.StatusInternalServerError, "query failed")
		return
	}
	log.Printf("log query error: %v", err)
	errResponse(ctx, fasthttp.StatusInternalServerError, "query failed")
}

// auditSelf appends one of the service's own audit events (logins, user
// and key management, log clears) and rotates the cache epoch. Failures
// are logged, never surfaced: auditing must not break the action itself.
func auditSelf(store *dbpkg.Store, epoch *logquery.Epoch, loggerSlug, level, messageKey, message, initiator string, userID uint, extra map[string]string) {
	ctxMap := map[string]string{
		logquery.ContextKeyMessageKey: messageKey,
	}
	if userID != 0 {
		ctxMap[logquery.ContextKeyUserID] = strconv.Itoa(int(userID))
	}
	for k, v := range extra {
		ctxMap[k] = v
	}

	_, err := store.AppendEvent(dbpkg.Entry{
		Logger:    loggerSlug,
		Level:     level,
		Message:   message,
		Initiator: initiator,
		Context:   ctxMap,
	})
	if err != nil {
		log.Printf("failed to append %s audit event: %v", loggerSlug, err)
		return
	}
	epoch.Bump()
}

// httpUserIfAny returns the session user when one is on the context,
// without writing an error response.
func httpUserIfAny(ctx *fasthttp.RequestCtx) (*dbpkg.User, bool) {
	v, ok := httpctx.UserFromCtx(ctx)
	if !ok {
		return nil, false
	}
	user, ok := v.(*dbpkg.User)
	return user, ok && user != nil
}
