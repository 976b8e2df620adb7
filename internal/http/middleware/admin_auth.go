package middleware

import (
	"github.com/valyala/fasthttp"

	"loghistory/internal/config"
	dbpkg "loghistory/internal/db"
	httpctx "loghistory/internal/http/ctx"
)

// SessionAuth loads the session user from the cookie and sets it on the
// context. The API is JSON-only, so a missing or stale session is a 401,
// not a redirect.
func SessionAuth(store *dbpkg.Store, cfg *config.Config) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			cookie := ctx.Request.Header.Cookie("session_user")
			if len(cookie) == 0 {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("not signed in")
				return
			}
			username := string(cookie)

			var user dbpkg.User
			if err := store.DB.Where("username = ?", username).First(&user).Error; err != nil {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("not signed in")
				return
			}

			if user.Username == cfg.AdminUser {
				user.IsAdmin = true
			}

			httpctx.SetUser(ctx, &user)
			next(ctx)
		}
	}
}

// AdminOnly rejects non-admin users. Chain after SessionAuth.
func AdminOnly(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		v, ok := httpctx.UserFromCtx(ctx)
		if !ok {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			ctx.SetBodyString("not signed in")
			return
		}
		user, ok := v.(*dbpkg.User)
		if !ok || user == nil || !user.IsAdmin {
			ctx.SetStatusCode(fasthttp.StatusForbidden)
			ctx.SetBodyString("forbidden")
			return
		}
		next(ctx)
	}
}
