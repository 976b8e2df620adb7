package handlers

import (
	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	dbpkg "loghistory/internal/db"
	"loghistory/internal/loggers"
	"loghistory/internal/logquery"
)

// LoginSubmit checks credentials, sets the session cookie and audits the
// attempt. Failed logins are logged with the tried username so brute
// force attempts show up in the feed.
func LoginSubmit(store *dbpkg.Store, epoch *logquery.Epoch) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		username := string(ctx.PostArgs().Peek("username"))
		password := string(ctx.PostArgs().Peek("password"))

		var user dbpkg.User
		if err := store.DB.Where("username = ?", username).First(&user).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				auditSelf(store, epoch, loggers.SlugUser, "warning", "user_login_failed",
					"Failed to log in with username \"{username}\"", "web_user", 0,
					map[string]string{"username": username})
				errResponse(ctx, fasthttp.StatusUnauthorized, "invalid username or password")
				return
			}
			errResponse(ctx, fasthttp.StatusInternalServerError, "database error")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
			auditSelf(store, epoch, loggers.SlugUser, "warning", "user_login_failed",
				"Failed to log in with username \"{username}\"", "web_user", 0,
				map[string]string{"username": username})
			errResponse(ctx, fasthttp.StatusUnauthorized, "invalid username or password")
			return
		}

		var c fasthttp.Cookie
		c.SetKey("session_user")
		c.SetValue(username)
		c.SetPath("/")
		c.SetHTTPOnly(true)
		ctx.Response.Header.SetCookie(&c)

		auditSelf(store, epoch, loggers.SlugUser, "info", "user_logged_in",
			"Logged in", "web_user", user.ID, nil)

		jsonResponse(ctx, map[string]any{"status": "ok", "is_admin": user.IsAdmin})
	}
}

// Logout clears the session cookie.
func Logout(store *dbpkg.Store, epoch *logquery.Epoch) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if v, ok := httpUserIfAny(ctx); ok {
			auditSelf(store, epoch, loggers.SlugUser, "info", "user_logged_out",
				"Logged out", "web_user", v.ID, nil)
		}

		var c fasthttp.Cookie
		c.SetKey("session_user")
		c.SetValue("")
		c.SetPath("/")
		c.SetMaxAge(-1)
		ctx.Response.Header.SetCookie(&c)
		jsonResponse(ctx, map[string]any{"status": "ok"})
	}
}
