package handlers

import (
	"strconv"

	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"

	"loghistory/internal/config"
	dbpkg "loghistory/internal/db"
	"loghistory/internal/loggers"
	"loghistory/internal/logquery"
)

func pathID(ctx *fasthttp.RequestCtx) (uint, bool) {
	idStr, ok := ctx.UserValue("id").(string)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

func CreateUser(store *dbpkg.Store, epoch *logquery.Epoch) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		actor, ok := MustUser(ctx)
		if !ok {
			return
		}

		username := string(ctx.PostArgs().Peek("username"))
		password := string(ctx.PostArgs().Peek("password"))
		isAdmin := string(ctx.PostArgs().Peek("is_admin")) == "true"

		if username == "" || password == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "username and password required")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to hash password")
			return
		}

		user := &dbpkg.User{
			Username:     username,
			PasswordHash: string(hash),
			IsAdmin:      isAdmin,
		}
		if err := store.DB.Create(user).Error; err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "failed to create user (username may already exist)")
			return
		}

		auditSelf(store, epoch, loggers.SlugUser, "info", "user_created",
			"Created user {created_username}", "web_user", actor.ID,
			map[string]string{"created_username": username})

		ctx.SetStatusCode(fasthttp.StatusCreated)
		jsonResponse(ctx, map[string]any{"id": user.ID, "username": user.Username, "is_admin": user.IsAdmin})
	}
}

func ResetPassword(store *dbpkg.Store, cfg *config.Config, epoch *logquery.Epoch) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		actor, ok := MustUser(ctx)
		if !ok {
			return
		}

		id, ok := pathID(ctx)
		if !ok {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid user ID")
			return
		}

		var user dbpkg.User
		if err := store.DB.First(&user, id).Error; err != nil {
			errResponse(ctx, fasthttp.StatusNotFound, "user not found")
			return
		}
		if user.Username == cfg.AdminUser {
			errResponse(ctx, fasthttp.StatusForbidden, "cannot modify bootstrap admin user")
			return
		}

		password := string(ctx.PostArgs().Peek("password"))
		if password == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "password required")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to hash password")
			return
		}
		if err := store.DB.Model(&user).Update("password_hash", string(hash)).Error; err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to update password")
			return
		}

		auditSelf(store, epoch, loggers.SlugUser, "notice", "user_password_reset",
			"Reset password for user {target_username}", "web_user", actor.ID,
			map[string]string{"target_username": user.Username})

		jsonResponse(ctx, map[string]any{"status": "ok"})
	}
}

func DeleteUser(store *dbpkg.Store, cfg *config.Config, epoch *logquery.Epoch) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		actor, ok := MustUser(ctx)
		if !ok {
			return
		}

		id, ok := pathID(ctx)
		if !ok {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid user ID")
			return
		}

		var user dbpkg.User
		if err := store.DB.First(&user, id).Error; err != nil {
			errResponse(ctx, fasthttp.StatusNotFound, "user not found")
			return
		}
		if user.Username == cfg.AdminUser {
			errResponse(ctx, fasthttp.StatusForbidden, "cannot delete bootstrap admin user")
			return
		}

		if err := store.DB.Delete(&user).Error; err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to delete user")
			return
		}

		auditSelf(store, epoch, loggers.SlugUser, "notice", "user_deleted",
			"Deleted user {deleted_username}", "web_user", actor.ID,
			map[string]string{"deleted_username": user.Username})

		jsonResponse(ctx, map[string]any{"status": "ok"})
	}
}
