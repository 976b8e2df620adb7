package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"strconv"

	"github.com/valyala/fasthttp"

	dbpkg "loghistory/internal/db"
	"loghistory/internal/loggers"
	"loghistory/internal/logquery"
)

func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "lh_" + base64.URLEncoding.EncodeToString(b), nil
}

func CreateAPIKey(store *dbpkg.Store, epoch *logquery.Epoch) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}

		name := string(ctx.PostArgs().Peek("name"))
		if name == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "name required")
			return
		}

		key, err := generateAPIKey()
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to generate API key")
			return
		}

		apiKey := &dbpkg.APIKey{
			UserID: user.ID,
			Name:   name,
			Key:    key,
			Active: true,
		}
		if err := store.DB.Create(apiKey).Error; err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "failed to create API key (name may already exist for this user)")
			return
		}

		auditSelf(store, epoch, loggers.SlugAPIKey, "info", "apikey_created",
			"Created API key \"{key_name}\"", "web_user", user.ID,
			map[string]string{"key_name": name})

		// The secret is shown once, at creation.
		ctx.SetStatusCode(fasthttp.StatusCreated)
		jsonResponse(ctx, map[string]any{"id": apiKey.ID, "name": apiKey.Name, "key": apiKey.Key})
	}
}

func DeleteAPIKey(store *dbpkg.Store, epoch *logquery.Epoch) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}

		id := string(ctx.QueryArgs().Peek("id"))
		if id == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "id required")
			return
		}

		var apiKey dbpkg.APIKey
		if err := store.DB.First(&apiKey, id).Error; err != nil {
			errResponse(ctx, fasthttp.StatusNotFound, "API key not found")
			return
		}
		if apiKey.UserID != user.ID && !user.IsAdmin {
			errResponse(ctx, fasthttp.StatusForbidden, "forbidden")
			return
		}

		if err := store.DB.Delete(&apiKey).Error; err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to delete API key")
			return
		}

		auditSelf(store, epoch, loggers.SlugAPIKey, "notice", "apikey_deleted",
			"Deleted API key \"{key_name}\"", "web_user", user.ID,
			map[string]string{"key_name": apiKey.Name})

		jsonResponse(ctx, map[string]any{"status": "ok"})
	}
}

func SetActiveAPIKey(store *dbpkg.Store, epoch *logquery.Epoch) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}

		id := string(ctx.PostArgs().Peek("id"))
		activeStr := string(ctx.PostArgs().Peek("active"))
		if id == "" || (activeStr != "true" && activeStr != "false") {
			errResponse(ctx, fasthttp.StatusBadRequest, "id and active (true|false) required")
			return
		}
		active := activeStr == "true"

		var apiKey dbpkg.APIKey
		if err := store.DB.First(&apiKey, id).Error; err != nil {
			errResponse(ctx, fasthttp.StatusNotFound, "API key not found")
			return
		}
		if apiKey.UserID != user.ID && !user.IsAdmin {
			errResponse(ctx, fasthttp.StatusForbidden, "forbidden")
			return
		}

		if err := store.DB.Model(&apiKey).Update("active", active).Error; err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to update API key")
			return
		}

		auditSelf(store, epoch, loggers.SlugAPIKey, "notice", "apikey_toggled",
			"Set API key \"{key_name}\" active={active}", "web_user", user.ID,
			map[string]string{"key_name": apiKey.Name, "active": strconv.FormatBool(active)})

		jsonResponse(ctx, map[string]any{"status": "ok", "active": active})
	}
}
