package main

import (
	"log"
	"strconv"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"loghistory/internal/config"
	"loghistory/internal/db"
	"loghistory/internal/http/handlers"
	appmw "loghistory/internal/http/middleware"
	"loghistory/internal/loggers"
	"loghistory/internal/logquery"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	store, err := db.Open(cfg)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	if err := store.EnsureSchema(); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}
	if err := db.EnsureBootstrapAdmin(store, cfg); err != nil {
		log.Fatalf("failed to ensure bootstrap admin: %v", err)
	}

	registry := loggers.NewRegistry()
	if err := loggers.RegisterCore(registry); err != nil {
		log.Fatalf("failed to register core loggers: %v", err)
	}

	epoch := logquery.NewEpoch()
	engine := logquery.New(logquery.Options{
		Store:           store,
		Permissions:     registry,
		Catalog:         registry,
		Epoch:           epoch,
		Location:        cfg.Timezone,
		DefaultPageSize: cfg.PageSize,
		CacheTTL:        cfg.CacheTTL,
	})

	db.StartRetentionWorker(store, cfg.RetentionDays, func(removed int64) {
		epoch.Bump()
		if _, err := store.AppendEvent(db.Entry{
			Logger:    loggers.SlugMaintenance,
			Level:     "info",
			Message:   "Purged {count} events past retention",
			Initiator: "cron",
			Context: map[string]string{
				logquery.ContextKeyMessageKey: "retention_purge",
				"count":                       strconv.FormatInt(removed, 10),
			},
		}); err != nil {
			log.Printf("failed to record retention purge: %v", err)
		}
	})

	handlers.InitPrometheusMetrics()

	r := router.New()
	handler := handlers.RequestLogger(r.Handler)

	session := appmw.SessionAuth(store, cfg)
	admin := func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return session(appmw.AdminOnly(next))
	}

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})

	r.POST("/login", handlers.LoginSubmit(store, epoch))
	r.POST("/logout", handlers.Logout(store, epoch))

	r.POST("/v1/events", appmw.BearerAuth(store)(handlers.IngestHandler(store, epoch)))
	r.GET("/v1/metrics", handlers.LoggerMetricsHandler(store))

	r.GET("/v1/log", session(handlers.LogFeed(engine)))
	r.GET("/v1/log/occasions", session(handlers.OccasionsFeed(engine)))
	r.GET("/v1/log/surrounding", admin(handlers.SurroundingEvents(engine)))
	r.GET("/v1/log/event/{id}", session(handlers.EventDetail(store, registry)))

	r.POST("/admin/log/clear", admin(handlers.ClearLog(store, epoch)))

	r.POST("/admin/users/create", admin(handlers.CreateUser(store, epoch)))
	r.POST("/admin/users/{id}/reset-password", admin(handlers.ResetPassword(store, cfg, epoch)))
	r.POST("/admin/users/{id}/delete", admin(handlers.DeleteUser(store, cfg, epoch)))

	r.POST("/admin/apikeys/create", admin(handlers.CreateAPIKey(store, epoch)))
	r.POST("/admin/apikeys/delete", admin(handlers.DeleteAPIKey(store, epoch)))
	r.POST("/admin/apikeys/set-active", admin(handlers.SetActiveAPIKey(store, epoch)))

	log.Printf("loghistory listening on %s (dialect=%s)", cfg.ListenAddr, store.Dialect())
	if err := fasthttp.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
