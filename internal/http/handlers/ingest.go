package handlers

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	dbpkg "loghistory/internal/db"
	httpctx "loghistory/internal/http/ctx"
	"loghistory/internal/logquery"
)

// IngestEvent is one event in an append batch. Context carries arbitrary
// metadata; keys starting with "_" are reserved for engine semantics
// (_user_id, _message_key, _sticky).
type IngestEvent struct {
	Date        *time.Time        `json:"date,omitempty"`
	Logger      string            `json:"logger"`
	Level       string            `json:"level"`
	Message     string            `json:"message"`
	Initiator   string            `json:"initiator,omitempty"`
	OccasionsID string            `json:"occasions_id,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
}

type ingestRequest struct {
	Events []IngestEvent `json:"events"`
}

// IngestHandler is the append path: it writes event and context rows and
// rotates the cache epoch so cached query pages don't outlive the write.
// Events without a logger or message are skipped; unknown levels and
// initiators are rejected for the whole batch so bad producers surface
// early instead of polluting the log.
func IngestHandler(store *dbpkg.Store, epoch *logquery.Epoch) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var payload ingestRequest
		if err := json.Unmarshal(ctx.PostBody(), &payload); err != nil {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("invalid JSON body")
			return
		}
		if len(payload.Events) == 0 {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("no events provided")
			return
		}

		entries := make([]dbpkg.Entry, 0, len(payload.Events))
		for _, ev := range payload.Events {
			if ev.Logger == "" || ev.Message == "" {
				continue
			}
			if len(ev.Logger) > 30 {
				ctx.SetStatusCode(fasthttp.StatusBadRequest)
				ctx.SetBodyString("logger slug too long: " + ev.Logger)
				return
			}
			if !validIngestLevel(ev.Level) {
				ctx.SetStatusCode(fasthttp.StatusBadRequest)
				ctx.SetBodyString("unknown level: " + ev.Level)
				return
			}
			if ev.Initiator != "" && !validIngestInitiator(ev.Initiator) {
				ctx.SetStatusCode(fasthttp.StatusBadRequest)
				ctx.SetBodyString("unknown initiator: " + ev.Initiator)
				return
			}

			entry := dbpkg.Entry{
				Logger:      ev.Logger,
				Level:       ev.Level,
				Message:     ev.Message,
				Initiator:   ev.Initiator,
				OccasionsID: ev.OccasionsID,
				Context:     ev.Context,
			}
			if ev.Date != nil {
				entry.Date = *ev.Date
			}
			entries = append(entries, entry)
		}

		if len(entries) == 0 {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("no valid events after validation")
			return
		}

		// Attribute ownerless events to the API key's owner so per-user
		// filters can find them.
		if ak, ok := httpctx.APIKeyFromCtx(ctx); ok && ak != nil {
			owner := strconv.Itoa(int(ak.UserID))
			for i := range entries {
				if entries[i].Context == nil {
					entries[i].Context = map[string]string{}
				}
				if _, set := entries[i].Context[logquery.ContextKeyUserID]; !set {
					entries[i].Context[logquery.ContextKeyUserID] = owner
				}
			}
		}

		for _, entry := range entries {
			if _, err := store.AppendEvent(entry); err != nil {
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				ctx.SetBodyString("failed to persist events")
				return
			}
			eventsIngested.WithLabelValues(entry.Logger, entry.Level).Inc()
		}

		epoch.Bump()

		ctx.SetStatusCode(fasthttp.StatusAccepted)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"status":"accepted","count":` + strconv.Itoa(len(entries)) + `}`)
	}
}

func validIngestLevel(level string) bool {
	for _, l := range logquery.Levels {
		if l == level {
			return true
		}
	}
	return false
}

func validIngestInitiator(initiator string) bool {
	for _, i := range logquery.Initiators {
		if i == initiator {
			return true
		}
	}
	return false
}
