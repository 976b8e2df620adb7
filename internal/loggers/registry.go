// Package loggers keeps the registry of event producers. The query engine
// never sees concrete logger types; it consumes the registry through the
// narrow PermissionSource and MessageCatalog interfaces.
package loggers

import (
	"fmt"
	"sync"

	"loghistory/internal/logquery"
)

// Role gates who may read a logger's events.
type Role string

const (
	// RoleViewer loggers are readable by every signed-in user.
	RoleViewer Role = "viewer"
	// RoleAdmin loggers are only readable by admins.
	RoleAdmin Role = "admin"
)

// Logger describes one event producer: its slug (what events store in the
// logger column), a human name, the minimum role required to read its
// events, and its known message templates keyed by message key. Messages
// holds the translated, user-facing text; search matches against it even
// though events store the untranslated template.
type Logger struct {
	Slug        string
	Name        string
	MinReadRole Role
	Messages    map[string]string
}

// Registry holds the registered loggers. Populated at startup; safe for
// concurrent reads afterwards.
type Registry struct {
	mu     sync.RWMutex
	bySlug map[string]Logger
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{bySlug: map[string]Logger{}}
}

// Register adds a logger. Slugs are capped at 30 characters to match the
// events.logger column and must be unique.
func (r *Registry) Register(l Logger) error {
	if l.Slug == "" || len(l.Slug) > 30 {
		return fmt.Errorf("logger slug %q must be 1-30 characters", l.Slug)
	}
	if l.MinReadRole == "" {
		l.MinReadRole = RoleAdmin
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.bySlug[l.Slug]; dup {
		return fmt.Errorf("logger slug %q already registered", l.Slug)
	}
	r.bySlug[l.Slug] = l
	r.order = append(r.order, l.Slug)
	return nil
}

// Slugs returns every registered slug in registration order.
func (r *Registry) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// TranslatedMessages returns the message catalog for one logger, or nil
// for unknown slugs.
func (r *Registry) TranslatedMessages(slug string) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.bySlug[slug]
	if !ok {
		return nil
	}
	return l.Messages
}

// ReadableLoggerSlugs returns the slugs the viewer may read. Admins read
// everything; other users only loggers registered with RoleViewer. An
// empty result is normal and means the viewer sees an empty log.
func (r *Registry) ReadableLoggerSlugs(v logquery.Viewer) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.order))
	for _, slug := range r.order {
		l := r.bySlug[slug]
		if v.Admin || l.MinReadRole == RoleViewer {
			out = append(out, slug)
		}
	}
	return out
}

// Core logger slugs used by the service's own audit events.
const (
	SlugSystem      = "SystemLogger"
	SlugUser        = "UserLogger"
	SlugAPIKey      = "APIKeyLogger"
	SlugMaintenance = "MaintenanceLogger"
)

// RegisterCore registers the built-in loggers every installation has.
func RegisterCore(r *Registry) error {
	core := []Logger{
		{
			Slug:        SlugSystem,
			Name:        "System",
			MinReadRole: RoleViewer,
			Messages: map[string]string{
				"service_started": "Service started",
				"service_stopped": "Service stopped",
				"log_cleared":     "Log cleared by {username}",
			},
		},
		{
			Slug:        SlugUser,
			Name:        "Users",
			MinReadRole: RoleViewer,
			Messages: map[string]string{
				"user_logged_in":      "Logged in",
				"user_login_failed":   "Failed to log in with username \"{username}\"",
				"user_logged_out":     "Logged out",
				"user_created":        "Created user {created_username}",
				"user_deleted":        "Deleted user {deleted_username}",
				"user_password_reset": "Reset password for user {target_username}",
			},
		},
		{
			Slug:        SlugAPIKey,
			Name:        "API keys",
			MinReadRole: RoleAdmin,
			Messages: map[string]string{
				"apikey_created": "Created API key \"{key_name}\"",
				"apikey_deleted": "Deleted API key \"{key_name}\"",
				"apikey_toggled": "Set API key \"{key_name}\" active={active}",
			},
		},
		{
			Slug:        SlugMaintenance,
			Name:        "Maintenance",
			MinReadRole: RoleAdmin,
			Messages: map[string]string{
				"retention_purge": "Purged {count} events past retention",
			},
		},
	}
	for _, l := range core {
		if err := r.Register(l); err != nil {
			return err
		}
	}
	return nil
}
