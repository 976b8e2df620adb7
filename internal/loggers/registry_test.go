package loggers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loghistory/internal/logquery"
)

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(Logger{Slug: "AppLogger", Name: "App"}))
	assert.Error(t, r.Register(Logger{Slug: "AppLogger", Name: "Duplicate"}))
	assert.Error(t, r.Register(Logger{Slug: "", Name: "Empty"}))
	assert.Error(t, r.Register(Logger{Slug: strings.Repeat("x", 31), Name: "Too long"}))
}

func TestReadableLoggerSlugsByRole(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Logger{Slug: "Public", MinReadRole: RoleViewer}))
	require.NoError(t, r.Register(Logger{Slug: "Restricted", MinReadRole: RoleAdmin}))
	// Unset role defaults to admin-only.
	require.NoError(t, r.Register(Logger{Slug: "Unspecified"}))

	assert.Equal(t, []string{"Public"}, r.ReadableLoggerSlugs(logquery.Viewer{ID: 1}))
	assert.Equal(t, []string{"Public", "Restricted", "Unspecified"},
		r.ReadableLoggerSlugs(logquery.Viewer{ID: 2, Admin: true}))
}

func TestTranslatedMessages(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Logger{
		Slug:     "UserLogger",
		Messages: map[string]string{"user_logged_in": "Signed in"},
	}))

	assert.Equal(t, map[string]string{"user_logged_in": "Signed in"},
		r.TranslatedMessages("UserLogger"))
	assert.Nil(t, r.TranslatedMessages("Unknown"))
}

func TestRegisterCore(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterCore(r))

	slugs := r.Slugs()
	assert.Contains(t, slugs, SlugSystem)
	assert.Contains(t, slugs, SlugUser)
	assert.Contains(t, slugs, SlugAPIKey)
	assert.Contains(t, slugs, SlugMaintenance)

	// A second registration collides on every slug.
	assert.Error(t, RegisterCore(r))

	// Core message catalogs back the translated-search detour.
	assert.NotEmpty(t, r.TranslatedMessages(SlugUser)["user_logged_in"])
}
