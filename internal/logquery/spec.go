// Package logquery is the read side of the audit log: it turns a loose
// filter request into dialect-aware SQL over the events/contexts tables,
// collapses bursts of near-duplicate events into single rows with repeat
// counts, and wraps the page in a cached result envelope.
package logquery

import (
	"errors"
	"fmt"
	"time"
)

// ResultType selects what a query returns.
type ResultType string

const (
	// TypeOverview is the grouped, paginated feed.
	TypeOverview ResultType = "overview"
	// TypeSingle behaves like overview; callers use it when they want
	// per-row detail for a single page of results.
	TypeSingle ResultType = "single"
	// TypeOccasions fetches the sibling events behind one collapsed group.
	TypeOccasions ResultType = "occasions"
)

// Levels in RFC 5424 order, most severe first.
var Levels = []string{
	"emergency", "alert", "critical", "error", "warning", "notice", "info", "debug",
}

// Initiators is the closed enumeration of actor kinds. Unknown values in a
// query are a validation error, not silently dropped.
var Initiators = []string{"user", "web_user", "cron", "cli", "system", "other"}

// MaxSurroundingCount caps the surrounding-events fetch per direction.
const MaxSurroundingCount = 50

// QuerySpec is the strict, normalized form of a query request. It is
// immutable after normalization; the engine also hashes it for cache keys.
type QuerySpec struct {
	Type     ResultType `json:"type"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`

	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`

	Search        string `json:"search,omitempty"`
	ExcludeSearch string `json:"exclude_search,omitempty"`

	Levels        []string `json:"loglevels,omitempty"`
	ExcludeLevels []string `json:"exclude_loglevels,omitempty"`

	Loggers        []string `json:"loggers,omitempty"`
	ExcludeLoggers []string `json:"exclude_loggers,omitempty"`

	// Messages maps logger slug to the message keys to match, parsed from
	// "LoggerSlug:message_key" entries.
	Messages        map[string][]string `json:"messages,omitempty"`
	ExcludeMessages map[string][]string `json:"exclude_messages,omitempty"`

	Users        []string `json:"users,omitempty"`
	ExcludeUsers []string `json:"exclude_users,omitempty"`

	Initiators        []string `json:"initiator,omitempty"`
	ExcludeInitiators []string `json:"exclude_initiator,omitempty"`

	// Context matches arbitrary metadata key=value pairs.
	Context        map[string]string `json:"context,omitempty"`
	ExcludeContext map[string]string `json:"exclude_context,omitempty"`

	// OnlySticky restricts results to events flagged with the _sticky
	// context key; IncludeSticky prepends them to the page instead.
	OnlySticky    bool `json:"only_sticky,omitempty"`
	IncludeSticky bool `json:"include_sticky,omitempty"`

	// Ungrouped forces the simple strategy: no occasion collapsing.
	Ungrouped bool `json:"ungrouped,omitempty"`

	// Occasions-mode parameters (Type == TypeOccasions).
	LogRowID                uint64 `json:"log_row_id,omitempty"`
	OccasionsID             string `json:"occasions_id,omitempty"`
	OccasionsCount          int    `json:"occasions_count,omitempty"`
	OccasionsCountMaxReturn int    `json:"occasions_count_max_return,omitempty"`
}

// Row is one representative event in a result page.
type Row struct {
	ID          uint64    `json:"id"`
	Date        time.Time `json:"date"`
	Logger      string    `json:"logger"`
	Level       string    `json:"level"`
	Message     string    `json:"message"`
	Initiator   string    `json:"initiator"`
	OccasionsID string    `json:"occasions_id"`

	// SubsequentOccasions is the repeat count: how many consecutive events
	// sharing the occasions token this row stands in for. Always >= 1.
	SubsequentOccasions uint64 `json:"subsequent_occasions"`

	// MinID is the oldest event id collapsed into this row.
	MinID uint64 `json:"min_id,omitempty"`

	// Context is the merged metadata for this event. Never nil.
	Context map[string]string `json:"context"`

	// ContextMessageKey promotes the _message_key context value for
	// backward-compatible access.
	ContextMessageKey string `json:"context_message_key,omitempty"`

	// Sticky marks rows prepended outside normal pagination.
	Sticky bool `json:"sticky,omitempty"`
}

// Result is the stable envelope consumed by the presentation layer.
type Result struct {
	TotalRowCount int64  `json:"total_row_count"`
	PagesCount    int    `json:"pages_count"`
	PageCurrent   int    `json:"page_current"`
	PageRowsFrom  int64  `json:"page_rows_from"`
	PageRowsTo    int64  `json:"page_rows_to"`
	MaxID         uint64 `json:"max_id"`
	MinID         uint64 `json:"min_id"`
	MaxDate       string `json:"max_date,omitempty"`
	LogRowsCount  int    `json:"log_rows_count"`
	LogRows       []Row  `json:"log_rows"`

	// CachedResult is true when this envelope was served from the result
	// cache rather than computed.
	CachedResult bool `json:"cached_result,omitempty"`

	// Surrounding-events extras.
	CenterEventID uint64 `json:"center_event_id,omitempty"`
	EventsBefore  int    `json:"events_before,omitempty"`
	EventsAfter   int    `json:"events_after,omitempty"`
}

// Viewer identifies who is asking. The permission source narrows the
// readable logger slugs from it.
type Viewer struct {
	ID    uint
	Admin bool
}

// PermissionSource supplies the logger slugs a viewer may read. An empty
// set is valid and yields empty results, never an error.
type PermissionSource interface {
	ReadableLoggerSlugs(v Viewer) []string
}

// MessageCatalog exposes each logger's known message templates in their
// translated, user-facing form. Search runs against translated text even
// though events store the untranslated template.
type MessageCatalog interface {
	Slugs() []string
	TranslatedMessages(slug string) map[string]string
}

// ValidationError reports malformed or out-of-range input, named by field.
// It is always raised before any query executes.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// DatabaseError wraps a driver error so callers can inspect it without the
// engine deciding how it is presented.
type DatabaseError struct {
	Err error
}

func (e *DatabaseError) Error() string { return "database error: " + e.Err.Error() }
func (e *DatabaseError) Unwrap() error { return e.Err }

// ErrEventNotFound is returned by the surrounding-events resolver when the
// center event id does not exist.
var ErrEventNotFound = errors.New("event not found")

func validLevel(s string) bool {
	for _, l := range Levels {
		if l == s {
			return true
		}
	}
	return false
}

func validInitiator(s string) bool {
	for _, i := range Initiators {
		if i == s {
			return true
		}
	}
	return false
}
