package db

import (
	"time"
)

// Event is one logged occurrence. Rows are append-only: they are written
// once by the ingest path and never mutated afterwards; the query engine
// only reads them and the retention worker only bulk-deletes them.
type Event struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	// Date is the logical ordering key (second precision); ties are
	// broken by ID descending.
	Date time.Time `gorm:"index;index:idx_events_logger_date,priority:2;not null" json:"date"`

	// Logger is the slug of the producing component.
	Logger string `gorm:"size:30;index:idx_events_logger_date,priority:1;not null" json:"logger"`

	// Level is an RFC 5424 severity name (emergency .. debug).
	Level string `gorm:"size:20;not null" json:"level"`

	// Message is the untranslated message template with {placeholder}
	// tokens. Rendering happens in the presentation layer.
	Message string `gorm:"type:text" json:"message"`

	// Initiator tags what kind of actor caused the event
	// (user, web_user, cron, cli, system, other).
	Initiator string `gorm:"size:16" json:"initiator"`

	// OccasionsID groups bursts of near-duplicate events: adjacent rows
	// (in display order) sharing this token collapse into one row with a
	// repeat count.
	OccasionsID string `gorm:"column:occasions_id;size:32;index" json:"occasions_id"`
}

// EventContext is one key/value metadata row attached to an event. Keys
// starting with "_" are reserved (e.g. _user_id, _message_key, _sticky).
// The schema does not enforce uniqueness on (history_id, key); the query
// engine keeps the first row it sees per key.
type EventContext struct {
	ContextID uint64 `gorm:"column:context_id;primaryKey;autoIncrement" json:"context_id"`

	HistoryID uint64 `gorm:"column:history_id;index;not null" json:"history_id"`

	Key   string `gorm:"size:255;index;not null" json:"key"`
	Value string `gorm:"type:text" json:"value"`
}

// User represents a dashboard user that can sign in and read the log.
// The bootstrap admin user (from env) will be created as a row in this
// table on startup.
type User struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Username     string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string `gorm:"size:255;not null"`

	// IsAdmin marks users that can manage other users, clear the log and
	// use the surrounding-events debug mode. Non-admins only see events
	// from loggers whose read role permits them.
	IsAdmin bool `gorm:"default:false"`
}

// APIKey represents a bearer token for appending events from external
// services. Each key belongs to a user and names the producing service.
type APIKey struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	// UserID links this key to the user who owns it.
	UserID uint `gorm:"index;not null"`

	// Name is a user-friendly identifier for this key (e.g. "payments-api").
	Name string `gorm:"size:128;not null"`

	// Key is the actual bearer token value (stored as-is, should be unique).
	Key string `gorm:"uniqueIndex;size:255;not null"`

	// Active indicates whether this key is currently enabled.
	Active bool `gorm:"default:true"`

	// User is the owner of this API key.
	User User `gorm:"foreignKey:UserID"`
}

// tablePrefix is set once by Open, before any table name is resolved.
var tablePrefix string

func (Event) TableName() string        { return tablePrefix + "events" }
func (EventContext) TableName() string { return tablePrefix + "contexts" }

// TableNames carries the resolved physical table names for raw SQL. The
// query engine never hardcodes them so installations can share a database
// under different prefixes.
type TableNames struct {
	Events   string
	Contexts string
}
