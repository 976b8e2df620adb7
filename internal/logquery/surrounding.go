package logquery

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"loghistory/internal/db"
)

const defaultSurroundingCount = 10

// surroundingFromArgs parses the secondary entry point's parameters and
// delegates to Surrounding.
func (e *Engine) surroundingFromArgs(args map[string]any) (*Result, error) {
	id, err := asUint64("surrounding_event_id", args["surrounding_event_id"])
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, &ValidationError{Field: "surrounding_event_id", Msg: "must be > 0"}
	}
	count, err := asInt("surrounding_count", args["surrounding_count"])
	if err != nil {
		return nil, err
	}
	return e.Surrounding(id, count)
}

// Surrounding is the debug mode: up to count events chronologically before
// and after the center event, plus the center itself, newest first.
//
// This path bypasses every inclusion/exclusion filter AND the permission
// scope. Callers must authorize the viewer themselves before invoking it.
func (e *Engine) Surrounding(centerID uint64, count int) (*Result, error) {
	if count <= 0 {
		count = defaultSurroundingCount
	}
	if count > MaxSurroundingCount {
		count = MaxSurroundingCount
	}

	tables := e.store.Tables()

	var center db.Event
	err := e.withSchemaRetry(func() error {
		return e.store.DB.Table(tables.Events).Where("id = ?", centerID).First(&center).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, &DatabaseError{Err: err}
	}

	var after []db.Event
	afterSQL := fmt.Sprintf("SELECT * FROM %s WHERE id > ? ORDER BY id ASC LIMIT ?", tables.Events)
	if err := e.store.DB.Raw(afterSQL, centerID, count).Scan(&after).Error; err != nil {
		return nil, &DatabaseError{Err: err}
	}

	var before []db.Event
	beforeSQL := fmt.Sprintf("SELECT * FROM %s WHERE id < ? ORDER BY id DESC LIMIT ?", tables.Events)
	if err := e.store.DB.Raw(beforeSQL, centerID, count).Scan(&before).Error; err != nil {
		return nil, &DatabaseError{Err: err}
	}

	// Reassemble in presentation order: newest first means the "after"
	// events (fetched ascending) get reversed, then the center, then the
	// "before" events which are already descending.
	rows := make([]Row, 0, len(after)+1+len(before))
	for i := len(after) - 1; i >= 0; i-- {
		rows = append(rows, eventRow(after[i]))
	}
	rows = append(rows, eventRow(center))
	for _, ev := range before {
		rows = append(rows, eventRow(ev))
	}

	if err := e.attachContext(rows); err != nil {
		return nil, &DatabaseError{Err: err}
	}

	res := &Result{
		TotalRowCount: int64(len(rows)),
		PagesCount:    1,
		PageCurrent:   1,
		PageRowsFrom:  1,
		PageRowsTo:    int64(len(rows)),
		LogRows:       rows,
		LogRowsCount:  len(rows),
		CenterEventID: centerID,
		EventsBefore:  len(before),
		EventsAfter:   len(after),
	}
	if len(rows) > 0 {
		res.MaxID = rows[0].ID
		res.MinID = rows[len(rows)-1].ID
		res.MaxDate = rows[0].Date.Format("2006-01-02 15:04:05")
	}
	return res, nil
}
