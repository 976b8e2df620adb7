package logquery

import (
	"fmt"

	"loghistory/internal/db"
)

// page is what a grouping strategy returns: one page of representative
// rows (context not yet attached) plus the total group count. Both
// strategies produce the same shape so the rest of the pipeline never
// knows which one ran.
type page struct {
	rows  []Row
	total int64
}

// groupHead is the aggregate row the full strategy produces per occasion
// group before the representative events are fetched. The max_date column
// only exists for ordering; the display date comes from the fetched
// representative event.
type groupHead struct {
	ID          uint64
	MinID       uint64
	RepeatCount uint64
}

// fullGroupingCTE is the ordered running-counter operator expressed as
// window SQL: walking the filtered rows in display order, a LAG comparison
// marks each row where the occasions token changes, and a running SUM over
// those markers numbers the groups. Aggregating by group number then gives
// the representative id (MAX), the oldest collapsed id (MIN) and the
// repeat count per group. Pagination operates on groups, not raw rows.
const fullGroupingCTE = `
WITH filtered AS (
	SELECT id, date, occasions_id FROM %s WHERE %s
), marked AS (
	SELECT id, date, occasions_id,
		CASE WHEN occasions_id = LAG(occasions_id) OVER (ORDER BY date DESC, id DESC)
			THEN 0 ELSE 1 END AS boundary
	FROM filtered
), grouped AS (
	SELECT id, date,
		SUM(boundary) OVER (ORDER BY date DESC, id DESC
			ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW) AS grp
	FROM marked
)
`

// runFullGrouping collapses adjacent same-occasion rows server-side and
// paginates over the collapsed groups.
func (e *Engine) runFullGrouping(whereSQL string, whereArgs []any, pageNum, pageSize int) (*page, error) {
	tables := e.store.Tables()
	cte := fmt.Sprintf(fullGroupingCTE, tables.Events, whereSQL)

	headSQL := cte + `
SELECT MAX(id) AS id, MIN(id) AS min_id, COUNT(*) AS repeat_count, MAX(date) AS max_date
FROM grouped
GROUP BY grp
ORDER BY max_date DESC, id DESC
LIMIT ? OFFSET ?`

	headArgs := append(append([]any{}, whereArgs...), pageSize, (pageNum-1)*pageSize)

	var heads []groupHead
	if err := e.store.DB.Raw(headSQL, headArgs...).Scan(&heads).Error; err != nil {
		return nil, err
	}

	// LIMIT-free twin for the accurate group total.
	countSQL := cte + `SELECT COUNT(*) FROM (SELECT grp FROM grouped GROUP BY grp) AS g`

	var total int64
	if err := e.store.DB.Raw(countSQL, whereArgs...).Scan(&total).Error; err != nil {
		return nil, err
	}

	if len(heads) == 0 {
		return &page{rows: []Row{}, total: total}, nil
	}

	ids := make([]uint64, len(heads))
	for i, h := range heads {
		ids[i] = h.ID
	}

	var events []db.Event
	if err := e.store.DB.Table(tables.Events).Where("id IN ?", ids).Find(&events).Error; err != nil {
		return nil, err
	}

	byID := make(map[uint64]db.Event, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}

	rows := make([]Row, 0, len(heads))
	for _, h := range heads {
		ev, ok := byID[h.ID]
		if !ok {
			// Representative deleted between the two queries; skip rather
			// than emit a half-filled row.
			continue
		}
		rows = append(rows, Row{
			ID:                  ev.ID,
			Date:                ev.Date,
			Logger:              ev.Logger,
			Level:               ev.Level,
			Message:             ev.Message,
			Initiator:           ev.Initiator,
			OccasionsID:         ev.OccasionsID,
			SubsequentOccasions: h.RepeatCount,
			MinID:               h.MinID,
		})
	}

	return &page{rows: rows, total: total}, nil
}

// runSimple is the ungrouped strategy: same filters, ordering and
// pagination, but every row is its own group with a repeat count of 1.
// Used when the dialect cannot run the window CTE or when the caller
// asked for raw rows.
func (e *Engine) runSimple(whereSQL string, whereArgs []any, pageNum, pageSize int) (*page, error) {
	tables := e.store.Tables()

	var total int64
	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", tables.Events, whereSQL)
	if err := e.store.DB.Raw(countSQL, whereArgs...).Scan(&total).Error; err != nil {
		return nil, err
	}

	pageSQL := fmt.Sprintf(
		"SELECT * FROM %s WHERE %s ORDER BY date DESC, id DESC LIMIT ? OFFSET ?",
		tables.Events, whereSQL)
	pageArgs := append(append([]any{}, whereArgs...), pageSize, (pageNum-1)*pageSize)

	var events []db.Event
	if err := e.store.DB.Raw(pageSQL, pageArgs...).Scan(&events).Error; err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(events))
	for _, ev := range events {
		rows = append(rows, eventRow(ev))
	}

	return &page{rows: rows, total: total}, nil
}

// fetchSticky returns all sticky events the viewer may read, newest first.
// Sticky rows sit outside pagination: they are prepended to the page and
// never counted in totals or offsets.
func (e *Engine) fetchSticky(readableSlugs []string) ([]Row, error) {
	tables := e.store.Tables()

	preds := []pred{
		in{col: "logger", vals: anySlice(readableSlugs)},
		rawPred{
			sql:  fmt.Sprintf("id IN (SELECT history_id FROM %s WHERE key = ?)", tables.Contexts),
			args: []any{ContextKeySticky},
		},
	}
	whereSQL, whereArgs := renderPreds(preds, e.store.Dialect())

	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s ORDER BY date DESC, id DESC", tables.Events, whereSQL)

	var events []db.Event
	if err := e.store.DB.Raw(sql, whereArgs...).Scan(&events).Error; err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(events))
	for _, ev := range events {
		r := eventRow(ev)
		r.Sticky = true
		rows = append(rows, r)
	}
	return rows, nil
}

// eventRow converts a stored event into an envelope row with a repeat
// count of 1.
func eventRow(ev db.Event) Row {
	return Row{
		ID:                  ev.ID,
		Date:                ev.Date,
		Logger:              ev.Logger,
		Level:               ev.Level,
		Message:             ev.Message,
		Initiator:           ev.Initiator,
		OccasionsID:         ev.OccasionsID,
		SubsequentOccasions: 1,
		MinID:               ev.ID,
	}
}
