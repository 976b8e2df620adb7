package logquery

import (
	"loghistory/internal/db"
)

// attachContext batch-fetches the context rows for one page of events and
// merges them onto each row. One query per page regardless of page size.
// Events with no context rows get an empty (non-nil) map. Duplicate keys
// per event are not expected but tolerated: the first row wins.
func (e *Engine) attachContext(rows []Row) error {
	for i := range rows {
		rows[i].Context = map[string]string{}
	}
	if len(rows) == 0 {
		return nil
	}

	ids := make([]uint64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	var ctxRows []db.EventContext
	if err := e.store.DB.Table(e.store.Tables().Contexts).
		Where("history_id IN ?", ids).
		Order("context_id ASC").
		Find(&ctxRows).Error; err != nil {
		return err
	}

	byEvent := make(map[uint64]map[string]string, len(rows))
	for _, c := range ctxRows {
		m, ok := byEvent[c.HistoryID]
		if !ok {
			m = map[string]string{}
			byEvent[c.HistoryID] = m
		}
		if _, exists := m[c.Key]; !exists {
			m[c.Key] = c.Value
		}
	}

	for i := range rows {
		if m, ok := byEvent[rows[i].ID]; ok {
			rows[i].Context = m
		}
		// Promote the message key for backward-compatible access.
		rows[i].ContextMessageKey = rows[i].Context[ContextKeyMessageKey]
	}

	return nil
}
