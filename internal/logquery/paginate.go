package logquery

// assembleEnvelope computes the pagination metadata for one page of rows.
// page_rows_from/to are 1-based inclusive indices into the full (grouped)
// result set; max_id/min_id span every event the page covers, including
// the ones collapsed under a representative row.
func assembleEnvelope(spec *QuerySpec, pg *page) *Result {
	res := &Result{
		TotalRowCount: pg.total,
		PageCurrent:   spec.Page,
		LogRows:       pg.rows,
		LogRowsCount:  len(pg.rows),
	}

	if spec.PageSize > 0 {
		res.PagesCount = int((pg.total + int64(spec.PageSize) - 1) / int64(spec.PageSize))
	}

	if len(pg.rows) > 0 {
		res.PageRowsFrom = int64(spec.Page-1)*int64(spec.PageSize) + 1
		res.PageRowsTo = res.PageRowsFrom + int64(len(pg.rows)) - 1

		res.MaxID = pg.rows[0].ID
		res.MinID = pg.rows[0].MinID
		for _, r := range pg.rows {
			if r.ID > res.MaxID {
				res.MaxID = r.ID
			}
			min := r.MinID
			if min == 0 {
				min = r.ID
			}
			if min < res.MinID {
				res.MinID = min
			}
		}
		res.MaxDate = pg.rows[0].Date.Format("2006-01-02 15:04:05")
	}

	return res
}
