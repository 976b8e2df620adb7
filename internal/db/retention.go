package db

import (
	"log"
	"time"
)

// RunRetentionOnce performs a single pass of retention cleanup, deleting
// events older than the cutoff along with their context rows. Returns the
// number of events removed so the caller can decide whether cached query
// results need invalidating.
func RunRetentionOnce(s *Store, cutoff time.Time) (int64, error) {
	// Context rows first so a crash between the two deletes never leaves
	// orphaned metadata pointing at missing events.
	sub := s.DB.Model(&Event{}).Select("id").Where("date < ?", cutoff)
	if err := s.DB.Where("history_id IN (?)", sub).Delete(&EventContext{}).Error; err != nil {
		return 0, err
	}

	res := s.DB.Where("date < ?", cutoff).Delete(&Event{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// StartRetentionWorker launches a background goroutine that purges events
// older than retentionDays once at startup and then once per day. onPurge
// runs after any pass that removed rows (used to rotate the cache epoch
// and to record the purge in the log itself).
func StartRetentionWorker(s *Store, retentionDays int, onPurge func(removed int64)) {
	if retentionDays <= 0 {
		return
	}

	run := func() {
		cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
		n, err := RunRetentionOnce(s, cutoff)
		if err != nil {
			log.Printf("retention cleanup error: %v", err)
			return
		}
		if n > 0 {
			log.Printf("retention cleanup removed %d events older than %s", n, cutoff.Format(time.RFC3339))
			if onPurge != nil {
				onPurge(n)
			}
		}
	}

	go func() {
		run()

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			run()
		}
	}()
}
