// Package audit persists call sessions and their call logs.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zulandar/autodialer/internal/dialer"
	"github.com/zulandar/autodialer/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Recorder writes dialer state snapshots to the audit tables. Writes are
// best-effort: failures are logged and never reach the dialer.
type Recorder struct {
	db  *gorm.DB
	now func() time.Time

	mu      sync.Mutex
	session string
	seen    map[string]struct{}
}

// New returns a Recorder backed by db. The tables must already exist.
func New(db *gorm.DB) *Recorder {
	return &Recorder{db: db, now: time.Now, seen: make(map[string]struct{})}
}

// Events returns the dialer notifications the Recorder listens to.
func (r *Recorder) Events() dialer.Events {
	return dialer.Events{OnSnapshot: r.Record}
}

// Record persists one snapshot.
func (r *Recorder) Record(st dialer.State) {
	if err := r.record(st); err != nil {
		log.Printf("audit: record session %s: %v", st.SessionID, err)
	}
}

func (r *Recorder) record(st dialer.State) error {
	if st.SessionID == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if st.SessionID != r.session {
		r.session = st.SessionID
		r.seen = make(map[string]struct{})
	}

	var errs []error
	if err := r.upsertSession(st); err != nil {
		errs = append(errs, err)
	}
	for i, e := range st.Log {
		if _, ok := r.seen[e.ID]; ok {
			continue
		}
		data, err := json.Marshal(e.Data)
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal entry %s: %w", e.ID, err))
			continue
		}
		rec := models.CallLogRecord{
			EntryID:   e.ID,
			SessionID: st.SessionID,
			Seq:       i,
			Kind:      string(e.Kind),
			Message:   e.Message,
			Data:      string(data),
			LoggedAt:  e.Timestamp,
		}
		err = r.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entry_id"}},
			DoNothing: true,
		}).Create(&rec).Error
		if err != nil {
			errs = append(errs, fmt.Errorf("insert entry %s: %w", e.ID, err))
			continue
		}
		r.seen[e.ID] = struct{}{}
	}
	return errors.Join(errs...)
}

func (r *Recorder) upsertSession(st dialer.State) error {
	now := r.now()
	row := models.CallSession{
		SessionID: st.SessionID,
		Status:    string(st.Status),
		Error:     st.Error,
		StartedAt: now,
		UpdatedAt: now,
	}
	if p := st.Profile; p != nil {
		row.CallerChannelID = p.CallerChannelID
		row.Phone = p.Phone
		row.Name = p.Name
		row.Email = p.Email
		row.CampaignID = p.CampaignID
		row.CallType = p.CallType
	}
	update := []string{"status", "error", "updated_at"}
	if st.Status == dialer.StatusCallEnded || st.Status == dialer.StatusError {
		row.EndedAt = &now
		update = append(update, "ended_at")
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns(update),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// Sessions returns the most recent sessions, newest first. A limit of zero
// or less returns all of them.
func Sessions(db *gorm.DB, limit int) ([]models.CallSession, error) {
	q := db.Order("started_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.CallSession
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("audit: sessions: %w", err)
	}
	return out, nil
}

// Entries returns the call log of one session in append order.
func Entries(db *gorm.DB, sessionID string) ([]models.CallLogRecord, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("audit: sessionID is required")
	}
	var out []models.CallLogRecord
	if err := db.Where("session_id = ?", sessionID).
		Order("seq ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("audit: entries %s: %w", sessionID, err)
	}
	return out, nil
}
