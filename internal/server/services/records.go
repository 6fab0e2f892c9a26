package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldsync/internal/common"
	"github.com/dmitrijs2005/fieldsync/internal/server/models"
	"github.com/dmitrijs2005/fieldsync/internal/server/repositories/repomanager"
	"github.com/tidwall/gjson"
)

// RecordService stores pushed records and serves incremental pulls.
//
// Writes are serialized and stamped from a clock that never repeats or goes
// back, so the order records become visible matches their seq times and a
// client resuming from its newest seq time misses nothing.
type RecordService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager

	writeMu sync.Mutex
	last    time.Time
	now     func() time.Time
}

func NewRecordService(db *sql.DB, m repomanager.RepositoryManager) *RecordService {
	return &RecordService{db: db, repomanager: m, now: time.Now}
}

// PullResult lists the live records and the ids of tombstones of one pull.
// Until is the newest seq time among both, zero when nothing changed.
type PullResult struct {
	Records []models.Record
	Deleted []string
	Until   time.Time
}

// nextSeq must be called with writeMu held.
func (s *RecordService) nextSeq() time.Time {
	t := s.now().UTC().Truncate(time.Millisecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Millisecond)
	}
	s.last = t
	return t
}

func validateRecord(rec *models.Record) error {
	if rec.Category == "" {
		return fmt.Errorf("%w: category is required", common.ErrorValidation)
	}
	if rec.IncidentID < 0 || rec.RoomID < 0 {
		return fmt.Errorf("%w: negative scope", common.ErrorValidation)
	}
	if !gjson.ValidBytes(rec.Payload) || !gjson.ParseBytes(rec.Payload).IsObject() {
		return fmt.Errorf("%w: payload must be a JSON object", common.ErrorValidation)
	}
	return nil
}

// Push stores a new record owned by owner and returns it with its id and
// seq time.
func (s *RecordService) Push(ctx context.Context, owner string, rec models.Record) (*models.Record, error) {
	if err := validateRecord(&rec); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec.ID = ""
	rec.Owner = owner
	rec.Deleted = false
	rec.SeqTime = s.nextSeq()
	if err := s.repomanager.Records(s.db).Create(ctx, &rec); err != nil {
		return nil, fmt.Errorf("error creating record: %w", err)
	}
	return &rec, nil
}

// Update replaces the payload of a live record. Scope and owner stay as
// first pushed.
func (s *RecordService) Update(ctx context.Context, rec models.Record) (*models.Record, error) {
	if rec.ID == "" {
		return nil, fmt.Errorf("%w: id is required", common.ErrorValidation)
	}
	if err := validateRecord(&rec); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec.Deleted = false
	rec.SeqTime = s.nextSeq()
	if err := s.repomanager.Records(s.db).Update(ctx, &rec); err != nil {
		return nil, fmt.Errorf("error updating record %s: %w", rec.ID, err)
	}
	return &rec, nil
}

// Delete tombstones a live record. Unknown and already deleted records
// yield common.ErrorNotFound.
func (s *RecordService) Delete(ctx context.Context, category, id string) error {
	if category == "" || id == "" {
		return fmt.Errorf("%w: category and id are required", common.ErrorValidation)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.repomanager.Records(s.db).Delete(ctx, category, id, s.nextSeq()); err != nil {
		return fmt.Errorf("error deleting record %s: %w", id, err)
	}
	return nil
}

func (s *RecordService) Pull(ctx context.Context, q models.RecordQuery) (*PullResult, error) {
	if q.Category == "" {
		return nil, fmt.Errorf("%w: category is required", common.ErrorValidation)
	}

	list, err := s.repomanager.Records(s.db).ListSince(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("error listing records: %w", err)
	}

	res := &PullResult{}
	for _, rec := range list {
		if rec.SeqTime.After(res.Until) {
			res.Until = rec.SeqTime
		}
		if rec.Deleted {
			res.Deleted = append(res.Deleted, rec.ID)
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}
