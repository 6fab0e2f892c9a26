package records

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldsync/internal/common"
	"github.com/dmitrijs2005/fieldsync/internal/server/models"
	"github.com/google/uuid"
)

type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]models.Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]models.Record)}
}

func (r *MemoryRepository) Create(_ context.Context, rec *models.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec.ID = uuid.NewString()
	c := *rec
	c.Payload = slices.Clone(rec.Payload)
	r.byID[c.ID] = c
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, rec *models.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byID[rec.ID]
	if !ok || cur.Deleted || cur.Category != rec.Category {
		return common.ErrorNotFound
	}
	cur.Payload = slices.Clone(rec.Payload)
	cur.SeqTime = rec.SeqTime
	r.byID[cur.ID] = cur

	rec.IncidentID, rec.RoomID, rec.Owner = cur.IncidentID, cur.RoomID, cur.Owner
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, category, id string, seq time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byID[id]
	if !ok || cur.Deleted || cur.Category != category {
		return common.ErrorNotFound
	}
	cur.Deleted = true
	cur.Payload = []byte("{}")
	cur.SeqTime = seq
	r.byID[id] = cur
	return nil
}

func (r *MemoryRepository) ListSince(_ context.Context, q models.RecordQuery) ([]models.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []models.Record
	for _, rec := range r.byID {
		if rec.Category != q.Category || rec.IncidentID != q.IncidentID || rec.RoomID != q.RoomID {
			continue
		}
		if !rec.SeqTime.After(q.Since) {
			continue
		}
		c := rec
		c.Payload = slices.Clone(rec.Payload)
		result = append(result, c)
	}
	slices.SortFunc(result, func(a, b models.Record) int {
		return a.SeqTime.Compare(b.SeqTime)
	})
	return result, nil
}
