package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldsync/internal/client/models"
	"github.com/dmitrijs2005/fieldsync/internal/client/status"
	"github.com/dmitrijs2005/fieldsync/internal/common"
)

// Upsert writes e as is, inserting when e.ID is 0 and replacing the row with
// the same local id otherwise. LastUpdate is stamped with the current time.
func (s *Store) Upsert(ctx context.Context, e *models.Entity) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.upsert(ctx, e)
}

func (s *Store) upsert(ctx context.Context, e *models.Entity) (int64, error) {
	e.LastUpdate = s.now()
	if len(e.Payload) == 0 {
		e.Payload = json.RawMessage("{}")
	}
	id, err := s.entities.Upsert(ctx, e)
	if err != nil {
		return 0, err
	}
	e.ID = id
	s.publish(e.Category, e.Scope)
	return id, nil
}

// Create stores new local content as WAITING_TO_SEND.
func (s *Store) Create(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	step, err := status.Next(status.Unknown, status.Create)
	if err != nil {
		return nil, err
	}
	c := e.Clone()
	c.ID = 0
	c.RemoteID = ""
	c.Status = step.Status
	c.Scope = c.Scope.ForCategory(c.Category)
	if _, err := s.Upsert(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*models.Entity, error) {
	return s.entities.GetByID(ctx, id)
}

func (s *Store) GetByRemoteID(ctx context.Context, category models.Category, remoteID string) (*models.Entity, error) {
	return s.entities.GetByRemoteID(ctx, category, remoteID)
}

// GetPending returns the entities of owner waiting for a push of kind.
func (s *Store) GetPending(ctx context.Context, owner string, kind models.OpKind) ([]models.Entity, error) {
	return s.entities.ListByStatus(ctx, owner, kind.Pending())
}

// InFlight returns every entity whose status says a push is outstanding.
// Right after start-up those are leftovers of an interrupted run.
func (s *Store) InFlight(ctx context.Context) ([]models.Entity, error) {
	return s.entities.ListByStatus(ctx, "", status.Sent, status.Updating, status.Deleting)
}

func (s *Store) DeleteByID(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	e, err := s.entities.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.entities.DeleteByID(ctx, id); err != nil {
		return err
	}
	s.publish(e.Category, e.Scope)
	return nil
}

// QueryByContext returns a snapshot of everything stored for the incident
// that is either incident wide or belongs to roomID.
func (s *Store) QueryByContext(ctx context.Context, incidentID, roomID int64) ([]models.Entity, error) {
	return s.entities.ListByIncident(ctx, incidentID, roomID)
}

// Query returns a snapshot of one category in scope.
func (s *Store) Query(ctx context.Context, category models.Category, scope models.Scope) ([]models.Entity, error) {
	return s.entities.ListByScope(ctx, category, scope.ForCategory(category))
}

// PullCursor is where the next pull of a category in scope starts. Only a
// completed pull moves it, so content pushed from this device never hides
// older changes made elsewhere.
func (s *Store) PullCursor(ctx context.Context, category models.Category, scope models.Scope) (time.Time, error) {
	return s.entities.PullCursor(ctx, category, scope.ForCategory(category))
}

func (s *Store) AdvancePullCursor(ctx context.Context, category models.Category, scope models.Scope, t time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.entities.AdvancePullCursor(ctx, category, scope.ForCategory(category), t)
}

// Transition applies ev to the stored entity id through the lifecycle table.
// edit, when given, runs on the entity before it is written back and may
// change anything but the status. When the step removes the entity the row
// is deleted. The entity as it was written (or as it was before removal)
// is returned.
func (s *Store) Transition(ctx context.Context, id int64, ev status.Event, edit func(*models.Entity)) (*models.Entity, status.Step, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur, err := s.entities.GetByID(ctx, id)
	if err != nil {
		return nil, status.Step{}, err
	}

	step, err := status.Next(cur.Status, ev)
	if err != nil {
		return cur, step, fmt.Errorf("entity %d: %w", id, err)
	}

	if step.Remove {
		if err := s.entities.DeleteByID(ctx, id); err != nil {
			return cur, step, err
		}
		s.publish(cur.Category, cur.Scope)
		return cur, step, nil
	}

	if edit != nil {
		edit(cur)
	}
	cur.Status = step.Status
	if _, err := s.upsert(ctx, cur); err != nil {
		return cur, step, err
	}
	return cur, step, nil
}

// Receive merges a copy pulled from the server. The stored row with the same
// remote id keeps its local id. A row with a pending local change is left
// untouched and applied is false.
func (s *Store) Receive(ctx context.Context, e models.Entity) (applied bool, err error) {
	if e.RemoteID == "" {
		return false, fmt.Errorf("receive: %w: missing remote id", common.ErrorValidation)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	from := status.Unknown
	existing, err := s.entities.GetByRemoteID(ctx, e.Category, e.RemoteID)
	switch {
	case err == nil:
		from = existing.Status
		e.ID = existing.ID
	case errors.Is(err, common.ErrorNotFound):
		e.ID = 0
	default:
		return false, err
	}

	step, err := status.Next(from, status.Receive)
	if errors.Is(err, status.ErrLocalPending) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	e.Status = step.Status
	if _, err := s.upsert(ctx, &e); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveRemote drops the row a server-side deletion refers to, unless it
// carries a pending local change.
func (s *Store) RemoveRemote(ctx context.Context, category models.Category, remoteID string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	e, err := s.entities.GetByRemoteID(ctx, category, remoteID)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if e.Status.IsPending() {
		return false, nil
	}
	if err := s.entities.DeleteByID(ctx, e.ID); err != nil {
		return false, err
	}
	s.publish(e.Category, e.Scope)
	return true, nil
}

// Wipe deletes every entity and pull cursor (logout or reset). Session
// metadata is left to the session, which keeps the device id.
func (s *Store) Wipe(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.entities.Clear(ctx); err != nil {
		return err
	}
	s.publishAll()
	return nil
}
