package store

import (
	"context"

	"github.com/dmitrijs2005/fieldsync/internal/client/models"
)

type subscription struct {
	category models.Category
	scope    models.Scope
	dirty    chan struct{}
}

func (sub *subscription) mark() {
	select {
	case sub.dirty <- struct{}{}:
	default:
	}
}

func (s *Store) publish(category models.Category, scope models.Scope) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for sub := range s.subs {
		if sub.category == category && sub.scope == scope {
			sub.mark()
		}
	}
}

func (s *Store) publishAll() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for sub := range s.subs {
		sub.mark()
	}
}

// Watch streams snapshots of a category in scope: one right away and one
// after every change. A slow reader only ever sees the newest snapshot;
// snapshots that went stale before delivery are dropped. The channel is
// closed when ctx is done.
func (s *Store) Watch(ctx context.Context, category models.Category, scope models.Scope) <-chan []models.Entity {
	sub := &subscription{
		category: category,
		scope:    scope.ForCategory(category),
		dirty:    make(chan struct{}, 1),
	}
	sub.mark()

	s.subsMu.Lock()
	s.subs[sub] = struct{}{}
	s.subsMu.Unlock()

	out := make(chan []models.Entity)
	go func() {
		defer close(out)
		defer func() {
			s.subsMu.Lock()
			delete(s.subs, sub)
			s.subsMu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.dirty:
			}

			snap, err := s.entities.ListByScope(ctx, sub.category, sub.scope)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn(ctx, "watch query failed", "category", sub.category, "scope", sub.scope.String(), "error", err)
				continue
			}

			select {
			case out <- snap:
			case <-sub.dirty:
				sub.mark()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
