package render

import (
	"context"
	"slices"
	"sync"

	"github.com/dmitrijs2005/fieldsync/internal/logging"
)

// Renderer turns payloads into live handles on the map. Both methods may
// only be called on the render loop.
type Renderer[P any, H any] interface {
	AddHandle(payload P) (H, error)
	RemoveHandle(handle H)
}

// Shape is the handle produced by Recorder.
type Shape[P any] struct {
	ID      uint64
	Layer   string
	Payload P
}

// Recorder is a headless Renderer. It keeps the set of live shapes so the
// CLI can print the map and tests can inspect it.
type Recorder[P any] struct {
	layer    string
	loop     *Loop
	validate func(P) error
	logger   logging.Logger

	mu      sync.Mutex
	nextID  uint64
	live    map[uint64]*Shape[P]
	adds    int
	removes int
	offLoop int
}

// NewRecorder builds a Recorder for one layer. validate rejects payloads
// that cannot be drawn; it may be nil.
func NewRecorder[P any](layer string, loop *Loop, validate func(P) error, logger logging.Logger) *Recorder[P] {
	return &Recorder[P]{
		layer:    layer,
		loop:     loop,
		validate: validate,
		logger:   logger.With("layer", layer),
		live:     make(map[uint64]*Shape[P]),
	}
}

func (r *Recorder[P]) checkLoop(op string) {
	if r.loop != nil && !r.loop.Running() {
		r.offLoop++
		r.logger.Warn(context.Background(), "renderer called off the render loop", "op", op)
	}
}

func (r *Recorder[P]) AddHandle(payload P) (*Shape[P], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.checkLoop("add")
	if r.validate != nil {
		if err := r.validate(payload); err != nil {
			return nil, err
		}
	}

	r.nextID++
	s := &Shape[P]{ID: r.nextID, Layer: r.layer, Payload: payload}
	r.live[s.ID] = s
	r.adds++
	return s, nil
}

func (r *Recorder[P]) RemoveHandle(s *Shape[P]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.checkLoop("remove")
	if s == nil {
		return
	}
	if _, ok := r.live[s.ID]; ok {
		delete(r.live, s.ID)
		r.removes++
	}
}

// Live returns the payloads currently on the map, in insertion order.
func (r *Recorder[P]) Live() []P {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]uint64, 0, len(r.live))
	for id := range r.live {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]P, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.live[id].Payload)
	}
	return out
}

// Stats returns how many handles were added and removed, and how many
// calls arrived off the render loop.
func (r *Recorder[P]) Stats() (adds, removes, offLoop int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.adds, r.removes, r.offLoop
}
