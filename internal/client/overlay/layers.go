package overlay

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/fieldsync/internal/client/diff"
	"github.com/dmitrijs2005/fieldsync/internal/client/models"
	"github.com/dmitrijs2005/fieldsync/internal/client/render"
	"github.com/dmitrijs2005/fieldsync/internal/logging"
	"github.com/tidwall/gjson"
)

var ErrInvalidFeature = errors.New("invalid feature")

// Markup is a drawn feature of a collaboration room.
type Markup struct {
	ID       int64
	Owner    string
	Type     string
	Geometry string
	// Unsynced marks features with a local change not yet on the server.
	Unsynced bool
}

func markupFrom(e models.Entity) Markup {
	p := gjson.ParseBytes(e.Payload)
	return Markup{
		ID:       e.ID,
		Owner:    e.Owner,
		Type:     p.Get("type").String(),
		Geometry: p.Get("geometry").Raw,
		Unsynced: e.Status.IsPending(),
	}
}

// NewMarkup keys features by local id, which survives the first push.
func NewMarkup[H any](renderer render.Renderer[Markup, H], exec diff.Executor, logger logging.Logger) Overlay {
	return newLayer("markup", models.CategoryMarkup, diff.Source[models.Entity, int64, Markup]{
		Key:     func(e models.Entity) int64 { return e.ID },
		Payload: markupFrom,
	}, renderer, exec, logger)
}

// Hazard is a circular hazard zone.
type Hazard struct {
	RemoteID string
	Name     string
	Radius   float64
	Metric   string
	Geometry string
}

var metersPer = map[string]float64{
	"meters":     1,
	"kilometers": 1000,
	"feet":       0.3048,
	"miles":      1609.344,
	"yards":      0.9144,
}

// Meters converts the radius. Unknown metrics are read as meters.
func (h Hazard) Meters() float64 {
	if f, ok := metersPer[h.Metric]; ok {
		return h.Radius * f
	}
	return h.Radius
}

func hazardFrom(e models.Entity) Hazard {
	p := gjson.ParseBytes(e.Payload)
	metric := p.Get("radius_metric").String()
	if metric == "" {
		metric = "meters"
	}
	return Hazard{
		RemoteID: e.RemoteID,
		Name:     p.Get("name").String(),
		Radius:   p.Get("radius").Float(),
		Metric:   metric,
		Geometry: p.Get("geometry").Raw,
	}
}

// ValidateHazard rejects hazards that cannot be drawn.
func ValidateHazard(h Hazard) error {
	if h.Radius <= 0 {
		return fmt.Errorf("%w: hazard %s radius %v", ErrInvalidFeature, h.RemoteID, h.Radius)
	}
	if h.Geometry == "" {
		return fmt.Errorf("%w: hazard %s has no geometry", ErrInvalidFeature, h.RemoteID)
	}
	return nil
}

// NewHazards keys hazards by server id; hazards only ever come from a pull.
func NewHazards[H any](renderer render.Renderer[Hazard, H], exec diff.Executor, logger logging.Logger) Overlay {
	return newLayer("hazards", models.CategoryHazard, diff.Source[models.Entity, string, Hazard]{
		Key:     func(e models.Entity) string { return e.RemoteID },
		Payload: hazardFrom,
		Active:  func(e models.Entity) bool { return e.RemoteID != "" },
	}, renderer, exec, logger)
}

// TrackingLayer is a toggleable layer of tracked resources.
type TrackingLayer struct {
	DisplayName string
	Layers      string
	URL         string
}

func trackingKey(e models.Entity) string {
	p := gjson.ParseBytes(e.Payload)
	if name := p.Get("display_name").String(); name != "" {
		return name
	}
	return p.Get("name").String()
}

// NewTrackingLayers keys layers by display name and shows only the ones
// switched on.
func NewTrackingLayers[H any](renderer render.Renderer[TrackingLayer, H], exec diff.Executor, logger logging.Logger) Overlay {
	return newLayer("tracking_layers", models.CategoryTrackingLayer, diff.Source[models.Entity, string, TrackingLayer]{
		Key: trackingKey,
		Payload: func(e models.Entity) TrackingLayer {
			p := gjson.ParseBytes(e.Payload)
			return TrackingLayer{
				DisplayName: trackingKey(e),
				Layers:      p.Get("layers").String(),
				URL:         p.Get("url").String(),
			}
		},
		Active: func(e models.Entity) bool {
			return gjson.GetBytes(e.Payload, "active").Bool() && trackingKey(e) != ""
		},
	}, renderer, exec, logger)
}

// RoomLayer is a data layer attached to a collaboration room.
type RoomLayer struct {
	DatalayerID string
	Name        string
	URL         string
	Opacity     float64
}

func roomLayerKey(e models.Entity) string {
	id := gjson.GetBytes(e.Payload, "datalayer_id")
	if id.Type == gjson.Number {
		return strconv.FormatInt(id.Int(), 10)
	}
	return id.String()
}

func NewRoomLayers[H any](renderer render.Renderer[RoomLayer, H], exec diff.Executor, logger logging.Logger) Overlay {
	return newLayer("room_layers", models.CategoryCollabroomLayer, diff.Source[models.Entity, string, RoomLayer]{
		Key: roomLayerKey,
		Payload: func(e models.Entity) RoomLayer {
			p := gjson.ParseBytes(e.Payload)
			opacity := 1.0
			if o := p.Get("opacity"); o.Exists() {
				opacity = o.Float()
			}
			return RoomLayer{
				DatalayerID: roomLayerKey(e),
				Name:        p.Get("name").String(),
				URL:         p.Get("url").String(),
				Opacity:     opacity,
			}
		},
		Active: func(e models.Entity) bool { return roomLayerKey(e) != "" },
	}, renderer, exec, logger)
}
