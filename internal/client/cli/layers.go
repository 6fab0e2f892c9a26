package cli

import (
	"fmt"
	"io"

	"github.com/dmitrijs2005/fieldsync/internal/client/overlay"
	"github.com/dmitrijs2005/fieldsync/internal/client/render"
	"github.com/dmitrijs2005/fieldsync/internal/client/store"
	"github.com/dmitrijs2005/fieldsync/internal/logging"
)

// mapLayers is the headless map: one recorder per overlay, all driven by
// the render loop.
type mapLayers struct {
	markup   *render.Recorder[overlay.Markup]
	hazards  *render.Recorder[overlay.Hazard]
	tracking *render.Recorder[overlay.TrackingLayer]
	rooms    *render.Recorder[overlay.RoomLayer]
	m        *overlay.Map
}

func newMapLayers(st *store.Store, loop *render.Loop, logger logging.Logger) *mapLayers {
	l := &mapLayers{
		markup:   render.NewRecorder[overlay.Markup]("markup", loop, nil, logger),
		hazards:  render.NewRecorder[overlay.Hazard]("hazards", loop, overlay.ValidateHazard, logger),
		tracking: render.NewRecorder[overlay.TrackingLayer]("tracking", loop, nil, logger),
		rooms:    render.NewRecorder[overlay.RoomLayer]("room_layers", loop, nil, logger),
	}
	l.m = overlay.NewMap(st, logger,
		overlay.NewMarkup[*render.Shape[overlay.Markup]](l.markup, loop, logger),
		overlay.NewHazards[*render.Shape[overlay.Hazard]](l.hazards, loop, logger),
		overlay.NewTrackingLayers[*render.Shape[overlay.TrackingLayer]](l.tracking, loop, logger),
		overlay.NewRoomLayers[*render.Shape[overlay.RoomLayer]](l.rooms, loop, logger),
	)
	return l
}

func (l *mapLayers) print(w io.Writer) {
	fmt.Fprintf(w, "scope %s\n", l.m.Scope())
	for _, o := range l.m.Overlays() {
		fmt.Fprintf(w, "  %-12s %d\n", o.Name(), o.Len())
	}
	for _, m := range l.markup.Live() {
		flag := ""
		if m.Unsynced {
			flag = " (unsynced)"
		}
		fmt.Fprintf(w, "  markup #%d %s by %s%s\n", m.ID, m.Type, m.Owner, flag)
	}
	for _, h := range l.hazards.Live() {
		fmt.Fprintf(w, "  hazard %s %q radius %.0fm\n", h.RemoteID, h.Name, h.Meters())
	}
	for _, t := range l.tracking.Live() {
		fmt.Fprintf(w, "  tracking %s\n", t.DisplayName)
	}
	for _, r := range l.rooms.Live() {
		fmt.Fprintf(w, "  layer %s %q opacity %.2f\n", r.DatalayerID, r.Name, r.Opacity)
	}
}
