package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/fieldsync/internal/client/models"
	"github.com/dmitrijs2005/fieldsync/internal/client/status"
	"github.com/dmitrijs2005/fieldsync/internal/common"
)

var errUsage = errors.New("usage")

func usage(format string) error {
	return fmt.Errorf("%w: %s", errUsage, format)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad id %q", common.ErrorValidation, s)
	}
	return id, nil
}

// readPayload returns inline JSON, or asks for it over several lines.
func (a *App) readPayload(inline string) (json.RawMessage, error) {
	text := strings.TrimSpace(inline)
	if text == "" {
		var err error
		text, err = GetMultiline(a.reader, "Enter JSON payload", a.out)
		if err != nil {
			return nil, err
		}
	}
	if !json.Valid([]byte(text)) || !strings.HasPrefix(text, "{") {
		return nil, fmt.Errorf("%w: payload must be a JSON object", common.ErrorValidation)
	}
	return json.RawMessage(text), nil
}

func (a *App) Incident(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("incident <id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := a.orch.SelectIncident(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Incident %d selected\n", id)
	return nil
}

func (a *App) Room(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("room <id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := a.orch.SelectCollabroom(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Room %d selected\n", id)
	return nil
}

func (a *App) Add(ctx context.Context, category, payload string) error {
	if category == "" {
		return usage("add <category> [json]")
	}
	c, err := models.ParseCategory(category)
	if err != nil {
		return err
	}
	p, err := a.readPayload(payload)
	if err != nil {
		return err
	}
	e, err := a.orch.Create(ctx, c, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created #%d (%s)\n", e.ID, e.Status)
	return nil
}

func (a *App) Edit(ctx context.Context, id, payload string) error {
	if id == "" {
		return usage("edit <id> [json]")
	}
	n, err := parseID(id)
	if err != nil {
		return err
	}
	p, err := a.readPayload(payload)
	if err != nil {
		return err
	}
	e, err := a.orch.Edit(ctx, n, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated #%d (%s)\n", e.ID, e.Status)
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("delete <id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := a.orch.Remove(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted #%d\n", id)
	return nil
}

// List prints the entities of the selected incident and room, optionally
// limited to one category.
func (a *App) List(ctx context.Context, args []string) error {
	var only models.Category
	if len(args) > 0 {
		c, err := models.ParseCategory(args[0])
		if err != nil {
			return err
		}
		only = c
	}

	scope := a.session.Scope()
	items, err := a.store.QueryByContext(ctx, scope.IncidentID, scope.RoomID)
	if err != nil {
		return err
	}

	n := 0
	for _, e := range items {
		if only != "" && e.Category != only {
			continue
		}
		remote := e.RemoteID
		if remote == "" {
			remote = "-"
		}
		fmt.Fprintf(a.out, "#%-5d %-16s %-15s %-38s %s\n", e.ID, e.Category, statusLabel(e.Status), remote, summary(e.Payload))
		n++
	}
	if n == 0 {
		fmt.Fprintln(a.out, "No entries")
	}
	return nil
}

func summary(payload json.RawMessage) string {
	s := string(payload)
	if len(s) > 60 {
		return s[:57] + "..."
	}
	return s
}

func (a *App) Show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("show <id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	e, err := a.store.Get(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "ID:        %d\n", e.ID)
	fmt.Fprintf(a.out, "Remote ID: %s\n", e.RemoteID)
	fmt.Fprintf(a.out, "Category:  %s\n", e.Category)
	fmt.Fprintf(a.out, "Scope:     %s\n", e.Scope)
	fmt.Fprintf(a.out, "Owner:     %s\n", e.Owner)
	fmt.Fprintf(a.out, "Status:    %s\n", e.Status)
	fmt.Fprintf(a.out, "Updated:   %s\n", e.LastUpdate.Format("2006-01-02 15:04:05"))
	if !e.SeqTime.IsZero() {
		fmt.Fprintf(a.out, "Seq time:  %s\n", e.SeqTime.Format("2006-01-02 15:04:05.000"))
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, e.Payload, "", "  "); err != nil {
		buf.Reset()
		buf.Write(e.Payload)
	}
	fmt.Fprintln(a.out, buf.String())
	return nil
}

// Status prints the session, connectivity and the outbound queue.
func (a *App) Status(ctx context.Context) error {
	user := a.session.Username()
	if user == "" {
		user = "(not logged in)"
	}
	fmt.Fprintf(a.out, "User:   %s\n", user)
	fmt.Fprintf(a.out, "Mode:   %s\n", a.Mode())
	fmt.Fprintf(a.out, "Scope:  %s\n", a.session.Scope())

	for _, kind := range models.OpKinds() {
		pending, err := a.store.GetPending(ctx, user, kind)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Pending %-6s %d\n", kind, len(pending))
	}

	inflight, err := a.store.InFlight(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "In flight      %d\n", len(inflight))
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	n := a.orch.SendAllLocalContent(ctx)
	fmt.Fprintf(a.out, "Queued %d push(es)\n", n)
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	n := a.orch.RefreshAll(ctx)
	fmt.Fprintf(a.out, "Queued %d pull(s)\n", n)
	return nil
}

func (a *App) Map(ctx context.Context) error {
	a.layers.print(a.out)
	return nil
}

// statusLabel marks entities that still wait for the server.
func statusLabel(s status.SendStatus) string {
	if s.IsPending() {
		return s.String() + "*"
	}
	return s.String()
}
