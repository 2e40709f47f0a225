package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	derrors "git.home.luguber.info/inful/hotpatch/internal/errors"
	"git.home.luguber.info/inful/hotpatch/internal/eventstore"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int    `short:"n" default:"10" help:"Number of runs to show"`
	RunID string `name:"run" help:"Show the events of one run instead of the summary"`
	JSON  bool   `name:"json" help:"Print as JSON"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.LoadConfig()
	if err != nil {
		return err
	}
	if !cfg.Events.Enabled {
		return derrors.ValidationFailed("events.enabled", "run history is disabled in the configuration")
	}

	store, err := eventstore.NewSQLiteStore(cfg.Events.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if h.RunID != "" {
		return h.printEvents(ctx, g, store)
	}

	projection := eventstore.NewRunHistoryProjection(store, h.Limit)
	if err := projection.Rebuild(ctx); err != nil {
		return err
	}
	runs := projection.GetHistory()
	if h.JSON {
		return printValue(g, runs, true)
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(g.out(), "no runs recorded")
		return nil
	}

	t := newTable(g)
	t.AppendHeader(table.Row{"RUN", "STARTED", "STATUS", "CACHE", "FINGERPRINT", "INJECTORS", "REVALIDATION"})
	for _, r := range runs {
		status := r.Status
		if r.ErrorStage != "" {
			status += " (" + r.ErrorStage + ")"
		}
		t.AppendRow(table.Row{
			r.RunID,
			humanize.Time(r.StartedAt),
			status,
			r.CacheState,
			r.Fingerprint,
			fmt.Sprintf("%d/%d", r.Applied, r.Applied+r.Failed),
			r.Revalidation,
		})
	}
	t.Render()
	return nil
}

func (h *HistoryCmd) printEvents(ctx context.Context, g *Global, store *eventstore.SQLiteStore) error {
	events, err := store.GetByRunID(ctx, h.RunID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return derrors.ValidationFailed("run", fmt.Sprintf("no events recorded for run %s", h.RunID))
	}
	if h.JSON {
		type row struct {
			Type      string    `json:"type"`
			Timestamp time.Time `json:"timestamp"`
			Payload   string    `json:"payload"`
		}
		rows := make([]row, len(events))
		for i, e := range events {
			rows[i] = row{Type: e.Type(), Timestamp: e.Timestamp(), Payload: string(e.Payload())}
		}
		return printValue(g, rows, true)
	}

	t := newTable(g)
	t.AppendHeader(table.Row{"TIME", "EVENT", "PAYLOAD"})
	for _, e := range events {
		t.AppendRow(table.Row{e.Timestamp().Format(time.RFC3339Nano), e.Type(), string(e.Payload())})
	}
	t.Render()
	return nil
}
