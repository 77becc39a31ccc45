package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/five82/fleetdash/internal/cache"
	"github.com/five82/fleetdash/internal/entity"
)

// PrintSummary opens one collection, writes its aggregate counts to w and closes
// it again. The collection is seeded exactly as the TUI would seed it, so an
// unreachable API reports the fallback snapshot or built-in defaults.
func PrintSummary(ctx context.Context, rt *Runtime, kind entity.Kind, scope string, w io.Writer) error {
	ws, err := rt.Manager.Open(ctx, kind, scope)
	if err != nil {
		return fmt.Errorf("open %s: %w", kind, err)
	}
	defer rt.Manager.Close(kind, scope)

	sum := ws.Summary()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "collection\t%s\n", ws.Key())
	fmt.Fprintf(tw, "source\t%s\n", ws.Source())
	if status := ws.Status(); status.LastRefreshError != nil {
		fmt.Fprintf(tw, "remote\tunreachable (%v)\n", status.LastRefreshError)
	}
	fmt.Fprintf(tw, "total\t%d\n", sum.Total)
	fmt.Fprintf(tw, "overdue\t%d\n", sum.Overdue)
	fmt.Fprintf(tw, "critical\t%d\n", sum.Critical)
	for _, status := range entity.Statuses() {
		if n := sum.ByStatus[status]; n > 0 {
			fmt.Fprintf(tw, "status %s\t%d\n", strings.ToLower(status.Label()), n)
		}
	}
	for _, category := range sum.Categories() {
		fmt.Fprintf(tw, "category %s\t%d\n", category, sum.ByCategory[category])
	}
	return tw.Flush()
}

// ClearSnapshot removes the fallback snapshot of one collection.
func ClearSnapshot(ctx context.Context, rt *Runtime, kind entity.Kind, scope string) error {
	key := cache.KeyFor(kind, scope)
	if err := rt.Snapshots.Remove(ctx, key.String()); err != nil {
		return fmt.Errorf("clear snapshot %s: %w", key, err)
	}
	rt.Logger.Printf("cleared fallback snapshot %s", key)
	return nil
}
