package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hashmap-kz/pgreplmon/config"
	"github.com/hashmap-kz/pgreplmon/internal/collector"
	"github.com/hashmap-kz/pgreplmon/internal/health"
	"github.com/hashmap-kz/pgreplmon/internal/render"
	"github.com/hashmap-kz/pgreplmon/internal/snapshot"
)

var ErrClusterCritical = errors.New("replication health is critical")

// RunProbeOnce performs a single collection and writes the JSON health
// report to w. It returns ErrClusterCritical when the combined tier is critical.
func RunProbeOnce(ctx context.Context, cfg *config.Config, prober collector.Prober, w io.Writer) error {
	store := snapshot.NewStore()
	coll := collector.NewCollector(prober, store, &collector.Opts{
		Primary: cfg.PrimaryEndpoint(),
		Standby: cfg.StandbyEndpoint(),
	})

	snap := coll.CollectOnce(ctx)
	if snap == nil {
		return fmt.Errorf("probe interrupted: %w", ctx.Err())
	}

	scores := health.Evaluate(snap)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(render.NewHealthReport(snap, scores)); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if scores.Combined.Tier == health.TierCritical {
		return ErrClusterCritical
	}
	return nil
}
