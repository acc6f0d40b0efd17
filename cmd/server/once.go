package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/beststop/parking-server/internal/config"
	"github.com/beststop/parking-server/internal/cycler"
	"github.com/beststop/parking-server/internal/occupancy"
	"github.com/beststop/parking-server/internal/recorder"
	"github.com/beststop/parking-server/pkg/types"
)

// runOnce analyses the first source and prints the tally.
func runOnce(ctx context.Context, cfg *config.Config, out io.Writer, asJSON bool) error {
	discard := occupancy.PublisherFunc(func(context.Context, types.AggregateResult) error { return nil })

	var opts []cycler.Option
	if cfg.Recorder.Dir != "" {
		rec, err := recorder.New(cfg.Recorder.Dir, cfg.Recorder.Keep)
		if err != nil {
			return fmt.Errorf("create recorder: %w", err)
		}
		defer rec.Close()
		opts = append(opts, cycler.WithFrameObserver(rec))
	}

	cy, err := newCycler(ctx, cfg, discard, opts...)
	if err != nil {
		return err
	}
	result := cy.RunOnce(ctx)

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		printResult(out, result)
	}

	if result.Failed() {
		return fmt.Errorf("cycle failed: %s", result.Error)
	}
	return nil
}

func printResult(out io.Writer, r types.AggregateResult) {
	fmt.Fprintf(out, "Imagem:          %s\n", r.Source)
	fmt.Fprintf(out, "Total de vagas:  %d\n", r.Total)
	fmt.Fprintf(out, "Vagas livres:    %d (%.2f%%)\n", r.FreeCount, r.FreePct)
	fmt.Fprintf(out, "Vagas ocupadas:  %d (%.2f%%)\n", r.OccupiedCount, r.OccupiedPct)
	if r.UnknownCount > 0 {
		fmt.Fprintf(out, "Desconhecidas:   %d\n", r.UnknownCount)
	}
	if r.Failed() {
		fmt.Fprintf(out, "Erro:            %s\n", r.Error)
	}
}
