package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lanrat/zonediff/batch"
	"github.com/lanrat/zonediff/save"
	"github.com/lanrat/zonediff/snapshot"
)

// loadSnapshots parses the named zone files in parallel. Files that fail are
// logged and skipped unless fail_fast is set or nothing could be parsed.
func (a *app) loadSnapshots(ctx context.Context, filenames []string) ([]*snapshot.Snapshot, error) {
	log.Info().Int("files", len(filenames)).Msg("parsing zonefiles")
	results, err := batch.LoadFiles(ctx, filenames, a.options(nil))
	if err != nil {
		return nil, err
	}

	snapshots := make([]*snapshot.Snapshot, 0, len(results))
	var failed, records int
	for _, r := range results {
		if r.Err != nil {
			failed++
			continue
		}
		records += r.Snapshot.Len()
		snapshots = append(snapshots, r.Snapshot)
	}
	if failed > 0 && len(snapshots) == 0 {
		return nil, errors.Errorf("%d of %d zonefiles failed to parse", failed, len(filenames))
	}
	log.Info().Int("files", len(snapshots)).Int("failed", failed).Int("records", records).Msg("zonefile parsing done")
	return snapshots, nil
}

// loadSnapshot parses a single zone file.
func (a *app) loadSnapshot(ctx context.Context, filename string) (*snapshot.Snapshot, error) {
	snapshots, err := a.loadSnapshots(ctx, []string{filename})
	if err != nil {
		return nil, err
	}
	return snapshots[0], nil
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export ZONEFILE OUTFILE",
		Short: "Write a zone file in canonical order and form",
		Long: `Export parses ZONEFILE and writes its distinct records to OUTFILE in
canonical order, one fully qualified record per line. OUTFILE is gzip
compressed when it ends in .gz. Parsing the export again yields an equal
snapshot.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadSnapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := save.WriteSnapshot(args[1], s); err != nil {
				return errors.Wrapf(err, "export %s", args[1])
			}
			if s.Len() == 0 {
				log.Warn().Str("file", args[1]).Msg("no records, nothing written")
				return nil
			}
			log.Info().Str("file", args[1]).Int("records", s.Len()).Msg("exported")
			return nil
		},
	}
}
