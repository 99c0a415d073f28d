package main

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lanrat/zonediff/batch"
	"github.com/lanrat/zonediff/diff"
	"github.com/lanrat/zonediff/save"
	"github.com/lanrat/zonediff/status"
)

// warnShifts logs the record types whose count moved past the threshold, the
// usual sign of a truncated transfer or a broken export.
func warnShifts(name string, shifts []diff.Shift) {
	for _, s := range shifts {
		log.Warn().Str("file", name).Str("type", s.Type).Int("old", s.Old).Int("new", s.New).
			Float64("change", s.Change).Msg("record count shift")
	}
}

func newDiffCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Show the records added, removed and changed between two zone files",
		Long: `Diff parses two snapshots of a zone and reports the records only in NEW
(+), the records only in OLD (-) and the records whose TTL changed (~), with
per-type counts and the owner names that appeared or disappeared.

With --sorted both files are diffed as streams in bounded memory; files not in
canonical owner order fall back to the indexed diff.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := batch.Pair{Name: filepath.Base(args[1]), Old: args[0], New: args[1]}
			res, err := batch.DiffPair(cmd.Context(), p, a.options(nil))
			if err != nil {
				return err
			}
			report := save.NewDiffReport(p.Old, p.New, res, a.cfg.ShiftThreshold)
			warnShifts(p.Name, report.Shifts)
			log.Info().Int("added", len(res.Added)).Int("removed", len(res.Removed)).
				Int("ttl_changed", len(res.TTLChanged)).Msg("diff done")
			return save.EncodeDiff(cmd.OutOrStdout(), report, a.cfg.Format)
		},
	}
}

func newCompareDirsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compare-dirs OLDDIR NEWDIR",
		Short: "Diff every zone file of two directories",
		Long: `Compare-dirs pairs the zone files of OLDDIR and NEWDIR by relative path and
diffs the pairs in parallel. A file found in one directory only is diffed
against an empty zone. Files that fail to parse are logged and skipped
unless --fail-fast is set.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pairs, err := batch.MatchFiles(args[0], args[1], a.cfg.Extensions)
			if err != nil {
				return err
			}
			for _, p := range pairs {
				switch {
				case p.Old == "":
					log.Warn().Str("file", p.Name).Str("dir", args[1]).Msg("zone file only in new directory")
				case p.New == "":
					log.Warn().Str("file", p.Name).Str("dir", args[0]).Msg("zone file only in old directory")
				}
			}

			tracker := status.NewTracker()
			if a.cfg.StatusPort > 0 {
				tracker.Serve(ctx, a.cfg.StatusPort)
			}
			results, err := batch.DiffPairs(ctx, pairs, a.options(tracker))
			if err != nil {
				return err
			}

			reports := make([]save.DiffReport, 0, len(results))
			for _, r := range results {
				if r.Err != nil {
					continue
				}
				report := save.NewDiffReport(r.Old, r.New, r.Result, a.cfg.ShiftThreshold)
				warnShifts(r.Name, report.Shifts)
				reports = append(reports, report)
			}

			s := tracker.GetStatus()
			log.Info().Uint32("pairs", s.TotalFiles).Uint32("completed", s.Completed).Uint32("failed", s.Failed).
				Str("runtime", s.Runtime).Msg("compare done")
			if err := save.EncodeValue(cmd.OutOrStdout(), reports, a.cfg.Format); err != nil {
				return err
			}
			if s.Failed > 0 && len(reports) == 0 {
				return errors.Errorf("all %d zone file pairs failed", s.Failed)
			}
			return nil
		},
	}
}
