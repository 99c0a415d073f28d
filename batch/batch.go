// Package batch parses and diffs many zone files in parallel. A failure in one
// file never stops the others: every file or pair gets its own result with its
// own error, and the caller decides what to do with failures.
package batch

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/lanrat/zonediff/diff"
	"github.com/lanrat/zonediff/snapshot"
	"github.com/lanrat/zonediff/status"
	"github.com/lanrat/zonediff/zone"
)

// Options control a batch run.
type Options struct {
	// Origin of relative names. When empty, the origin of each file is
	// derived from its name, for example "com." for com.txt.gz.
	Origin     string
	Parallel   int
	InheritTTL bool
	// Sorted diffs pairs by merge-join over the file streams, falling back to
	// indexed snapshots for files not in canonical owner order.
	Sorted bool
	// FailFast cancels the remaining work after the first failed file.
	FailFast bool
	// Extensions are the zone file suffixes, used to derive origins.
	Extensions []string
	Tracker    *status.Tracker
}

func (o Options) parallel() int {
	if o.Parallel < 1 {
		return 1
	}
	return o.Parallel
}

func (o Options) parserOptions() []zone.Option {
	var opts []zone.Option
	if o.InheritTTL {
		opts = append(opts, zone.WithInheritTTL())
	}
	return opts
}

// origin returns the origin used for path.
func (o Options) origin(path string) string {
	if o.Origin != "" {
		return o.Origin
	}
	return ZoneName(path, o.Extensions)
}

// ZoneName derives a zone name from a file name by removing the directory and
// the longest matching extension: "zones/com.txt.gz" becomes "com.". The
// file "root.zone" names the root zone.
func ZoneName(path string, exts []string) string {
	name := filepath.Base(path)
	longest := ""
	for _, ext := range exts {
		if strings.HasSuffix(name, ext) && len(ext) > len(longest) {
			longest = ext
		}
	}
	name = strings.TrimSuffix(name, longest)
	if name == "" || name == "root" || name == "." {
		return "."
	}
	return strings.ToLower(strings.TrimSuffix(name, ".")) + "."
}

// FileResult is the outcome of parsing one file.
type FileResult struct {
	Path     string
	Snapshot *snapshot.Snapshot
	Err      error
}

// load parses one file, reporting progress to the tracker.
func load(ctx context.Context, path string, opts Options) (*snapshot.Snapshot, error) {
	opts.Tracker.Start(path)
	start := time.Now()
	s, err := snapshot.LoadFile(ctx, path, opts.origin(path), opts.parserOptions()...)
	if err != nil {
		opts.Tracker.Fail(path, err.Error())
		log.Error().Err(err).Str("file", path).Msg("parse failed")
		return nil, err
	}
	opts.Tracker.Complete(path, s.Len())
	log.Debug().Str("file", path).Int("records", s.Len()).Int("duplicates", s.Duplicates()).
		Dur("took", time.Since(start)).Msg("parsed")
	if s.Duplicates() > 0 {
		log.Warn().Str("file", path).Int("duplicates", s.Duplicates()).Msg("duplicate records collapsed")
	}
	return s, nil
}

// LoadFiles parses paths with a bounded worker pool. Results are in the order
// of paths. The returned error is only set when ctx was cancelled or, with
// FailFast, a file failed; per-file errors are in the results.
func LoadFiles(ctx context.Context, paths []string, opts Options) ([]FileResult, error) {
	results := make([]FileResult, len(paths))
	opts.Tracker.AddFiles(len(paths))
	err := run(ctx, len(paths), opts, func(ctx context.Context, i int) error {
		s, err := load(ctx, paths[i], opts)
		results[i] = FileResult{Path: paths[i], Snapshot: s, Err: err}
		return err
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// PairResult is the outcome of diffing one pair of files.
type PairResult struct {
	Pair
	Result *diff.Result
	Err    error
}

// DiffPairs diffs every pair with a bounded worker pool. A pair with only one
// side is diffed against an empty zone. Results are in the order of pairs; the
// returned error is set as for LoadFiles.
func DiffPairs(ctx context.Context, pairs []Pair, opts Options) ([]PairResult, error) {
	results := make([]PairResult, len(pairs))
	opts.Tracker.AddFiles(len(pairs))
	err := run(ctx, len(pairs), opts, func(ctx context.Context, i int) error {
		p := pairs[i]
		opts.Tracker.Start(p.Name)
		res, err := DiffPair(ctx, p, opts)
		results[i] = PairResult{Pair: p, Result: res, Err: err}
		if err != nil {
			opts.Tracker.Fail(p.Name, err.Error())
			log.Error().Err(err).Str("pair", p.Name).Msg("diff failed")
			return err
		}
		var records int
		for _, c := range res.PerType {
			records += c.Old + c.New
		}
		opts.Tracker.Complete(p.Name, records)
		log.Debug().Str("pair", p.Name).Int("added", len(res.Added)).Int("removed", len(res.Removed)).
			Int("ttl_changed", len(res.TTLChanged)).Msg("diffed")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// DiffPair diffs the two files of p.
func DiffPair(ctx context.Context, p Pair, opts Options) (*diff.Result, error) {
	if opts.Sorted && p.Old != "" && p.New != "" {
		res, err := diffStreams(ctx, p, opts)
		if !errors.Is(err, diff.ErrUnsorted) {
			return res, err
		}
		log.Warn().Err(err).Str("pair", p.Name).Msg("input not sorted, falling back to indexed diff")
	}

	old, err := loadSide(ctx, p.Old, p.New, opts)
	if err != nil {
		return nil, err
	}
	new, err := loadSide(ctx, p.New, p.Old, opts)
	if err != nil {
		return nil, err
	}
	return diff.Snapshots(ctx, old, new)
}

// loadSide loads path, or returns an empty snapshot when the pair has no file
// on this side.
func loadSide(ctx context.Context, path, other string, opts Options) (*snapshot.Snapshot, error) {
	if path == "" {
		return snapshot.NewBuilder("", opts.origin(other)).Finalize(), nil
	}
	return snapshot.LoadFile(ctx, path, opts.origin(path), opts.parserOptions()...)
}

func diffStreams(ctx context.Context, p Pair, opts Options) (*diff.Result, error) {
	old, err := zone.Open(p.Old, opts.origin(p.Old), opts.parserOptions()...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = old.Close() }()
	new, err := zone.Open(p.New, opts.origin(p.New), opts.parserOptions()...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = new.Close() }()
	return diff.Streams(ctx, old, new)
}

// run calls fn for every index in 0..n-1 on opts.Parallel workers. Errors
// returned by fn only stop the run with FailFast.
func run(ctx context.Context, n int, opts Options, fn func(context.Context, int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan int)

	g.Go(func() error {
		defer close(jobs)
		for i := 0; i < n; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	// start workers
	for w := 0; w < opts.parallel(); w++ {
		g.Go(func() error { return worker(ctx, jobs, opts.FailFast, fn) })
	}
	return g.Wait()
}

func worker(ctx context.Context, c chan int, failFast bool, fn func(context.Context, int) error) error {
	for {
		i, more := <-c
		if !more {
			return nil
		}
		if err := fn(ctx, i); err != nil {
			if failFast || ctx.Err() != nil {
				return err
			}
		}
	}
}
