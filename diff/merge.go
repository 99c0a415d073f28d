package diff

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/lanrat/zonediff/snapshot"
	"github.com/lanrat/zonediff/zone"
)

// ErrUnsorted is returned by Streams when an input is not grouped by owner in
// canonical order.
var ErrUnsorted = errors.New("records not in canonical owner order")

// group is every record of one owner name, sorted and without duplicates.
type group struct {
	owner   string
	records []zone.Record
}

// groupReader reads a record stream one owner at a time, so only the records
// of the current owner are held in memory.
type groupReader struct {
	src     snapshot.Source
	name    string
	pending zone.Record
	havePen bool
	last    string
	started bool
	err     error
}

func newGroupReader(src snapshot.Source, name string) *groupReader {
	return &groupReader{src: src, name: name}
}

// next returns the next owner group. It returns false at the end of the stream
// or on error; check err.
func (g *groupReader) next(ctx context.Context) (group, bool) {
	if g.err != nil {
		return group{}, false
	}
	if !g.havePen {
		rec, ok := g.src.Next()
		if !ok {
			g.err = g.src.Err()
			return group{}, false
		}
		g.pending, g.havePen = rec, true
	}

	owner := g.pending.Owner
	if g.started && zone.CompareNames(g.last, owner) >= 0 {
		g.err = fmt.Errorf("%s: %w: %s after %s", g.name, ErrUnsorted, owner, g.last)
		return group{}, false
	}
	g.started, g.last = true, owner

	grp := group{owner: owner, records: []zone.Record{g.pending}}
	g.havePen = false
	done := ctx.Done()
	for {
		select {
		case <-done:
			g.err = ctx.Err()
			return group{}, false
		default:
		}
		rec, ok := g.src.Next()
		if !ok {
			if err := g.src.Err(); err != nil {
				g.err = err
				return group{}, false
			}
			break
		}
		if rec.Owner != owner {
			g.pending, g.havePen = rec, true
			break
		}
		grp.records = append(grp.records, rec)
	}

	grp.records = collapse(grp.records)
	return grp, true
}

// collapse sorts the records of one owner and merges exact duplicates,
// keeping the TTL of the record seen last.
func collapse(records []zone.Record) []zone.Record {
	slices.SortStableFunc(records, zone.Compare)
	out := records[:0]
	for _, r := range records {
		if n := len(out); n > 0 && zone.Compare(out[n-1], r) == 0 {
			out[n-1].TTL = r.TTL
			continue
		}
		out = append(out, r)
	}
	return out
}

// Streams diffs two record streams by walking them in lockstep. Both streams
// must list each owner's records contiguously with owners in canonical order,
// as canonical zone transfer output does; the order of records within an
// owner does not matter. Peak memory is bounded by the largest owner rather
// than the zone. ErrUnsorted is returned for out-of-order input, in which case
// the caller can fall back to Snapshots.
func Streams(ctx context.Context, old, new snapshot.Source) (*Result, error) {
	res := newResult()
	or := newGroupReader(old, "old")
	nr := newGroupReader(new, "new")

	og, okOld := or.next(ctx)
	ng, okNew := nr.next(ctx)
	// either side failing ends the join; the other is not drained
	for (okOld || okNew) && or.err == nil && nr.err == nil {
		switch {
		case !okNew:
			res.removeGroup(og)
			og, okOld = or.next(ctx)
		case !okOld:
			res.addGroup(ng)
			ng, okNew = nr.next(ctx)
		default:
			switch c := zone.CompareNames(og.owner, ng.owner); {
			case c < 0:
				res.removeGroup(og)
				og, okOld = or.next(ctx)
			case c > 0:
				res.addGroup(ng)
				ng, okNew = nr.next(ctx)
			default:
				res.mergeGroups(og, ng)
				og, okOld = or.next(ctx)
				ng, okNew = nr.next(ctx)
			}
		}
	}
	if or.err != nil {
		return nil, or.err
	}
	if nr.err != nil {
		return nil, nr.err
	}
	return res, nil
}

func (r *Result) countOld(rec zone.Record) {
	c := r.PerType[rec.Type]
	c.Old++
	r.PerType[rec.Type] = c
}

func (r *Result) countNew(rec zone.Record) {
	c := r.PerType[rec.Type]
	c.New++
	r.PerType[rec.Type] = c
}

func (r *Result) removeGroup(g group) {
	r.RemovedOwners = append(r.RemovedOwners, g.owner)
	for _, rec := range g.records {
		r.countOld(rec)
		r.Removed = append(r.Removed, rec)
	}
}

func (r *Result) addGroup(g group) {
	r.AddedOwners = append(r.AddedOwners, g.owner)
	for _, rec := range g.records {
		r.countNew(rec)
		r.Added = append(r.Added, rec)
	}
}

// mergeGroups diffs the sorted records of one owner present in both streams.
func (r *Result) mergeGroups(old, new group) {
	for _, rec := range old.records {
		r.countOld(rec)
	}
	for _, rec := range new.records {
		r.countNew(rec)
	}
	i, j := 0, 0
	for i < len(old.records) || j < len(new.records) {
		switch {
		case j == len(new.records):
			r.Removed = append(r.Removed, old.records[i])
			i++
		case i == len(old.records):
			r.Added = append(r.Added, new.records[j])
			j++
		default:
			o, n := old.records[i], new.records[j]
			switch c := zone.Compare(o, n); {
			case c < 0:
				r.Removed = append(r.Removed, o)
				i++
			case c > 0:
				r.Added = append(r.Added, n)
				j++
			default:
				if o.TTL != n.TTL {
					r.TTLChanged = append(r.TTLChanged, ttlChange(o, n))
				}
				i++
				j++
			}
		}
	}
}
