// Package diff computes the difference between two snapshots of a zone.
//
// Records are compared by their TTL-insensitive identity (owner, class, type and
// rdata). Records present in both snapshots with different TTLs are reported as
// TTL changes rather than as a removal and an addition. All result slices are
// in canonical record order, so the output of a diff is deterministic.
package diff

import (
	"cmp"
	"context"
	"iter"
	"math"
	"slices"

	"github.com/lanrat/zonediff/snapshot"
	"github.com/lanrat/zonediff/zone"
)

// TTLChange is a record present in both snapshots whose TTL changed.
type TTLChange struct {
	Owner string   `json:"owner" yaml:"owner"`
	Class string   `json:"class" yaml:"class"`
	Type  string   `json:"type" yaml:"type"`
	RData []string `json:"rdata" yaml:"rdata"`
	Old   uint32   `json:"old_ttl" yaml:"old_ttl"`
	New   uint32   `json:"new_ttl" yaml:"new_ttl"`
}

// Counts is the number of distinct records of one type in each snapshot.
type Counts struct {
	Old int `json:"old" yaml:"old"`
	New int `json:"new" yaml:"new"`
}

// Result is the difference from an old snapshot to a new one.
type Result struct {
	Added      []zone.Record
	Removed    []zone.Record
	TTLChanged []TTLChange
	// PerType tallies each snapshot by type, independent of the changes.
	PerType map[string]Counts
	// AddedOwners and RemovedOwners are the owner names present in only the
	// new or only the old snapshot.
	AddedOwners   []string
	RemovedOwners []string
}

func newResult() *Result {
	return &Result{PerType: make(map[string]Counts)}
}

// Empty reports whether the snapshots hold the same records with the same TTLs.
func (r *Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.TTLChanged) == 0
}

// Shift is a record type whose count changed sharply between the snapshots.
type Shift struct {
	Type   string  `json:"type" yaml:"type"`
	Old    int     `json:"old" yaml:"old"`
	New    int     `json:"new" yaml:"new"`
	Change float64 `json:"change" yaml:"change"`
}

// Shifts returns the types whose count changed by more than threshold relative
// to the old count, sorted by type. A sudden drop of NS records usually means
// the new snapshot is a truncated transfer rather than a real change.
func (r *Result) Shifts(threshold float64) []Shift {
	var out []Shift
	for t, c := range r.PerType {
		if c.Old == 0 {
			continue
		}
		change := float64(c.New-c.Old) / float64(c.Old)
		if math.Abs(change) > threshold {
			out = append(out, Shift{Type: t, Old: c.Old, New: c.New, Change: change})
		}
	}
	slices.SortFunc(out, func(a, b Shift) int {
		return cmp.Compare(a.Type, b.Type)
	})
	return out
}

func ttlChange(old, new zone.Record) TTLChange {
	return TTLChange{
		Owner: old.Owner,
		Class: old.Class,
		Type:  old.Type,
		RData: old.RData,
		Old:   old.TTL,
		New:   new.TTL,
	}
}

// Snapshots diffs two indexed snapshots by set difference over record
// identities. Cancellation is checked between records; a cancelled diff
// returns no Result.
func Snapshots(ctx context.Context, old, new *snapshot.Snapshot) (*Result, error) {
	res := newResult()
	done := ctx.Done()

	for rec := range old.Records() {
		select {
		case <-done:
			return nil, ctx.Err()
		default:
		}
		cur, ok := new.Lookup(rec)
		if !ok {
			res.Removed = append(res.Removed, rec)
			continue
		}
		if cur.TTL != rec.TTL {
			res.TTLChanged = append(res.TTLChanged, ttlChange(rec, cur))
		}
	}
	for rec := range new.Records() {
		select {
		case <-done:
			return nil, ctx.Err()
		default:
		}
		if _, ok := old.Lookup(rec); !ok {
			res.Added = append(res.Added, rec)
		}
	}

	for t, n := range old.RecordTypeHistogram() {
		res.PerType[t] = Counts{Old: n}
	}
	for t, n := range new.RecordTypeHistogram() {
		c := res.PerType[t]
		c.New = n
		res.PerType[t] = c
	}

	res.RemovedOwners, res.AddedOwners = ownerChanges(old.Owners(), new.Owners())
	return res, nil
}

// ownerChanges walks two canonically sorted owner sequences and returns the
// owners only in old and only in new.
func ownerChanges(old, new iter.Seq[string]) (removed, added []string) {
	nextOld, stopOld := iter.Pull(old)
	defer stopOld()
	nextNew, stopNew := iter.Pull(new)
	defer stopNew()

	o, okOld := nextOld()
	n, okNew := nextNew()
	for okOld || okNew {
		switch {
		case !okNew:
			removed = append(removed, o)
			o, okOld = nextOld()
		case !okOld:
			added = append(added, n)
			n, okNew = nextNew()
		default:
			switch c := zone.CompareNames(o, n); {
			case c < 0:
				removed = append(removed, o)
				o, okOld = nextOld()
			case c > 0:
				added = append(added, n)
				n, okNew = nextNew()
			default:
				o, okOld = nextOld()
				n, okNew = nextNew()
			}
		}
	}
	return removed, added
}
