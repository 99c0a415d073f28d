// Package snapshot indexes the canonical records of one zone file and answers
// read-only queries over them.
package snapshot

import (
	"context"
	"slices"
	"strings"

	"github.com/lanrat/zonediff/zone"
)

// handle indexes the record table of a Snapshot.
type handle = int32

type ownerType struct {
	owner string
	typ   string
}

// Source is a stream of records, such as a *zone.Parser.
type Source interface {
	Next() (zone.Record, bool)
	Err() error
}

// Snapshot is the indexed set of records parsed from one zone file. Each record
// is held once in a table sorted in canonical order; the indices hold handles
// into that table. A Snapshot is immutable and safe for concurrent use.
type Snapshot struct {
	source string
	apex   string

	entries    []entry
	duplicates int

	byKey       keyIndex
	byOwnerType map[ownerType][]handle
	byType      map[string][]handle
	byRData     map[string][]handle
}

// entry is one distinct record and the number of times it appeared.
type entry struct {
	rec zone.Record
	n   uint32
}

// Builder collects records for a Snapshot. A Builder is not safe for
// concurrent use and must not be used after Finalize.
type Builder struct {
	source     string
	apex       string
	entries    []entry
	byKey      keyIndex
	duplicates int
	soa        string
}

// NewBuilder returns a Builder for the named source. apex is used as the
// default owner of apex queries when the records contain no SOA.
func NewBuilder(source, apex string) *Builder {
	return &Builder{
		source: source,
		apex:   strings.ToLower(apex),
		byKey:  newKeyIndex(0),
	}
}

// Add indexes a record. An exact duplicate (same owner, class, type and rdata)
// collapses into the existing entry, which takes the TTL of the later record.
func (b *Builder) Add(r zone.Record) {
	sum := r.Sum64()
	if h, ok := b.byKey.find(b.entries, r, sum); ok {
		b.entries[h].rec.TTL = r.TTL
		b.entries[h].n++
		b.duplicates++
		return
	}
	b.byKey.add(sum, handle(len(b.entries)))
	b.entries = append(b.entries, entry{rec: r, n: 1})
	if r.Type == "SOA" && b.soa == "" {
		b.soa = r.Owner
	}
}

// Finalize sorts the records canonically, builds the indices and returns the
// read-only Snapshot.
func (b *Builder) Finalize() *Snapshot {
	entries := b.entries
	b.entries, b.byKey = nil, keyIndex{}
	slices.SortFunc(entries, func(x, y entry) int {
		return zone.Compare(x.rec, y.rec)
	})

	s := &Snapshot{
		source:      b.source,
		apex:        b.apex,
		entries:     entries,
		duplicates:  b.duplicates,
		byKey:       newKeyIndex(len(entries)),
		byOwnerType: make(map[ownerType][]handle),
		byType:      make(map[string][]handle),
		byRData:     make(map[string][]handle),
	}
	if b.soa != "" {
		s.apex = b.soa
	}

	for i := range s.entries {
		h := handle(i)
		r := &s.entries[i].rec
		s.byKey.add(r.Sum64(), h)
		ot := ownerType{r.Owner, r.Type}
		s.byOwnerType[ot] = append(s.byOwnerType[ot], h)
		s.byType[r.Type] = append(s.byType[r.Type], h)
		// the index keys share the record's strings
		for _, v := range r.RData {
			if list := s.byRData[v]; len(list) == 0 || list[len(list)-1] != h {
				s.byRData[v] = append(s.byRData[v], h)
			}
		}
	}
	return s
}

// Build reads every record of src into a Snapshot. Cancellation is checked
// between records; a cancelled or failed build returns no Snapshot.
func Build(ctx context.Context, src Source, source, apex string) (*Snapshot, error) {
	b := NewBuilder(source, apex)
	done := ctx.Done()
	for rec, ok := src.Next(); ok; rec, ok = src.Next() {
		select {
		case <-done:
			return nil, ctx.Err()
		default:
		}
		b.Add(rec)
	}
	if err := src.Err(); err != nil {
		return nil, err
	}
	return b.Finalize(), nil
}

// LoadFile parses a plain or gzip-compressed zone file into a Snapshot.
func LoadFile(ctx context.Context, path, origin string, opts ...zone.Option) (*Snapshot, error) {
	f, err := zone.Open(path, origin, opts...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Build(ctx, f, path, origin)
}

// Source returns the identifier of the input the Snapshot was built from.
func (s *Snapshot) Source() string {
	return s.source
}

// Apex returns the zone apex: the owner of the SOA record, or the origin the
// Snapshot was built with when there is none.
func (s *Snapshot) Apex() string {
	return s.apex
}

// Len returns the number of distinct records.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Duplicates returns how many exact duplicate records were collapsed.
func (s *Snapshot) Duplicates() int {
	return s.duplicates
}

// Occurrences returns how many times the record (ignoring TTL) appeared in the
// input, or 0 if it is not in the Snapshot.
func (s *Snapshot) Occurrences(r zone.Record) int {
	h, ok := s.byKey.find(s.entries, r, r.Sum64())
	if !ok {
		return 0
	}
	return int(s.entries[h].n)
}

// Lookup returns the record with the identity of r, carrying its TTL in this
// Snapshot.
func (s *Snapshot) Lookup(r zone.Record) (zone.Record, bool) {
	h, ok := s.byKey.find(s.entries, r, r.Sum64())
	if !ok {
		return zone.Record{}, false
	}
	return s.entries[h].rec, true
}

// Equal reports whether both snapshots hold the same records with the same TTLs.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if len(s.entries) != len(o.entries) {
		return false
	}
	for i := range s.entries {
		if !s.entries[i].rec.Equal(o.entries[i].rec) {
			return false
		}
	}
	return true
}

// keyIndex maps the identity hash of a record to its handle. Records are
// stored once in the table; colliding sums are resolved by comparing records.
type keyIndex struct {
	first map[uint64]handle
	more  map[uint64][]handle
}

func newKeyIndex(n int) keyIndex {
	return keyIndex{first: make(map[uint64]handle, n)}
}

func (k *keyIndex) add(sum uint64, h handle) {
	if _, ok := k.first[sum]; !ok {
		k.first[sum] = h
		return
	}
	if k.more == nil {
		k.more = make(map[uint64][]handle)
	}
	k.more[sum] = append(k.more[sum], h)
}

func (k *keyIndex) find(entries []entry, r zone.Record, sum uint64) (handle, bool) {
	h, ok := k.first[sum]
	if !ok {
		return 0, false
	}
	if entries[h].rec.SameKey(r) {
		return h, true
	}
	for _, h := range k.more[sum] {
		if entries[h].rec.SameKey(r) {
			return h, true
		}
	}
	return 0, false
}
