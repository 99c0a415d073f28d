package snapshot

import (
	"fmt"
	"iter"
	"maps"
	"net/netip"
	"slices"
	"strings"

	"github.com/lanrat/zonediff/zone"
	"github.com/miekg/dns"
)

// The queries below only read the Snapshot and may be called concurrently.
// Sequences are evaluated lazily when ranged over and yield in canonical order.

func (s *Snapshot) seq(handles []handle) iter.Seq[zone.Record] {
	return func(yield func(zone.Record) bool) {
		for _, h := range handles {
			if !yield(s.entries[h].rec) {
				return
			}
		}
	}
}

// Records yields every record of the Snapshot.
func (s *Snapshot) Records() iter.Seq[zone.Record] {
	return func(yield func(zone.Record) bool) {
		for i := range s.entries {
			if !yield(s.entries[i].rec) {
				return
			}
		}
	}
}

// ByType yields all records of type t.
func (s *Snapshot) ByType(t string) iter.Seq[zone.Record] {
	return s.seq(s.byType[strings.ToUpper(t)])
}

// ByOwnerAndType yields the records of type t owned by owner.
func (s *Snapshot) ByOwnerAndType(owner, t string) iter.Seq[zone.Record] {
	return s.seq(s.byOwnerType[ownerType{dns.CanonicalName(owner), strings.ToUpper(t)}])
}

// NameServersOf yields the targets of the NS records of owner, or of the apex
// when owner is empty.
func (s *Snapshot) NameServersOf(owner string) iter.Seq[string] {
	if owner == "" {
		owner = s.apex
	}
	records := s.ByOwnerAndType(owner, "NS")
	return func(yield func(string) bool) {
		for r := range records {
			if !yield(r.RData[0]) {
				return
			}
		}
	}
}

// RecordsServedBy yields all records that carry the name server ns in their
// rdata, such as the delegations to it.
func (s *Snapshot) RecordsServedBy(ns string) iter.Seq[zone.Record] {
	return s.seq(s.byRData[dns.CanonicalName(ns)])
}

// RecordsWithValue yields all records with an rdata field equal to v.
// Addresses are compared in canonical form, names and hex digests regardless
// of case, and a relative name also matches its fully qualified form. Use it
// to find the records resolving to an address.
func (s *Snapshot) RecordsWithValue(v string) iter.Seq[zone.Record] {
	return s.seq(s.valueHandles(v))
}

// valueHandles looks v up in the forms an rdata field is stored in: names are
// lower-cased and fully qualified, digests upper-cased.
func (s *Snapshot) valueHandles(v string) []handle {
	if addr, err := netip.ParseAddr(v); err == nil {
		return s.byRData[addr.String()]
	}
	if handles, ok := s.byRData[v]; ok {
		return handles
	}
	for _, form := range [...]string{dns.CanonicalName(v), strings.ToLower(v), strings.ToUpper(v)} {
		if handles, ok := s.byRData[form]; ok {
			return handles
		}
	}
	return nil
}

// IPAddresses yields the distinct addresses of all A and AAAA records in
// address order, IPv4 first.
func (s *Snapshot) IPAddresses() iter.Seq[string] {
	return func(yield func(string) bool) {
		seen := make(map[netip.Addr]struct{})
		var addrs []netip.Addr
		for _, t := range []string{"A", "AAAA"} {
			for _, h := range s.byType[t] {
				addr, err := netip.ParseAddr(s.entries[h].rec.RData[0])
				if err != nil {
					continue
				}
				if _, ok := seen[addr]; !ok {
					seen[addr] = struct{}{}
					addrs = append(addrs, addr)
				}
			}
		}
		slices.SortFunc(addrs, netip.Addr.Compare)
		for _, a := range addrs {
			if !yield(a.String()) {
				return
			}
		}
	}
}

// RecordTypeHistogram returns the number of records of each type.
func (s *Snapshot) RecordTypeHistogram() map[string]int {
	hist := make(map[string]int, len(s.byType))
	for t, handles := range s.byType {
		hist[t] = len(handles)
	}
	return hist
}

// TTLHistogram returns the number of records using each TTL.
func (s *Snapshot) TTLHistogram() map[uint32]int {
	hist := make(map[uint32]int)
	for i := range s.entries {
		hist[s.entries[i].rec.TTL]++
	}
	return hist
}

// Types yields the record types present, sorted.
func (s *Snapshot) Types() iter.Seq[string] {
	return slices.Values(slices.Sorted(maps.Keys(s.byType)))
}

// Owners yields each distinct owner name once, in canonical order.
func (s *Snapshot) Owners() iter.Seq[string] {
	return func(yield func(string) bool) {
		last := ""
		for i := range s.entries {
			owner := s.entries[i].rec.Owner
			if i > 0 && owner == last {
				continue
			}
			last = owner
			if !yield(owner) {
				return
			}
		}
	}
}

// NameServers yields each distinct NS target of the zone once, in canonical
// name order.
func (s *Snapshot) NameServers() iter.Seq[string] {
	return func(yield func(string) bool) {
		seen := make(map[string]struct{})
		var names []string
		for _, h := range s.byType["NS"] {
			ns := s.entries[h].rec.RData[0]
			if _, ok := seen[ns]; !ok {
				seen[ns] = struct{}{}
				names = append(names, ns)
			}
		}
		slices.SortFunc(names, zone.CompareNames)
		for _, ns := range names {
			if !yield(ns) {
				return
			}
		}
	}
}

// Filter selects records. Empty fields match everything.
type Filter struct {
	Type  string
	Owner string
	// Value matches records with an rdata field equal to it, such as a name
	// server or an address.
	Value string
}

// Select yields the records matching every non-empty field of f, using the
// narrowest index available.
func (s *Snapshot) Select(f Filter) iter.Seq[zone.Record] {
	typ := strings.ToUpper(f.Type)
	var owner string
	if f.Owner != "" {
		owner = dns.CanonicalName(f.Owner)
	}

	var base []handle
	all := false
	checkValue := f.Value != ""
	switch {
	case owner != "" && typ != "":
		base = s.byOwnerType[ownerType{owner, typ}]
	case checkValue:
		base = s.valueHandles(f.Value)
		checkValue = false
	case typ != "":
		base = s.byType[typ]
	default:
		all = true
	}
	var values map[handle]struct{}
	if checkValue {
		values = make(map[handle]struct{})
		for _, h := range s.valueHandles(f.Value) {
			values[h] = struct{}{}
		}
	}

	n := len(base)
	if all {
		n = len(s.entries)
	}
	return func(yield func(zone.Record) bool) {
		for i := 0; i < n; i++ {
			h := handle(i)
			if !all {
				h = base[i]
			}
			r := &s.entries[h].rec
			if typ != "" && r.Type != typ {
				continue
			}
			if owner != "" && r.Owner != owner {
				continue
			}
			if checkValue {
				if _, ok := values[h]; !ok {
					continue
				}
			}
			if !yield(*r) {
				return
			}
		}
	}
}

// KeyInfo describes a DNSKEY record.
type KeyInfo struct {
	Owner     string `json:"owner" yaml:"owner"`
	Flags     uint16 `json:"flags" yaml:"flags"`
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	KeyTag    uint16 `json:"key_tag" yaml:"key_tag"`
}

// DNSKeys lists the DNSKEY records with their key tags, in canonical order.
// Signatures are not validated.
func (s *Snapshot) DNSKeys() ([]KeyInfo, error) {
	var keys []KeyInfo
	for r := range s.ByType("DNSKEY") {
		rr, err := r.RR()
		if err != nil {
			return nil, err
		}
		key, ok := rr.(*dns.DNSKEY)
		if !ok {
			return nil, fmt.Errorf("%s: not a DNSKEY", r.Owner)
		}
		alg, ok := dns.AlgorithmToString[key.Algorithm]
		if !ok {
			alg = fmt.Sprintf("%d", key.Algorithm)
		}
		keys = append(keys, KeyInfo{
			Owner:     r.Owner,
			Flags:     key.Flags,
			Algorithm: alg,
			KeyTag:    key.KeyTag(),
		})
	}
	return keys, nil
}
