// Package zone tokenizes and normalizes DNS zone master files into canonical
// resource records.
package zone

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/miekg/dns"
)

// Record is one canonical resource record. Owner and domain-name rdata fields are
// fully qualified and lower-cased, Type and Class are upper-cased.
//
// A Record is a value: it must not be modified after it was returned by a Parser.
type Record struct {
	Owner string   `json:"owner" yaml:"owner"`
	TTL   uint32   `json:"ttl" yaml:"ttl"`
	Class string   `json:"class" yaml:"class"`
	Type  string   `json:"type" yaml:"type"`
	RData []string `json:"rdata" yaml:"rdata"`
	// Line is the line the record started on in its source, 0 when unknown.
	// It is not part of the record's identity.
	Line int `json:"line,omitempty" yaml:"line,omitempty"`
}

// SameKey reports whether r and o have the same identity: owner, class, type
// and rdata. The TTL is ignored.
func (r Record) SameKey(o Record) bool {
	return r.Owner == o.Owner && r.Type == o.Type && r.Class == o.Class && slices.Equal(r.RData, o.RData)
}

// Sum64 hashes the identity of r. Records for which SameKey is true have the
// same sum.
func (r Record) Sum64() uint64 {
	d := xxhash.New()
	for _, s := range [...]string{r.Owner, r.Class, r.Type} {
		_, _ = d.WriteString(s)
		_, _ = d.Write(sep)
	}
	for _, s := range r.RData {
		_, _ = d.WriteString(s)
		_, _ = d.Write(sep)
	}
	return d.Sum64()
}

var sep = []byte{0}

// Known reports whether the record type is a mnemonic known to the dns library.
func (r Record) Known() bool {
	return KnownType(r.Type)
}

// Equal reports whether r and o are the same record including the TTL.
func (r Record) Equal(o Record) bool {
	return r.TTL == o.TTL && r.SameKey(o)
}

// String returns the record in canonical master-file form. Parsing the output
// yields an equal record.
func (r Record) String() string {
	var b strings.Builder
	b.WriteString(r.Owner)
	b.WriteByte('\t')
	b.WriteString(strconv.FormatUint(uint64(r.TTL), 10))
	b.WriteByte('\t')
	b.WriteString(r.Class)
	b.WriteByte('\t')
	b.WriteString(r.Type)
	if len(r.RData) > 0 {
		b.WriteByte('\t')
		b.WriteString(strings.Join(r.RData, " "))
	}
	return b.String()
}

// RR converts the record to a typed dns.RR. Types unknown to the dns library
// cannot be converted.
func (r Record) RR() (dns.RR, error) {
	rr, err := dns.NewRR(r.String())
	if err != nil {
		return nil, fmt.Errorf("convert %s %s: %w", r.Owner, r.Type, err)
	}
	return rr, nil
}

// FromRR converts a dns.RR, for example one received in a zone transfer
// envelope, to a canonical Record.
func FromRR(rr dns.RR) (Record, error) {
	p := NewParser(strings.NewReader(RRString(rr)), ".", "rr")
	rec, ok := p.Next()
	if !ok {
		if err := p.Err(); err != nil {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("convert %s: no record", rr.Header().Name)
	}
	rec.Line = 0
	return rec, nil
}

// RRString prints IPv4 IPs in AAAA records in IPv6 notation
// fixes https://github.com/miekg/dns/issues/1107
func RRString(rr dns.RR) string {
	if aaaa, ok := rr.(*dns.AAAA); ok {
		ipStr := aaaa.AAAA.String()
		if aaaa.AAAA.To4() != nil {
			ipStr = fmt.Sprintf("::ffff:%s", ipStr)
		}
		return aaaa.Hdr.String() + ipStr
	}
	return rr.String()
}

// Compare orders records canonically: by owner in DNS canonical name order,
// then type, class and rdata. The TTL and line are ignored.
func Compare(a, b Record) int {
	if c := CompareNames(a.Owner, b.Owner); c != 0 {
		return c
	}
	if c := strings.Compare(a.Type, b.Type); c != 0 {
		return c
	}
	if c := strings.Compare(a.Class, b.Class); c != 0 {
		return c
	}
	for i := 0; i < len(a.RData) && i < len(b.RData); i++ {
		if c := strings.Compare(a.RData[i], b.RData[i]); c != 0 {
			return c
		}
	}
	return len(a.RData) - len(b.RData)
}

// CompareNames orders two canonical (lower-cased, fully qualified) names the
// way RFC 4034 section 6.1 does: label by label starting from the root, with a
// name sorting before its subdomains.
func CompareNames(a, b string) int {
	a = strings.TrimSuffix(a, ".")
	b = strings.TrimSuffix(b, ".")
	for {
		switch {
		case a == b:
			return 0
		case a == "":
			return -1
		case b == "":
			return 1
		}
		var la, lb string
		a, la = lastLabel(a)
		b, lb = lastLabel(b)
		if c := strings.Compare(la, lb); c != 0 {
			return c
		}
	}
}

// lastLabel splits the right-most label off name, honouring escaped dots.
func lastLabel(name string) (rest, label string) {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' && !escaped(name, i) {
			return name[:i], name[i+1:]
		}
	}
	return "", name
}

// escaped reports whether the byte at i is preceded by an odd number of backslashes.
func escaped(s string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}
