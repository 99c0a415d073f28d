package zone

import (
	"strconv"
	"strings"

	"github.com/miekg/dns"
)

// DefaultClass is used when neither the record nor a previous record names a class.
const DefaultClass = "IN"

// nameFields lists the rdata positions holding domain names for the types whose
// names are canonicalised. Other types keep their rdata verbatim.
var nameFields = map[string][]int{
	"NS":    {0},
	"CNAME": {0},
	"PTR":   {0},
	"DNAME": {0},
	"MB":    {0},
	"MG":    {0},
	"MR":    {0},
	"MINFO": {0, 1},
	"RP":    {0, 1},
	"MX":    {1},
	"AFSDB": {1},
	"KX":    {1},
	"RT":    {1},
	"SOA":   {0, 1},
	"SRV":   {3},
	"NAPTR": {5},
	"NSEC":  {0},
	"RRSIG": {7},
}

// minFields is the least number of rdata fields a well-formed record of the type has.
var minFields = map[string]int{
	"A":      1,
	"AAAA":   1,
	"NS":     1,
	"CNAME":  1,
	"PTR":    1,
	"MX":     2,
	"SOA":    7,
	"DS":     4,
	"DNSKEY": 4,
	"SRV":    4,
	"RRSIG":  9,
}

// KnownType reports whether t is a resource record mnemonic known to the dns library.
func KnownType(t string) bool {
	_, ok := dns.StringToType[strings.ToUpper(t)]
	return ok
}

// canonicalType upper-cases a type mnemonic, rewrites TYPEnnn of a known code to
// its mnemonic and reports whether the token is a well-formed type at all.
func canonicalType(tok string) (string, bool) {
	t := strings.ToUpper(tok)
	if _, ok := dns.StringToType[t]; ok {
		return t, true
	}
	if strings.HasPrefix(t, "TYPE") {
		code, err := strconv.ParseUint(t[4:], 10, 16)
		if err != nil {
			return "", false
		}
		if name, ok := dns.TypeToString[uint16(code)]; ok {
			return name, true
		}
		return "TYPE" + strconv.FormatUint(code, 10), true
	}
	if !isMnemonic(t) {
		return "", false
	}
	return t, true
}

// isMnemonic accepts tokens that could name a future record type.
func isMnemonic(t string) bool {
	if t == "" || t[0] < 'A' || t[0] > 'Z' {
		return false
	}
	for i := 1; i < len(t); i++ {
		c := t[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '-' {
			return false
		}
	}
	return true
}

// canonicalClass returns the upper-cased class and whether tok names one.
func canonicalClass(tok string) (string, bool) {
	c := strings.ToUpper(tok)
	if _, ok := dns.StringToClass[c]; ok {
		return c, true
	}
	if strings.HasPrefix(c, "CLASS") {
		code, err := strconv.ParseUint(c[5:], 10, 16)
		if err != nil {
			return "", false
		}
		if name, ok := dns.ClassToString[uint16(code)]; ok {
			return name, true
		}
		return "CLASS" + strconv.FormatUint(code, 10), true
	}
	return "", false
}

// parseTTL accepts decimal seconds or the BIND unit form (1w2d3h4m5s).
func parseTTL(tok string) (uint32, bool) {
	if v, err := strconv.ParseUint(tok, 10, 32); err == nil {
		return uint32(v), true
	}
	if tok == "" || tok[0] < '0' || tok[0] > '9' {
		return 0, false
	}
	var total, cur uint64
	digits := false
	for i := 0; i < len(tok); i++ {
		c := tok[i]
		switch {
		case c >= '0' && c <= '9':
			cur = cur*10 + uint64(c-'0')
			digits = true
			if cur > 1<<32 {
				return 0, false
			}
			continue
		case !digits:
			return 0, false
		}
		var mult uint64
		switch c {
		case 's', 'S':
			mult = 1
		case 'm', 'M':
			mult = 60
		case 'h', 'H':
			mult = 3600
		case 'd', 'D':
			mult = 86400
		case 'w', 'W':
			mult = 604800
		default:
			return 0, false
		}
		total += cur * mult
		cur, digits = 0, false
	}
	if digits {
		// trailing number without a unit is seconds
		total += cur
	}
	if total > 1<<32-1 {
		return 0, false
	}
	return uint32(total), true
}
