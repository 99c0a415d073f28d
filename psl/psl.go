// Package psl maps owner names to registered domains using the public suffix
// list.
package psl

import (
	"io"
	"iter"
	"slices"
	"strings"

	"github.com/miekg/dns"
	"github.com/weppos/publicsuffix-go/publicsuffix"

	"github.com/lanrat/zonediff/zone"
)

// List is a public suffix list.
type List struct {
	list     *publicsuffix.List
	suffixes []string
}

// Default returns the public suffix list compiled into the publicsuffix package.
func Default() *List {
	return &List{list: publicsuffix.DefaultList}
}

// Load parses a public suffix list in the format of
// https://publicsuffix.org/list/public_suffix_list.dat. Private domains are
// only loaded when private is set.
func Load(r io.Reader, private bool) (*List, error) {
	list := publicsuffix.NewList()
	options := &publicsuffix.ParserOption{
		PrivateDomains: private,
	}
	rules, err := list.Load(r, options)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(rules))
	for _, rule := range rules {
		if rule.Type != publicsuffix.ExceptionType {
			domain, err := publicsuffix.ToASCII(rule.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, dns.Fqdn(domain))
		}
	}
	slices.SortFunc(out, zone.CompareNames)
	return &List{list: list, suffixes: slices.Compact(out)}, nil
}

// Suffixes returns the non-exception rules of a loaded list as fully qualified
// names in canonical order. It is empty for the Default list.
func (l *List) Suffixes() []string {
	return l.suffixes
}

// RegisteredDomain returns the registered domain of name as a fully qualified,
// lower-cased name, or "" when name is itself a public suffix.
func (l *List) RegisteredDomain(name string) string {
	name = strings.TrimSuffix(strings.ToLower(name), ".")
	name = strings.TrimPrefix(name, "*.")
	if name == "" {
		return ""
	}
	domain, err := publicsuffix.DomainFromListWithOptions(l.list, name, publicsuffix.DefaultFindOptions)
	if err != nil || domain == "" {
		return ""
	}
	return domain + "."
}

// Domain is a registered domain and the number of owner names below it.
type Domain struct {
	Name   string `json:"name" yaml:"name"`
	Owners int    `json:"owners" yaml:"owners"`
}

// Group collapses owner names into their registered domains, in canonical
// name order. Owners that are public suffixes are skipped.
func (l *List) Group(owners iter.Seq[string]) []Domain {
	counts := make(map[string]int)
	for owner := range owners {
		if d := l.RegisteredDomain(owner); d != "" {
			counts[d]++
		}
	}
	out := make([]Domain, 0, len(counts))
	for name, n := range counts {
		out = append(out, Domain{Name: name, Owners: n})
	}
	slices.SortFunc(out, func(a, b Domain) int {
		return zone.CompareNames(a.Name, b.Name)
	})
	return out
}
