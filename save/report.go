package save

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lanrat/zonediff/diff"
	"github.com/lanrat/zonediff/psl"
	"github.com/lanrat/zonediff/snapshot"
	"github.com/lanrat/zonediff/zone"
)

// Report formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// DiffReport is the serialized form of a diff.Result.
type DiffReport struct {
	Old           string                 `json:"old,omitempty" yaml:"old,omitempty"`
	New           string                 `json:"new,omitempty" yaml:"new,omitempty"`
	Added         []zone.Record          `json:"added" yaml:"added"`
	Removed       []zone.Record          `json:"removed" yaml:"removed"`
	TTLChanged    []diff.TTLChange       `json:"ttl_changed" yaml:"ttl_changed"`
	PerType       map[string]diff.Counts `json:"per_type" yaml:"per_type"`
	AddedOwners   []string               `json:"added_owners" yaml:"added_owners"`
	RemovedOwners []string               `json:"removed_owners" yaml:"removed_owners"`
	Shifts        []diff.Shift           `json:"shifts,omitempty" yaml:"shifts,omitempty"`
}

// NewDiffReport builds the report of res between the named inputs, flagging
// type count shifts above threshold.
func NewDiffReport(oldName, newName string, res *diff.Result, threshold float64) DiffReport {
	return DiffReport{
		Old:           oldName,
		New:           newName,
		Added:         orEmpty(res.Added),
		Removed:       orEmpty(res.Removed),
		TTLChanged:    orEmpty(res.TTLChanged),
		PerType:       res.PerType,
		AddedOwners:   orEmpty(res.AddedOwners),
		RemovedOwners: orEmpty(res.RemovedOwners),
		Shifts:        res.Shifts(threshold),
	}
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// EncodeDiff writes a diff report. The text format is line-delimited:
//
//	+ <record> [; line <n>]    added, with its line in the new input
//	- <record> [; line <n>]    removed, with its line in the old input
//	~ <record> <old> -> <new>  TTL changed (the record is printed with the old TTL)
func EncodeDiff(w io.Writer, r DiffReport, format string) error {
	if strings.ToLower(format) != FormatText {
		return EncodeValue(w, r, format)
	}
	bw := &errWriter{w: w}
	for _, rec := range r.Added {
		bw.record("+", rec)
	}
	for _, rec := range r.Removed {
		bw.record("-", rec)
	}
	for _, c := range r.TTLChanged {
		rec := zone.Record{Owner: c.Owner, TTL: c.Old, Class: c.Class, Type: c.Type, RData: c.RData}
		bw.printf("~ %s %d -> %d\n", rec, c.Old, c.New)
	}
	return bw.err
}

// EncodeValue writes a query result. JSON and YAML encode v directly; the
// text format writes one item per line.
func EncodeValue(w io.Writer, v any, format string) error {
	switch strings.ToLower(format) {
	case FormatYAML, "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	case FormatText:
		return encodeText(w, v)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func encodeText(w io.Writer, v any) error {
	bw := &errWriter{w: w}
	switch v := v.(type) {
	case []string:
		for _, s := range v {
			bw.printf("%s\n", s)
		}
	case []zone.Record:
		for _, r := range v {
			bw.printf("%s\n", r)
		}
	case map[string]int:
		for _, k := range slices.Sorted(maps.Keys(v)) {
			bw.printf("%s\t%d\n", k, v[k])
		}
	case map[uint32]int:
		for _, k := range slices.Sorted(maps.Keys(v)) {
			bw.printf("%d\t%d\n", k, v[k])
		}
	case []snapshot.KeyInfo:
		for _, k := range v {
			bw.printf("%s\t%d\t%s\t%d\n", k.Owner, k.Flags, k.Algorithm, k.KeyTag)
		}
	case []psl.Domain:
		for _, d := range v {
			bw.printf("%s\t%d\n", d.Name, d.Owners)
		}
	case DiffReport:
		return EncodeDiff(w, v, FormatText)
	case []DiffReport:
		for _, r := range v {
			bw.printf("; %s -> %s\n", r.Old, r.New)
			if bw.err == nil {
				bw.err = EncodeDiff(w, r, FormatText)
			}
		}
	default:
		bw.printf("%v\n", v)
	}
	return bw.err
}

// errWriter remembers the first write error.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

// record writes one added or removed record, noting its source line when known.
func (e *errWriter) record(op string, rec zone.Record) {
	if rec.Line > 0 {
		e.printf("%s %s ; line %d\n", op, rec, rec.Line)
		return
	}
	e.printf("%s %s\n", op, rec)
}
