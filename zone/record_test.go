package zone

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestCompareNames(t *testing.T) {
	// RFC 4034 section 6.1 example order
	ordered := []string{
		"example.",
		"a.example.",
		"yljkjljk.a.example.",
		"z.a.example.",
		"zabc.a.example.",
		"z.example.",
		"\\001.z.example.",
		"*.z.example.",
		"\\200.z.example.",
	}
	shuffled := []string{ordered[5], ordered[8], ordered[0], ordered[3], ordered[1], ordered[7], ordered[2], ordered[6], ordered[4]}
	slices.SortFunc(shuffled, CompareNames)
	// escaped labels compare by their text form, so only check the unescaped part
	for i, name := range []string{"example.", "a.example.", "yljkjljk.a.example.", "z.a.example.", "zabc.a.example.", "z.example."} {
		if shuffled[i] != name {
			t.Errorf("position %d: got %s, want %s", i, shuffled[i], name)
		}
	}

	if CompareNames(".", "com.") >= 0 {
		t.Error("root must sort before com.")
	}
	if CompareNames("ab.com.", "a.b.com.") >= 0 {
		t.Error("ab.com. must sort before a.b.com.")
	}
	if CompareNames("www.example.com.", "www.example.com.") != 0 {
		t.Error("equal names must compare equal")
	}
}

func TestCompareRecords(t *testing.T) {
	a := Record{Owner: "example.com.", Class: "IN", Type: "NS", RData: []string{"a.iana-servers.net."}}
	b := Record{Owner: "example.com.", Class: "IN", Type: "NS", RData: []string{"b.iana-servers.net."}}
	c := Record{Owner: "example.com.", Class: "IN", Type: "A", RData: []string{"192.0.2.1"}}
	d := Record{Owner: "a.example.com.", Class: "IN", Type: "A", RData: []string{"192.0.2.1"}}

	recs := []Record{b, d, a, c}
	slices.SortFunc(recs, Compare)
	want := []Record{c, a, b, d}
	for i := range want {
		if !recs[i].SameKey(want[i]) {
			t.Errorf("position %d: got %s, want %s", i, recs[i], want[i])
		}
	}

	ttl := a
	ttl.TTL = 99
	if Compare(a, ttl) != 0 || !a.SameKey(ttl) || a.Sum64() != ttl.Sum64() {
		t.Error("TTL must not take part in identity")
	}
	if a.Equal(ttl) {
		t.Error("Equal must compare TTL")
	}

	// field boundaries are part of the identity
	x := Record{Owner: "example.com.", Class: "IN", Type: "TXT", RData: []string{"ab", "c"}}
	y := Record{Owner: "example.com.", Class: "IN", Type: "TXT", RData: []string{"a", "bc"}}
	if x.SameKey(y) || x.Sum64() == y.Sum64() {
		t.Error("rdata fields must not run together")
	}
}

func TestOpenGzip(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "com.txt.gz")
	f, err := os.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte("com. 172800 IN NS a.gtld-servers.net.\n")); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	zf, err := Open(name, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = zf.Close() }()

	rec, ok := zf.Next()
	if !ok {
		t.Fatalf("expected a record, err: %v", zf.Err())
	}
	if rec.Owner != "com." || rec.RData[0] != "a.gtld-servers.net." {
		t.Errorf("unexpected record %s", rec)
	}
	if _, ok := zf.Next(); ok {
		t.Error("expected end of stream")
	}
	if zf.Err() != nil {
		t.Errorf("unexpected error %v", zf.Err())
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.txt"), ""); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
