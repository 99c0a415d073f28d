package save

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/lanrat/zonediff/diff"
	"github.com/lanrat/zonediff/psl"
	"github.com/lanrat/zonediff/snapshot"
	"github.com/lanrat/zonediff/zone"
)

const testZone = `$ORIGIN example.com.
$TTL 3600
www	IN	A	192.0.2.1
@	IN	NS	b.iana-servers.net.
@	IN	NS	a.iana-servers.net.
`

func load(t *testing.T, content string) *snapshot.Snapshot {
	t.Helper()
	s, err := snapshot.Build(context.Background(), zone.NewParser(strings.NewReader(content), "", "test"), "test", "example.com.")
	require.NoError(t, err)
	return s
}

func readGzip(t *testing.T, name string) string {
	t.Helper()
	f, err := os.Open(name)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	b, err := io.ReadAll(gz)
	require.NoError(t, err)
	return string(b)
}

func TestWriteSnapshotRoundTrip(t *testing.T) {
	s := load(t, testZone)
	for _, name := range []string{"example.com.zone", "example.com.zone.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, WriteSnapshot(path, s))
			_, err := os.Stat(path + ".tmp")
			assert.True(t, os.IsNotExist(err), "tmp file must be renamed")

			again, err := snapshot.LoadFile(context.Background(), path, "")
			require.NoError(t, err)
			assert.True(t, s.Equal(again))
		})
	}
}

func TestFileComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.com.zone.gz")
	f := New("example.com.", path)
	rr := &dns.AAAA{
		Hdr:  dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: 60},
		AAAA: net.ParseIP("192.0.2.1"),
	}
	require.NoError(t, f.AddRR(rr))
	assert.Equal(t, int64(1), f.Records())
	require.NoError(t, f.Finish())
	require.NoError(t, f.Finish(), "finish is idempotent")
	assert.ErrorIs(t, f.AddRR(rr), ErrFileClosed)

	content := readGzip(t, path)
	assert.Contains(t, content, "; zone: example.com.\n")
	assert.Contains(t, content, "example.com.\t60\tIN\tAAAA\t::ffff:192.0.2.1\n")
	assert.True(t, strings.HasSuffix(content, "; records: 1\n"))
}

func TestAbortRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.com.zone")
	f := New("example.com.", path)
	require.NoError(t, f.AddRecord(zone.Record{Owner: "example.com.", TTL: 60, Class: "IN", Type: "A", RData: []string{"192.0.2.1"}}))
	require.NoError(t, f.Abort())

	for _, p := range []string{path, path + ".tmp"} {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), p)
	}
}

func TestFinishCleansUpOnError(t *testing.T) {
	dir := t.TempDir()
	// a non-empty directory cannot be replaced by the rename
	path := filepath.Join(dir, "example.com.zone")
	require.NoError(t, os.MkdirAll(filepath.Join(path, "keep"), 0o755))

	f := New("example.com.", path)
	require.NoError(t, f.AddRecord(zone.Record{Owner: "example.com.", TTL: 60, Class: "IN", Type: "A", RData: []string{"192.0.2.1"}}))
	assert.Error(t, f.Finish())

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "tmp file must be removed")
	assert.NoError(t, f.Finish(), "a failed finish still closes the file")
	assert.ErrorIs(t, f.AddRecord(zone.Record{}), ErrFileClosed)
}

func TestWriteEmptySnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.com.zone.gz")
	require.NoError(t, WriteSnapshot(path, load(t, "$TTL 3600\n")))
	for _, p := range []string{path, path + ".tmp"} {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), p)
	}
}

func testReport(t *testing.T) DiffReport {
	t.Helper()
	old := load(t, testZone)
	new := load(t, strings.Replace(testZone, "www\tIN", "www\t7200\tIN", 1)+"foo\tIN\tNS\tns1.foo.\n")
	res, err := diff.Snapshots(context.Background(), old, new)
	require.NoError(t, err)
	return NewDiffReport("old.zone", "new.zone", res, 0.5)
}

func TestEncodeDiffText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeDiff(&buf, testReport(t), FormatText))
	assert.Equal(t,
		"+ foo.example.com.\t3600\tIN\tNS\tns1.foo. ; line 6\n"+
			"~ www.example.com.\t3600\tIN\tA\t192.0.2.1 3600 -> 7200\n",
		buf.String())
}

func TestEncodeDiffJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeDiff(&buf, testReport(t), FormatJSON))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "old.zone", got["old"])
	assert.Len(t, got["added"], 1)
	assert.Equal(t, []any{}, got["removed"], "empty sets encode as empty arrays")
	assert.Equal(t, []any{"foo.example.com."}, got["added_owners"])
	added := got["added"].([]any)[0].(map[string]any)
	assert.Equal(t, 6.0, added["line"], "records carry the line they were read from")
	perType := got["per_type"].(map[string]any)
	assert.Equal(t, map[string]any{"old": 2.0, "new": 3.0}, perType["NS"])

	// output is deterministic
	var again bytes.Buffer
	require.NoError(t, EncodeDiff(&again, testReport(t), FormatJSON))
	assert.Equal(t, buf.String(), again.String())
}

func TestEncodeDiffYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeDiff(&buf, testReport(t), FormatYAML))

	var got DiffReport
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got.TTLChanged, 1)
	assert.Equal(t, uint32(7200), got.TTLChanged[0].New)
	assert.Equal(t, "foo.example.com.", got.Added[0].Owner)
	assert.Equal(t, 6, got.Added[0].Line)
}

func TestEncodeValueText(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want string
	}{
		{"strings", []string{"a.iana-servers.net.", "b.iana-servers.net."}, "a.iana-servers.net.\nb.iana-servers.net.\n"},
		{"histogram", map[string]int{"NS": 2, "A": 1}, "A\t1\nNS\t2\n"},
		{"ttl histogram", map[uint32]int{86400: 1, 300: 4}, "300\t4\n86400\t1\n"},
		{"domains", []psl.Domain{{Name: "example.com.", Owners: 3}}, "example.com.\t3\n"},
		{"keys", []snapshot.KeyInfo{{Owner: "example.com.", Flags: 257, Algorithm: "RSASHA256", KeyTag: 20326}}, "example.com.\t257\tRSASHA256\t20326\n"},
		{"records", []zone.Record{{Owner: "a.example.", TTL: 60, Class: "IN", Type: "A", RData: []string{"192.0.2.1"}}}, "a.example.\t60\tIN\tA\t192.0.2.1\n"},
		{"reports", []DiffReport{
			{Old: "a/x.zone", New: "b/x.zone", Removed: []zone.Record{{Owner: "x.", TTL: 60, Class: "IN", Type: "NS", RData: []string{"ns.x."}}}},
			{Old: "a/y.zone", New: "b/y.zone"},
		}, "; a/x.zone -> b/x.zone\n- x.\t60\tIN\tNS\tns.x.\n; a/y.zone -> b/y.zone\n"},
		{"other", 42, "42\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, EncodeValue(&buf, tt.v, FormatText))
			assert.Equal(t, tt.want, buf.String())
		})
	}

	assert.Error(t, EncodeValue(io.Discard, 1, "xml"))
}
