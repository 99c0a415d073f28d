package diff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/lanrat/zonediff/snapshot"
	"github.com/lanrat/zonediff/zone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const oldZone = `$ORIGIN example.com.
$TTL 3600
@	IN	SOA	ns1 hostmaster 1 7200 3600 1209600 3600
@	IN	NS	a.iana-servers.net.
@	IN	NS	b.iana-servers.net.
www	IN	A	192.0.2.1
old	IN	A	192.0.2.5
mail	IN	MX	10 mx1
mail	IN	MX	20 mx2
`

const newZone = `$ORIGIN example.com.
$TTL 3600
@	IN	SOA	ns1 hostmaster 2 7200 3600 1209600 3600
@	IN	NS	a.iana-servers.net.
@	IN	NS	b.iana-servers.net.
www	7200	IN	A	192.0.2.1
foo	IN	NS	ns1.foo.
mail	IN	MX	10 mx1
mail	IN	MX	30 mx3
`

func load(t *testing.T, content string) *snapshot.Snapshot {
	t.Helper()
	s, err := snapshot.Build(context.Background(), zone.NewParser(strings.NewReader(content), "", "test"), "test", "")
	require.NoError(t, err)
	return s
}

func stream(content string) snapshot.Source {
	return zone.NewParser(strings.NewReader(content), "", "test")
}

// records is a Source over a fixed list.
type records struct {
	recs []zone.Record
	err  error
}

func (r *records) Next() (zone.Record, bool) {
	if len(r.recs) == 0 {
		return zone.Record{}, false
	}
	rec := r.recs[0]
	r.recs = r.recs[1:]
	return rec, true
}

func (r *records) Err() error { return r.err }

func sorted(s *snapshot.Snapshot) *records {
	out := &records{}
	for rec := range s.Records() {
		out.recs = append(out.recs, rec)
	}
	return out
}

func keys(recs []zone.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Owner+" "+r.Type+" "+strings.Join(r.RData, " "))
	}
	return out
}

func TestDiffSelfIsEmpty(t *testing.T) {
	s := load(t, oldZone)
	res, err := Snapshots(context.Background(), s, s)
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Empty(t, res.Added)
	assert.Empty(t, res.Removed)
	assert.Empty(t, res.TTLChanged)
	assert.Empty(t, res.AddedOwners)
	assert.Empty(t, res.RemovedOwners)
	assert.Equal(t, Counts{Old: 2, New: 2}, res.PerType["NS"])

	res, err = Streams(context.Background(), sorted(s), sorted(s))
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestDiff(t *testing.T) {
	old, new := load(t, oldZone), load(t, newZone)
	res, err := Snapshots(context.Background(), old, new)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"example.com. SOA ns1.example.com. hostmaster.example.com. 2 7200 3600 1209600 3600",
		"foo.example.com. NS ns1.foo.",
		"mail.example.com. MX 30 mx3.example.com.",
	}, keys(res.Added))
	assert.Equal(t, []string{
		"example.com. SOA ns1.example.com. hostmaster.example.com. 1 7200 3600 1209600 3600",
		"mail.example.com. MX 20 mx2.example.com.",
		"old.example.com. A 192.0.2.5",
	}, keys(res.Removed))
	assert.Equal(t, []TTLChange{{
		Owner: "www.example.com.", Class: "IN", Type: "A", RData: []string{"192.0.2.1"}, Old: 3600, New: 7200,
	}}, res.TTLChanged)
	assert.Equal(t, []string{"foo.example.com."}, res.AddedOwners)
	assert.Equal(t, []string{"old.example.com."}, res.RemovedOwners)
	assert.Equal(t, Counts{Old: 2, New: 3}, res.PerType["NS"])
	assert.Equal(t, Counts{Old: 2, New: 1}, res.PerType["A"])
	assert.False(t, res.Empty())
}

func TestTTLChangeOnly(t *testing.T) {
	a := load(t, "www.example.com. 3600 IN A 192.0.2.1\n")
	b := load(t, "www.example.com. 7200 IN A 192.0.2.1\n")
	res, err := Snapshots(context.Background(), a, b)
	require.NoError(t, err)
	assert.Empty(t, res.Added)
	assert.Empty(t, res.Removed)
	require.Len(t, res.TTLChanged, 1)
	assert.Equal(t, "www.example.com.", res.TTLChanged[0].Owner)
	assert.Equal(t, "A", res.TTLChanged[0].Type)
	assert.Equal(t, uint32(3600), res.TTLChanged[0].Old)
	assert.Equal(t, uint32(7200), res.TTLChanged[0].New)
}

func TestAddedNS(t *testing.T) {
	base := "example.com. 3600 IN NS a.iana-servers.net.\n"
	a := load(t, base)
	b := load(t, base+"foo.example.com. 3600 IN NS ns1.foo.\n")

	ab, err := Snapshots(context.Background(), a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo.example.com. NS ns1.foo."}, keys(ab.Added))
	assert.Empty(t, ab.Removed)

	ba, err := Snapshots(context.Background(), b, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo.example.com. NS ns1.foo."}, keys(ba.Removed))
	assert.Empty(t, ba.Added)
}

func TestAntisymmetry(t *testing.T) {
	old, new := load(t, oldZone), load(t, newZone)
	ab, err := Snapshots(context.Background(), old, new)
	require.NoError(t, err)
	ba, err := Snapshots(context.Background(), new, old)
	require.NoError(t, err)

	assert.Equal(t, ab.Added, ba.Removed)
	assert.Equal(t, ab.Removed, ba.Added)
	assert.Equal(t, ab.AddedOwners, ba.RemovedOwners)
	require.Len(t, ba.TTLChanged, 1)
	assert.Equal(t, uint32(7200), ba.TTLChanged[0].Old)
	assert.Equal(t, uint32(3600), ba.TTLChanged[0].New)
}

func TestStreamsMatchesSnapshots(t *testing.T) {
	old, new := load(t, oldZone), load(t, newZone)
	want, err := Snapshots(context.Background(), old, new)
	require.NoError(t, err)

	got, err := Streams(context.Background(), sorted(old), sorted(new))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStreamsUnsortedWithinOwner(t *testing.T) {
	// records of one owner may come in any order and may repeat
	old := "a.example. 60 IN TXT x\na.example. 60 IN A 192.0.2.1\na.example. 60 IN A 192.0.2.1\nb.a.example. 60 IN A 192.0.2.2\n"
	new := "a.example. 60 IN A 192.0.2.1\na.example. 120 IN TXT x\nb.a.example. 60 IN A 192.0.2.2\n"
	res, err := Streams(context.Background(), stream(old), stream(new))
	require.NoError(t, err)
	assert.Empty(t, res.Added)
	assert.Empty(t, res.Removed)
	require.Len(t, res.TTLChanged, 1)
	assert.Equal(t, "TXT", res.TTLChanged[0].Type)
	assert.Equal(t, Counts{Old: 2, New: 2}, res.PerType["A"])
}

func TestStreamsUnsorted(t *testing.T) {
	for _, content := range []string{
		"b.example. 60 IN A 192.0.2.1\na.example. 60 IN A 192.0.2.1\n",
		"a.example. 60 IN A 192.0.2.1\nb.example. 60 IN A 192.0.2.1\na.example. 60 IN TXT x\n",
	} {
		_, err := Streams(context.Background(), stream(content), stream("a.example. 60 IN A 192.0.2.1\n"))
		assert.ErrorIs(t, err, ErrUnsorted)
	}
}

// counting wraps a Source and counts the records read from it.
type counting struct {
	snapshot.Source
	n int
}

func (c *counting) Next() (zone.Record, bool) {
	r, ok := c.Source.Next()
	if ok {
		c.n++
	}
	return r, ok
}

func TestStreamsStopsAtFirstError(t *testing.T) {
	var big strings.Builder
	for i := 0; i < 10000; i++ {
		fmt.Fprintf(&big, "h%05d.z.example. 60 IN A 192.0.2.1\n", i)
	}
	new := &counting{Source: stream(big.String())}

	_, err := Streams(context.Background(), stream("b.example. 60 IN A 192.0.2.1\na.example. 60 IN A 192.0.2.1\n"), new)
	assert.ErrorIs(t, err, ErrUnsorted)
	assert.Less(t, new.n, 10, "the new side is not read past the failure")

	old := &counting{Source: stream(big.String())}
	_, err = Streams(context.Background(), old, &records{err: errors.New("truncated gzip")})
	assert.Error(t, err)
	assert.Less(t, old.n, 10, "the old side is not read past the failure")
}

func TestStreamsSourceError(t *testing.T) {
	boom := errors.New("truncated gzip")
	_, err := Streams(context.Background(), &records{err: boom}, stream("a.example. 60 IN A 192.0.2.1\n"))
	assert.ErrorIs(t, err, boom)

	_, err = Streams(context.Background(), stream("a.example. IN A 192.0.2.1\n"), stream(""))
	assert.ErrorIs(t, err, zone.ErrMissingTTL)
}

func TestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	old, new := load(t, oldZone), load(t, newZone)

	res, err := Snapshots(ctx, old, new)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)

	res, err = Streams(ctx, sorted(old), sorted(new))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestShifts(t *testing.T) {
	res := &Result{PerType: map[string]Counts{
		"NS":   {Old: 100, New: 50},
		"A":    {Old: 100, New: 90},
		"AAAA": {Old: 10, New: 30},
		"TXT":  {Old: 0, New: 5},
	}}
	shifts := res.Shifts(0.4)
	require.Len(t, shifts, 2)
	assert.Equal(t, "AAAA", shifts[0].Type)
	assert.InDelta(t, 2.0, shifts[0].Change, 1e-9)
	assert.Equal(t, "NS", shifts[1].Type)
	assert.InDelta(t, -0.5, shifts[1].Change, 1e-9)

	assert.Empty(t, res.Shifts(5))
}
