package main

import (
	"iter"
	"maps"
	"net/netip"
	"os"
	"slices"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/lanrat/zonediff/psl"
	"github.com/lanrat/zonediff/snapshot"
	"github.com/lanrat/zonediff/zone"
)

// Query commands take one or more zone files and report over all of them:
// record lists are concatenated in file order, sets are merged and
// histograms are summed.

// collect concatenates fn over every snapshot.
func collect[T any](snapshots []*snapshot.Snapshot, fn func(*snapshot.Snapshot) iter.Seq[T]) []T {
	out := make([]T, 0)
	for _, s := range snapshots {
		out = slices.AppendSeq(out, fn(s))
	}
	return out
}

// union merges the sorted sets fn yields for every snapshot.
func union(snapshots []*snapshot.Snapshot, fn func(*snapshot.Snapshot) iter.Seq[string], cmp func(a, b string) int) []string {
	out := collect(snapshots, fn)
	if len(snapshots) > 1 {
		slices.SortFunc(out, cmp)
		out = slices.Compact(out)
	}
	return out
}

func sum[K comparable](snapshots []*snapshot.Snapshot, fn func(*snapshot.Snapshot) map[K]int) map[K]int {
	out := make(map[K]int)
	for _, s := range snapshots {
		for k, n := range fn(s) {
			out[k] += n
		}
	}
	return out
}

// queryCmd builds a command that loads its file arguments and outputs the
// value query computes from them.
func queryCmd(a *app, use, short string, query func(cmd *cobra.Command, snapshots []*snapshot.Snapshot) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ZONEFILE...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshots, err := a.loadSnapshots(cmd.Context(), args)
			if err != nil {
				return err
			}
			v, err := query(cmd, snapshots)
			if err != nil {
				return err
			}
			return a.output(cmd, v)
		},
	}
}

func newRecordsCmd(a *app) *cobra.Command {
	var f snapshot.Filter
	cmd := queryCmd(a, "records", "List records, optionally filtered by type, owner and value",
		func(_ *cobra.Command, snapshots []*snapshot.Snapshot) (any, error) {
			return collect(snapshots, func(s *snapshot.Snapshot) iter.Seq[zone.Record] {
				return s.Select(f)
			}), nil
		})
	cmd.Flags().StringVarP(&f.Type, "type", "t", "", "only records of this type")
	cmd.Flags().StringVarP(&f.Owner, "owner", "o", "", "only records of this owner name")
	cmd.Flags().StringVar(&f.Value, "value", "", "only records with this rdata value, such as a name server or address")
	return cmd
}

func newNameServersCmd(a *app) *cobra.Command {
	var owner string
	cmd := queryCmd(a, "nameservers", "List the distinct name servers, or those delegated for one owner",
		func(cmd *cobra.Command, snapshots []*snapshot.Snapshot) (any, error) {
			fn := (*snapshot.Snapshot).NameServers
			if cmd.Flags().Changed("owner") {
				fn = func(s *snapshot.Snapshot) iter.Seq[string] { return s.NameServersOf(owner) }
			}
			return union(snapshots, fn, zone.CompareNames), nil
		})
	cmd.Flags().StringVarP(&owner, "owner", "o", "", `delegated owner name ("" is the zone apex)`)
	return cmd
}

func newServedByCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "served-by NAMESERVER ZONEFILE...",
		Short: "List the records that name a name server",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshots, err := a.loadSnapshots(cmd.Context(), args[1:])
			if err != nil {
				return err
			}
			return a.output(cmd, collect(snapshots, func(s *snapshot.Snapshot) iter.Seq[zone.Record] {
				return s.RecordsServedBy(args[0])
			}))
		},
	}
	return cmd
}

func newIPsCmd(a *app) *cobra.Command {
	return queryCmd(a, "ips", "List the distinct A and AAAA addresses",
		func(_ *cobra.Command, snapshots []*snapshot.Snapshot) (any, error) {
			return union(snapshots, (*snapshot.Snapshot).IPAddresses, func(x, y string) int {
				return netip.MustParseAddr(x).Compare(netip.MustParseAddr(y))
			}), nil
		})
}

func newHistogramCmd(a *app) *cobra.Command {
	var ttl bool
	cmd := queryCmd(a, "histogram", "Count records by type, or by TTL with --ttl",
		func(_ *cobra.Command, snapshots []*snapshot.Snapshot) (any, error) {
			if ttl {
				return sum(snapshots, (*snapshot.Snapshot).TTLHistogram), nil
			}
			return sum(snapshots, (*snapshot.Snapshot).RecordTypeHistogram), nil
		})
	cmd.Flags().BoolVar(&ttl, "ttl", false, "count records by TTL instead of type")
	return cmd
}

func newTypesCmd(a *app) *cobra.Command {
	return queryCmd(a, "types", "List the record types present",
		func(_ *cobra.Command, snapshots []*snapshot.Snapshot) (any, error) {
			hist := sum(snapshots, (*snapshot.Snapshot).RecordTypeHistogram)
			return slices.Sorted(maps.Keys(hist)), nil
		})
}

func newDomainsCmd(a *app) *cobra.Command {
	var (
		listFile string
		private  bool
	)
	cmd := queryCmd(a, "domains", "Group owner names by registered domain",
		func(_ *cobra.Command, snapshots []*snapshot.Snapshot) (any, error) {
			list := psl.Default()
			if listFile != "" {
				f, err := os.Open(listFile)
				if err != nil {
					return nil, err
				}
				defer func() { _ = f.Close() }()
				if list, err = psl.Load(f, private); err != nil {
					return nil, errors.Wrapf(err, "load %s", listFile)
				}
			}
			owners := func(yield func(string) bool) {
				for _, s := range snapshots {
					for o := range s.Owners() {
						if !yield(o) {
							return
						}
					}
				}
			}
			return list.Group(owners), nil
		})
	cmd.Flags().StringVar(&listFile, "psl", "", "public suffix list file (default is the built in list)")
	cmd.Flags().BoolVar(&private, "private", false, "include the private domains section of --psl")
	return cmd
}

func newDNSKeysCmd(a *app) *cobra.Command {
	return queryCmd(a, "dnskeys", "List DNSKEY records with their flags, algorithm and key tag",
		func(_ *cobra.Command, snapshots []*snapshot.Snapshot) (any, error) {
			keys := make([]snapshot.KeyInfo, 0)
			for _, s := range snapshots {
				k, err := s.DNSKeys()
				if err != nil {
					return nil, errors.Wrap(err, s.Source())
				}
				keys = append(keys, k...)
			}
			return keys, nil
		})
}
