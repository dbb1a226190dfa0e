package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kemiz/fsgrid/internal/runner"
	"github.com/kemiz/fsgrid/internal/store"
)

const rule = "=========================================================================="

// ms renders a duration in milliseconds with microsecond precision.
func ms(d time.Duration) string {
	return fmt.Sprintf("%.3f ms", float64(d.Microseconds())/1000)
}

// queryResult is one executed query as printed by the query command.
type queryResult struct {
	*runner.Result
	RoundTrip time.Duration `json:"round_trip,omitempty"`
}

type queryView struct {
	Workload string        `json:"workload"`
	Results  []queryResult `json:"results"`
}

func (v queryView) String() string {
	var b strings.Builder
	for _, r := range v.Results {
		fmt.Fprintln(&b, rule)
		fmt.Fprintf(&b, ">>> %s (%s)\n", r.Name, r.Request.Kind)
		more := ""
		if r.Truncated {
			more = ", more available"
		}
		fmt.Fprintf(&b, ">>> Executed query in %s, %s rows%s\n", ms(r.Elapsed), humanize.Comma(int64(len(r.Rows))), more)
		if r.RoundTrip > 0 {
			fmt.Fprintf(&b, ">>> Round trip %s\n", ms(r.RoundTrip))
		}
		if r.SQL != "" {
			fmt.Fprintln(&b, r.SQL)
		}
		fmt.Fprintln(&b)
		for _, row := range r.Rows {
			fmt.Fprintf(&b, "    %s\n", row)
		}
		fmt.Fprintln(&b)
	}
	return strings.TrimRight(b.String(), "\n")
}

// compiled is one query's SQL as printed by the compile command.
type compiled struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

type compileView struct {
	Workload    string     `json:"workload"`
	Fingerprint string     `json:"fingerprint"`
	Queries     []compiled `json:"queries"`
}

func (v compileView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "-- workload %s\n", v.Workload)
	for _, q := range v.Queries {
		params, _ := json.Marshal(q.Params)
		fmt.Fprintf(&b, "\n-- %s (%s)\n%s;\n-- params: %s\n", q.Name, q.Kind, q.SQL, params)
	}
	return strings.TrimRight(b.String(), "\n")
}

// loaded summarises one bulk load.
type loaded struct {
	Store   string        `json:"store"`
	Count   int           `json:"count"`
	Flushes int           `json:"flushes"`
	Elapsed time.Duration `json:"elapsed"`
}

func newLoaded(name string, s store.LoadStats) loaded {
	return loaded{Store: name, Count: s.Count, Flushes: s.Flushes, Elapsed: s.Elapsed}
}

func (l loaded) String() string {
	return fmt.Sprintf(">>> Loaded %s entities into %s in %s (%s flushes)",
		humanize.Comma(int64(l.Count)), l.Store, ms(l.Elapsed), humanize.Comma(int64(l.Flushes)))
}

type benchView struct {
	Backend string         `json:"backend"`
	Load    loaded         `json:"load"`
	Report  *runner.Report `json:"report"`
}

func (v benchView) String() string {
	var b strings.Builder
	fmt.Fprintln(&b, v.Load)
	r := v.Report
	rate := 0.0
	if r.Elapsed > 0 {
		rate = float64(r.Total) / r.Elapsed.Seconds()
	}
	fmt.Fprintf(&b, ">>> %s: %s queries from %d workers in %s (%s/s)\n\n",
		v.Backend, humanize.Comma(int64(r.Total)), r.Workers, ms(r.Elapsed), humanize.CommafWithDigits(rate, 1))

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "QUERY\tKIND\tCOUNT\tROWS\tMIN\tMEAN\tP50\tP99\tMAX\t")
	for _, q := range r.Queries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			q.Name, q.Kind, humanize.Comma(int64(q.Count)), humanize.Comma(int64(q.Rows)),
			ms(q.Min), ms(q.Mean), ms(q.P50), ms(q.P99), ms(q.Max))
	}
	tw.Flush()
	return strings.TrimRight(b.String(), "\n")
}
