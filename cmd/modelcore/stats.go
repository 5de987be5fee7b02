package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"modelcore/pkg/types"
)

func newStatsCmd(g *globals) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show memory, model and queue statistics of a running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var st types.StatsResponse
			if err := doJSON(cmd.Context(), "GET", endpoint(g.server, "/stats"), nil, &st); err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			return renderStats(cmd.OutOrStdout(), st, time.Now())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON response")
	return cmd
}

func renderStats(out io.Writer, st types.StatsResponse, now time.Time) error {
	r, p := st.Registry, st.Pipeline
	fmt.Fprintf(out, "memory: %s used / %s ceiling (%s free)\n",
		humanize.IBytes(uint64(r.TotalMemory)), humanize.IBytes(uint64(r.CeilingBytes)), humanize.IBytes(uint64(max(r.AvailableMemory, 0))))
	fmt.Fprintf(out, "models: %d loaded, %d loads, %d evictions\n", r.LoadedCount, r.LoadsTotal, r.EvictionsTotal)
	fmt.Fprintf(out, "requests: %d total, %d completed, %d failed, %d cancelled\n", p.Total, p.Completed, p.Failed, p.Cancelled)
	fmt.Fprintf(out, "queues: high=%d normal=%d low=%d  slots: accelerator=%d general=%d\n",
		p.QueueDepth["high"], p.QueueDepth["normal"], p.QueueDepth["low"],
		p.AvailableSlots["accelerator"], p.AvailableSlots["general"])
	fmt.Fprintf(out, "uptime: %s\n", time.Duration(st.UptimeSeconds)*time.Second)
	if len(r.Models) == 0 {
		return nil
	}

	models := append([]types.ModelStatus(nil), r.Models...)
	sort.Slice(models, func(i, j int) bool { return models[i].ModelID < models[j].ModelID })
	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tCATEGORY\tMEMORY\tLAST USED\tUSES\tINFLIGHT\tPINNED")
	for _, m := range models {
		last := "-"
		if m.LastAccessUnix > 0 {
			last = humanize.RelTime(time.Unix(m.LastAccessUnix, 0), now, "ago", "from now")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%t\n",
			m.ModelID, m.Category, humanize.IBytes(uint64(m.ResidentBytes)), last, m.AccessCount, m.Inflight, m.Pinned)
	}
	return tw.Flush()
}
