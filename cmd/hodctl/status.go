package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hpcugent/hod/internal/jobstatus"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the reachability of a running job's ranks",
	Long: `Status polls each given rank's /health endpoint from outside the job
and reports what it observed. It does not talk to the job's collective
transport or control directories directly (spec.md §5 treats cross-rank
failure detection as the job's own concern, not an external one) -- this
is strictly an outside-looking-in view for operators.

Example:
  hodctl status --node 0=http://node01:8081 --node 1=http://node02:8081`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringSlice("node", nil, "rank=addr pair (repeatable), e.g. 0=http://node01:8081")
	statusCmd.Flags().Bool("watch", false, "Keep polling and reprint every interval instead of checking once")
	statusCmd.Flags().Duration("interval", 2*time.Second, "Poll interval when --watch is set")
	_ = statusCmd.MarkFlagRequired("node")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	pairs, _ := cmd.Flags().GetStringSlice("node")
	watch, _ := cmd.Flags().GetBool("watch")
	interval, _ := cmd.Flags().GetDuration("interval")

	addrs, err := parseNodeFlags(pairs)
	if err != nil {
		return err
	}

	monitor := jobstatus.NewRankMonitor(addrs, interval)

	if !watch {
		monitor.CheckOnce()
		printSnapshot(cmd, monitor.Snapshot())
		return nil
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go monitor.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		printSnapshot(cmd, monitor.Snapshot())
	}
	return nil
}

func parseNodeFlags(pairs []string) (map[int]string, error) {
	addrs := make(map[int]string, len(pairs))
	for _, pair := range pairs {
		rankStr, addr, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("--node value %q must be of the form rank=addr", pair)
		}
		rank, err := strconv.Atoi(rankStr)
		if err != nil {
			return nil, fmt.Errorf("--node value %q has a non-integer rank: %w", pair, err)
		}
		addrs[rank] = addr
	}
	return addrs, nil
}

func printSnapshot(cmd *cobra.Command, snapshot map[int]jobstatus.RankHealth) {
	ranks := make([]int, 0, len(snapshot))
	for rank := range snapshot {
		ranks = append(ranks, rank)
	}
	sort.Ints(ranks)

	out := cmd.OutOrStdout()
	for _, rank := range ranks {
		h := snapshot[rank]
		fmt.Fprintf(out, "rank %d: %s (consecutive_fails=%d)\n", rank, h.Status, h.ConsecutiveFails)
	}
}
