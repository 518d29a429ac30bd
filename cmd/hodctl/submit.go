package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hpcugent/hod/internal/batchsubmit"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new hod job to the batch scheduler",
	Long: `Submit requests a node allocation from the batch scheduler (PBS/Torque
via qsub, driven through mympirun) and launches --ppn hodrank processes
per allocated node (one by default). This is new operator surface grounded in the original's
bin/hod_pbs.py; spec.md treats the batch-scheduler job-submission tool
itself as an external collaborator, out of scope for the core engine.

Example:
  hodctl submit --nodes 4 --walltime 4:00:00 --rank-binary /opt/hod/bin/hodrank`,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().Int("nodes", 1, "Number of nodes to request")
	submitCmd.Flags().Int("ppn", 1, "Processes per node")
	submitCmd.Flags().String("walltime", "", "Walltime limit, e.g. 4:00:00")
	submitCmd.Flags().String("queue", "", "Batch queue name")
	submitCmd.Flags().String("job-name", "hod", "Batch job name")
	submitCmd.Flags().String("rank-binary", "", "Path to the hodrank binary (required)")
	submitCmd.Flags().StringSlice("rank-arg", nil, "Extra argument to pass to hodrank (repeatable)")
	_ = submitCmd.MarkFlagRequired("rank-binary")
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	nodes, _ := cmd.Flags().GetInt("nodes")
	ppn, _ := cmd.Flags().GetInt("ppn")
	walltime, _ := cmd.Flags().GetString("walltime")
	queue, _ := cmd.Flags().GetString("queue")
	jobName, _ := cmd.Flags().GetString("job-name")
	rankBinary, _ := cmd.Flags().GetString("rank-binary")
	rankArgs, _ := cmd.Flags().GetStringSlice("rank-arg")

	if strings.TrimSpace(rankBinary) == "" {
		return fmt.Errorf("--rank-binary is required")
	}

	submitter := batchsubmit.NewPBSSubmitter()
	submission, err := submitter.Submit(context.Background(), batchsubmit.Request{
		JobName:    jobName,
		Walltime:   walltime,
		Queue:      queue,
		Nodes:      nodes,
		PPN:        ppn,
		RankBinary: rankBinary,
		RankArgs:   rankArgs,
	})
	if err != nil {
		return fmt.Errorf("submit job: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "submitted job %s\n", submission.JobID)
	return nil
}
