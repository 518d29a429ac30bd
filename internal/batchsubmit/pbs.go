package batchsubmit

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hpcugent/hod/internal/logging"
)

var log = logging.WithComponent("batchsubmit")

// PBSSubmitter generates a PBS job script and hands it to qsub on stdin,
// mirroring the original's PbsEBMMHod/MympirunHodOption: the script's
// body invokes mympirun against the rank binary with --hybrid set to the
// request's PPN, so every allocated node ends up running PPN ranks (one
// when PPN is unset).
type PBSSubmitter struct {
	// QsubPath overrides the qsub binary looked up on PATH; empty means
	// "qsub".
	QsubPath string
	// MympirunPath overrides the mympirun binary; empty means
	// "mympirun".
	MympirunPath string
}

// NewPBSSubmitter builds a PBSSubmitter using qsub/mympirun from PATH.
func NewPBSSubmitter() *PBSSubmitter {
	return &PBSSubmitter{QsubPath: "qsub", MympirunPath: "mympirun"}
}

// Submit renders req into a PBS job script and submits it via qsub.
func (p *PBSSubmitter) Submit(ctx context.Context, req Request) (Submission, error) {
	if req.RankBinary == "" {
		return Submission{}, fmt.Errorf("batch submission requires a rank binary")
	}
	if req.Nodes <= 0 {
		return Submission{}, fmt.Errorf("batch submission requires at least one node, got %d", req.Nodes)
	}

	script := p.renderScript(req)

	qsub := p.QsubPath
	if qsub == "" {
		qsub = "qsub"
	}

	args := []string{"-N", jobNameOrDefault(req.JobName)}
	if req.Walltime != "" {
		args = append(args, "-l", "walltime="+req.Walltime)
	}
	if req.Queue != "" {
		args = append(args, "-q", req.Queue)
	}
	args = append(args, "-l", fmt.Sprintf("nodes=%d:ppn=%d", req.Nodes, ppnOrDefault(req.PPN)))

	cmd := exec.CommandContext(ctx, qsub, args...)
	cmd.Stdin = bytes.NewReader([]byte(script))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Submission{}, fmt.Errorf("qsub failed: %w (stderr: %s)", err, stderr.String())
	}

	jobID := strings.TrimSpace(stdout.String())
	log.Info().Str("job_id", jobID).Str("job_name", req.JobName).Int("nodes", req.Nodes).Msg("submitted batch job")
	return Submission{JobID: jobID}, nil
}

func (p *PBSSubmitter) renderScript(req Request) string {
	mympirun := p.MympirunPath
	if mympirun == "" {
		mympirun = "mympirun"
	}

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	for k, v := range req.Environment {
		fmt.Fprintf(&b, "export %s=%q\n", k, v)
	}
	fmt.Fprintf(&b, "%s --hybrid %d -- %s", mympirun, ppnOrDefault(req.PPN), req.RankBinary)
	for _, arg := range req.RankArgs {
		fmt.Fprintf(&b, " %s", arg)
	}
	b.WriteString("\n")
	return b.String()
}

func jobNameOrDefault(name string) string {
	if name == "" {
		return "hod"
	}
	return name
}

func ppnOrDefault(ppn int) int {
	if ppn <= 0 {
		return 1
	}
	return ppn
}
