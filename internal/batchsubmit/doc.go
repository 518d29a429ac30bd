// Package batchsubmit models the one external collaborator spec.md
// places out of scope: the batch-scheduler job-submission tool that
// actually allocates the pool of nodes a job's ranks run on. Submitter
// is a narrow interface; PBSSubmitter is the one concrete adapter,
// grounded on the original's bin/hod_pbs.py, which shells out to
// mympirun/qsub to request the allocation and launch the rank binary
// across it.
package batchsubmit
