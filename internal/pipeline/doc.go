// Package pipeline implements the range server's update ingress: the
// three cooperating worker stages — qualify, commit, respond — that
// take a client write batch from validation through the commit log to
// the in-memory cell cache (spec.md §4.9), plus the group-commit
// coalescer that batches many small update calls into one pipeline
// submission per (cluster, table) interval.
//
// Grounded on hivekit's internal/repair engine for the staged,
// channel-fed worker-pool shape (a dispatcher goroutine per stage,
// bounded queues, explicit drain on shutdown), generalized here from
// repair's fixed two-phase scan/fix into three stages with a
// back-pressure gate between qualify and commit.
package pipeline
