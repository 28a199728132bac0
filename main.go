// The main package for the newswire executable.
//
// Architecture overview:
//   - Scheduler: internal/scheduler turns cron ticks into triggers on a
//     bounded in-memory queue. Completion edges, not wall-clock offsets,
//     chain the stages; the processing cron is only a catch-up.
//   - Worker: internal/runner drains the queue one trigger at a time, so
//     stage runs never overlap and snapshot versions stay ordered.
//   - Stages: fetch queries the provider incrementally from the last run's
//     cursor (failing open on provider outages), dedup keeps the first
//     occurrence per URL, filter drops invalid records and sorts newest
//     first. Each stage commits an immutable run-versioned snapshot.
//   - Persistence: run records and snapshots live in Postgres (or memory
//     for local runs); raw provider payloads are archived to GCS for
//     replay; stage completions are published to Pub/Sub.
//   - Alerting: internal/sensor batches failed runs per window into one
//     notification (webhook or log).
//   - HTTP API: internal/api exposes health, metrics, run history, snapshot
//     reads, and manual triggers.
package main

import (
	"github.com/adtechlab/newswire/cmd"
)

func main() {
	cmd.Execute()
}
