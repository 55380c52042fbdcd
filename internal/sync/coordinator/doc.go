// Package coordinator runs sync batches across tracked repositories.
//
// A batch selects its candidates (every due repository, or a single one),
// runs the per-repository pass of sync.Manager for each of them with bounded
// parallelism, and aggregates counts and per-repository errors into one
// BatchResult. A failure of one repository is recorded in the result and never
// aborts the batch; only a failure to enumerate candidates or an invariant
// violation in storage does.
//
// # Scheduling
//
// Batches come from two sources that share a single-flight gate:
//
//   - The interval scheduler started with Start. A tick that finds the gate
//     taken is skipped and logged.
//   - Manual triggers through RunBatch. These wait for the running batch to
//     finish, bounded by the caller's context, and then run their own.
//
// No two batches ever overlap.
//
// # Staleness
//
// A repository's last_fetched_at is advanced to the batch start time only
// after its pass completed, so a repository that failed mid-fetch is retried
// by the next batch. Re-fetched events are absorbed by the idempotent writer.
//
// # Usage Example
//
//	coord := coordinator.New(store, manager, coordinator.Config{
//	    Interval:        2 * time.Minute,
//	    StalenessCutoff: 2 * time.Hour,
//	})
//
//	go func() {
//	    if err := coord.Start(ctx); err != nil {
//	        slog.Error("Scheduler failed", "error", err)
//	    }
//	}()
//	defer coord.Stop()
//
//	result, err := coord.RunBatch(ctx, coordinator.Single(repoID))
package coordinator
