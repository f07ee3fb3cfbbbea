// Package download implements the per-mission segment engine.
//
// An Engine resolves its source through the playlist package, queues every
// segment that has no non-empty file in the work directory, and drains the
// queue with an errgroup of workers. Each fetch runs as a burst of retries
// under RetryPolicy; a failed burst sends the segment to the back of the queue
// until its burst budget is spent, after which the segment is either replaced
// by an empty placeholder or fails the mission.
//
// Pause lets in-flight fetches finish and holds the remaining queue. Stop
// cancels the run context, which also interrupts backoff sleeps. Counters are
// persisted to checkpoint.json so a new engine over the same work directory
// carries on where the last one ended.
//
// Engines report only through their Observer, from a dedicated goroutine, so
// callers may take their own locks inside OnEvent.
package download
