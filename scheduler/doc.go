// Package scheduler drives dirty-region updates over a layered node tree.
//
// Callers register dirty rectangles against nodes with
// [Scheduler.UpdateProjection] or force recomputation of a whole subtree with
// [Scheduler.FullRefreshAsync]. Requests are coalesced per node into a
// [Region] and executed in batches by a single dispatcher goroutine: every
// group projection touched by a batch is recomputed tile by tile, deepest
// level first, on a shared worker pool.
//
// # Ordering
//
// A group projection over a pixel is a pure function of its children's
// projections at that pixel. Recomputation only ever reads finished deeper
// levels, so the projection after [Scheduler.WaitForDone] is the same for any
// order of the issued updates and for any split of a rectangle into smaller
// ones.
//
// # Atomicity
//
// Each tile job composites into a private buffer and then writes the
// projection tile under its exclusive tile handle. [Scheduler.Cancel] skips
// jobs that have not started; a tile is therefore either fully updated or
// left as it was.
//
// # Structural changes
//
// [Scheduler.BarrierLock] waits for the running batch and keeps new batches
// from starting until the matching [Scheduler.Unlock]. Tree mutations must
// happen under the lock.
package scheduler
