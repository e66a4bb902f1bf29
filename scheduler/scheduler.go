package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/gogpu/tilepipe"
	"github.com/gogpu/tilepipe/internal/parallel"
	"github.com/gogpu/tilepipe/tilestore"
)

// ErrClosed is returned by operations on a closed scheduler.
var ErrClosed = errors.New("scheduler: closed")

// State is the scheduler's position in its batch cycle.
type State uint8

const (
	// StateIdle: no pending or running work.
	StateIdle State = iota

	// StateAccumulating: requests are registered but no batch is running.
	StateAccumulating

	// StateExecuting: a batch is recomputing projections.
	StateExecuting
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateExecuting:
		return "executing"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Scheduler coalesces dirty-region requests and recomputes projections.
//
// Thread safety: all methods are safe for concurrent use.
type Scheduler struct {
	root Node
	opts options
	pool *parallel.WorkerPool

	mu      sync.Mutex
	updates map[Node]*Region
	refresh map[Node]*Region
	running bool
	cancel  context.CancelFunc
	errs    []error
	locks   int
	blocks  int
	closed  bool

	filters    map[FilterCookie]Filter
	nextCookie FilterCookie

	// changed is closed and replaced whenever the scheduler may have become
	// idle or unlocked.
	changed chan struct{}

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// New creates a scheduler for the tree rooted at root and starts its
// dispatcher.
func New(root Node, opts ...Option) *Scheduler {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &Scheduler{
		root:    root,
		opts:    o,
		pool:    parallel.NewWorkerPool(o.workers),
		updates: make(map[Node]*Region),
		refresh: make(map[Node]*Region),
		filters: make(map[FilterCookie]Filter),
		changed: make(chan struct{}),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	tilepipe.Logger().Info("scheduler: started",
		"workers", s.pool.Workers(), "policy", o.policy, "bounds", o.bounds)

	go s.dispatch()
	return s
}

// Root returns the root node.
func (s *Scheduler) Root() Node { return s.root }

// =============================================================================
// Requests
// =============================================================================

// UpdateProjection registers rect (clipped to bounds) as changed content of
// node. The node's projection, if composite, and those of its ancestors are
// recomputed over rect by a later batch. Empty rectangles, nodes outside the
// tree and requests dropped by a filter are ignored.
func (s *Scheduler) UpdateProjection(node Node, rect, bounds tilestore.Rect) {
	rect = s.clip(rect, bounds)
	if rect.Empty() || node == nil || depthIn(s.root, node) < 0 {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	for _, f := range s.filters {
		if f.Filter(node, rect) {
			s.mu.Unlock()
			tilepipe.Logger().Debug("scheduler: update filtered", "rect", rect)
			return
		}
	}
	s.add(s.updates, node, rect)
	s.mu.Unlock()

	s.signal()
}

// FullRefreshAsync registers a recomputation of every composite projection in
// the subtree of node, and of its ancestors, over rect clipped to bounds.
func (s *Scheduler) FullRefreshAsync(node Node, rect, bounds tilestore.Rect) {
	rect = s.clip(rect, bounds)
	if rect.Empty() || node == nil || depthIn(s.root, node) < 0 {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.add(s.refresh, node, rect)
	s.mu.Unlock()

	s.signal()
}

// FullRefresh is FullRefreshAsync followed by WaitForDone.
func (s *Scheduler) FullRefresh(ctx context.Context, node Node, rect, bounds tilestore.Rect) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.FullRefreshAsync(node, rect, bounds)
	return s.WaitForDone(ctx)
}

func (s *Scheduler) clip(rect, bounds tilestore.Rect) tilestore.Rect {
	rect = rect.Intersect(bounds)
	if !s.opts.bounds.Empty() {
		rect = rect.Intersect(s.opts.bounds)
	}
	return rect
}

// add merges rect into the node's region. s.mu must be held.
func (s *Scheduler) add(into map[Node]*Region, node Node, rect tilestore.Rect) {
	g, ok := into[node]
	if !ok {
		g = NewRegion(s.opts.policy)
		into[node] = g
	}
	g.Add(rect)
}

// signal wakes the dispatcher without blocking.
func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// notify wakes every waiter on s.changed. s.mu must be held.
func (s *Scheduler) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// =============================================================================
// Barrier
// =============================================================================

// WaitForDone blocks until every request issued before the call has been
// executed, or ctx is done. It returns the joined errors of the batches that
// finished since the previous WaitForDone, such as corrupted tile records.
//
// Work cannot finish while the scheduler is locked or blocked; WaitForDone
// then waits for the matching Unlock or UnblockUpdates.
func (s *Scheduler) WaitForDone(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrClosed
		}
		if !s.running && len(s.updates) == 0 && len(s.refresh) == 0 {
			err := errors.Join(s.errs...)
			s.errs = nil
			s.mu.Unlock()
			return err
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// BarrierLock waits for the running batch to finish and keeps new batches
// from starting until the matching Unlock. Locks nest.
func (s *Scheduler) BarrierLock() {
	s.mu.Lock()
	s.locks++
	for s.running {
		ch := s.changed
		s.mu.Unlock()
		<-ch
		s.mu.Lock()
	}
	s.mu.Unlock()
}

// TryBarrierLock locks the scheduler only if it is already locked or has no
// pending or running work. It reports whether the lock was taken.
func (s *Scheduler) TryBarrierLock() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locks == 0 && (s.running || len(s.updates) > 0 || len(s.refresh) > 0) {
		return false
	}
	s.locks++
	return true
}

// Unlock releases one BarrierLock. The last Unlock resumes pending work.
// It panics if the scheduler is not locked.
func (s *Scheduler) Unlock() {
	s.mu.Lock()
	if s.locks == 0 {
		s.mu.Unlock()
		panic("scheduler: Unlock of unlocked scheduler")
	}
	s.locks--
	last := s.locks == 0
	if last {
		s.notify()
	}
	s.mu.Unlock()

	if last {
		s.signal()
	}
}

// Locked reports whether a BarrierLock is held.
func (s *Scheduler) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locks > 0
}

// BlockUpdates keeps new batches from starting without waiting for the
// running one. Requests keep accumulating. Blocks nest.
func (s *Scheduler) BlockUpdates() {
	s.mu.Lock()
	s.blocks++
	s.mu.Unlock()
}

// UnblockUpdates releases one BlockUpdates.
func (s *Scheduler) UnblockUpdates() {
	s.mu.Lock()
	if s.blocks > 0 {
		s.blocks--
	}
	resume := s.blocks == 0
	if resume {
		s.notify()
	}
	s.mu.Unlock()

	if resume {
		s.signal()
	}
}

// IsIdle reports whether the scheduler is unlocked with no pending or
// running work.
func (s *Scheduler) IsIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locks == 0 && !s.running && len(s.updates) == 0 && len(s.refresh) == 0
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.running:
		return StateExecuting
	case len(s.updates) > 0 || len(s.refresh) > 0:
		return StateAccumulating
	default:
		return StateIdle
	}
}

// Cancel drops pending requests and aborts the running batch. Tile jobs that
// already started finish and their tiles stay written; the others leave
// their tiles untouched. It reports whether there was anything to cancel.
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	had := s.running || len(s.updates) > 0 || len(s.refresh) > 0
	clear(s.updates)
	clear(s.refresh)
	if s.cancel != nil {
		s.cancel()
	}
	if had {
		s.notify()
		tilepipe.Logger().Warn("scheduler: work cancelled")
	}
	return had
}

// =============================================================================
// Filters
// =============================================================================

// AddFilter installs f and returns a cookie for RemoveFilter.
func (s *Scheduler) AddFilter(f Filter) FilterCookie {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCookie++
	s.filters[s.nextCookie] = f
	return s.nextCookie
}

// RemoveFilter uninstalls the filter identified by cookie.
func (s *Scheduler) RemoveFilter(cookie FilterCookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.filters, cookie)
}

// =============================================================================
// Lifecycle
// =============================================================================

func (s *Scheduler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close waits for the running batch, drops pending requests and stops the
// workers. Call WaitForDone first to flush pending work.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	clear(s.updates)
	clear(s.refresh)
	s.notify()
	s.mu.Unlock()

	close(s.quit)
	<-s.done
	s.pool.Close()

	tilepipe.Logger().Info("scheduler: stopped")
	return nil
}

// =============================================================================
// Dispatcher
// =============================================================================

// batch is one unit of execution: the requests taken at once.
type batch struct {
	id      ulid.ULID
	ctx     context.Context
	updates map[Node]*Region
	refresh map[Node]*Region
}

// dispatch is the dispatcher goroutine.
func (s *Scheduler) dispatch() {
	defer close(s.done)

	for {
		select {
		case <-s.wake:
		case <-s.quit:
			return
		}

		if d := s.opts.batchDelay; d > 0 {
			t := time.NewTimer(d)
			select {
			case <-t.C:
			case <-s.quit:
				t.Stop()
				return
			}
		}

		for b := s.take(); b != nil; b = s.take() {
			s.finish(b, s.execute(b))
		}
	}
}

// take moves the pending requests into a new batch, or returns nil if the
// scheduler is locked, blocked, closed or has nothing to do.
func (s *Scheduler) take() *batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.locks > 0 || s.blocks > 0 || (len(s.updates) == 0 && len(s.refresh) == 0) {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &batch{
		id:      ulid.Make(),
		ctx:     ctx,
		updates: s.updates,
		refresh: s.refresh,
	}
	s.updates = make(map[Node]*Region)
	s.refresh = make(map[Node]*Region)
	s.running = true
	s.cancel = cancel
	return b
}

// finish records the outcome of b and wakes waiters.
func (s *Scheduler) finish(b *batch, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
	s.cancel = nil
	s.running = false
	if err != nil {
		s.errs = append(s.errs, err)
	}
	s.notify()
}
