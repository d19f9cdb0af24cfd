// Package scheduler ranks loaded scenes by priority and grants ticks to
// idle workers under a per-frame wall-clock budget (§4.D "Scene
// scheduler").
//
// Grounded on the pulse/async/worker.go WorkerPool: a context/
// cancel pair plus a WaitGroup for graceful shutdown, and its
// RateLimiter-gated loop shape — adapted here from a job-queue poll loop
// to a per-frame rank-and-grant pass, since §4.D's budget is a wall-
// clock remainder rather than a calls-per-minute ceiling (see DESIGN.md
// for why ratelimit.Limiter is used for restart throttling instead of
// frame-budget gating).
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coreworld/explorer/dispatch"
	"github.com/coreworld/explorer/logger"
	"github.com/coreworld/explorer/ratelimit"
	"github.com/coreworld/explorer/scene"
	"github.com/coreworld/explorer/scriptworker"
)

// Entry binds a scene context to its worker and the bookkeeping the
// scheduler needs to rank and grant it ticks.
type Entry struct {
	Scene  *scene.Context
	Worker *scriptworker.Worker

	// ParcelDistance is the distance in parcels from the primary player to
	// the nearest parcel this scene occupies, used for the priority's
	// distance term (§4.D).
	ParcelDistance float32
	// ContainsPlayer reports whether the primary player's current parcel
	// is one of this scene's parcels (§4.D "large boost").
	ContainsPlayer bool

	// lastGrant is when this scene last received a tick. dt for the next
	// grant is computed directly from the gap since lastGrant, which is
	// how skipped frames' elapsed time folds into the next grant without
	// separate bookkeeping (§4.D last sentence).
	lastGrant    time.Time
	hasLastGrant bool
}

// priority computes the rank score (§4.D): base priority inversely
// proportional to distance, a large boost when the player is inside the
// scene, a penalty proportional to time since last run, and portable
// scenes pinned between containing and non-containing scenes.
func (e *Entry) priority(now time.Time) float32 {
	distanceTerm := 1.0 / (1.0 + e.ParcelDistance)
	score := distanceTerm

	if e.ContainsPlayer {
		score += 1000
	} else if e.Scene.IsPortable {
		score += 500
	}

	if e.hasLastGrant {
		penalty := float32(now.Sub(e.lastGrant).Seconds())
		score += penalty
	} else {
		score += 1e6 // never-run scenes sort first
	}

	return score
}

// Scheduler holds the set of loaded scenes and grants ticks in priority
// order each frame (§4.D).
type Scheduler struct {
	mu      sync.Mutex
	entries map[scene.ID]*Entry

	restartLimiter *ratelimit.Limiter
	frameCounter   uint32

	now func() time.Time
}

// New creates an empty scheduler. restartsPerMinute sizes the
// sliding-window limiter (the same one the async worker pool uses) that
// handleFault counts worker faults against across all scenes; going over
// it is only logged.
func New(restartsPerMinute int) *Scheduler {
	return &Scheduler{
		entries:        make(map[scene.ID]*Entry),
		restartLimiter: ratelimit.NewLimiter(restartsPerMinute),
		now:            time.Now,
	}
}

// Add registers a newly spawned scene/worker pair.
func (s *Scheduler) Add(entry *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Scene.ID] = entry
}

// Remove drops a scene from scheduling, called once its worker has been
// stopped during lifecycle teardown.
func (s *Scheduler) Remove(id scene.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Len reports how many scenes are currently scheduled.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// eligible reports whether entry may receive a tick grant this frame
// (§4.D: not broken, not blocked, worker idle).
func eligible(e *Entry) bool {
	return !e.Worker.Broken() && !e.Scene.Blocked() && e.Worker.Idle()
}

const maxClampedDT = 250 * time.Millisecond

// RunFrame ranks all scheduled scenes and grants ticks in priority order
// until budget runs out or no eligible worker remains, then returns the
// number of scenes actually ticked (§4.D).
func (s *Scheduler) RunFrame(ctx context.Context, disp *dispatch.Dispatcher, budget time.Duration) int {
	s.mu.Lock()
	ranked := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		ranked = append(ranked, e)
	}
	s.mu.Unlock()

	now := s.now()
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].priority(now) > ranked[j].priority(now)
	})

	s.frameCounter++
	frame := s.frameCounter

	granted := 0
	deadline := now.Add(budget)

	for _, entry := range ranked {
		if s.now().After(deadline) {
			logger.SchedDebugw("frame budget exhausted", "frame", frame, "granted", granted)
			break
		}
		if !eligible(entry) {
			continue
		}

		var dt time.Duration
		if entry.hasLastGrant {
			dt = s.now().Sub(entry.lastGrant)
		}
		if dt > maxClampedDT {
			dt = maxClampedDT
		}

		entry.lastGrant = s.now()
		entry.hasLastGrant = true

		if err := entry.Worker.Tick(ctx, float32(dt.Seconds()), disp); err != nil {
			logger.SchedDebugw("worker tick failed", "scene_id", entry.Scene.ID, "error", err)
			s.handleFault(entry)
			continue
		}
		entry.Scene.AdvanceTick(frame)
		granted++
	}

	return granted
}

// handleFault blocks a faulted scene with BlockedWorkerRestart, which
// nothing clears afterwards, so the scheduler never grants it another tick
// (§4.C "Error handling"). It also counts the fault against
// restartLimiter and logs when the per-minute budget is exceeded; no
// worker restart is performed.
func (s *Scheduler) handleFault(entry *Entry) {
	entry.Scene.Block(scene.BlockedWorkerRestart)
	if err := s.restartLimiter.Allow(); err != nil {
		logger.SchedDebugw("restart rate limited", "scene_id", entry.Scene.ID, "error", err)
	}
}

// Fairness reports the maximum number of consecutive frames any eligible
// scene in the set has gone without a grant, for the scheduler fairness
// property (§8: must stay ≤ N for N > 2×live_scenes). Exposed for
// tests rather than used internally.
func Fairness(gapsByScene map[scene.ID]int) int {
	max := 0
	for _, gap := range gapsByScene {
		if gap > max {
			max = gap
		}
	}
	return max
}
