package orchestrator

import "sync"

// hashSets is the single owning coordinator for the orchestrator's in-memory
// inflight/processed hash sets: a guarded set with
// single-owner mutation rather than a process-wide global, created at
// startup and retired on shutdown along with the orchestrator itself.
type hashSets struct {
	mu        sync.Mutex
	inflight  map[string]struct{}
	processed map[string]struct{}
}

func newHashSets() *hashSets {
	return &hashSets{
		inflight:  make(map[string]struct{}),
		processed: make(map[string]struct{}),
	}
}

// tryBeginProcessing atomically checks processed/inflight membership and, if
// clear, inserts hash into inflight — the check-then-insert this needs to stay
// be atomic with respect to other tasks for the same hash.
func (h *hashSets) tryBeginProcessing(hash string) (alreadyClaimed, inflight bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.processed[hash]; ok {
		return true, false
	}
	if _, ok := h.inflight[hash]; ok {
		return false, true
	}
	h.inflight[hash] = struct{}{}
	return false, false
}

// finish removes hash from inflight and, if claimed is true, records it in
// processed so later idempotent retries short-circuit without any
// Lightning or chain traffic.
func (h *hashSets) finish(hash string, claimed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.inflight, hash)
	if claimed {
		h.processed[hash] = struct{}{}
	}
}
