package chain

import (
	"strings"
	"sync"
)

// nonceLane serializes operator transaction nonces: callers draw a nonce in
// strict FIFO arrival order via a mutex, lazily seed from the chain on first
// use, and re-seed on the next call after a nonce-desync error.
type nonceLane struct {
	mu      sync.Mutex
	seeded  bool
	next    uint64
	reseeds uint64
	seedFn  func() (uint64, error)
}

func newNonceLane(seedFn func() (uint64, error)) *nonceLane {
	return &nonceLane{seedFn: seedFn}
}

// withNonce draws the next nonce, calls fn with it, and applies the reseed
// rule based on fn's returned error. The lane stays locked across fn so
// submissions from different callers reach the chain in strict arrival
// order rather than racing each other once the nonce is drawn.
func (n *nonceLane) withNonce(fn func(nonce uint64) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.seeded {
		seed, err := n.seedFn()
		if err != nil {
			return err
		}
		n.next = seed
		n.seeded = true
	}
	nonce := n.next
	n.next++

	err := fn(nonce)
	if err != nil && isNonceDesyncError(err) {
		n.seeded = false
		n.reseeds++
	}
	return err
}

// isNonceDesyncError matches the reseed trigger condition: the error
// message contains "nonce" together with any of low/used/already/invalid/
// "out of order".
func isNonceDesyncError(err error) bool {
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "nonce") {
		return false
	}
	for _, marker := range []string{"low", "used", "already", "invalid", "out of order"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Stats reports the nonce lane's current counter and reseed count, used by
// the health-check surface.
type Stats struct {
	NextNonce uint64
	Reseeds   uint64
	Seeded    bool
}

func (n *nonceLane) stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Stats{NextNonce: n.next, Reseeds: n.reseeds, Seeded: n.seeded}
}
