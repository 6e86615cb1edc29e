package reservation

import "sync"

const stripes = 64

// slotLocks serialises work per slot. Unrelated slots rarely share a stripe,
// and each operation takes exactly one stripe so there is no lock ordering.
type slotLocks struct {
	mu [stripes]sync.Mutex
}

// lock takes the stripe for slotID. A nil slot maps to stripe zero.
func (l *slotLocks) lock(slotID *int64) func() {
	var key uint64
	if slotID != nil {
		key = uint64(*slotID)
	}
	m := &l.mu[key%stripes]
	m.Lock()
	return m.Unlock
}

func sameSlot(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
