package session

import "time"

// Pin is a small, high-priority text snippet that survives compaction until
// its TTL elapses (spec §3 "Context Pin").
type Pin struct {
	ID       string
	Content  string
	Priority int
	ExpireAt *time.Time // nil means no TTL
}

// Expired reports whether the pin's TTL has elapsed as of now.
func (p Pin) Expired(now time.Time) bool {
	return p.ExpireAt != nil && now.After(*p.ExpireAt)
}

// pinSet is the byte-budgeted collection of live pins.
type pinSet struct {
	byID        map[string]Pin
	budgetBytes int
}

func newPinSet(budgetBytes int) *pinSet {
	return &pinSet{byID: make(map[string]Pin), budgetBytes: budgetBytes}
}

// add inserts or replaces a pin.
func (ps *pinSet) add(p Pin) {
	ps.byID[p.ID] = p
}

// remove deletes a pin by ID.
func (ps *pinSet) remove(id string) {
	delete(ps.byID, id)
}

// live returns non-expired pins, highest priority first, trimmed to fit
// budgetBytes (spec §3/§4.I: "pins occupy at most pins.budget_tokens").
func (ps *pinSet) live(now time.Time) []Pin {
	var all []Pin
	for _, p := range ps.byID {
		if !p.Expired(now) {
			all = append(all, p)
		}
	}
	// simple stable insertion sort by descending priority; pin counts are
	// small enough that this never matters for performance.
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].Priority > all[j-1].Priority; j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}

	var kept []Pin
	used := 0
	for _, p := range all {
		n := len(p.Content)
		if ps.budgetBytes > 0 && used+n > ps.budgetBytes {
			continue
		}
		used += n
		kept = append(kept, p)
	}
	return kept
}

// sweepExpired drops TTL-expired pins from the set.
func (ps *pinSet) sweepExpired(now time.Time) {
	for id, p := range ps.byID {
		if p.Expired(now) {
			delete(ps.byID, id)
		}
	}
}
