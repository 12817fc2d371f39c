package sim

import "sync"

// DiscardReason explains why an offered result was not stored.
type DiscardReason string

const (
	DiscardDuplicate DiscardReason = "duplicate" // the service's cell was already filled
	DiscardLate      DiscardReason = "late"      // arrived after the collection was sealed
	DiscardUnknown   DiscardReason = "unknown"   // service not registered with the collection
	DiscardRaceLoser DiscardReason = "race-loser" // a replica answered after its race resolved
)

// DiscardedResult is an entry of the discard sink.
type DiscardedResult struct {
	Result Result
	Reason DiscardReason
}

// ResultCollection holds at most one Result per service for a single search.
// Each service owns a set-once cell: the first Offer fills it, every further
// Offer for that service is dropped into the discard sink. After Seal the
// collection is read-only and every Offer goes to the sink.
type ResultCollection struct {
	mu        sync.Mutex
	order     []string
	cells     map[string]*Result
	sealed    bool
	discarded []DiscardedResult
}

// NewResultCollection creates an empty collection with one cell per service.
// Results are reported in the order services are listed here.
func NewResultCollection(services []string) *ResultCollection {
	c := &ResultCollection{
		order: make([]string, 0, len(services)),
		cells: make(map[string]*Result, len(services)),
	}
	for _, s := range services {
		if _, ok := c.cells[s]; ok {
			continue
		}
		c.order = append(c.order, s)
		c.cells[s] = nil
	}
	return c
}

// Offer stores r in the cell of r.Service. Returns false, without error,
// when the result was dropped instead.
func (c *ResultCollection) Offer(r Result) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cell, known := c.cells[r.Service]
	switch {
	case c.sealed:
		c.discarded = append(c.discarded, DiscardedResult{Result: r, Reason: DiscardLate})
		return false
	case !known:
		c.discarded = append(c.discarded, DiscardedResult{Result: r, Reason: DiscardUnknown})
		return false
	case cell != nil:
		c.discarded = append(c.discarded, DiscardedResult{Result: r, Reason: DiscardDuplicate})
		return false
	}
	stored := r
	c.cells[r.Service] = &stored
	return true
}

// Discard sends r straight to the discard sink without touching any cell.
func (c *ResultCollection) Discard(r Result, reason DiscardReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discarded = append(c.discarded, DiscardedResult{Result: r, Reason: reason})
}

// Seal closes the collection and returns the filled cells in service order.
// Sealing twice returns the same snapshot.
func (c *ResultCollection) Seal() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
	return c.snapshotLocked()
}

// Sealed reports whether Seal has been called.
func (c *ResultCollection) Sealed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sealed
}

// Results returns a copy of the filled cells in service order.
func (c *ResultCollection) Results() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Len returns the number of filled cells.
func (c *ResultCollection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, cell := range c.cells {
		if cell != nil {
			n++
		}
	}
	return n
}

// Missing returns the services whose cell is still empty, in service order.
func (c *ResultCollection) Missing() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var missing []string
	for _, s := range c.order {
		if c.cells[s] == nil {
			missing = append(missing, s)
		}
	}
	return missing
}

// Discarded returns a copy of the discard sink.
func (c *ResultCollection) Discarded() []DiscardedResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]DiscardedResult, len(c.discarded))
	copy(out, c.discarded)
	return out
}

func (c *ResultCollection) snapshotLocked() []Result {
	out := make([]Result, 0, len(c.order))
	for _, s := range c.order {
		if cell := c.cells[s]; cell != nil {
			out = append(out, *cell)
		}
	}
	return out
}
