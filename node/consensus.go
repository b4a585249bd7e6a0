package node

import "sync"

// pending is one consensus in progress: the PoH the local node expects
// its peers to confirm and the callback fired once the quorum is met.
type pending struct {
	poh      string
	aim      int
	quorum   int
	callback func()
}

// Consensus is the table of pending ratifications, keyed by
// blockstamp. Insert, increment and trigger are atomic under one
// mutex and a callback fires exactly once.
type Consensus struct {
	mu   sync.Mutex
	jobs map[string]*pending
}

// NewConsensus returns an empty table.
func NewConsensus() *Consensus {
	return &Consensus{jobs: make(map[string]*pending)}
}

// Bind registers a callback fired when aim peers consent with poh on
// the record at blockstamp. An aim of zero fires immediately since no
// peer can answer an empty registry.
func (c *Consensus) Bind(blockstamp, poh string, aim int, callback func()) {
	if aim <= 0 {
		callback()
		return
	}
	c.mu.Lock()
	c.jobs[blockstamp] = &pending{poh: poh, aim: aim, callback: callback}
	c.mu.Unlock()
}

// Update handles one consent: the quorum grows iff poh matches the
// pending one. Returns true when the callback fired; consents on an
// unknown or already settled blockstamp are no-ops.
func (c *Consensus) Update(blockstamp, poh string) bool {
	c.mu.Lock()
	job, ok := c.jobs[blockstamp]
	if !ok {
		c.mu.Unlock()
		log.Infof("no consensus initialized at blockstamp %s", blockstamp)
		return false
	}
	if job.poh == poh {
		job.quorum++
	}
	fired := job.quorum >= job.aim
	if fired {
		delete(c.jobs, blockstamp)
	}
	c.mu.Unlock()

	if fired {
		job.callback()
	}
	return fired
}

// Pending reports whether a consensus is still open at blockstamp.
func (c *Consensus) Pending(blockstamp string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.jobs[blockstamp]
	return ok
}
