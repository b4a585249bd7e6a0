package node

import (
	"math"

	mapset "github.com/deckarep/golang-set"
)

// PeerSet is the bounded gossip peer registry. The bound keeps peer
// prospection from flooding the network.
type PeerSet struct {
	limit int
	set   mapset.Set
}

// NewPeerSet returns an empty registry holding at most limit peers.
func NewPeerSet(limit int) *PeerSet {
	return &PeerSet{limit: limit, set: mapset.NewSet()}
}

// Add registers a peer URL. Returns false when the peer is already
// known or the registry is full.
func (p *PeerSet) Add(peer string) bool {
	if p.set.Cardinality() >= p.limit {
		return false
	}
	return p.set.Add(peer)
}

// Remove forgets a peer.
func (p *PeerSet) Remove(peer string) { p.set.Remove(peer) }

// Contains reports whether a peer is registered.
func (p *PeerSet) Contains(peer string) bool { return p.set.Contains(peer) }

// Full reports whether the prospection bound is reached.
func (p *PeerSet) Full() bool { return p.set.Cardinality() >= p.limit }

// Len returns the registered peer count.
func (p *PeerSet) Len() int { return p.set.Cardinality() }

// List snapshots the registry.
func (p *PeerSet) List() []string {
	items := p.set.ToSlice()
	peers := make([]string, 0, len(items))
	for _, item := range items {
		peers = append(peers, item.(string))
	}
	return peers
}

// Aim is the quorum needed to ratify a record: half the registry,
// rounded up.
func (p *PeerSet) Aim() int {
	return int(math.Ceil(float64(p.Len()) / 2))
}
