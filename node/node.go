package node

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	mrand "math/rand"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/Solar-network/go-slp/chain"
	"github.com/Solar-network/go-slp/core"
	"github.com/Solar-network/go-slp/params"
)

// Node owns the gossip state of a go-slp instance: the peer registry,
// the consensus table and the three workers (Broadcaster, Messenger,
// HTTP server). All shared state mutation funnels through them.
type Node struct {
	config  *params.Config
	store   *core.Store
	datadir string
	url     string // advertised public URL

	peers       *PeerSet
	consensus   *Consensus
	broadcaster *Broadcaster
	messenger   *Messenger
	transport   Transport

	// back-fill activity gate, webhook blocks are dropped while set
	syncing func() bool
	parser  *chain.Parser
}

// New assembles a node. The parser receives webhook blocks once
// syncing() turns false; both may be nil for gossip-only nodes.
func New(config *params.Config, store *core.Store, transport Transport, datadir, url string) *Node {
	n := &Node{
		config:    config,
		store:     store,
		datadir:   datadir,
		url:       url,
		peers:     NewPeerSet(config.PeerLimit()),
		consensus: NewConsensus(),
		transport: transport,
		syncing:   func() bool { return false },
	}
	n.broadcaster = NewBroadcaster(transport)
	n.messenger = NewMessenger(n, config.MessageMemorySize())
	return n
}

// AttachPipeline wires the block intake: webhook blocks reach parser
// only when syncing() reports false.
func (n *Node) AttachPipeline(parser *chain.Parser, syncing func() bool) {
	n.parser = parser
	n.syncing = syncing
}

// URL returns the advertised address of this node.
func (n *Node) URL() string { return n.url }

// Peers exposes the registry, for the /peers endpoint.
func (n *Node) Peers() *PeerSet { return n.peers }

// Messenger exposes the inbound queue, for the HTTP handlers.
func (n *Node) Messenger() *Messenger { return n.messenger }

// Consensus exposes the pending ratification table.
func (n *Node) Consensus() *Consensus { return n.consensus }

// Start launches the gossip workers.
func (n *Node) Start() {
	n.broadcaster.Start()
	n.messenger.Start()
}

// Stop terminates the gossip workers.
func (n *Node) Stop() {
	n.messenger.Stop()
	n.broadcaster.Stop()
}

// send queues msg for the given peers, the whole registry when none
// are listed.
func (n *Node) send(msg *Message, peers ...string) {
	if len(peers) == 0 {
		peers = n.peers.List()
	}
	n.broadcaster.Broadcast(msg, peers...)
}

// Discovery announces this node to the listed peers (the whole
// registry when none are listed).
func (n *Node) Discovery(peers ...string) {
	n.send(&Message{Hello: &Hello{Peer: n.url}}, peers...)
}

// ProspectPeers recursively walks peer lists until the registry bound
// is reached. A peer missing one of our known peers receives a hello
// so the link becomes bidirectional.
func (n *Node) ProspectPeers(peers ...string) {
	if n.peers.Full() {
		return
	}
	log.Debugf("prospecting %d peer(s)", len(peers))
	for _, peer := range peers {
		if peer == n.url || n.peers.Full() {
			continue
		}
		theirPeers, err := n.transport.PeerList(peer)
		if err != nil {
			continue
		}
		n.peers.Add(peer)
		known := make(map[string]bool, len(theirPeers))
		for _, p := range theirPeers {
			known[p] = true
		}
		missing := false
		for _, p := range n.peers.List() {
			if !known[p] {
				missing = true
				break
			}
		}
		if missing {
			n.Discovery(peer)
		}
		var unknown []string
		for _, p := range theirPeers {
			if !n.peers.Contains(p) && p != n.url {
				unknown = append(unknown, p)
			}
		}
		if len(unknown) > 0 {
			n.ProspectPeers(unknown...)
		}
	}
}

// BindCallback opens a consensus on a freshly journalled record: the
// callback fires once half the registry consents with the same PoH.
func (n *Node) BindCallback(record *core.Record, callback func()) {
	blockstamp := record.Blockstamp().String()
	n.consensus.Bind(blockstamp, record.Poh, n.peers.Aim(), callback)
	n.send(&Message{Consensus: &ConsensusMsg{
		Origin:     n.url,
		Blockstamp: blockstamp,
		Hash:       core.FieldsHash(n.config.PohHashName(), record.Fields),
		N:          n.peers.Len(),
		X:          0,
	}})
}

func (n *Node) handleHello(msg *Hello) {
	n.ProspectPeers(msg.Peer)
	log.Infof("discovered peers: %d", n.peers.Len())
}

// handleConsensus answers a ratification request with this node's view
// of the record at the asked blockstamp. When the height is not
// journalled yet the request hops to a random peer, bounded by the
// origin-pinned peer count n and the visit counter x.
func (n *Node) handleConsensus(msg *ConsensusMsg) {
	bs, err := core.ParseBlockstamp(msg.Blockstamp)
	if err != nil {
		log.Infof("malformed consensus blockstamp %q", msg.Blockstamp)
		return
	}
	record, err := n.store.GetRecord(bs)
	if errors.Cause(err) == core.ErrNotFound {
		n.forwardConsensus(msg)
		return
	}
	if err != nil {
		log.WithError(err).Error("consensus lookup failed")
		return
	}
	// the chained result equals the stored poh exactly when the asked
	// hash matches this node's canonical field hash
	hashName := n.config.PohHashName()
	poh := record.Poh
	if core.FieldsHash(hashName, record.Fields) != msg.Hash {
		poh = core.ComputePoH(hashName, record.Poh, msg.Hash)
	}
	n.send(&Message{Consent: &Consent{
		Blockstamp: msg.Blockstamp,
		Poh:        poh,
		Nonce:      nonce(),
	}}, msg.Origin)
}

// forwardConsensus relays a request this node cannot answer to one
// random peer. x grows by one per hop and forwarding stops at n hops,
// bounding amplification.
func (n *Node) forwardConsensus(msg *ConsensusMsg) {
	if msg.X+1 >= msg.N {
		return
	}
	peers := n.peers.List()
	if len(peers) == 0 {
		return
	}
	hop := *msg
	hop.X++
	n.send(&Message{Consensus: &hop}, peers[mrand.Intn(len(peers))])
}

func (n *Node) handleConsent(msg *Consent) {
	n.consensus.Update(msg.Blockstamp, msg.Poh)
}

func nonce() string {
	var buf [32]byte
	rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}

// ScanTopology probes every base-layer peer for a gossip endpoint on
// the SLP port, persists the findings in topology.json and announces
// this node to them.
func (n *Node) ScanTopology(client chain.Client) {
	found := make(map[string]bool)
	path := filepath.Join(n.datadir, "topology.json")
	if blob, err := os.ReadFile(path); err == nil {
		var saved []string
		if json.Unmarshal(blob, &saved) == nil {
			for _, peer := range saved {
				found[peer] = true
			}
		}
	}
	listed, err := client.Peers(n.config.APIPeer())
	if err != nil {
		log.WithError(err).Error("topology scan aborted")
		return
	}
	for _, candidate := range listed {
		peer := fmt.Sprintf("http://%s:%d", candidate.IP, DefaultPort)
		if found[peer] {
			continue
		}
		if n.transport.Alive(peer) {
			found[peer] = true
			log.Infof("SLP peer found: %s", peer)
		}
	}
	peers := make([]string, 0, len(found))
	for peer := range found {
		peers = append(peers, peer)
	}
	if blob, err := json.Marshal(peers); err == nil {
		os.WriteFile(path, blob, 0600)
	}
	log.Infof("topology determination done (%d peers)", len(peers))
	n.Discovery(peers...)
}
