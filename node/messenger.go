package node

import (
	"encoding/json"

	"github.com/Solar-network/go-slp/chain"
)

// inbound is one raw HTTP payload waiting for dispatch, with the
// authorization header of webhook deliveries.
type inbound struct {
	body          []byte
	authorization string
}

// Messenger is the single worker serializing inbound message dispatch.
// A bounded Memory in front of the queue drops duplicates, so gossip
// loops die out.
type Messenger struct {
	node   *Node
	memory *Memory
	jobs   chan *inbound
	quit   chan struct{}
	done   chan struct{}
}

// NewMessenger wires the inbound worker with a dedup window of
// memorySize entries.
func NewMessenger(node *Node, memorySize int) *Messenger {
	return &Messenger{
		node:   node,
		memory: NewMemory(memorySize),
		jobs:   make(chan *inbound, 256),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Put queues a payload for dispatch. Returns false when the payload
// was already seen within the dedup window.
func (m *Messenger) Put(body []byte, authorization string) bool {
	if m.memory.Seen(body) {
		return false
	}
	select {
	case m.jobs <- &inbound{body: body, authorization: authorization}:
		return true
	case <-m.quit:
		return false
	}
}

// Start launches the dispatch loop.
func (m *Messenger) Start() {
	go m.run()
	log.Info("messenger set")
}

// Stop terminates the dispatch loop; queued payloads are dropped.
func (m *Messenger) Stop() {
	close(m.quit)
	<-m.done
	log.Info("messenger clean exit")
}

func (m *Messenger) run() {
	defer close(m.done)
	for {
		select {
		case <-m.quit:
			return
		case in := <-m.jobs:
			m.dispatch(in)
		}
	}
}

// dispatch routes one payload: webhook deliveries carry an "event"
// entry, everything else is a gossip Message.
func (m *Messenger) dispatch(in *inbound) {
	var probe struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(in.body, &probe); err == nil && probe.Event != "" {
		m.node.handleBlock(in)
		return
	}
	var msg Message
	if err := json.Unmarshal(in.body, &msg); err != nil {
		log.WithError(err).Info("unreadable message dropped")
		return
	}
	switch {
	case msg.Hello != nil:
		m.node.handleHello(msg.Hello)
	case msg.Consensus != nil:
		m.node.handleConsensus(msg.Consensus)
	case msg.Consent != nil:
		m.node.handleConsent(msg.Consent)
	default:
		log.Infof("unknown message dropped: %s", in.body)
	}
}

// handleBlock feeds an authenticated webhook delivery to the block
// parser. Deliveries are dropped while the back-fill runs so no block
// is ingested twice.
func (n *Node) handleBlock(in *inbound) {
	if !chain.CheckWebhookToken(n.datadir, in.authorization) {
		log.Info("webhook auth failed")
		return
	}
	if n.syncing() {
		log.Info("waiting for blockchain sync, webhook request dropped")
		return
	}
	var event chain.WebhookEvent
	if err := json.Unmarshal(in.body, &event); err != nil {
		log.WithError(err).Info("unreadable webhook delivery dropped")
		return
	}
	block := event.Block(n.config.Blocktime())
	if block == nil {
		return
	}
	log.Infof("genuine block header received: height %d", block.Height)
	if n.parser != nil {
		n.parser.Enqueue(block)
	}
}
