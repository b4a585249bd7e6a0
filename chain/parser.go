package chain

import (
	"encoding/json"
	"math"
	"math/rand"
	"sync"

	"github.com/Solar-network/go-slp/core"
	"github.com/Solar-network/go-slp/params"
	"github.com/Solar-network/go-slp/smartbridge"
)

// WebhookEvent is the envelope of a block.applied delivery.
type WebhookEvent struct {
	Timestamp float64 `json:"timestamp"`
	Event     string  `json:"event"`
	Data      *Block  `json:"data"`
}

// Block homogenizes the webhook shape into the REST one: the envelope
// carries a millisecond wall clock which is floored to a blocktime
// multiple, and the transaction count moves to its REST name.
func (e *WebhookEvent) Block(blocktime float64) *Block {
	block := e.Data
	if block == nil {
		return nil
	}
	unix := e.Timestamp / 1000
	block.Timestamp = unix - math.Mod(unix, blocktime)
	return block
}

// readVendorField extracts an SLP contract from a vendor field, trying
// plain JSON ({"_slpN": {fields}}) before the smartbridge codec.
// Returns ok=false when the field holds neither.
func readVendorField(codec *smartbridge.Codec, vendorField string, height uint64) (string, map[string]interface{}, bool) {
	var decoded map[string]map[string]interface{}
	if err := json.Unmarshal([]byte(vendorField), &decoded); err == nil && len(decoded) == 1 {
		for slpType, fields := range decoded {
			return slpType, fields, fields != nil
		}
	}
	slpType, fields, err := codec.Unpack(vendorField, height)
	if err != nil {
		return "", nil, false
	}
	return slpType, fields, true
}

// Parser is the single worker draining the block queue. It holds an
// exclusive lock for the whole parsing of a block so journal appends,
// PoH derivation and engine application stay serial.
type Parser struct {
	client Client
	config *params.Config
	store  *core.Store
	engine *core.Engine
	codec  *smartbridge.Codec

	jobs chan *Block
	head *Block // requeued block, drained before the channel
	lock sync.Mutex
	quit chan struct{}
	done chan struct{}
}

// NewParser wires the block worker. Start must be called before
// Enqueue has any effect.
func NewParser(client Client, config *params.Config, store *core.Store, engine *core.Engine) *Parser {
	return &Parser{
		client: client,
		config: config,
		store:  store,
		engine: engine,
		codec:  smartbridge.New(config),
		jobs:   make(chan *Block, 1024),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Enqueue pushes a block at the tail of the work queue.
func (p *Parser) Enqueue(block *Block) {
	select {
	case p.jobs <- block:
	case <-p.quit:
	}
}

// Pending returns the queued block count.
func (p *Parser) Pending() int { return len(p.jobs) }

// Start launches the worker loop.
func (p *Parser) Start() {
	go p.run()
	log.Info("block parser set")
}

// Stop terminates the worker and waits for the in-flight block.
func (p *Parser) Stop() {
	close(p.quit)
	<-p.done
	log.Info("block parser clean exit")
}

func (p *Parser) run() {
	defer close(p.done)

	peers := SelectPeers(p.client, p.config.APIPeer())
	peer := peers[rand.Intn(len(peers))]
	for {
		block := p.head
		p.head = nil
		if block == nil {
			select {
			case <-p.quit:
				return
			case block = <-p.jobs:
			}
		}
		p.lock.Lock()
		err := p.parseBlock(block, peer)
		if err != nil {
			log.WithError(err).Errorf("pushing back block %d", block.Height)
			// requeue at head so the block is retried first, and move
			// away from the failing peer
			p.head = block
			peers = remove(peers, peer)
			if len(peers) <= 1 {
				peers = SelectPeers(p.client, p.config.APIPeer())
			}
			peer = peers[rand.Intn(len(peers))]
		}
		p.lock.Unlock()
	}
}

func remove(peers []string, peer string) []string {
	out := peers[:0]
	for _, p := range peers {
		if p != peer {
			out = append(out, p)
		}
	}
	return out
}

// parseBlock journals every SLP contract found in the block's transfer
// transactions and settles each record through the engine, in index
// order. Caller holds the parser lock.
func (p *Parser) parseBlock(block *Block, peer string) error {
	transactions, err := p.client.BlockTransactions(peer, block.ID)
	if err != nil {
		return err
	}
	// a peer serving a truncated transaction list would skew the journal
	if len(transactions) != block.Transactions {
		return ErrIntegrityBreach
	}
	log.Infof("parsing %3d transaction(s) from block %d", block.Transactions, block.Height)

	interval := p.config.Blocktime() / float64(block.Transactions+1)
	for i, tx := range transactions {
		if tx.Type != 0 || tx.VendorField == "" {
			continue
		}
		index := uint16(i + 1)
		slpType, fields, ok := readVendorField(p.codec, tx.VendorField, block.Height)
		if !ok {
			continue
		}
		if !contains(p.config.SlpTypes(block.Height), slpType) {
			log.Infof("unknown SLP contract found: %s", slpType)
			continue
		}
		log.Infof("SLP contract found: %s->%v", slpType, fields["tp"])

		if tp, _ := fields["tp"].(string); tp == "GENESIS" {
			sy, _ := fields["sy"].(string)
			if contains(p.config.DeniedTickers(block.Height), sy) {
				log.Infof("%q ticker is denied", sy)
				continue
			}
			fields["id"] = core.TokenID(slpType, sy, block.Height, tx.ID)
		}
		timestamp := block.Timestamp + interval*float64(index)

		record, err := p.store.AddRecord(
			block.Height, index, tx.ID, slpType, timestamp,
			tx.Sender, tx.Recipient, tx.Amount, fields,
		)
		if err != nil {
			log.WithError(err).Errorf("tx %s in block %d refused", tx.ID, block.Height)
			continue
		}
		if _, err := p.engine.Apply(record); err != nil {
			log.WithError(err).Errorf("tx %s in block %d not settled", tx.ID, block.Height)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
