package chain

import (
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/Solar-network/go-slp/core"
	"github.com/Solar-network/go-slp/params"
)

const blocksPerPage = 100

// Mark is the back-fill progress file, dumped after every enqueued
// block so a restart resumes where the previous run stopped.
type Mark struct {
	Peer            string `json:"peer"`
	LastParsedBlock uint64 `json:"last parsed block"`
	Rebuild         bool   `json:"rebuild,omitempty"`
}

func markPath(datadir, database string) string {
	return filepath.Join(datadir, database+".mark")
}

// LoadMark reads the progress file; a missing file yields a zero Mark.
func LoadMark(datadir, database string) *Mark {
	mark := new(Mark)
	blob, err := os.ReadFile(markPath(datadir, database))
	if err != nil {
		return mark
	}
	if err := json.Unmarshal(blob, mark); err != nil {
		log.WithError(err).Error("unreadable mark file, restarting from scratch")
		return new(Mark)
	}
	return mark
}

// Dump persists the progress file.
func (m *Mark) Dump(datadir, database string) error {
	blob, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(markPath(datadir, database), blob, 0600)
}

// ClearMark removes the progress file.
func ClearMark(datadir, database string) {
	os.Remove(markPath(datadir, database))
}

// Processor is the back-fill worker: it pages base-layer blocks in
// ascending height and feeds the Parser queue until the chain tip is
// reached. While it runs, webhook deliveries are dropped by the node
// so no block is ingested twice.
type Processor struct {
	client  Client
	config  *params.Config
	store   *core.Store
	parser  *Parser
	datadir string

	active atomic.Bool
	quit   chan struct{}
	done   chan struct{}
}

// NewProcessor wires the back-fill worker on top of a running Parser.
func NewProcessor(client Client, config *params.Config, store *core.Store, parser *Parser, datadir string) *Processor {
	return &Processor{
		client:  client,
		config:  config,
		store:   store,
		parser:  parser,
		datadir: datadir,
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Active reports whether the back-fill is still running.
func (p *Processor) Active() bool { return p.active.Load() }

// Start launches the back-fill loop.
func (p *Processor) Start() {
	p.active.Store(true)
	go p.run()
	log.Info("processor set")
}

// Stop terminates the back-fill early.
func (p *Processor) Stop() {
	select {
	case <-p.quit:
	default:
		close(p.quit)
	}
	<-p.done
}

// startHeight resumes from the furthest of the first protocol
// activation, the mark file and the journal tail.
func (p *Processor) startHeight(mark *Mark) uint64 {
	start := p.config.FirstMilestoneHeight()
	if mark.LastParsedBlock > start {
		start = mark.LastParsedBlock
	}
	if tail, ok := p.store.TailBlockstamp(); ok && tail.Height > start {
		start = tail.Height
	}
	return start
}

func (p *Processor) run() {
	defer close(p.done)
	defer p.active.Store(false)

	database := p.config.DatabaseName()
	mark := LoadMark(p.datadir, database)
	peers := SelectPeers(p.client, p.config.APIPeer())
	peer := mark.Peer
	if peer == "" {
		peer = peers[rand.Intn(len(peers))]
	}

	lastParsed := p.startHeight(mark)
	page := int(lastParsed/blocksPerPage) - 1
	if page < 1 {
		page = 1
	}
	log.Infof("start downloading blocks from height %d", lastParsed)

	for {
		select {
		case <-p.quit:
			return
		default:
		}

		blocks, more, err := p.client.Blocks(peer, page, blocksPerPage)
		if err != nil {
			log.WithError(err).Infof("no block from %s", peer)
			peers = remove(peers, peer)
			if len(peers) <= 1 {
				peers = SelectPeers(p.client, p.config.APIPeer())
			}
			peer = peers[rand.Intn(len(peers))]
			continue
		}

		enqueued := 0
		for _, block := range blocks {
			if block.Transactions == 0 || block.Height <= lastParsed {
				continue
			}
			p.parser.Enqueue(block)
			lastParsed = block.Height
			enqueued++
			mark.Peer, mark.LastParsedBlock = peer, block.Height
			if err := mark.Dump(p.datadir, database); err != nil {
				log.WithError(err).Error("can not persist mark file")
			}
		}
		log.Infof("fetched %d block(s) from page %d", enqueued, page)

		if !more {
			log.Info("end of block pages reached")
			return
		}
		page++
	}
}
