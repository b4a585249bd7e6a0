package node

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/Solar-network/go-slp/chain"
	"github.com/Solar-network/go-slp/core"
	"github.com/Solar-network/go-slp/params"
	"github.com/Solar-network/go-slp/slpdb/memorydb"
)

type post struct {
	peer string
	msg  *Message
}

type fakeTransport struct {
	mu        sync.Mutex
	posts     []post
	peerLists map[string][]string
	alive     map[string]bool
}

func (f *fakeTransport) PostMessage(peer string, msg *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, post{peer: peer, msg: msg})
	return nil
}

func (f *fakeTransport) PeerList(peer string) ([]string, error) {
	list, ok := f.peerLists[peer]
	if !ok {
		return nil, errors.New("unreachable")
	}
	return list, nil
}

func (f *fakeTransport) Alive(peer string) bool { return f.alive[peer] }

func (f *fakeTransport) sent() []post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]post(nil), f.posts...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func newTestNode(t *testing.T) (*Node, *fakeTransport, *core.Store) {
	t.Helper()
	config := params.TestConfig()
	store := core.NewStore(memorydb.New(), config, "")
	t.Cleanup(func() { store.Close() })
	transport := &fakeTransport{peerLists: map[string][]string{}, alive: map[string]bool{}}
	n := New(config, store, transport, t.TempDir(), "http://me:5201")
	return n, transport, store
}

func TestPeerSet(t *testing.T) {
	set := NewPeerSet(2)
	if !set.Add("http://a") || !set.Add("http://b") {
		t.Fatal("fresh peers refused")
	}
	if set.Add("http://a") {
		t.Fatal("duplicate accepted")
	}
	if set.Add("http://c") {
		t.Fatal("bound ignored")
	}
	if !set.Full() || set.Len() != 2 {
		t.Fatalf("registry state: len %d", set.Len())
	}
	if set.Aim() != 1 {
		t.Fatalf("aim mismatch: %d", set.Aim())
	}
	set.Remove("http://a")
	if set.Contains("http://a") || set.Len() != 1 {
		t.Fatal("removal failed")
	}
}

func TestMemoryDedup(t *testing.T) {
	mem := NewMemory(2)
	if mem.Seen([]byte(`{"a":1,"b":2}`)) {
		t.Fatal("fresh body seen")
	}
	// same JSON, different key order
	if !mem.Seen([]byte(`{"b":2,"a":1}`)) {
		t.Fatal("canonical duplicate missed")
	}
	mem.Seen([]byte(`{"c":3}`))
	mem.Seen([]byte(`{"d":4}`)) // evicts the oldest entry
	if mem.Seen([]byte(`{"a":1,"b":2}`)) {
		t.Fatal("evicted body still remembered")
	}
}

func TestConsensusQuorum(t *testing.T) {
	table := NewConsensus()
	fired := 0
	// four peers, quorum is two
	table.Bind("10#1", "feedbeef", 2, func() { fired++ })

	if table.Update("10#1", "deadbeef") {
		t.Fatal("mismatching consent counted")
	}
	if table.Update("10#1", "feedbeef") {
		t.Fatal("quorum reached too early")
	}
	if !table.Update("10#1", "feedbeef") {
		t.Fatal("quorum not reached")
	}
	if fired != 1 {
		t.Fatalf("callback fired %d times", fired)
	}
	if table.Pending("10#1") {
		t.Fatal("settled consensus still pending")
	}
	// late consent on a settled blockstamp is a no-op
	if table.Update("10#1", "feedbeef") {
		t.Fatal("late consent triggered")
	}
	if fired != 1 {
		t.Fatalf("callback refired: %d", fired)
	}
}

func TestConsensusEmptyRegistry(t *testing.T) {
	table := NewConsensus()
	fired := false
	table.Bind("10#1", "feedbeef", 0, func() { fired = true })
	if !fired {
		t.Fatal("lonely node never settles")
	}
	if table.Pending("10#1") {
		t.Fatal("immediate trigger left a pending entry")
	}
}

func addRecord(t *testing.T, store *core.Store, height uint64) *core.Record {
	t.Helper()
	record, err := store.AddRecord(height, 1, fmt.Sprintf("%064d", height), params.SLP1, 0,
		"A", "B", 1, map[string]interface{}{
			"tp": "SEND", "id": strings.Repeat("0", 32), "qt": 1.,
		})
	if err != nil {
		t.Fatal(err)
	}
	return record
}

func TestBindCallback(t *testing.T) {
	n, transport, store := newTestNode(t)
	n.peers.Add("http://a")
	n.peers.Add("http://b")
	n.broadcaster.Start()
	defer n.broadcaster.Stop()

	record := addRecord(t, store, 10)
	fired := false
	n.BindCallback(record, func() { fired = true })

	waitFor(t, func() bool { return len(transport.sent()) == 2 })
	for _, p := range transport.sent() {
		msg := p.msg.Consensus
		if msg == nil || msg.Blockstamp != "10#1" || msg.Origin != "http://me:5201" {
			t.Fatalf("consensus message mismatch: %+v", p.msg)
		}
		if msg.Hash != core.FieldsHash("sha256", record.Fields) {
			t.Fatalf("hash mismatch: %s", msg.Hash)
		}
		if msg.N != 2 || msg.X != 0 {
			t.Fatalf("forward bounds mismatch: n=%d x=%d", msg.N, msg.X)
		}
	}
	// aim is 1 with two peers
	if !n.consensus.Update("10#1", record.Poh) || !fired {
		t.Fatal("single consent should settle")
	}
}

func TestHandleConsensus(t *testing.T) {
	n, transport, store := newTestNode(t)
	n.broadcaster.Start()
	defer n.broadcaster.Stop()

	record := addRecord(t, store, 10)
	n.handleConsensus(&ConsensusMsg{
		Origin:     "http://asker",
		Blockstamp: "10#1",
		Hash:       core.FieldsHash("sha256", record.Fields),
	})
	waitFor(t, func() bool { return len(transport.sent()) == 1 })
	consent := transport.sent()[0]
	if consent.peer != "http://asker" || consent.msg.Consent == nil {
		t.Fatalf("consent routing mismatch: %+v", consent)
	}
	if consent.msg.Consent.Poh != record.Poh {
		t.Fatalf("agreeing peer must echo the chained poh")
	}

	// a diverging field hash yields a diverging poh
	n.handleConsensus(&ConsensusMsg{
		Origin:     "http://asker",
		Blockstamp: "10#1",
		Hash:       strings.Repeat("f", 64),
	})
	waitFor(t, func() bool { return len(transport.sent()) == 2 })
	if transport.sent()[1].msg.Consent.Poh == record.Poh {
		t.Fatal("diverging hash must not echo the chained poh")
	}
}

func TestConsensusForwarding(t *testing.T) {
	n, transport, _ := newTestNode(t)
	n.peers.Add("http://a")
	n.broadcaster.Start()
	defer n.broadcaster.Stop()

	// height 99 is not journalled: the request hops once
	n.handleConsensus(&ConsensusMsg{
		Origin: "http://asker", Blockstamp: "99#1",
		Hash: "00", N: 3, X: 0,
	})
	waitFor(t, func() bool { return len(transport.sent()) == 1 })
	hop := transport.sent()[0]
	if hop.msg.Consensus == nil || hop.msg.Consensus.X != 1 || hop.peer != "http://a" {
		t.Fatalf("forward mismatch: %+v", hop)
	}

	// the visit counter exhausts the hop budget
	n.handleConsensus(&ConsensusMsg{
		Origin: "http://asker", Blockstamp: "99#1",
		Hash: "00", N: 3, X: 2,
	})
	time.Sleep(50 * time.Millisecond)
	if len(transport.sent()) != 1 {
		t.Fatal("exhausted request still forwarded")
	}
}

func TestProspectPeers(t *testing.T) {
	n, transport, _ := newTestNode(t)
	n.broadcaster.Start()
	defer n.broadcaster.Stop()

	transport.peerLists["http://a"] = []string{"http://b"}
	transport.peerLists["http://b"] = []string{"http://me:5201"}
	n.ProspectPeers("http://a")

	if !n.peers.Contains("http://a") || !n.peers.Contains("http://b") {
		t.Fatalf("recursive prospection failed: %v", n.peers.List())
	}
	// peer a does not know us: a hello makes the link bidirectional
	waitFor(t, func() bool {
		for _, p := range transport.sent() {
			if p.peer == "http://a" && p.msg.Hello != nil && p.msg.Hello.Peer == "http://me:5201" {
				return true
			}
		}
		return false
	})
}

// writeWebhookKey forges the key file CheckWebhookToken expects.
func writeWebhookKey(t *testing.T, datadir, token string) {
	t.Helper()
	authorization, verification := token[:32], token[32:]
	sum := sha256.Sum256([]byte(token))
	blob, _ := json.Marshal(map[string]string{
		"verification": verification,
		"hash":         hex.EncodeToString(sum[:]),
	})
	name := md5.Sum([]byte(authorization))
	path := filepath.Join(datadir, hex.EncodeToString(name[:])+".key")
	if err := os.WriteFile(path, blob, 0600); err != nil {
		t.Fatal(err)
	}
}

type stubClient struct{}

func (stubClient) Peers(string) ([]chain.Peer, error)         { return nil, errors.New("stub") }
func (stubClient) Block(string, uint64) (*chain.Block, error) { return nil, errors.New("stub") }
func (stubClient) Blocks(string, int, int) ([]*chain.Block, bool, error) {
	return nil, false, errors.New("stub")
}
func (stubClient) BlockTransactions(string, string) ([]*chain.Transaction, error) {
	return nil, errors.New("stub")
}
func (stubClient) CreateWebhook(string, string, []interface{}) (*chain.Webhook, error) {
	return nil, errors.New("stub")
}
func (stubClient) DeleteWebhook(string, string) error { return errors.New("stub") }

func TestWebhookDispatch(t *testing.T) {
	n, _, store := newTestNode(t)
	token := strings.Repeat("a", 32) + strings.Repeat("b", 32)
	writeWebhookKey(t, n.datadir, token)

	parser := chain.NewParser(stubClient{}, n.config, store, core.NewEngine(store, n.config))
	syncing := true
	n.AttachPipeline(parser, func() bool { return syncing })

	body := []byte(`{"timestamp": 1600, "event": "block.applied",` +
		` "data": {"id": "b1", "height": 7, "numberOfTransactions": 1, "timestamp": 0}}`)

	// bad authorization: rejected without side effects
	n.handleBlock(&inbound{body: body, authorization: strings.Repeat("c", 32)})
	if parser.Pending() != 0 {
		t.Fatal("unauthenticated block queued")
	}
	// genuine delivery while the back-fill runs: dropped
	n.handleBlock(&inbound{body: body, authorization: token[:32]})
	if parser.Pending() != 0 {
		t.Fatal("block queued during sync")
	}
	// back-fill done: queued
	syncing = false
	n.handleBlock(&inbound{body: body, authorization: token[:32]})
	if parser.Pending() != 1 {
		t.Fatalf("block not queued: %d", parser.Pending())
	}
}

func TestMessengerDedup(t *testing.T) {
	n, _, _ := newTestNode(t)
	body := []byte(`{"hello": {"peer": "http://a"}}`)
	if !n.messenger.Put(body, "") {
		t.Fatal("fresh message refused")
	}
	if n.messenger.Put(body, "") {
		t.Fatal("duplicate queued")
	}
}
