package chain

import (
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/Solar-network/go-slp/core"
	"github.com/Solar-network/go-slp/params"
	"github.com/Solar-network/go-slp/slpdb/memorydb"
	"github.com/Solar-network/go-slp/smartbridge"
)

type fakeClient struct {
	peerList []Peer
	peerErr  error

	pages map[int][]*Block
	more  map[int]bool

	txs        map[string][]*Transaction
	breachLeft int // serve a truncated list this many times

	webhook    *Webhook
	deletedIDs []string
}

func (f *fakeClient) Peers(string) ([]Peer, error) { return f.peerList, f.peerErr }

func (f *fakeClient) Block(string, uint64) (*Block, error) {
	return nil, errors.New("not wired")
}

func (f *fakeClient) Blocks(_ string, page, _ int) ([]*Block, bool, error) {
	blocks, ok := f.pages[page]
	if !ok {
		return nil, false, errors.New("no such page")
	}
	return blocks, f.more[page], nil
}

func (f *fakeClient) BlockTransactions(_, blockID string) ([]*Transaction, error) {
	list := f.txs[blockID]
	if f.breachLeft > 0 {
		f.breachLeft--
		return list[:len(list)-1], nil
	}
	return list, nil
}

func (f *fakeClient) CreateWebhook(_, target string, conditions []interface{}) (*Webhook, error) {
	if f.webhook == nil {
		return nil, errors.New("subscription refused")
	}
	f.webhook.Target, f.webhook.Conditions = target, conditions
	return f.webhook, nil
}

func (f *fakeClient) DeleteWebhook(_, id string) error {
	f.deletedIDs = append(f.deletedIDs, id)
	return nil
}

func TestSelectPeers(t *testing.T) {
	client := &fakeClient{peerList: []Peer{
		{IP: "1.1.1.1", Ports: map[string]int{corePort: 4003}},
		{IP: "2.2.2.2", Ports: map[string]int{"@arkecosystem/core-p2p": 4002}},
		{IP: "3.3.3.3", Ports: map[string]int{corePort: -1}},
	}}
	peers := SelectPeers(client, "http://fallback")
	if len(peers) != 1 || peers[0] != "http://1.1.1.1:4003" {
		t.Fatalf("peer selection mismatch: %v", peers)
	}

	client.peerErr = errors.New("down")
	if peers := SelectPeers(client, "http://fallback"); len(peers) != 1 || peers[0] != "http://fallback" {
		t.Fatalf("fallback mismatch: %v", peers)
	}
}

func TestWebhookSubscription(t *testing.T) {
	datadir := t.TempDir()
	config := params.TestConfig()
	token := strings.Repeat("a", 32) + strings.Repeat("b", 32)
	client := &fakeClient{webhook: &Webhook{ID: "wbh-1", Event: "block.applied", Token: token}}

	if Subscribed(datadir, config) {
		t.Fatal("phantom subscription")
	}
	if err := Subscribe(client, config, datadir, "10.0.0.1:5201"); err != nil {
		t.Fatal(err)
	}
	if !Subscribed(datadir, config) {
		t.Fatal("subscription not persisted")
	}
	if !CheckWebhookToken(datadir, token[:32]) {
		t.Fatal("genuine authorization refused")
	}
	if CheckWebhookToken(datadir, strings.Repeat("c", 32)) {
		t.Fatal("forged authorization accepted")
	}

	if err := Unsubscribe(client, config, datadir); err != nil {
		t.Fatal(err)
	}
	if Subscribed(datadir, config) {
		t.Fatal("subscription files not removed")
	}
	if len(client.deletedIDs) != 1 || client.deletedIDs[0] != "wbh-1" {
		t.Fatalf("webhook not deleted: %v", client.deletedIDs)
	}
	if CheckWebhookToken(datadir, token[:32]) {
		t.Fatal("key file not removed")
	}
}

func TestWebhookEventBlock(t *testing.T) {
	event := &WebhookEvent{
		Timestamp: 1234567., // ms
		Event:     "block.applied",
		Data:      &Block{ID: "b1", Height: 42, Transactions: 3},
	}
	block := event.Block(8)
	if block.Timestamp != 1232 { // 1234.567 floored to a multiple of 8
		t.Fatalf("timestamp not floored: %f", block.Timestamp)
	}
	if block.Height != 42 || block.Transactions != 3 {
		t.Fatalf("block mismatch: %+v", block)
	}
}

func TestReadVendorField(t *testing.T) {
	config := params.TestConfig()
	codec := smartbridge.New(config)

	slpType, fields, ok := readVendorField(codec, `{"_slp1": {"tp": "SEND", "id": "ab", "qt": 5}}`, 1)
	if !ok || slpType != params.SLP1 || fields["tp"] != "SEND" {
		t.Fatalf("json path failed: %s %v", slpType, fields)
	}

	bridge, err := codec.Pack(params.SLP1, "GENESIS", 1, map[string]interface{}{
		"de": 2, "qt": 1000, "pa": false, "mi": false,
		"sy": "TKN", "na": "Token", "du": "", "no": "",
	})
	if err != nil {
		t.Fatal(err)
	}
	slpType, fields, ok = readVendorField(codec, bridge, 1)
	if !ok || slpType != params.SLP1 || fields["tp"] != "GENESIS" || fields["sy"] != "TKN" {
		t.Fatalf("codec path failed: %s %v", slpType, fields)
	}

	if _, _, ok := readVendorField(codec, "plain shipping note", 1); ok {
		t.Fatal("garbage accepted")
	}
}

func newTestParser(client Client) (*Parser, *core.Store) {
	config := params.TestConfig()
	store := core.NewStore(memorydb.New(), config, "")
	engine := core.NewEngine(store, config)
	return NewParser(client, config, store, engine), store
}

func genesisTransactions(t *testing.T, codec *smartbridge.Codec, txid string) []*Transaction {
	t.Helper()
	bridge, err := codec.Pack(params.SLP1, "GENESIS", 1, map[string]interface{}{
		"de": 2, "qt": 1000, "pa": false, "mi": false,
		"sy": "TKN", "na": "Token", "du": "", "no": "",
	})
	if err != nil {
		t.Fatal(err)
	}
	return []*Transaction{
		{ID: "feed01", Type: 0, Sender: "X", Recipient: "Y"}, // no vendor field
		{ID: txid, Type: 0, Sender: "A", Recipient: "M", VendorField: bridge, Amount: 100},
	}
}

func TestParseBlockGenesis(t *testing.T) {
	client := &fakeClient{txs: map[string][]*Transaction{}}
	parser, store := newTestParser(client)
	defer store.Close()

	client.txs["b10"] = genesisTransactions(t, parser.codec, "cafe01")
	block := &Block{ID: "b10", Height: 10, Timestamp: 1000, Transactions: 2}
	if err := parser.parseBlock(block, "http://peer"); err != nil {
		t.Fatal(err)
	}

	record, err := store.FindByTxID("cafe01")
	if err != nil {
		t.Fatalf("record not journalled: %v", err)
	}
	if record.Legit == nil || !*record.Legit {
		t.Fatalf("genesis not settled: %v", record.Legit)
	}
	if record.Index != 2 {
		t.Fatalf("index mismatch: %d", record.Index)
	}
	// sub-block timestamp spreads transactions inside the blocktime
	if want := 1000 + 8./3.*2; record.Timestamp != want {
		t.Fatalf("timestamp mismatch: %f != %f", record.Timestamp, want)
	}
	id := core.TokenID(params.SLP1, "TKN", 10, "cafe01")
	contract, err := store.GetContract(id)
	if err != nil {
		t.Fatalf("contract missing: %v", err)
	}
	if contract.Owner != "A" || contract.GlobalSupply.String() != "1000.00" {
		t.Fatalf("contract mismatch: %+v", contract)
	}
}

func TestParseBlockDeniedTicker(t *testing.T) {
	client := &fakeClient{txs: map[string][]*Transaction{}}
	parser, store := newTestParser(client)
	defer store.Close()

	bridge, err := parser.codec.Pack(params.SLP1, "GENESIS", 1, map[string]interface{}{
		"de": 0, "qt": 10, "pa": false, "mi": false,
		"sy": "ARK", "na": "Imposter", "du": "", "no": "",
	})
	if err != nil {
		t.Fatal(err)
	}
	client.txs["b10"] = []*Transaction{
		{ID: "cafe02", Type: 0, Sender: "A", Recipient: "M", VendorField: bridge, Amount: 100},
	}
	block := &Block{ID: "b10", Height: 10, Timestamp: 1000, Transactions: 1}
	if err := parser.parseBlock(block, "http://peer"); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.TailBlockstamp(); ok {
		t.Fatal("denied ticker reached the journal")
	}
}

func TestParseBlockIntegrityBreach(t *testing.T) {
	client := &fakeClient{txs: map[string][]*Transaction{}, breachLeft: 1}
	parser, store := newTestParser(client)
	defer store.Close()

	client.txs["b10"] = genesisTransactions(t, parser.codec, "cafe03")
	block := &Block{ID: "b10", Height: 10, Timestamp: 1000, Transactions: 2}
	if err := parser.parseBlock(block, "http://peer"); errors.Cause(err) != ErrIntegrityBreach {
		t.Fatalf("truncated list accepted: %v", err)
	}
	if _, ok := store.TailBlockstamp(); ok {
		t.Fatal("truncated block reached the journal")
	}
	// the peer recovered, the same block parses on retry
	if err := parser.parseBlock(block, "http://peer"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.FindByTxID("cafe03"); err != nil {
		t.Fatalf("record not journalled after retry: %v", err)
	}
}

func TestProcessorBackfill(t *testing.T) {
	datadir := t.TempDir()
	client := &fakeClient{
		peerList: []Peer{{IP: "1.1.1.1", Ports: map[string]int{corePort: 4003}}},
		pages: map[int][]*Block{
			1: {
				{ID: "b1", Height: 1, Transactions: 0}, // empty, skipped
				{ID: "b2", Height: 2, Transactions: 1},
			},
			2: {
				{ID: "b3", Height: 3, Transactions: 2},
			},
		},
		more: map[int]bool{1: true, 2: false},
	}
	parser, store := newTestParser(client)
	defer store.Close()
	processor := NewProcessor(client, parser.config, store, parser, datadir)

	// the parser is not started: enqueued blocks pile up in its queue
	processor.Start()
	<-processor.done

	if processor.Active() {
		t.Fatal("processor still active after last page")
	}
	if n := len(parser.jobs); n != 2 {
		t.Fatalf("enqueued blocks: %d", n)
	}
	mark := LoadMark(datadir, parser.config.DatabaseName())
	if mark.LastParsedBlock != 3 || mark.Peer != "http://1.1.1.1:4003" {
		t.Fatalf("mark mismatch: %+v", mark)
	}
}

func TestProcessorStartHeight(t *testing.T) {
	client := &fakeClient{}
	parser, store := newTestParser(client)
	defer store.Close()
	processor := NewProcessor(client, parser.config, store, parser, t.TempDir())

	if h := processor.startHeight(&Mark{}); h != 1 {
		t.Fatalf("first milestone not honored: %d", h)
	}
	if h := processor.startHeight(&Mark{LastParsedBlock: 50}); h != 50 {
		t.Fatalf("mark not honored: %d", h)
	}
	if _, err := store.AddRecord(80, 1, "t1", params.SLP1, 0, "A", "B", 1,
		map[string]interface{}{"tp": "SEND", "id": strings.Repeat("0", 32), "qt": 1.}); err != nil {
		t.Fatal(err)
	}
	if h := processor.startHeight(&Mark{LastParsedBlock: 50}); h != 80 {
		t.Fatalf("journal tail not honored: %d", h)
	}
}
