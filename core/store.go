package core

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Solar-network/go-slp/params"
	"github.com/Solar-network/go-slp/slpdb"
)

var log = logrus.WithField("prefix", "core")

var (
	// ErrNotFound is returned when a record, contract or wallet is
	// missing from the store.
	ErrNotFound = errors.New("core: not found")

	// ErrRecordExists is returned when a journal position is already
	// taken.
	ErrRecordExists = errors.New("core: record already journalled")

	// ErrOutOfOrder is returned when an append does not strictly follow
	// the journal tail.
	ErrOutOfOrder = errors.New("core: record out of journal order")

	// ErrLegitAlreadySet is returned by SetLegit when a verdict has
	// already been settled; a verdict is written exactly once.
	ErrLegitAlreadySet = errors.New("core: legit already set")

	// ErrContractExists is returned when a token id is already bound to
	// a contract.
	ErrContractExists = errors.New("core: contract already exists")

	// ErrInvalidFields is returned when a field bag fails pre-acceptance
	// validation; the bag is dumped aside and never journalled.
	ErrInvalidFields = errors.New("core: invalid contract fields")
)

// Store key layout. Journal and rejected keys embed the blockstamp
// big-endian so iteration follows journal order.
var (
	journalPrefix  = []byte("J")
	rejectedPrefix = []byte("R")
	txidPrefix     = []byte("T/")
	genesisPrefix  = []byte("G/")
	contractPrefix = []byte("C/")
	wallet1Prefix  = []byte("1/")
	wallet2Prefix  = []byte("2/")
	metaPohKey     = []byte("M/poh")
	metaTailKey    = []byte("M/tail")
)

func stampSuffix(bs Blockstamp) []byte {
	var buf [10]byte
	binary.BigEndian.PutUint64(buf[:8], bs.Height)
	binary.BigEndian.PutUint16(buf[8:], bs.Index)
	return buf[:]
}

func journalKey(bs Blockstamp) []byte {
	return append(append([]byte{}, journalPrefix...), stampSuffix(bs)...)
}

func rejectedKey(bs Blockstamp) []byte {
	return append(append([]byte{}, rejectedPrefix...), stampSuffix(bs)...)
}

func wallet1Key(tokenID, address string) []byte {
	return []byte(string(wallet1Prefix) + tokenID + "/" + address)
}

func wallet2Key(tokenID, address string) []byte {
	return []byte(string(wallet2Prefix) + tokenID + "/" + address)
}

// Store is the typed ledger layer over a raw key-value database: the
// journal, its verdicts and proof of history head, and the contract and
// wallet collections derived from it.
type Store struct {
	db      slpdb.KeyValueStore
	config  *params.Config
	datadir string // unvalidated field bag dumps, "" disables

	lock sync.Mutex // serializes journal appends and verdicts
}

// NewStore wraps a key-value database into the ledger store.
func NewStore(db slpdb.KeyValueStore, config *params.Config, datadir string) *Store {
	return &Store{db: db, config: config, datadir: datadir}
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) getJSON(key []byte, v interface{}) error {
	ok, err := s.db.Has(key)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	data, err := s.db.Get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *Store) putJSON(key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Put(key, data)
}

// AddRecord validates a field bag and appends it to the journal with a
// fresh proof of history. The bag is filtered down to the journalled
// field keys first; GENESIS bags get their pa (and mi for fungible
// tokens) defaults. Invalid bags are dumped to unvalidated.<slp_type>
// and refused.
func (s *Store) AddRecord(
	height uint64, index uint16, txid, slpType string, timestamp float64,
	emitter, receiver string, cost uint64, fields map[string]interface{},
) (*Record, error) {
	kept := make(map[string]interface{})
	for _, key := range s.config.SlpFields(height) {
		if v, ok := fields[key]; ok {
			kept[key] = v
		}
	}
	if tp, _ := kept["tp"].(string); tp == "GENESIS" {
		if _, ok := kept["pa"]; !ok {
			kept["pa"] = false
		}
		if slpType == params.SLP1 {
			if _, ok := kept["mi"]; !ok {
				kept["mi"] = false
			}
		}
	}

	bs := Blockstamp{Height: height, Index: index}
	if key, ok := s.config.ValidateFields(kept, height); !ok {
		log.WithFields(logrus.Fields{
			"blockstamp": bs.String(),
			"field":      key,
		}).Error("field validation did not pass")
		s.dumpUnvalidated(slpType, bs, kept)
		return nil, errors.Wrapf(ErrInvalidFields, "field %q", key)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if ok, err := s.db.Has(journalKey(bs)); err != nil {
		return nil, err
	} else if ok {
		return nil, errors.Wrap(ErrRecordExists, bs.String())
	}
	if tail, ok, err := s.tailBlockstamp(); err != nil {
		return nil, err
	} else if ok && !bs.After(tail) {
		return nil, errors.Wrapf(ErrOutOfOrder, "%s after %s", bs, tail)
	}

	hashName := s.config.PohHashName()
	lastPoh, err := s.lastLegitPoh()
	if err != nil {
		return nil, err
	}
	record := &Record{
		Height:    height,
		Index:     index,
		TxID:      txid,
		SlpType:   slpType,
		Timestamp: timestamp,
		Emitter:   emitter,
		Receiver:  receiver,
		Cost:      cost,
		Poh:       ComputePoH(hashName, lastPoh, FieldsHash(hashName, kept)),
		Fields:    kept,
	}
	if err := s.putJSON(journalKey(bs), record); err != nil {
		return nil, err
	}
	if err := s.db.Put(metaTailKey, []byte(bs.String())); err != nil {
		return nil, err
	}
	if txid != "" {
		if err := s.db.Put(append(append([]byte{}, txidPrefix...), txid...), []byte(bs.String())); err != nil {
			return nil, err
		}
	}
	if tp, _ := kept["tp"].(string); tp == "GENESIS" {
		if id, _ := kept["id"].(string); id != "" {
			if err := s.db.Put(append(append([]byte{}, genesisPrefix...), id...), []byte(bs.String())); err != nil {
				return nil, err
			}
		}
	}
	return record, nil
}

// dumpUnvalidated merges a refused field bag into the per-family dump
// file, keyed by blockstamp.
func (s *Store) dumpUnvalidated(slpType string, bs Blockstamp, fields map[string]interface{}) {
	if s.datadir == "" {
		return
	}
	path := filepath.Join(s.datadir, "unvalidated."+slpType+".json")
	dump := make(map[string]interface{})
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &dump)
	}
	dump[bs.String()] = fields
	data, err := json.MarshalIndent(dump, "", "  ")
	if err == nil {
		err = os.WriteFile(path, data, 0644)
	}
	if err != nil {
		log.WithError(err).Error("Could not dump unvalidated fields")
	}
}

// GetRecord reads the journal record at a blockstamp.
func (s *Store) GetRecord(bs Blockstamp) (*Record, error) {
	record := new(Record)
	if err := s.getJSON(journalKey(bs), record); err != nil {
		return nil, err
	}
	return record, nil
}

// FindByTxID reads the journal record of a base-layer transaction.
func (s *Store) FindByTxID(txid string) (*Record, error) {
	key := append(append([]byte{}, txidPrefix...), txid...)
	ok, err := s.db.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	raw, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	bs, err := ParseBlockstamp(string(raw))
	if err != nil {
		return nil, err
	}
	return s.GetRecord(bs)
}

// FindGenesis reads the GENESIS record of a token.
func (s *Store) FindGenesis(tokenID string) (*Record, error) {
	key := append(append([]byte{}, genesisPrefix...), tokenID...)
	ok, err := s.db.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	raw, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	bs, err := ParseBlockstamp(string(raw))
	if err != nil {
		return nil, err
	}
	return s.GetRecord(bs)
}

// Records iterates the journal in order from a blockstamp (inclusive),
// at most limit records (0 means unbounded).
func (s *Store) Records(from Blockstamp, limit int) ([]*Record, error) {
	it := s.db.NewIterator(journalPrefix, stampSuffix(from))
	defer it.Release()

	var out []*Record
	for it.Next() {
		record := new(Record)
		if err := json.Unmarshal(it.Value(), record); err != nil {
			return nil, err
		}
		out = append(out, record)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, it.Error()
}

// SetLegit settles the verdict of a journalled record. A verdict can be
// written exactly once; a legit record becomes the new proof of history
// head.
func (s *Store) SetLegit(bs Blockstamp, legit bool) (*Record, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	record, err := s.GetRecord(bs)
	if err != nil {
		return nil, err
	}
	if record.Legit != nil {
		return nil, errors.Wrap(ErrLegitAlreadySet, bs.String())
	}
	record.Legit = &legit
	if err := s.putJSON(journalKey(bs), record); err != nil {
		return nil, err
	}
	if legit {
		if err := s.db.Put(metaPohKey, []byte(record.Poh)); err != nil {
			return nil, err
		}
	}
	return record, nil
}

func (s *Store) lastLegitPoh() (string, error) {
	ok, err := s.db.Has(metaPohKey)
	if err != nil || !ok {
		return "", err
	}
	data, err := s.db.Get(metaPohKey)
	return string(data), err
}

// LastLegitPoh returns the proof of history head (empty on a fresh
// journal).
func (s *Store) LastLegitPoh() string {
	poh, err := s.lastLegitPoh()
	if err != nil {
		log.WithError(err).Error("Could not read poh head")
	}
	return poh
}

func (s *Store) tailBlockstamp() (Blockstamp, bool, error) {
	ok, err := s.db.Has(metaTailKey)
	if err != nil || !ok {
		return Blockstamp{}, false, err
	}
	data, err := s.db.Get(metaTailKey)
	if err != nil {
		return Blockstamp{}, false, err
	}
	bs, err := ParseBlockstamp(string(data))
	if err != nil {
		return Blockstamp{}, false, err
	}
	return bs, true, nil
}

// TailBlockstamp returns the journal tail position, false on a fresh
// journal.
func (s *Store) TailBlockstamp() (Blockstamp, bool) {
	bs, ok, err := s.tailBlockstamp()
	if err != nil {
		log.WithError(err).Error("Could not read journal tail")
	}
	return bs, ok
}

// PutRejected copies a refused record into the rejected collection with
// the first failed check as comment.
func (s *Store) PutRejected(r *Record, comment string) error {
	copied := *r
	copied.Comment = comment
	return s.putJSON(rejectedKey(r.Blockstamp()), &copied)
}

// InsertContract binds a token id to a fresh contract.
func (s *Store) InsertContract(c *Contract) error {
	key := append(append([]byte{}, contractPrefix...), c.TokenID...)
	if ok, err := s.db.Has(key); err != nil {
		return err
	} else if ok {
		return errors.Wrap(ErrContractExists, c.TokenID)
	}
	return s.putJSON(key, c)
}

// GetContract reads a token contract.
func (s *Store) GetContract(tokenID string) (*Contract, error) {
	c := new(Contract)
	key := append(append([]byte{}, contractPrefix...), tokenID...)
	if err := s.getJSON(key, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateContract overwrites an existing token contract.
func (s *Store) UpdateContract(c *Contract) error {
	key := append(append([]byte{}, contractPrefix...), c.TokenID...)
	if ok, err := s.db.Has(key); err != nil {
		return err
	} else if !ok {
		return errors.Wrap(ErrNotFound, c.TokenID)
	}
	return s.putJSON(key, c)
}

// GetWallet1 reads an SLP1 wallet.
func (s *Store) GetWallet1(tokenID, address string) (*WalletSLP1, error) {
	w := new(WalletSLP1)
	if err := s.getJSON(wallet1Key(tokenID, address), w); err != nil {
		return nil, err
	}
	return w, nil
}

// PutWallet1 writes an SLP1 wallet.
func (s *Store) PutWallet1(w *WalletSLP1) error {
	return s.putJSON(wallet1Key(w.TokenID, w.Address), w)
}

// GetWallet2 reads an SLP2 wallet.
func (s *Store) GetWallet2(tokenID, address string) (*WalletSLP2, error) {
	w := new(WalletSLP2)
	if err := s.getJSON(wallet2Key(tokenID, address), w); err != nil {
		return nil, err
	}
	return w, nil
}

// PutWallet2 writes an SLP2 wallet.
func (s *Store) PutWallet2(w *WalletSLP2) error {
	return s.putJSON(wallet2Key(w.TokenID, w.Address), w)
}

// DeleteWallet2 removes an SLP2 wallet.
func (s *Store) DeleteWallet2(tokenID, address string) error {
	return s.db.Delete(wallet2Key(tokenID, address))
}

// Wallets2 lists the SLP2 wallets of a token in address order.
func (s *Store) Wallets2(tokenID string) ([]*WalletSLP2, error) {
	it := s.db.NewIterator([]byte(string(wallet2Prefix)+tokenID+"/"), nil)
	defer it.Release()

	var out []*WalletSLP2
	for it.Next() {
		w := new(WalletSLP2)
		if err := json.Unmarshal(it.Value(), w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, it.Error()
}

// dropPrefix deletes every key under prefix.
func (s *Store) dropPrefix(prefix []byte) error {
	it := s.db.NewIterator(prefix, nil)
	defer it.Release()
	for it.Next() {
		if err := s.db.Delete(append([]byte{}, it.Key()...)); err != nil {
			return err
		}
	}
	return it.Error()
}

// DropState removes everything derived from the journal: contracts,
// wallets, rejected copies, settled verdicts and the PoH head. A
// replay of the journal rebuilds all of it.
func (s *Store) DropState() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, prefix := range [][]byte{contractPrefix, wallet1Prefix, wallet2Prefix, rejectedPrefix} {
		if err := s.dropPrefix(prefix); err != nil {
			return err
		}
	}
	// verdicts reopen so the engine accepts the records again
	it := s.db.NewIterator(journalPrefix, nil)
	defer it.Release()
	for it.Next() {
		r := new(Record)
		if err := json.Unmarshal(it.Value(), r); err != nil {
			return err
		}
		if r.Legit == nil {
			continue
		}
		r.Legit, r.Comment = nil, ""
		blob, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if err := s.db.Put(append([]byte{}, it.Key()...), blob); err != nil {
			return err
		}
	}
	if err := it.Error(); err != nil {
		return err
	}
	return s.db.Delete(metaPohKey)
}

// DropJournal removes the journal itself with its lookup indices and
// tail marker. Only meaningful after DropState.
func (s *Store) DropJournal() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, prefix := range [][]byte{journalPrefix, txidPrefix, genesisPrefix} {
		if err := s.dropPrefix(prefix); err != nil {
			return err
		}
	}
	return s.db.Delete(metaTailKey)
}

// ExchangeSLP1 moves a quantity between two SLP1 wallets, creating the
// receiver wallet at blockstamp 0#0 when missing. The receiver is
// credited first; a failing debit reverses the credit so the exchange
// is all or nothing.
func (s *Store) ExchangeSLP1(tokenID, sender, receiver string, qt Amount) error {
	src, err := s.GetWallet1(tokenID, sender)
	if err != nil {
		return err
	}
	dst, err := s.GetWallet1(tokenID, receiver)
	if errors.Cause(err) == ErrNotFound {
		dst = &WalletSLP1{
			Address: receiver, TokenID: tokenID,
			BlockStamp: Blockstamp{}, Balance: Zero(qt.Scale()),
		}
		err = s.PutWallet1(dst)
	}
	if err != nil {
		return err
	}

	credited, err := dst.Balance.Add(qt)
	if err != nil {
		return err
	}
	prior := dst.Balance
	dst.Balance = credited
	if err := s.PutWallet1(dst); err != nil {
		return err
	}

	debited, err := src.Balance.Sub(qt)
	if err == nil {
		src.Balance = debited
		err = s.PutWallet1(src)
	}
	if err != nil {
		// roll the credit back, the exchange never happened
		dst.Balance = prior
		if rerr := s.PutWallet1(dst); rerr != nil {
			log.WithError(rerr).Error("Could not reverse exchange credit")
		}
		return err
	}
	return nil
}
