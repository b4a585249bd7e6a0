// Package core holds the SLP ledger itself: the journal of operation
// records chained by proof of history, the token contracts and wallet
// collections derived from it, and the engine replaying operations
// against that state.
package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Blockstamp is a (height, index) position on the base layer, rendered
// as "height#index". The journal is strictly ordered by it.
type Blockstamp struct {
	Height uint64
	Index  uint16
}

// ParseBlockstamp reads a "height#index" string.
func ParseBlockstamp(s string) (Blockstamp, error) {
	i := strings.IndexByte(s, '#')
	if i < 0 {
		return Blockstamp{}, fmt.Errorf("core: bad blockstamp %q", s)
	}
	height, err := strconv.ParseUint(s[:i], 10, 64)
	if err != nil {
		return Blockstamp{}, fmt.Errorf("core: bad blockstamp %q", s)
	}
	index, err := strconv.ParseUint(s[i+1:], 10, 16)
	if err != nil {
		return Blockstamp{}, fmt.Errorf("core: bad blockstamp %q", s)
	}
	return Blockstamp{Height: height, Index: uint16(index)}, nil
}

func (b Blockstamp) String() string {
	return fmt.Sprintf("%d#%d", b.Height, b.Index)
}

// After reports whether b is strictly later than o.
func (b Blockstamp) After(o Blockstamp) bool {
	return b.Height > o.Height || (b.Height == o.Height && b.Index > o.Index)
}

// MarshalJSON encodes the blockstamp as its "height#index" string.
func (b Blockstamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(b.String())), nil
}

// UnmarshalJSON decodes a "height#index" string.
func (b *Blockstamp) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("core: blockstamp is not a string: %v", err)
	}
	parsed, err := ParseBlockstamp(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// fieldKeys is the closed set of operation field names a record may
// carry beside its envelope.
var fieldKeys = map[string]bool{
	"tp": true, "id": true, "de": true, "qt": true,
	"sy": true, "na": true, "du": true, "no": true,
	"pa": true, "mi": true, "ch": true, "dt": true, "tx": true,
}

// Record is one journalled SLP operation: the base-layer envelope
// (position, txid, parties, cost), the operation field bag, and the
// verdict (legit) plus proof of history filled in by the node.
type Record struct {
	Height    uint64
	Index     uint16
	TxID      string
	SlpType   string
	Timestamp float64
	Emitter   string
	Receiver  string
	Cost      uint64
	Legit     *bool
	Poh       string
	Comment   string // rejection reason on rejected copies
	Fields    map[string]interface{}
}

// Blockstamp returns the record's journal position.
func (r *Record) Blockstamp() Blockstamp {
	return Blockstamp{Height: r.Height, Index: r.Index}
}

// Tp returns the operation name (GENESIS, SEND, ...).
func (r *Record) Tp() string {
	s, _ := r.Fields["tp"].(string)
	return s
}

// TokenID returns the "id" field.
func (r *Record) TokenID() string {
	s, _ := r.Fields["id"].(string)
	return s
}

// Qt returns the "qt" field, false when absent.
func (r *Record) Qt() (float64, bool) {
	f, ok := r.Fields["qt"].(float64)
	return f, ok
}

// De returns the "de" scale field of a GENESIS record.
func (r *Record) De() uint8 {
	f, _ := r.Fields["de"].(float64)
	return uint8(f)
}

func (r *Record) fieldString(key string) string {
	s, _ := r.Fields[key].(string)
	return s
}

func (r *Record) fieldBool(key string) bool {
	b, _ := r.Fields[key].(bool)
	return b
}

func (r *Record) Sy() string { return r.fieldString("sy") }
func (r *Record) Na() string { return r.fieldString("na") }
func (r *Record) Du() string { return r.fieldString("du") }
func (r *Record) No() string { return r.fieldString("no") }
func (r *Record) Tx() string { return r.fieldString("tx") }
func (r *Record) Pa() bool   { return r.fieldBool("pa") }
func (r *Record) Mi() bool   { return r.fieldBool("mi") }

// Ch returns the ADDMETA chunk number.
func (r *Record) Ch() int {
	f, _ := r.Fields["ch"].(float64)
	return int(f)
}

// Dt returns the ADDMETA metadata, either a bag (codec path) or a JSON
// object string (vendor field path).
func (r *Record) Dt() interface{} { return r.Fields["dt"] }

// document flattens the record into its canonical key set.
func (r *Record) document() map[string]interface{} {
	doc := map[string]interface{}{
		"height":    r.Height,
		"index":     r.Index,
		"txid":      r.TxID,
		"slp_type":  r.SlpType,
		"timestamp": r.Timestamp,
		"emitter":   r.Emitter,
		"receiver":  r.Receiver,
		"cost":      r.Cost,
		"legit":     r.Legit,
		"poh":       r.Poh,
	}
	if r.Comment != "" {
		doc["comment"] = r.Comment
	}
	for k, v := range r.Fields {
		if fieldKeys[k] {
			doc[k] = v
		}
	}
	return doc
}

// MarshalJSON flattens envelope and field bag into one document.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.document())
}

// UnmarshalJSON splits a flat document back into envelope and field bag.
func (r *Record) UnmarshalJSON(data []byte) error {
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	height, _ := doc["height"].(float64)
	index, _ := doc["index"].(float64)
	r.Height = uint64(height)
	r.Index = uint16(index)
	r.TxID, _ = doc["txid"].(string)
	r.SlpType, _ = doc["slp_type"].(string)
	r.Timestamp, _ = doc["timestamp"].(float64)
	r.Emitter, _ = doc["emitter"].(string)
	r.Receiver, _ = doc["receiver"].(string)
	cost, _ := doc["cost"].(float64)
	r.Cost = uint64(cost)
	r.Poh, _ = doc["poh"].(string)
	r.Comment, _ = doc["comment"].(string)
	r.Legit = nil
	if legit, ok := doc["legit"].(bool); ok {
		r.Legit = &legit
	}
	r.Fields = make(map[string]interface{})
	for k, v := range doc {
		if fieldKeys[k] {
			r.Fields[k] = v
		}
	}
	return nil
}

// Contract is the state of one token, updated as its operations get
// applied. Supply counters only exist on SLP1 contracts.
type Contract struct {
	TokenID  string `json:"tokenId"`
	Height   uint64 `json:"height"`
	Index    uint16 `json:"index"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Owner    string `json:"owner"`
	Document string `json:"document"`
	Notes    string `json:"notes,omitempty"`
	Paused   bool   `json:"paused"`

	// SLP1 supply tracking, all at the token scale
	Decimals     uint8  `json:"de"`
	GlobalSupply Amount `json:"globalSupply"`
	Minted       Amount `json:"minted"`
	Burned       Amount `json:"burned"`
	Exited       Amount `json:"exited"`
}

// WalletSLP1 is one address's stake in an SLP1 token.
type WalletSLP1 struct {
	Address    string     `json:"address"`
	TokenID    string     `json:"tokenId"`
	BlockStamp Blockstamp `json:"blockStamp"`
	Balance    Amount     `json:"balance"`
	Owner      bool       `json:"owner"`
	Frozen     bool       `json:"frozen"`
}

// WalletSLP2 is one address's metadata slot in an SLP2 token. Metadata
// is the length-prefixed pair blob of the smartbridge codec.
type WalletSLP2 struct {
	Address    string     `json:"address"`
	TokenID    string     `json:"tokenId"`
	BlockStamp Blockstamp `json:"blockStamp"`
	Owner      bool       `json:"owner"`
	Metadata   []byte     `json:"metadata"`
}
