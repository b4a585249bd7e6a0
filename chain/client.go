// Package chain talks to the base layer: peer selection, webhook
// subscription, block and transaction retrieval, and the two block
// intake workers (webhook driven Parser and back-fill Processor).
package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "chain")

// ErrIntegrityBreach is raised when a peer returns fewer transactions
// than the block header announces.
var ErrIntegrityBreach = errors.New("block integrity breach")

// Peer is one base-layer peer as listed by /api/peers.
type Peer struct {
	IP    string         `json:"ip"`
	Ports map[string]int `json:"ports"`
}

// Block is a base-layer block header, from /api/blocks or from the
// webhook body once homogenized.
type Block struct {
	ID           string
	Height       uint64
	Timestamp    float64 // unix seconds
	Transactions int
}

// UnmarshalJSON accepts both the REST shape (timestamp object with a
// "unix" entry, "transactions" count) and the raw webhook shape
// (epoch timestamp number, "numberOfTransactions").
func (b *Block) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        string      `json:"id"`
		Height    uint64      `json:"height"`
		Timestamp interface{} `json:"timestamp"`

		Transactions         int `json:"transactions"`
		NumberOfTransactions int `json:"numberOfTransactions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.ID, b.Height = raw.ID, raw.Height
	b.Transactions = raw.Transactions
	if b.Transactions == 0 {
		b.Transactions = raw.NumberOfTransactions
	}
	switch ts := raw.Timestamp.(type) {
	case map[string]interface{}:
		if unix, ok := ts["unix"].(float64); ok {
			b.Timestamp = unix
		}
	case float64:
		// webhook epoch value, replaced by WebhookEvent.Block
		b.Timestamp = ts
	}
	return nil
}

// Transaction is one base-layer transaction of a block.
type Transaction struct {
	ID          string `json:"id"`
	Type        int    `json:"type"`
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
	VendorField string `json:"vendorField"`
	Amount      uint64 `json:"amount,string"`
}

// Webhook is the base-layer subscription descriptor kept on disk in
// the .wbh file. Token is only set on creation and never persisted.
type Webhook struct {
	ID         string        `json:"id"`
	Event      string        `json:"event"`
	Target     string        `json:"target"`
	Conditions []interface{} `json:"conditions"`
	Token      string        `json:"token,omitempty"`
	Key        string        `json:"key,omitempty"`
}

// Client is the base-layer read/subscription surface the intake
// pipeline depends on. Implementations must be safe for concurrent
// use by the Parser and the Processor.
type Client interface {
	// Peers lists the peers known by the given peer, best height first.
	Peers(peer string) ([]Peer, error)

	// Block fetches a single block header by height.
	Block(peer string, height uint64) (*Block, error)

	// Blocks fetches one ascending page of block headers. The boolean
	// reports whether another page follows.
	Blocks(peer string, page, limit int) ([]*Block, bool, error)

	// BlockTransactions fetches every transaction of a block,
	// paginating until the peer returns an empty page.
	BlockTransactions(peer, blockID string) ([]*Transaction, error)

	// CreateWebhook registers a block.applied subscription delivering
	// to target.
	CreateWebhook(peer, target string, conditions []interface{}) (*Webhook, error)

	// DeleteWebhook drops a subscription by id.
	DeleteWebhook(peer, id string) error
}

// HTTPClient implements Client over the base-layer REST API.
type HTTPClient struct {
	http *http.Client
}

// NewHTTPClient returns a Client with the given request timeout.
// Back-fill runs use a generous timeout (30s) since busy peers
// serve large transaction pages slowly.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{http: &http.Client{Timeout: timeout}}
}

func (c *HTTPClient) get(peer, path string, query url.Values, out interface{}) error {
	target := peer + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	resp, err := c.http.Get(target)
	if err != nil {
		return errors.Wrapf(err, "GET %s", target)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("GET %s: status %d", target, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPClient) Peers(peer string) ([]Peer, error) {
	var body struct {
		Data []Peer `json:"data"`
	}
	query := url.Values{"orderBy": {"height:desc"}}
	if err := c.get(peer, "/api/peers", query, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

func (c *HTTPClient) Block(peer string, height uint64) (*Block, error) {
	var body struct {
		Data *Block `json:"data"`
	}
	path := "/api/blocks/" + strconv.FormatUint(height, 10)
	if err := c.get(peer, path, nil, &body); err != nil {
		return nil, err
	}
	if body.Data == nil {
		return nil, errors.Errorf("no block at height %d on %s", height, peer)
	}
	return body.Data, nil
}

func (c *HTTPClient) Blocks(peer string, page, limit int) ([]*Block, bool, error) {
	var body struct {
		Data []*Block `json:"data"`
		Meta struct {
			Next *string `json:"next"`
		} `json:"meta"`
	}
	query := url.Values{
		"page":    {strconv.Itoa(page)},
		"limit":   {strconv.Itoa(limit)},
		"orderBy": {"height:asc"},
	}
	if err := c.get(peer, "/api/blocks", query, &body); err != nil {
		return nil, false, err
	}
	return body.Data, body.Meta.Next != nil, nil
}

func (c *HTTPClient) BlockTransactions(peer, blockID string) ([]*Transaction, error) {
	var all []*Transaction
	for page := 1; ; page++ {
		var body struct {
			Data []*Transaction `json:"data"`
		}
		query := url.Values{"page": {strconv.Itoa(page)}}
		path := fmt.Sprintf("/api/blocks/%s/transactions", blockID)
		if err := c.get(peer, path, query, &body); err != nil {
			return nil, err
		}
		if len(body.Data) == 0 {
			return all, nil
		}
		all = append(all, body.Data...)
	}
}

func (c *HTTPClient) CreateWebhook(peer, target string, conditions []interface{}) (*Webhook, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"target":     target,
		"event":      "block.applied",
		"conditions": conditions,
	})
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Post(peer+"/api/webhooks", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrapf(err, "POST %s/api/webhooks", peer)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, errors.Errorf("webhook subscription refused: status %d", resp.StatusCode)
	}
	var body struct {
		Data *Webhook `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if body.Data == nil || body.Data.Token == "" {
		return nil, errors.New("webhook subscription returned no token")
	}
	return body.Data, nil
}

func (c *HTTPClient) DeleteWebhook(peer, id string) error {
	req, err := http.NewRequest(http.MethodDelete, peer+"/api/webhooks/"+id, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "DELETE webhook %s", id)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return errors.Errorf("webhook deletion refused: status %d", resp.StatusCode)
	}
	return nil
}
