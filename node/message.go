// Package node carries the gossip side of a go-slp node: the bounded
// peer registry, the Broadcaster and Messenger workers, the PoH
// consensus table and the HTTP surface peers talk to.
package node

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "node")

// DefaultPort is the gossip port SLP nodes listen on.
const DefaultPort = 5201

// Hello announces a peer URL to another node.
type Hello struct {
	Peer string `json:"peer"`
}

// ConsensusMsg asks peers to ratify the record at Blockstamp. Hash is
// the canonical hash of the record's operation fields so peers answer
// without shipping the fields themselves. N and X bound forwarding for
// peers not yet synced to the referenced height.
type ConsensusMsg struct {
	Origin     string `json:"origin"`
	Blockstamp string `json:"blockstamp"`
	Hash       string `json:"hash"`
	N          int    `json:"n,omitempty"`
	X          int    `json:"x,omitempty"`
}

// Consent is the unicast answer to a ConsensusMsg. The nonce keeps
// every consent unique through the dedup memory.
type Consent struct {
	Blockstamp string `json:"blockstamp"`
	Poh        string `json:"poh"`
	Nonce      string `json:"#"`
}

// Message is the gossip envelope; exactly one member is set.
type Message struct {
	Hello     *Hello        `json:"hello,omitempty"`
	Consensus *ConsensusMsg `json:"consensus,omitempty"`
	Consent   *Consent      `json:"consent,omitempty"`
}

// hashBody canonicalizes a JSON body (sorted keys, no whitespace) and
// returns its md5, the dedup key of the Messenger memory.
func hashBody(blob []byte) string {
	var decoded interface{}
	if err := json.Unmarshal(blob, &decoded); err == nil {
		if canonical, err := json.Marshal(decoded); err == nil {
			blob = canonical
		}
	}
	sum := md5.Sum(blob)
	return hex.EncodeToString(sum[:])
}
