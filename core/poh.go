package core

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// TokenID derives the deterministic token identifier of a GENESIS
// operation from its family, symbol and journal position.
func TokenID(slpType, symbol string, height uint64, txid string) string {
	raw := fmt.Sprintf("%s.%s.%d.%s", strings.ToUpper(slpType), symbol, height, txid)
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// hashHex hashes data with the network hash function. Only "md5"
// (legacy journals) and "sha256" are meaningful; a journal never mixes
// the two.
func hashHex(name string, data []byte) string {
	if name == "md5" {
		sum := md5.Sum(data)
		return hex.EncodeToString(sum[:])
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FieldsHash hashes the canonical JSON form of an operation field bag
// (keys sorted, no whitespace). Consensus messages carry this hash so
// peers can verify a proof of history without the full bag.
func FieldsHash(hashName string, fields map[string]interface{}) string {
	data, err := json.Marshal(fields)
	if err != nil {
		// field bags only ever hold JSON types
		data = []byte("{}")
	}
	return hashHex(hashName, data)
}

// ComputePoH chains a field bag hash onto the previous legit proof of
// history. The previous proof is the empty string at journal genesis.
func ComputePoH(hashName, lastPoh, fieldsHash string) string {
	return hashHex(hashName, []byte(lastPoh+fieldsHash))
}
