// Package smartbridge packs and unpacks SLP contract payloads to and
// from the vendor field of base-layer transfers. The wire form is
// "_slpN://" + hex(fixed header) + varia, at most 256 bytes, where the
// fixed header layout comes from the milestone format table and varia
// is a run of length-prefixed UTF-8 strings.
package smartbridge

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/Solar-network/go-slp/params"
)

// MaxSize is the vendor field capacity of a base-layer transfer.
const MaxSize = 256

// ErrInvalidSmartbridge is returned for any string that does not decode
// into a known SLP contract payload.
var ErrInvalidSmartbridge = errors.New("smartbridge: invalid serialized contract")

// Codec serializes and deserializes smartbridge strings against a
// network configuration (regex gate, input types, format table).
type Codec struct {
	config *params.Config
}

// New returns a codec bound to the given network configuration.
func New(config *params.Config) *Codec {
	return &Codec{config: config}
}

// variantFor maps an operation code to its fixed-header variant.
func variantFor(family, op string) (string, error) {
	switch family {
	case params.SLP1:
		switch op {
		case "GENESIS":
			return "genesis", nil
		case "BURN", "SEND", "MINT":
			return "fungible", nil
		case "PAUSE", "RESUME", "NEWOWNER", "FREEZE", "UNFREEZE":
			return "nonfungible", nil
		}
	case params.SLP2:
		switch op {
		case "GENESIS":
			return "genesis", nil
		case "PAUSE", "RESUME", "NEWOWNER", "AUTHMETA", "REVOKEMETA", "CLONE":
			return "nonfungible", nil
		case "ADDMETA":
			return "addmeta", nil
		case "VOIDMETA":
			return "voidmeta", nil
		}
	}
	return "", fmt.Errorf("smartbridge: unknown contract %s %s", family, op)
}

// variaKeys lists the trailing variable-length strings of each variant.
func variaKeys(family, variant string) []string {
	switch variant {
	case "genesis":
		return []string{"sy", "na", "du", "no"}
	case "fungible", "nonfungible":
		return []string{"no"}
	}
	return nil // addmeta carries a metadata bag, voidmeta nothing
}

// Pack serializes one operation into a smartbridge string using the
// format table active at height. ADDMETA must go through PackMeta since
// it may span several chunks.
func (c *Codec) Pack(family, op string, height uint64, fields map[string]interface{}) (string, error) {
	if op == "ADDMETA" {
		return "", fmt.Errorf("smartbridge: ADDMETA packs through PackMeta")
	}
	variant, err := variantFor(family, op)
	if err != nil {
		return "", err
	}
	format, ok := c.config.Format(family, variant, height)
	if !ok {
		return "", fmt.Errorf("smartbridge: no %s/%s format at height %d", family, variant, height)
	}
	code, ok := c.config.InputTypes(height)[op]
	if !ok {
		return "", fmt.Errorf("smartbridge: no opcode for %s at height %d", op, height)
	}
	fixed, err := packFixed(format, code, fields)
	if err != nil {
		return "", err
	}
	varia, err := packVariaKeys(fields, variaKeys(family, variant))
	if err != nil {
		return "", err
	}
	bridge := family + "://" + hex.EncodeToString(fixed) + string(varia)
	if len(bridge) > MaxSize {
		return "", fmt.Errorf("smartbridge: bad size (%d > %d)", len(bridge), MaxSize)
	}
	return bridge, nil
}

// PackMeta serializes an SLP2 ADDMETA metadata bag into one or more
// smartbridge strings. Pairs are ordered by len(key)+len(value) and
// split over chunks numbered from 1 whenever the remaining vendor field
// budget runs out; chunks are independent records linked by token id.
func (c *Codec) PackMeta(height uint64, tokenID string, meta map[string]string) ([]string, error) {
	format, ok := c.config.Format(params.SLP2, "addmeta", height)
	if !ok {
		return nil, fmt.Errorf("smartbridge: no addmeta format at height %d", height)
	}
	code, ok := c.config.InputTypes(height)["ADDMETA"]
	if !ok {
		return nil, fmt.Errorf("smartbridge: no ADDMETA opcode at height %d", height)
	}
	fixed, err := packFixed(format, code, map[string]interface{}{
		"id": tokenID,
		"ch": 0, // rewritten per chunk below
	})
	if err != nil {
		return nil, err
	}
	// vendor field budget: total - header - hex-encoded fixed part
	// (the chunk byte is already part of the addmeta format)
	spaceLeft := MaxSize - len(params.SLP2+"://") - 2*len(fixed)

	pairs := sortedPairs(meta)
	var serials [][]byte
	serial, remaining := []byte{}, spaceLeft
	for _, kv := range pairs {
		ser := packVaria(kv.key, kv.value)
		if len(kv.key)+len(kv.value) < remaining-2 {
			serial = append(serial, ser...)
			remaining -= len(ser)
		} else {
			serials = append(serials, serial)
			serial = append([]byte{}, ser...)
			remaining = spaceLeft - len(ser)
		}
	}
	serials = append(serials, serial)

	chunkIndex := chunkOffset(format)
	bridges := make([]string, 0, len(serials))
	for i, ser := range serials {
		header := append([]byte{}, fixed...)
		header[chunkIndex] = byte(i + 1)
		bridge := params.SLP2 + "://" + hex.EncodeToString(header) + string(ser)
		if len(bridge) > MaxSize {
			return nil, fmt.Errorf("smartbridge: bad size (%d > %d)", len(bridge), MaxSize)
		}
		bridges = append(bridges, bridge)
	}
	return bridges, nil
}

// chunkOffset locates the "ch" byte inside the addmeta fixed header.
func chunkOffset(format params.Format) int {
	offset := 0
	for _, field := range format {
		if field.Name == "ch" {
			return offset
		}
		offset += field.Size
	}
	return offset - 1
}

// packFixed encodes the little-endian fixed header.
func packFixed(format params.Format, opcode byte, fields map[string]interface{}) ([]byte, error) {
	out := make([]byte, 0, format.Size())
	for i, field := range format {
		var value interface{}
		if i == 0 {
			value = opcode
		} else {
			value = fields[field.Name]
		}
		switch field.Kind {
		case params.KindU8:
			out = append(out, byte(asUint(value)))
		case params.KindU16:
			var buf [2]byte
			binary.LittleEndian.PutUint16(buf[:], uint16(asUint(value)))
			out = append(out, buf[:]...)
		case params.KindU32:
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], uint32(asUint(value)))
			out = append(out, buf[:]...)
		case params.KindU64:
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], asUint(value))
			out = append(out, buf[:]...)
		case params.KindF64:
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(asFloat(value)))
			out = append(out, buf[:]...)
		case params.KindBool:
			b := byte(0)
			if truthy(value) {
				b = 1
			}
			out = append(out, b)
		case params.KindBytes:
			s, _ := value.(string)
			raw, err := hex.DecodeString(s)
			if err != nil || len(raw) > field.Size {
				return nil, fmt.Errorf("smartbridge: bad %q byte run", field.Name)
			}
			padded := make([]byte, field.Size)
			copy(padded, raw)
			out = append(out, padded...)
		}
	}
	return out, nil
}

type metaPair struct{ key, value string }

func sortedPairs(meta map[string]string) []metaPair {
	pairs := make([]metaPair, 0, len(meta))
	for k, v := range meta {
		pairs = append(pairs, metaPair{k, v})
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		li, lj := len(pairs[i].key)+len(pairs[i].value), len(pairs[j].key)+len(pairs[j].value)
		if li != lj {
			return li < lj
		}
		return pairs[i].key < pairs[j].key
	})
	return pairs
}

func asUint(v interface{}) uint64 {
	switch n := v.(type) {
	case byte:
		return uint64(n)
	case int:
		return uint64(n)
	case int64:
		return uint64(n)
	case uint64:
		return n
	case uint16:
		return uint64(n)
	case float64:
		return uint64(n)
	}
	return 0
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	}
	return 0
}

func truthy(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int:
		return b != 0
	case float64:
		return b != 0
	}
	return false
}
