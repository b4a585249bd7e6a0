package smartbridge

import (
	"fmt"
)

// packVaria encodes one or two length-prefixed strings. Keys of a
// metadata bag travel as a key/value pair, trailing contract strings
// (sy, na, du, no) as single runs.
func packVaria(elems ...string) []byte {
	var out []byte
	for _, e := range elems {
		out = append(out, byte(len(e)))
		out = append(out, e...)
	}
	return out
}

// packVariaKeys serializes the given field keys in order. A missing
// field packs as an empty run so the positional decode stays aligned.
func packVariaKeys(fields map[string]interface{}, keys []string) ([]byte, error) {
	var out []byte
	for _, key := range keys {
		value := ""
		if v, ok := fields[key]; ok && v != nil {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("smartbridge: field %q is not a string", key)
			}
			value = s
		}
		if len(value) > 255 {
			return nil, fmt.Errorf("smartbridge: field %q too long", key)
		}
		out = append(out, packVaria(value)...)
	}
	return out, nil
}

// unpackVaria decodes consecutive length-prefixed runs until the data
// is exhausted and assigns them to keys positionally. Empty runs are
// dropped from the result; a truncated run is an error.
func unpackVaria(data []byte, keys []string) (map[string]string, error) {
	out := make(map[string]string)
	for i := 0; len(data) > 0; i++ {
		if i >= len(keys) {
			return nil, ErrInvalidSmartbridge
		}
		n := int(data[0])
		if n+1 > len(data) {
			return nil, ErrInvalidSmartbridge
		}
		if n > 0 {
			out[keys[i]] = string(data[1 : n+1])
		}
		data = data[n+1:]
	}
	return out, nil
}

// unpackMetaBag decodes a run of key/value pairs (the ADDMETA payload).
func unpackMetaBag(data []byte) (map[string]string, error) {
	out := make(map[string]string)
	for len(data) > 0 {
		kn := int(data[0])
		if kn == 0 || kn+1 > len(data) {
			return nil, ErrInvalidSmartbridge
		}
		key := string(data[1 : kn+1])
		data = data[kn+1:]
		if len(data) == 0 {
			return nil, ErrInvalidSmartbridge
		}
		vn := int(data[0])
		if vn+1 > len(data) {
			return nil, ErrInvalidSmartbridge
		}
		out[key] = string(data[1 : vn+1])
		data = data[vn+1:]
	}
	return out, nil
}

// MarshalMeta serializes a metadata bag into the length-prefixed form
// stored on SLP2 wallets, pairs ordered by size then key.
func MarshalMeta(meta map[string]string) []byte {
	var out []byte
	for _, kv := range sortedPairs(meta) {
		out = append(out, packVaria(kv.key, kv.value)...)
	}
	return out
}

// UnmarshalMeta decodes a wallet metadata blob back into a bag.
func UnmarshalMeta(blob []byte) (map[string]string, error) {
	return unpackMetaBag(blob)
}
