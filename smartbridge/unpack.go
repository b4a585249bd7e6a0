package smartbridge

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/pkg/errors"

	"github.com/Solar-network/go-slp/params"
)

// Unpack decodes a smartbridge string into its contract family and
// field bag using the format table active at height. Numeric fields
// come back as float64, byte runs as hex strings, the ADDMETA bag as a
// map[string]string under "dt" and "tp" as the operation name.
func (c *Codec) Unpack(bridge string, height uint64) (string, map[string]interface{}, error) {
	if len(bridge) > MaxSize {
		return "", nil, errors.Wrap(ErrInvalidSmartbridge, "bad size (>256)")
	}
	match := c.config.SerializedRegex().FindStringSubmatch(bridge)
	if match == nil || len(match) < 3 {
		return "", nil, ErrInvalidSmartbridge
	}
	family, data := match[1], match[2]

	known := false
	for _, t := range c.config.SlpTypes(height) {
		if t == family {
			known = true
			break
		}
	}
	if !known {
		return "", nil, errors.Wrapf(ErrInvalidSmartbridge, "unexpected %s contract", family)
	}

	if len(data) < 2 {
		return "", nil, ErrInvalidSmartbridge
	}
	opByte, err := hex.DecodeString(data[:2])
	if err != nil {
		return "", nil, ErrInvalidSmartbridge
	}
	op, ok := c.config.TypesInput(height)[opByte[0]]
	if !ok {
		return "", nil, errors.Wrapf(ErrInvalidSmartbridge, "unknown input type %d", opByte[0])
	}
	variant, err := variantFor(family, op)
	if err != nil {
		return "", nil, ErrInvalidSmartbridge
	}
	format, ok := c.config.Format(family, variant, height)
	if !ok {
		return "", nil, errors.Wrapf(ErrInvalidSmartbridge, "no %s/%s format", family, variant)
	}

	n := 2 * format.Size()
	if len(data) < n {
		return "", nil, ErrInvalidSmartbridge
	}
	fixed, err := hex.DecodeString(data[:n])
	if err != nil {
		return "", nil, ErrInvalidSmartbridge
	}
	fields, err := unpackFixed(format, fixed)
	if err != nil {
		return "", nil, err
	}
	fields["tp"] = op

	varia := []byte(data[n:])
	switch variant {
	case "addmeta":
		if len(varia) > 0 {
			dt, err := unpackMetaBag(varia)
			if err != nil {
				return "", nil, err
			}
			fields["dt"] = dt
		}
	case "voidmeta":
		if len(varia) > 0 {
			return "", nil, ErrInvalidSmartbridge
		}
	default:
		extra, err := unpackVaria(varia, variaKeys(family, variant))
		if err != nil {
			return "", nil, err
		}
		for k, v := range extra {
			fields[k] = v
		}
	}
	return family, fields, nil
}

// unpackFixed decodes the little-endian fixed header into a field bag.
// The leading "tp" byte is consumed but overwritten by the caller with
// the operation name.
func unpackFixed(format params.Format, fixed []byte) (map[string]interface{}, error) {
	fields := make(map[string]interface{})
	offset := 0
	for _, field := range format {
		if offset+field.Size > len(fixed) {
			return nil, ErrInvalidSmartbridge
		}
		raw := fixed[offset : offset+field.Size]
		offset += field.Size
		switch field.Kind {
		case params.KindU8:
			fields[field.Name] = float64(raw[0])
		case params.KindU16:
			fields[field.Name] = float64(binary.LittleEndian.Uint16(raw))
		case params.KindU32:
			fields[field.Name] = float64(binary.LittleEndian.Uint32(raw))
		case params.KindU64:
			fields[field.Name] = float64(binary.LittleEndian.Uint64(raw))
		case params.KindF64:
			fields[field.Name] = math.Float64frombits(binary.LittleEndian.Uint64(raw))
		case params.KindBool:
			fields[field.Name] = raw[0] != 0
		case params.KindBytes:
			if field.Name == "tx" {
				// strip txid zero padding
				raw = bytes.TrimRight(raw, "\x00")
			}
			fields[field.Name] = hex.EncodeToString(raw)
		}
	}
	return fields, nil
}
