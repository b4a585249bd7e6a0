package params

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldKind enumerates the closed set of fixed-header field encodings.
type FieldKind uint8

const (
	KindU8 FieldKind = iota
	KindU16
	KindU32
	KindU64
	KindF64
	KindBool
	KindBytes // fixed-length byte run, hex-exposed
)

// FixedField is one little-endian packed field of a smartbridge header.
type FixedField struct {
	Name string
	Kind FieldKind
	Size int
}

// Format is the ordered fixed-header layout of a smartbridge variant.
type Format []FixedField

// ParseFormat interprets declarations like "u8 tp", "b16 id", "f64 qt",
// "bool pa" into a Format. The first field is always the opcode.
func ParseFormat(fields []string) (Format, error) {
	format := make(Format, 0, len(fields))
	for _, decl := range fields {
		parts := strings.Fields(decl)
		if len(parts) != 2 {
			return nil, fmt.Errorf("params: bad format field %q", decl)
		}
		kind, name := parts[0], parts[1]
		field := FixedField{Name: name}
		switch {
		case kind == "u8":
			field.Kind, field.Size = KindU8, 1
		case kind == "u16":
			field.Kind, field.Size = KindU16, 2
		case kind == "u32":
			field.Kind, field.Size = KindU32, 4
		case kind == "u64":
			field.Kind, field.Size = KindU64, 8
		case kind == "f64":
			field.Kind, field.Size = KindF64, 8
		case kind == "bool":
			field.Kind, field.Size = KindBool, 1
		case strings.HasPrefix(kind, "b"):
			size, err := strconv.Atoi(kind[1:])
			if err != nil || size <= 0 {
				return nil, fmt.Errorf("params: bad byte run %q", decl)
			}
			field.Kind, field.Size = KindBytes, size
		default:
			return nil, fmt.Errorf("params: unknown field kind %q", decl)
		}
		format = append(format, field)
	}
	if len(format) == 0 {
		return nil, fmt.Errorf("params: empty format")
	}
	return format, nil
}

// Size is the packed byte length of the whole header.
func (f Format) Size() int {
	n := 0
	for _, field := range f {
		n += field.Size
	}
	return n
}
