package params

import (
	"math"
	"regexp"
)

// Pre-acceptance field validation. A field bag failing any of these
// never reaches the journal.
var (
	idPattern = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
	syPattern = regexp.MustCompile(`^[0-9a-zA-Z]{3,8}$`)
	naPattern = regexp.MustCompile(`^.{3,24}$`)
	duPattern = regexp.MustCompile(`^(https?|ipfs|ipns|dweb)://[a-z0-9/:%_+.,#?!@&=-]{3,180}$`)
	noPattern = regexp.MustCompile(`^.{0,180}$`)
	dtPattern = regexp.MustCompile(`^(?s).{0,256}$`)
	txPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
)

// ValidateFields checks every known key of the field bag against the
// protocol constraints and the milestone's input types. It returns the
// first offending key and false, or "" and true.
func (c *Config) ValidateFields(fields map[string]interface{}, height uint64) (string, bool) {
	inputTypes := c.InputTypes(height)
	for key, value := range fields {
		if !validField(key, value, inputTypes) {
			return key, false
		}
	}
	return "", true
}

func validField(key string, value interface{}, inputTypes map[string]byte) bool {
	switch key {
	case "id":
		s, ok := value.(string)
		return ok && idPattern.MatchString(s)
	case "qt":
		return isNumeric(value)
	case "de":
		n, ok := asInt(value)
		return ok && n >= 0 && n <= 8
	case "sy":
		s, ok := value.(string)
		return ok && syPattern.MatchString(s)
	case "na":
		s, ok := value.(string)
		return ok && naPattern.MatchString(s)
	case "du":
		s, ok := value.(string)
		return ok && (s == "" || duPattern.MatchString(s))
	case "no":
		s, ok := value.(string)
		return ok && noPattern.MatchString(s)
	case "pa", "mi":
		_, ok := value.(bool)
		return ok
	case "ch":
		_, ok := asInt(value)
		return ok
	case "dt":
		// a JSON object string (vendor field path) or an already
		// decoded bag (codec path)
		switch v := value.(type) {
		case string:
			return dtPattern.MatchString(v)
		case map[string]string:
			return true
		case map[string]interface{}:
			for _, item := range v {
				if _, ok := item.(string); !ok {
					return false
				}
			}
			return true
		}
		return false
	case "tx":
		s, ok := value.(string)
		return ok && txPattern.MatchString(s)
	case "tp":
		s, ok := value.(string)
		if !ok {
			return false
		}
		_, known := inputTypes[s]
		return known
	}
	// unknown keys are not journalled, so not validated either
	return true
}

func isNumeric(value interface{}) bool {
	switch value.(type) {
	case float64, float32, int, int64, uint64:
		return true
	}
	return false
}

func asInt(value interface{}) (int, bool) {
	switch n := value.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}
