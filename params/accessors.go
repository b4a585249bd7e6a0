package params

import "regexp"

// DatabaseName returns the store/database identifier of the network.
func (c *Config) DatabaseName() string { return c.stringValue("database name", AskLatest) }

// APIPeer returns the default base-layer API peer.
func (c *Config) APIPeer() string { return c.stringValue("api peer", AskLatest) }

// WebhookPeer returns the base-layer peer carrying the webhook API.
func (c *Config) WebhookPeer() string { return c.stringValue("webhook peer", AskLatest) }

// MasterAddress is the sink address administrative operations must target.
func (c *Config) MasterAddress() string { return c.stringValue("master address", AskLatest) }

// Blocktime returns the base-layer block interval in seconds.
func (c *Config) Blocktime() float64 {
	v, _ := c.Ask("blocktime", AskLatest)
	f, _ := v.(float64)
	return f
}

// PeerLimit bounds the gossip peer registry.
func (c *Config) PeerLimit() int {
	if v, ok := c.Ask("peer limit", AskLatest); ok {
		return int(toUint64(v))
	}
	return 10
}

// MessageMemorySize bounds the Messenger dedup memory.
func (c *Config) MessageMemorySize() int {
	if v, ok := c.Ask("message memory size", AskLatest); ok {
		return int(toUint64(v))
	}
	return 20
}

// LogLevel returns the configured logrus level name.
func (c *Config) LogLevel() string {
	if v, ok := c.Ask("log level", AskLatest); ok {
		if s, isStr := v.(string); isStr {
			return s
		}
	}
	return "info"
}

// PohHashName pins the journal hash function for the whole network.
// Only "sha256" and the legacy "md5" are meaningful; a journal never
// mixes the two.
func (c *Config) PohHashName() string {
	if v, ok := c.Ask("poh hash", AskLatest); ok {
		if s, isStr := v.(string); isStr {
			return s
		}
	}
	return "sha256"
}

// SerializedRegex gates inbound smartbridge strings. The expression
/// must expose two groups: the slp family and the serialized payload.
func (c *Config) SerializedRegex() *regexp.Regexp { return c.regexp }

// SlpTypes lists the contract families active at height.
func (c *Config) SlpTypes(height uint64) []string {
	return c.stringSlice("slp types", height)
}

// SlpFields lists the operation field keys journalled at height.
func (c *Config) SlpFields(height uint64) []string {
	return c.stringSlice("slp fields", height)
}

// DeniedTickers lists symbols refused at GENESIS.
func (c *Config) DeniedTickers(height uint64) []string {
	return c.stringSlice("denied tickers", height)
}

// InputTypes maps operation codes (GENESIS, SEND, ...) to their wire
// opcode at height.
func (c *Config) InputTypes(height uint64) map[string]byte {
	v, ok := c.Ask("input types", height)
	if !ok {
		return nil
	}
	raw, _ := v.(map[string]interface{})
	types := make(map[string]byte, len(raw))
	for name, code := range raw {
		types[name] = byte(toUint64(code))
	}
	return types
}

// TypesInput is the reverse of InputTypes.
func (c *Config) TypesInput(height uint64) map[byte]string {
	reverse := make(map[byte]string)
	for name, code := range c.InputTypes(height) {
		reverse[code] = name
	}
	return reverse
}

// Cost returns the minimum base-layer transfer amount for op at height.
func (c *Config) Cost(family, op string, height uint64) (uint64, bool) {
	v, ok := c.Ask("cost", height)
	if !ok {
		return 0, false
	}
	families, _ := v.(map[string]interface{})
	ops, _ := families[family].(map[string]interface{})
	cost, ok := ops[op]
	if !ok {
		return 0, false
	}
	return toUint64(cost), true
}

// Format returns the fixed-header layout of (family, variant) at height.
func (c *Config) Format(family, variant string, height uint64) (Format, bool) {
	v, ok := c.Ask("slp formats", height)
	if !ok {
		return nil, false
	}
	families, _ := v.(map[string]interface{})
	variants, _ := families[family].(map[string]interface{})
	spec, ok := variants[variant].([]interface{})
	if !ok {
		return nil, false
	}
	fields := make([]string, 0, len(spec))
	for _, f := range spec {
		s, isStr := f.(string)
		if !isStr {
			return nil, false
		}
		fields = append(fields, s)
	}
	format, err := ParseFormat(fields)
	if err != nil {
		return nil, false
	}
	return format, true
}

func (c *Config) stringValue(key string, height uint64) string {
	v, _ := c.Ask(key, height)
	s, _ := v.(string)
	return s
}

func (c *Config) stringSlice(key string, height uint64) []string {
	v, ok := c.Ask(key, height)
	if !ok {
		return nil
	}
	raw, _ := v.([]interface{})
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, isStr := item.(string); isStr {
			out = append(out, s)
		}
	}
	return out
}
