// Package params holds the named network configuration of a go-slp node:
// a top-level key set merged with an ascending list of height-activated
// milestones overriding protocol rules (costs, field sets, serialized
// formats, input types).
package params

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// SLP contract families.
const (
	SLP1 = "_slp1"
	SLP2 = "_slp2"
)

// AskLatest selects the latest milestone in Config.Ask.
const AskLatest = math.MaxUint64

// requiredKeys must resolve through Ask for every height once the
// configuration is loaded.
var requiredKeys = []string{
	"database name",
	"api peer",
	"webhook peer",
	"master address",
	"blocktime",
	"peer limit",
	"slp types",
	"slp fields",
	"slp formats",
	"cost",
	"denied tickers",
	"input types",
	"serialized regex",
}

// Milestone is a point-in-time override of protocol parameters, already
// merged with every previous milestone.
type Milestone struct {
	Height uint64
	Values map[string]interface{}
}

// Config is a named network configuration. Top-level values always win
// over milestone values; everything else resolves through the latest
// milestone activated at or below the asked height.
type Config struct {
	Name string

	values     map[string]interface{}
	milestones []Milestone
	regexp     *regexp.Regexp
}

// Load reads {name}.json and milestones.json from dir and builds the
// merged milestone list.
func Load(dir, name string) (*Config, error) {
	values, err := loadJSON(filepath.Join(dir, name+".json"))
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("params: no configuration file found for %q", name)
	}
	var raw []map[string]interface{}
	blob, err := os.ReadFile(filepath.Join(dir, "milestones.json"))
	if err != nil {
		return nil, fmt.Errorf("params: missing milestones.json: %v", err)
	}
	if err := json.Unmarshal(blob, &raw); err != nil {
		return nil, fmt.Errorf("params: malformed milestones.json: %v", err)
	}
	return New(name, values, raw)
}

// New builds a Config from already decoded JSON values. Milestones are
// sorted by their "height" entry and merged cumulatively: scalars
// overwrite, mappings shallow-merge, sequences concatenate and dedup.
func New(name string, values map[string]interface{}, milestones []map[string]interface{}) (*Config, error) {
	c := &Config{Name: name, values: values}

	sort.SliceStable(milestones, func(i, j int) bool {
		return toUint64(milestones[i]["height"]) < toUint64(milestones[j]["height"])
	})
	previous := map[string]interface{}{}
	c.milestones = []Milestone{{Height: 1, Values: previous}}
	for _, m := range milestones {
		height := toUint64(m["height"])
		if height == 0 {
			return nil, fmt.Errorf("params: milestone without height: %v", m)
		}
		overrides := make(map[string]interface{}, len(m))
		for k, v := range m {
			if k != "height" {
				overrides[k] = v
			}
		}
		merged, err := mergeMilestone(previous, overrides)
		if err != nil {
			return nil, fmt.Errorf("params: milestone %d: %v", height, err)
		}
		if height == c.lastMilestone().Height {
			c.milestones[len(c.milestones)-1].Values = merged
		} else {
			c.milestones = append(c.milestones, Milestone{Height: height, Values: merged})
		}
		previous = merged
	}

	for _, key := range requiredKeys {
		if _, ok := c.Ask(key, AskLatest); !ok {
			return nil, fmt.Errorf("params: required key %q unresolved", key)
		}
	}
	pattern, ok := c.Ask("serialized regex", AskLatest)
	if !ok {
		return nil, fmt.Errorf("params: missing serialized regex")
	}
	re, err := regexp.Compile(pattern.(string))
	if err != nil {
		return nil, fmt.Errorf("params: bad serialized regex: %v", err)
	}
	c.regexp = re
	return c, nil
}

func (c *Config) lastMilestone() *Milestone {
	return &c.milestones[len(c.milestones)-1]
}

// Ask resolves key at the given activation height. Top-level values are
// returned as-is; otherwise the value comes from the latest milestone
// whose height is <= height (the latest of all for AskLatest).
func (c *Config) Ask(key string, height uint64) (interface{}, bool) {
	if v, ok := c.values[key]; ok {
		return v, true
	}
	for i := len(c.milestones) - 1; i >= 0; i-- {
		if c.milestones[i].Height <= height {
			v, ok := c.milestones[i].Values[key]
			return v, ok
		}
	}
	return nil, false
}

// FirstMilestoneHeight is the lowest activation height, used as the
// back-fill starting point.
func (c *Config) FirstMilestoneHeight() uint64 {
	return c.milestones[0].Height
}

// mergeMilestone merges override b on top of a. Values present in both
// must share their JSON kind: mappings shallow-merge, sequences
// concatenate and deduplicate, scalars overwrite.
func mergeMilestone(a, b map[string]interface{}) (map[string]interface{}, error) {
	merged := make(map[string]interface{}, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		prev, ok := merged[k]
		if !ok {
			merged[k] = v
			continue
		}
		switch pv := prev.(type) {
		case map[string]interface{}:
			over, ok := v.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("unmergeable data for key %q", k)
			}
			sub := make(map[string]interface{}, len(pv)+len(over))
			for sk, sv := range pv {
				sub[sk] = sv
			}
			for sk, sv := range over {
				sub[sk] = sv
			}
			merged[k] = sub
		case []interface{}:
			over, ok := v.([]interface{})
			if !ok {
				return nil, fmt.Errorf("unmergeable data for key %q", k)
			}
			seen := make(map[string]struct{}, len(pv)+len(over))
			var out []interface{}
			for _, item := range append(append([]interface{}{}, pv...), over...) {
				id := fmt.Sprintf("%v", item)
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				out = append(out, item)
			}
			merged[k] = out
		default:
			if fmt.Sprintf("%T", prev) != fmt.Sprintf("%T", v) {
				return nil, fmt.Errorf("unmergeable data for key %q", k)
			}
			merged[k] = v
		}
	}
	return merged, nil
}

func loadJSON(filename string) (map[string]interface{}, error) {
	blob, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, err
	}
	var data map[string]interface{}
	if err := json.Unmarshal(blob, &data); err != nil {
		return nil, fmt.Errorf("params: malformed %s: %v", filepath.Base(filename), err)
	}
	return data, nil
}

func toUint64(v interface{}) uint64 {
	switch n := v.(type) {
	case float64:
		return uint64(n)
	case int:
		return uint64(n)
	case uint64:
		return n
	case json.Number:
		u, _ := n.Int64()
		return uint64(u)
	}
	return 0
}
