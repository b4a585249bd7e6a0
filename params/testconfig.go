package params

// TestConfig returns a fully populated in-memory configuration for unit
// tests: one milestone at height 1 with the production field sets and
// formats, low costs, and "M" as master address.
func TestConfig() *Config {
	c, err := New("testnet", map[string]interface{}{
		"database name":    "slptest",
		"api peer":         "http://127.0.0.1:4003",
		"webhook peer":     "http://127.0.0.1:4004",
		"master address":   "M",
		"blocktime":        float64(8),
		"peer limit":       float64(10),
		"serialized regex": `^(_slp[0-9]+)://(.*)$`,
	}, []map[string]interface{}{
		{
			"height":         float64(1),
			"slp types":      []interface{}{SLP1, SLP2},
			"denied tickers": []interface{}{"SLP", "ARK", "SXP"},
			"slp fields": []interface{}{
				"tp", "id", "de", "qt", "sy", "na", "du", "no", "pa", "mi", "ch", "dt", "tx",
			},
			"input types": map[string]interface{}{
				"GENESIS": float64(0), "BURN": float64(1), "MINT": float64(2),
				"SEND": float64(3), "PAUSE": float64(4), "RESUME": float64(5),
				"NEWOWNER": float64(6), "FREEZE": float64(7), "UNFREEZE": float64(8),
				"AUTHMETA": float64(9), "ADDMETA": float64(16),
				"REVOKEMETA": float64(17), "VOIDMETA": float64(18),
				"CLONE": float64(19),
			},
			"cost": map[string]interface{}{
				SLP1: map[string]interface{}{
					"GENESIS": float64(100), "BURN": float64(1), "MINT": float64(1),
					"SEND": float64(1), "PAUSE": float64(1), "RESUME": float64(1),
					"NEWOWNER": float64(1), "FREEZE": float64(1), "UNFREEZE": float64(1),
				},
				SLP2: map[string]interface{}{
					"GENESIS": float64(100), "PAUSE": float64(1), "RESUME": float64(1),
					"NEWOWNER": float64(1), "AUTHMETA": float64(1), "ADDMETA": float64(1),
					"REVOKEMETA": float64(1), "VOIDMETA": float64(1), "CLONE": float64(1),
				},
			},
			"slp formats": map[string]interface{}{
				SLP1: map[string]interface{}{
					"genesis":     []interface{}{"u8 tp", "u8 de", "u64 qt", "bool pa", "bool mi"},
					"fungible":    []interface{}{"u8 tp", "b16 id", "u64 qt"},
					"nonfungible": []interface{}{"u8 tp", "b16 id"},
				},
				SLP2: map[string]interface{}{
					"genesis":     []interface{}{"u8 tp", "bool pa"},
					"nonfungible": []interface{}{"u8 tp", "b16 id"},
					"addmeta":     []interface{}{"u8 tp", "b16 id", "u8 ch"},
					"voidmeta":    []interface{}{"u8 tp", "b16 id", "b128 tx"},
				},
			},
		},
	})
	if err != nil {
		panic(err)
	}
	return c
}
