package core

import (
	"encoding/json"
	"testing"
)

func TestBlockstamp(t *testing.T) {
	bs, err := ParseBlockstamp("12345#7")
	if err != nil {
		t.Fatal(err)
	}
	if bs.Height != 12345 || bs.Index != 7 {
		t.Fatalf("parse mismatch: %+v", bs)
	}
	if bs.String() != "12345#7" {
		t.Fatalf("string mismatch: %s", bs)
	}
	for _, bad := range []string{"", "12345", "a#1", "1#b", "1#70000"} {
		if _, err := ParseBlockstamp(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}

	after := []struct {
		a, b Blockstamp
		want bool
	}{
		{Blockstamp{2, 0}, Blockstamp{1, 9}, true},
		{Blockstamp{1, 1}, Blockstamp{1, 0}, true},
		{Blockstamp{1, 1}, Blockstamp{1, 1}, false},
		{Blockstamp{1, 0}, Blockstamp{1, 1}, false},
		{Blockstamp{1, 9}, Blockstamp{2, 0}, false},
	}
	for _, tt := range after {
		if tt.a.After(tt.b) != tt.want {
			t.Errorf("%s after %s: want %t", tt.a, tt.b, tt.want)
		}
	}
}

func TestRecordJSONRoundTrip(t *testing.T) {
	legit := true
	r := &Record{
		Height: 42, Index: 3, TxID: "cafe", SlpType: "_slp1",
		Timestamp: 1234.5, Emitter: "A", Receiver: "M", Cost: 100,
		Legit: &legit, Poh: "feed",
		Fields: map[string]interface{}{
			"tp": "GENESIS", "de": float64(2), "qt": float64(1000),
			"sy": "TKN", "na": "Token", "pa": false, "mi": true,
		},
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	back := new(Record)
	if err := json.Unmarshal(data, back); err != nil {
		t.Fatal(err)
	}
	if back.Height != 42 || back.Index != 3 || back.TxID != "cafe" ||
		back.SlpType != "_slp1" || back.Cost != 100 || back.Poh != "feed" {
		t.Fatalf("envelope mismatch: %+v", back)
	}
	if back.Legit == nil || *back.Legit != true {
		t.Fatalf("legit mismatch: %v", back.Legit)
	}
	if back.Tp() != "GENESIS" || back.De() != 2 || back.Sy() != "TKN" || !back.Mi() {
		t.Fatalf("field mismatch: %v", back.Fields)
	}
	if qt, ok := back.Qt(); !ok || qt != 1000 {
		t.Fatalf("qt mismatch: %v %t", qt, ok)
	}
}

func TestRecordJSONNullLegit(t *testing.T) {
	r := &Record{Height: 1, Index: 0, Fields: map[string]interface{}{"tp": "SEND"}}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	back := new(Record)
	if err := json.Unmarshal(data, back); err != nil {
		t.Fatal(err)
	}
	if back.Legit != nil {
		t.Fatalf("verdict should stay open, have %v", *back.Legit)
	}
}
