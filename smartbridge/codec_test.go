package smartbridge

import (
	"strings"
	"testing"

	"github.com/Solar-network/go-slp/params"
)

const testTokenID = "0123456789abcdef0123456789abcdef"

func newTestCodec() *Codec {
	return New(params.TestConfig())
}

func TestPackUnpackSLP1Genesis(t *testing.T) {
	codec := newTestCodec()

	bridge, err := codec.Pack(params.SLP1, "GENESIS", 1, map[string]interface{}{
		"de": 2, "qt": 100000, "pa": false, "mi": true,
		"sy": "TKN", "na": "Token", "du": "https://tkn.example", "no": "hello",
	})
	if err != nil {
		t.Fatalf("pack failed: %v", err)
	}
	if !strings.HasPrefix(bridge, params.SLP1+"://") {
		t.Fatalf("bad prefix: %q", bridge)
	}

	family, fields, err := codec.Unpack(bridge, 1)
	if err != nil {
		t.Fatalf("unpack failed: %v", err)
	}
	if family != params.SLP1 {
		t.Fatalf("family mismatch: have %s, want %s", family, params.SLP1)
	}
	if fields["tp"] != "GENESIS" {
		t.Errorf("tp mismatch: %v", fields["tp"])
	}
	if fields["de"] != float64(2) || fields["qt"] != float64(100000) {
		t.Errorf("numeric mismatch: de=%v qt=%v", fields["de"], fields["qt"])
	}
	if fields["pa"] != false || fields["mi"] != true {
		t.Errorf("flag mismatch: pa=%v mi=%v", fields["pa"], fields["mi"])
	}
	for key, want := range map[string]string{
		"sy": "TKN", "na": "Token", "du": "https://tkn.example", "no": "hello",
	} {
		if fields[key] != want {
			t.Errorf("%s mismatch: have %v, want %q", key, fields[key], want)
		}
	}
}

func TestPackUnpackSLP1Fungible(t *testing.T) {
	codec := newTestCodec()

	for _, op := range []string{"BURN", "MINT", "SEND"} {
		bridge, err := codec.Pack(params.SLP1, op, 1, map[string]interface{}{
			"id": testTokenID, "qt": 250,
		})
		if err != nil {
			t.Fatalf("%s: pack failed: %v", op, err)
		}
		_, fields, err := codec.Unpack(bridge, 1)
		if err != nil {
			t.Fatalf("%s: unpack failed: %v", op, err)
		}
		if fields["tp"] != op {
			t.Errorf("%s: tp mismatch: %v", op, fields["tp"])
		}
		if fields["id"] != testTokenID {
			t.Errorf("%s: id mismatch: %v", op, fields["id"])
		}
		if fields["qt"] != float64(250) {
			t.Errorf("%s: qt mismatch: %v", op, fields["qt"])
		}
	}
}

func TestPackUnpackSLP1NonFungible(t *testing.T) {
	codec := newTestCodec()

	for _, op := range []string{"PAUSE", "RESUME", "NEWOWNER", "FREEZE", "UNFREEZE"} {
		bridge, err := codec.Pack(params.SLP1, op, 1, map[string]interface{}{
			"id": testTokenID, "no": "note",
		})
		if err != nil {
			t.Fatalf("%s: pack failed: %v", op, err)
		}
		_, fields, err := codec.Unpack(bridge, 1)
		if err != nil {
			t.Fatalf("%s: unpack failed: %v", op, err)
		}
		if fields["tp"] != op || fields["id"] != testTokenID || fields["no"] != "note" {
			t.Errorf("%s: field mismatch: %v", op, fields)
		}
	}
}

func TestPackUnpackSLP2Genesis(t *testing.T) {
	codec := newTestCodec()

	bridge, err := codec.Pack(params.SLP2, "GENESIS", 1, map[string]interface{}{
		"pa": true, "sy": "META", "na": "Metadata token", "du": "", "no": "",
	})
	if err != nil {
		t.Fatalf("pack failed: %v", err)
	}
	family, fields, err := codec.Unpack(bridge, 1)
	if err != nil {
		t.Fatalf("unpack failed: %v", err)
	}
	if family != params.SLP2 || fields["tp"] != "GENESIS" || fields["pa"] != true {
		t.Fatalf("field mismatch: %v", fields)
	}
	if _, exists := fields["du"]; exists {
		t.Errorf("empty varia run should be dropped, have %v", fields["du"])
	}
}

func TestPackUnpackVoidMeta(t *testing.T) {
	codec := newTestCodec()
	txid := strings.Repeat("ab", 32)

	bridge, err := codec.Pack(params.SLP2, "VOIDMETA", 1, map[string]interface{}{
		"id": testTokenID, "tx": txid,
	})
	if err != nil {
		t.Fatalf("pack failed: %v", err)
	}
	_, fields, err := codec.Unpack(bridge, 1)
	if err != nil {
		t.Fatalf("unpack failed: %v", err)
	}
	if fields["tx"] != txid {
		t.Errorf("tx mismatch: have %v, want %s", fields["tx"], txid)
	}
}

func TestPackMetaSingleChunk(t *testing.T) {
	codec := newTestCodec()
	meta := map[string]string{"color": "blue", "kind": "badge"}

	bridges, err := codec.PackMeta(1, testTokenID, meta)
	if err != nil {
		t.Fatalf("pack failed: %v", err)
	}
	if len(bridges) != 1 {
		t.Fatalf("chunk count mismatch: have %d, want 1", len(bridges))
	}
	_, fields, err := codec.Unpack(bridges[0], 1)
	if err != nil {
		t.Fatalf("unpack failed: %v", err)
	}
	if fields["tp"] != "ADDMETA" || fields["ch"] != float64(1) {
		t.Fatalf("header mismatch: %v", fields)
	}
	dt, ok := fields["dt"].(map[string]string)
	if !ok {
		t.Fatalf("dt is not a bag: %T", fields["dt"])
	}
	for k, v := range meta {
		if dt[k] != v {
			t.Errorf("dt[%s] mismatch: have %q, want %q", k, dt[k], v)
		}
	}
}

func TestPackMetaChunking(t *testing.T) {
	codec := newTestCodec()
	meta := map[string]string{
		"alpha": strings.Repeat("a", 120),
		"beta":  strings.Repeat("b", 120),
		"gamma": strings.Repeat("c", 120),
	}

	bridges, err := codec.PackMeta(1, testTokenID, meta)
	if err != nil {
		t.Fatalf("pack failed: %v", err)
	}
	if len(bridges) < 2 {
		t.Fatalf("expected several chunks, have %d", len(bridges))
	}
	merged := make(map[string]string)
	for i, bridge := range bridges {
		if len(bridge) > MaxSize {
			t.Fatalf("chunk %d over capacity: %d bytes", i, len(bridge))
		}
		_, fields, err := codec.Unpack(bridge, 1)
		if err != nil {
			t.Fatalf("chunk %d: unpack failed: %v", i, err)
		}
		if fields["ch"] != float64(i+1) {
			t.Errorf("chunk %d: ch mismatch: %v", i, fields["ch"])
		}
		if dt, ok := fields["dt"].(map[string]string); ok {
			for k, v := range dt {
				merged[k] = v
			}
		}
	}
	for k, v := range meta {
		if merged[k] != v {
			t.Errorf("pair %q lost across chunks", k)
		}
	}
}

func TestUnpackRejectsGarbage(t *testing.T) {
	codec := newTestCodec()

	for _, bad := range []string{
		"",
		"hello world",
		"_slp3://00",                     // unknown family
		params.SLP1 + "://",              // no opcode
		params.SLP1 + "://ff",            // unknown input type
		params.SLP1 + "://00zz",          // not hex
		params.SLP1 + "://0002",          // truncated genesis header
		params.SLP1 + "://" + strings.Repeat("00", 200), // oversized varia run
	} {
		if _, _, err := codec.Unpack(bad, 1); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestPackRejectsOversize(t *testing.T) {
	codec := newTestCodec()

	_, err := codec.Pack(params.SLP1, "GENESIS", 1, map[string]interface{}{
		"de": 2, "qt": 1, "sy": "TKN",
		"na": strings.Repeat("n", 120),
		"du": strings.Repeat("d", 120),
		"no": strings.Repeat("o", 120),
	})
	if err == nil {
		t.Fatal("expected size error")
	}
}

func TestMetaBlobRoundTrip(t *testing.T) {
	meta := map[string]string{"a": "1", "bb": "22", "ccc": ""}
	blob := MarshalMeta(meta)
	back, err := UnmarshalMeta(blob)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(back) != len(meta) {
		t.Fatalf("pair count mismatch: have %d, want %d", len(back), len(meta))
	}
	for k, v := range meta {
		if back[k] != v {
			t.Errorf("pair %q mismatch: have %q, want %q", k, back[k], v)
		}
	}
}
