package models

import (
	"testing"
)

func TestTraitListScanArray(t *testing.T) {
	var list TraitList
	err := list.Scan([]byte(`[{"name": "Stealth", "description": "+5"}, {"name": "Common"}]`))
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Stealth" || list[1].Description != "" {
		t.Errorf("unexpected result %+v", list)
	}
}

func TestTraitListScanLegacyDoubleEncoded(t *testing.T) {
	// Older rows stored the list as a JSON string holding the array.
	var list TraitList
	err := list.Scan([]byte(`"[{\"name\": \"Darkvision\", \"description\": \"60 ft.\"}]"`))
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Darkvision" {
		t.Errorf("unexpected result %+v", list)
	}
}

func TestTraitListScanIsIdempotentOnPlainArrays(t *testing.T) {
	// A normally encoded column must not get a second decode.
	raw := `[{"name": "\"quoted\""}]`
	var list TraitList
	if err := list.Scan([]byte(raw)); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(list) != 1 || list[0].Name != `"quoted"` {
		t.Errorf("unexpected result %+v", list)
	}
}

func TestTraitListScanNilAndEmpty(t *testing.T) {
	var list TraitList
	if err := list.Scan(nil); err != nil {
		t.Fatalf("scan nil failed: %v", err)
	}
	if list != nil {
		t.Errorf("expected nil list, got %+v", list)
	}
	if err := list.Scan([]byte{}); err != nil {
		t.Fatalf("scan empty failed: %v", err)
	}
}

func TestTraitListScanGarbage(t *testing.T) {
	var list TraitList
	if err := list.Scan([]byte(`{{not json`)); err == nil {
		t.Error("expected an error for invalid JSON")
	}
}

func TestTraitListValueNil(t *testing.T) {
	var list TraitList
	v, err := list.Value()
	if err != nil {
		t.Fatalf("value failed: %v", err)
	}
	if string(v.([]byte)) != "[]" {
		t.Errorf("expected empty array, got %s", v)
	}
}

func TestTraitListRoundTrip(t *testing.T) {
	in := TraitList{{Name: "Multiattack", Description: "Two melee attacks."}}
	v, err := in.Value()
	if err != nil {
		t.Fatalf("value failed: %v", err)
	}
	var out TraitList
	if err := out.Scan(v); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(out) != 1 || out[0] != in[0] {
		t.Errorf("round trip mismatch: %+v", out)
	}
}
