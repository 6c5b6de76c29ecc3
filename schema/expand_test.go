package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExpand(t *testing.T) {
	got := Expand(Record{
		"accountHolderName": "Jane Doe",
		"address.city":      "New York",
		"address.country":   "US",
		"details.bank.code": "0001",
	})
	want := map[string]any{
		"accountHolderName": "Jane Doe",
		"address":           map[string]any{"city": "New York", "country": "US"},
		"details":           map[string]any{"bank": map[string]any{"code": "0001"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Expand() mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandPrefixCollision(t *testing.T) {
	got := Expand(Record{"address": "flat", "address.city": "Paris"})
	want := map[string]any{"address": map[string]any{"city": "Paris"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Expand() mismatch (-want +got):\n%s", diff)
	}
}

func TestFlatten(t *testing.T) {
	var in map[string]any
	raw := `{"legalType":"PRIVATE","address":{"city":"New York","postCode":10001},"primary":true,"note":null}`
	if err := json.NewDecoder(strings.NewReader(raw)).Decode(&in); err != nil {
		t.Fatal(err)
	}

	got, err := Flatten(in)
	if err != nil {
		t.Fatalf("Flatten() failed: %v", err)
	}
	want := Record{
		"legalType":        "PRIVATE",
		"address.city":     "New York",
		"address.postCode": "10001",
		"primary":          "true",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Flatten() mismatch (-want +got):\n%s", diff)
	}
}

func TestFlattenRejectsArrays(t *testing.T) {
	if _, err := Flatten(map[string]any{"tags": []any{"a"}}); err == nil {
		t.Error("Flatten() should reject arrays")
	}
}
