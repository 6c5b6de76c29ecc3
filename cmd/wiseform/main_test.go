package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/liamcoop/wisepay/requirements"
)

var descriptor = filepath.Join("..", "..", "requirements", "testdata", "usd_requirements.json")

func writeRecord(t *testing.T, rec map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "record.json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func abaRecord() map[string]any {
	return map[string]any{
		"legalType":         "PRIVATE",
		"accountHolderName": "Jane Doe",
		"abartn":            "111000025",
		"accountNumber":     "12345678",
		"accountType":       "CHECKING",
		"address": map[string]any{
			"country":   "US",
			"city":      "New York",
			"firstLine": "123 Main Street",
			"postCode":  "10001",
			"state":     "NY",
		},
	}
}

func execute(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := createRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCommands(t *testing.T) {
	invalid := abaRecord()
	invalid["abartn"] = "12345"
	stateless := abaRecord()
	delete(stateless["address"].(map[string]any), "state")

	testCases := []struct {
		name    string
		args    []string
		wantErr error
		want    []string
	}{
		{
			name: "parse first type",
			args: []string{"parse", descriptor},
			want: []string{`"Type": "aba"`, `"Key": "abartn"`, `"Pattern": "^\\d{9}$"`},
		},
		{
			name: "parse selected type",
			args: []string{"parse", descriptor, "--type", "swift_code"},
			want: []string{`"Type": "swift_code"`, `"Key": "swiftCode"`},
		},
		{
			name:    "parse unknown type",
			args:    []string{"parse", descriptor, "--type", "iban"},
			wantErr: requirements.ErrUnknownRecipientType,
		},
		{
			name: "validate valid record",
			args: []string{"validate", descriptor, writeRecord(t, abaRecord())},
			want: []string{`"abartn": "111000025"`, `"city": "New York"`},
		},
		{
			name:    "validate reports every field error",
			args:    []string{"validate", descriptor, writeRecord(t, invalid)},
			wantErr: errInvalidRecord,
			want:    []string{"abartn\ttoo_short", "abartn\tpattern_mismatch"},
		},
		{
			name:    "validate applies cross-field rules",
			args:    []string{"validate", descriptor, writeRecord(t, stateless)},
			wantErr: errInvalidRecord,
			want:    []string{"address.state\trule_violation\tState code is required for US"},
		},
		{
			name: "validate without rules",
			args: []string{"validate", descriptor, writeRecord(t, stateless), "--rules=false"},
			want: []string{`"postCode": "10001"`},
		},
		{
			name: "example flat",
			args: []string{"example", descriptor, "--flat", "--optional"},
			want: []string{`"abartn": "111000025"`, `"address.state": "ab"`},
		},
		{
			name: "example nested",
			args: []string{"example", descriptor},
			want: []string{`"address": {`, `"country": "US"`},
		},
		{
			name: "qr data url",
			args: []string{"qr", "https://wise.com/pay/r/4711", "--png"},
			want: []string{"data:image/png;base64,"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, _, err := execute(tc.args...)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("Execute() failed: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("Execute() error = %v, want %v", err, tc.wantErr)
			}
			for _, w := range tc.want {
				if !strings.Contains(out, w) {
					t.Errorf("output should contain %q, got:\n%s", w, out)
				}
			}
		})
	}
}

func TestExampleValidates(t *testing.T) {
	out, _, err := execute("example", descriptor, "--optional")
	if err != nil {
		t.Fatalf("example failed: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("example output is not JSON: %v", err)
	}

	validated, _, err := execute("validate", descriptor, writeRecord(t, rec))
	if err != nil {
		t.Fatalf("validate of the generated example failed: %v\n%s", err, validated)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(validated), &got); err != nil {
		t.Fatalf("validate output is not JSON: %v", err)
	}
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("normalized record mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchRejectsInvalidCorridor(t *testing.T) {
	_, _, err := execute("fetch", "--source", "EUR", "--target", "USD", "--amount", "0", "--configfile", "")
	if err == nil {
		t.Error("fetch with a zero amount should fail before any request")
	}
}
