// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sweepPlan = `{
	// Nightly sweep: both solvers against two cubics.
	"suite": "root-finding",
	"tasks": [
		{"name": "easy", "kind": "cubic", "fields": {"a": 1.0, "d": -1.0}},
		{"name": "hard", "kind": "cubic", "fields": {"a": 1.0, "b": -6.0, "c": 11.0, "d": -6.0}},
	],
	"methods": [
		{"name": "rand", "kind": "random-search"},
		{"name": "nwt", "kind": "newton", "fields": {"eps": 0.001}},
	],
	"runs": [
		{"task": "easy", "method": "rand", "count": 3},
		{"task": "hard"}, /* all methods, once each */
	],
}`

func TestParse(t *testing.T) {
	t.Parallel()

	parsed, err := Parse([]byte(sweepPlan))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if parsed.Suite != "root-finding" {
		t.Errorf("suite = %q, want %q", parsed.Suite, "root-finding")
	}
	if len(parsed.Tasks) != 2 || len(parsed.Methods) != 2 || len(parsed.Runs) != 2 {
		t.Fatalf("got %d tasks, %d methods, %d runs, want 2/2/2",
			len(parsed.Tasks), len(parsed.Methods), len(parsed.Runs))
	}
	if parsed.Tasks[0].Kind != "cubic" || parsed.Tasks[0].Name != "easy" {
		t.Errorf("tasks[0] = %+v, want cubic named easy", parsed.Tasks[0])
	}
	if len(parsed.Tasks[0].Fields) == 0 {
		t.Error("tasks[0] fields should carry the raw object")
	}
	if parsed.Runs[0].Count != 3 {
		t.Errorf("runs[0].count = %d, want 3", parsed.Runs[0].Count)
	}
	if issues := parsed.Validate(); len(issues) != 0 {
		t.Errorf("Validate = %v, want no issues", issues)
	}
}

func TestParse_SyntaxErrorNamesPosition(t *testing.T) {
	t.Parallel()

	// The stray bracket sits on line 3.
	_, err := Parse([]byte("{\n\t\"suite\": \"x\",\n\t]\n}"))
	if err == nil {
		t.Fatal("Parse should fail on malformed JSON")
	}
	if !strings.Contains(err.Error(), "line 3") {
		t.Errorf("error = %v, want line 3 position", err)
	}
}

func TestParse_TypeErrorNamesPosition(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`{"tasks": "not-a-list"}`))
	if err == nil {
		t.Fatal("Parse should fail on mistyped field")
	}
	if !strings.Contains(err.Error(), "line 1") {
		t.Errorf("error = %v, want position context", err)
	}
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sweep.jsonc")
	if err := os.WriteFile(path, []byte(sweepPlan), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	parsed, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(parsed.Tasks) != 2 {
		t.Errorf("got %d tasks, want 2", len(parsed.Tasks))
	}

	_, err = ReadFile(filepath.Join(t.TempDir(), "absent.jsonc"))
	if err == nil {
		t.Error("ReadFile of a missing file should fail")
	}

	bad := filepath.Join(t.TempDir(), "bad.jsonc")
	if err := os.WriteFile(bad, []byte("{"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err = ReadFile(bad)
	if err == nil || !strings.Contains(err.Error(), "bad.jsonc") {
		t.Errorf("error = %v, want the file path in the message", err)
	}
}

func TestNameFromPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{"plans/nightly-sweep.jsonc", "nightly-sweep"},
		{"sweep.json", "sweep"},
		{"/abs/dir/plan.v2.jsonc", "plan.v2"},
		{"bare", "bare"},
	}
	for _, testCase := range tests {
		if got := NameFromPath(testCase.path); got != testCase.want {
			t.Errorf("NameFromPath(%q) = %q, want %q", testCase.path, got, testCase.want)
		}
	}
}

func TestExpand(t *testing.T) {
	t.Parallel()

	parsed, err := Parse([]byte(sweepPlan))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	pairs, err := parsed.Expand()
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	// easy(0)×rand(0)×3, then hard(1) against both methods once each.
	want := []RunPair{
		{Task: 0, Method: 0},
		{Task: 0, Method: 0},
		{Task: 0, Method: 0},
		{Task: 1, Method: 0},
		{Task: 1, Method: 1},
	}
	if len(pairs) != len(want) {
		t.Fatalf("got %d pairs, want %d", len(pairs), len(want))
	}
	for i := range want {
		if pairs[i] != want[i] {
			t.Errorf("pairs[%d] = %+v, want %+v", i, pairs[i], want[i])
		}
	}
}

func TestExpand_UnknownSelector(t *testing.T) {
	t.Parallel()

	bad := &Plan{
		Tasks:   []Instance{{Name: "easy", Kind: "cubic"}},
		Methods: []Instance{{Kind: "newton"}},
		Runs:    []RunRequest{{Task: "absent"}},
	}
	_, err := bad.Expand()
	if err == nil || !strings.Contains(err.Error(), `task "absent"`) {
		t.Errorf("Expand = %v, want unknown-task error", err)
	}
}

func TestExpand_NoDeclarations(t *testing.T) {
	t.Parallel()

	bad := &Plan{Runs: []RunRequest{{}}}
	_, err := bad.Expand()
	if err == nil || !strings.Contains(err.Error(), "runs[0]") {
		t.Errorf("Expand = %v, want runs[0] context", err)
	}
}
