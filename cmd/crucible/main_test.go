// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crucible-foundation/crucible/lib/bench"
	"github.com/crucible-foundation/crucible/lib/cli"
	"github.com/crucible-foundation/crucible/lib/sealed"
	"github.com/crucible-foundation/crucible/lib/store"
)

// waveTask and sampleMethod exist only to seed store files through
// the typed API. The binary under test has no suite, so it reads the
// same rows back raw.
type waveTask struct {
	Frequency float64 `json:"frequency" desc:"oscillation frequency in Hz"`
}

func (waveTask) IsTask() {}

type sampleMethod struct {
	Points float64 `json:"points" default:"8"`
}

func (sampleMethod) IsMethod() {}

// Fixed run ids so assertions can name rows directly.
const (
	doneRunID    = "aaaa000000000001"
	failedRunID  = "bbbb000000000002"
	runningRunID = "cccc000000000003"
)

// seedStore writes one task, one method, and three runs (done,
// failed, running) through the typed API, then closes the store so
// the binary can reopen the file.
func seedStore(t *testing.T, path string, key []byte) (taskID, methodID string) {
	t.Helper()
	suite, err := bench.New("wave-bench", bench.Options{})
	if err != nil {
		t.Fatalf("bench.New: %v", err)
	}
	if err := suite.AddTask("wave", waveTask{}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := suite.AddMethod("sample", sampleMethod{}); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}

	records, err := store.Open(suite, store.Options{Path: path, Key: key})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	ctx := context.Background()
	task, err := records.PutTask(ctx, waveTask{Frequency: 440})
	if err != nil {
		t.Fatalf("PutTask: %v", err)
	}
	method, err := records.PutMethod(ctx, sampleMethod{Points: 16})
	if err != nil {
		t.Fatalf("PutMethod: %v", err)
	}
	for _, seeded := range []bench.Run{
		{ID: doneRunID, Task: task, Method: method, Outcome: bench.Result{"peak": 0.981}},
		{ID: failedRunID, Task: task, Method: method, Outcome: bench.Failure{Message: "diverged"}},
		{ID: runningRunID, Task: task, Method: method},
	} {
		if err := records.PutRun(ctx, seeded); err != nil {
			t.Fatalf("PutRun(%s): %v", seeded.ID, err)
		}
	}
	if err := records.Close(); err != nil {
		t.Fatalf("closing store: %v", err)
	}
	return string(task), string(method)
}

// clearStoreEnv keeps ambient shell configuration out of the flag
// defaults read by AddFlags.
func clearStoreEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CRUCIBLE_STORE", "")
	t.Setenv("CRUCIBLE_STORE_KEY", "")
}

// crucibleTest drives the binary's command surface in-process against
// a seeded store file.
type crucibleTest struct {
	t        *testing.T
	path     string
	taskID   string
	methodID string
}

func newCrucibleTest(t *testing.T) *crucibleTest {
	t.Helper()
	clearStoreEnv(t)
	path := filepath.Join(t.TempDir(), "wave-bench.db")
	taskID, methodID := seedStore(t, path, nil)
	return &crucibleTest{t: t, path: path, taskID: taskID, methodID: methodID}
}

// run invokes one command line and returns the exit code and output.
func (ct *crucibleTest) run(args ...string) (code int, stdout, stderr string) {
	ct.t.Helper()
	var outBuffer, errBuffer bytes.Buffer
	code = run(append([]string{"crucible"}, args...), &outBuffer, &errBuffer)
	return code, outBuffer.String(), errBuffer.String()
}

// mustRun invokes one command line and fails the test on a non-zero
// exit.
func (ct *crucibleTest) mustRun(args ...string) (stdout string) {
	ct.t.Helper()
	code, stdout, stderr := ct.run(args...)
	if code != 0 {
		ct.t.Fatalf("%v exited %d, stderr:\n%s", args, code, stderr)
	}
	return stdout
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// TestCommandTree validates basic help hygiene over the whole tree:
// every command can be listed and dispatched.
func TestCommandTree(t *testing.T) {
	p := &program{ctx: context.Background()}
	walkCommands(p.root(), nil, func(command *cli.Command, path []string) {
		name := strings.Join(path, " ")
		if command.Name == "" {
			t.Errorf("%s: command has no name", name)
		}
		if command.Summary == "" {
			t.Errorf("%s: command has no summary", name)
		}
		if command.Run == nil && len(command.Subcommands) == 0 {
			t.Errorf("%s: command has neither a run function nor subcommands", name)
		}
	})
}

// walkCommands visits every command in the tree with its accumulated
// path.
func walkCommands(command *cli.Command, path []string, visit func(*cli.Command, []string)) {
	current := append(append([]string(nil), path...), command.Name)
	visit(command, current)
	for _, sub := range command.Subcommands {
		walkCommands(sub, current, visit)
	}
}

func TestSplitLogLevel(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantRest  []string
		wantLevel slog.Level
	}{
		{"empty", nil, nil, slog.LevelInfo},
		{"absent", []string{"ls", "runs"}, []string{"ls", "runs"}, slog.LevelInfo},
		{"before command", []string{"--log-level", "debug", "stats"}, []string{"stats"}, slog.LevelDebug},
		{"after command", []string{"stats", "--log-level=error"}, []string{"stats"}, slog.LevelError},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rest, level, err := splitLogLevel(test.args)
			if err != nil {
				t.Fatalf("splitLogLevel(%v): %v", test.args, err)
			}
			if strings.Join(rest, " ") != strings.Join(test.wantRest, " ") {
				t.Errorf("rest = %v, want %v", rest, test.wantRest)
			}
			if level != test.wantLevel {
				t.Errorf("level = %v, want %v", level, test.wantLevel)
			}
		})
	}
}

func TestSplitLogLevel_Errors(t *testing.T) {
	for _, args := range [][]string{
		{"--log-level"},
		{"--log-level", "blaring"},
		{"--log-level=blaring"},
	} {
		if _, _, err := splitLogLevel(args); err == nil {
			t.Errorf("splitLogLevel(%v) succeeded, want error", args)
		}
	}
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"crucible", "version"}, &stdout, &stderr); code != 0 {
		t.Fatalf("version exited %d, stderr:\n%s", code, stderr.String())
	}
	if !strings.HasPrefix(stdout.String(), "crucible ") {
		t.Errorf("version output %q does not start with the binary name", stdout.String())
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"crucible", "trellis"}, &stdout, &stderr); code == 0 {
		t.Fatal("unknown command succeeded")
	}
}

func TestRun_NoStore(t *testing.T) {
	clearStoreEnv(t)
	var stdout, stderr bytes.Buffer
	if code := run([]string{"crucible", "ls", "runs"}, &stdout, &stderr); code == 0 {
		t.Fatal("ls with no store configured succeeded")
	}
	if !strings.Contains(stderr.String(), "CRUCIBLE_STORE") {
		t.Errorf("stderr %q does not mention the environment variable", stderr.String())
	}
}

func TestRun_MissingStoreFile(t *testing.T) {
	clearStoreEnv(t)
	var stdout, stderr bytes.Buffer
	absent := filepath.Join(t.TempDir(), "absent.db")
	if code := run([]string{"crucible", "ls", "runs", "--store", absent}, &stdout, &stderr); code == 0 {
		t.Fatal("ls against a missing store file succeeded")
	}
}

func TestRun_StoreFromEnvironment(t *testing.T) {
	ct := newCrucibleTest(t)
	t.Setenv("CRUCIBLE_STORE", ct.path)
	stdout := ct.mustRun("ls", "tasks")
	if !strings.Contains(stdout, ct.taskID) {
		t.Errorf("ls tasks via CRUCIBLE_STORE missing id %s:\n%s", ct.taskID, stdout)
	}
}

func TestRun_Ls(t *testing.T) {
	ct := newCrucibleTest(t)

	tasks := ct.mustRun("ls", "tasks", "--store", ct.path)
	if !strings.Contains(tasks, "ID") || !strings.Contains(tasks, "wave") {
		t.Errorf("ls tasks missing header or type label:\n%s", tasks)
	}
	if !strings.Contains(tasks, ct.taskID) {
		t.Errorf("ls tasks missing id %s:\n%s", ct.taskID, tasks)
	}
	if !strings.Contains(tasks, `{"frequency":440}`) {
		t.Errorf("ls tasks missing payload column:\n%s", tasks)
	}

	methods := ct.mustRun("ls", "methods", "--store", ct.path)
	if !strings.Contains(methods, ct.methodID) || !strings.Contains(methods, "sample") {
		t.Errorf("ls methods missing row for %s:\n%s", ct.methodID, methods)
	}

	runs := ct.mustRun("ls", "runs", "--store", ct.path)
	if rows := nonEmptyLines(runs); len(rows) != 4 { // header + three runs
		t.Fatalf("ls runs printed %d lines, want 4:\n%s", len(rows), runs)
	}
	for _, id := range []string{doneRunID, failedRunID, runningRunID} {
		if !strings.Contains(runs, id) {
			t.Errorf("ls runs missing run %s:\n%s", id, runs)
		}
	}
}

func TestRun_LsRunsFilters(t *testing.T) {
	ct := newCrucibleTest(t)

	done := ct.mustRun("ls", "runs", "--status", "done", "--store", ct.path)
	if rows := nonEmptyLines(done); len(rows) != 2 {
		t.Fatalf("ls runs --status done printed %d lines, want 2:\n%s", len(rows), done)
	}
	if !strings.Contains(done, doneRunID) || strings.Contains(done, failedRunID) {
		t.Errorf("status filter returned the wrong rows:\n%s", done)
	}

	limited := ct.mustRun("ls", "runs", "--limit=1", "--store", ct.path)
	if rows := nonEmptyLines(limited); len(rows) != 2 {
		t.Fatalf("ls runs --limit=1 printed %d lines, want 2:\n%s", len(rows), limited)
	}
}

func TestRun_Ls_Errors(t *testing.T) {
	ct := newCrucibleTest(t)
	for _, args := range [][]string{
		{"ls"},
		{"ls", "pigeons"},
		{"ls", "runs", "extra"},
		{"ls", "runs", "--status", "zonked"},
		{"ls", "runs", "--limit=-1"},
	} {
		args = append(args, "--store", ct.path)
		if code, _, _ := ct.run(args...); code == 0 {
			t.Errorf("%v succeeded, want error", args)
		}
	}
}

func TestRun_Show(t *testing.T) {
	ct := newCrucibleTest(t)

	task := ct.mustRun("show", ct.taskID, "--store", ct.path)
	if !strings.Contains(task, `"frequency": 440`) {
		t.Errorf("show task output missing field:\n%s", task)
	}

	canonical := ct.mustRun("show", ct.taskID, "--canonical", "--store", ct.path)
	if got := strings.TrimSpace(canonical); got != `{"frequency":440}` {
		t.Errorf("canonical task = %q, want %q", got, `{"frequency":440}`)
	}

	method := ct.mustRun("show", ct.methodID, "--store", ct.path)
	if !strings.Contains(method, `"points": 16`) {
		t.Errorf("show method output missing field:\n%s", method)
	}

	done := ct.mustRun("show", doneRunID, "--store", ct.path)
	for _, fragment := range []string{
		`"status": "done"`,
		`"type": "result"`,
		`"peak": 0.981`,
		fmt.Sprintf(`"task": %q`, ct.taskID),
	} {
		if !strings.Contains(done, fragment) {
			t.Errorf("show run output missing %s:\n%s", fragment, done)
		}
	}

	// A run with no outcome yet has a null result and no type key.
	running := ct.mustRun("show", runningRunID, "--store", ct.path)
	if !strings.Contains(running, `"status": "running"`) || !strings.Contains(running, `"result": null`) {
		t.Errorf("show of a running run = %s", running)
	}
	if strings.Contains(running, `"type"`) {
		t.Errorf("show of a running run claims an outcome type:\n%s", running)
	}
}

func TestRun_ShowMissing(t *testing.T) {
	ct := newCrucibleTest(t)
	code, _, stderr := ct.run("show", "1234123412341234", "--store", ct.path)
	if code == 0 {
		t.Fatal("show of an absent id succeeded")
	}
	if !strings.Contains(stderr, "no task, method, or run") {
		t.Errorf("stderr %q does not explain the miss", stderr)
	}
}

func TestRun_Rm(t *testing.T) {
	ct := newCrucibleTest(t)

	stdout := ct.mustRun("rm", "runs", failedRunID, "ffff000000000000", "--store", ct.path)
	if want := "removed 1 of 2 runs\n"; stdout != want {
		t.Errorf("rm output = %q, want %q", stdout, want)
	}
	runs := ct.mustRun("ls", "runs", "--store", ct.path)
	if strings.Contains(runs, failedRunID) {
		t.Errorf("removed run still listed:\n%s", runs)
	}

	// Removing a task leaves runs that reference it in place.
	ct.mustRun("rm", "tasks", ct.taskID, "--store", ct.path)
	runs = ct.mustRun("ls", "runs", "--store", ct.path)
	if rows := nonEmptyLines(runs); len(rows) != 3 { // header + two remaining runs
		t.Errorf("runs vanished with their task, %d lines:\n%s", len(rows), runs)
	}
}

func TestRun_Stats(t *testing.T) {
	ct := newCrucibleTest(t)
	stdout := ct.mustRun("stats", "--store", ct.path)

	wantRows := map[string]string{
		"tasks":   "1",
		"methods": "1",
		"runs":    "3",
		"running": "1",
		"done":    "1",
		"failed":  "1",
	}
	for _, line := range nonEmptyLines(stdout) {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		want, ok := wantRows[fields[0]]
		if !ok {
			continue
		}
		if fields[1] != want {
			t.Errorf("stats %s = %s, want %s", fields[0], fields[1], want)
		}
		delete(wantRows, fields[0])
	}
	if len(wantRows) > 0 {
		t.Errorf("stats output missing rows for %v:\n%s", wantRows, stdout)
	}
	if !strings.Contains(stdout, "database") {
		t.Errorf("stats output missing the database size:\n%s", stdout)
	}
}

func TestRun_ExportImportRoundTrip(t *testing.T) {
	ct := newCrucibleTest(t)
	dir := t.TempDir()
	archive := filepath.Join(dir, "bundle.tar.zst")

	stdout := ct.mustRun("export", archive, "--store", ct.path)
	if want := fmt.Sprintf("exported 1 tasks, 1 methods, 3 runs to %s\n", archive); stdout != want {
		t.Errorf("export output = %q, want %q", stdout, want)
	}

	// Import creates the destination store file.
	fresh := filepath.Join(dir, "fresh.db")
	stdout = ct.mustRun("import", archive, "--store", fresh)
	if want := "imported 1 tasks, 1 methods, 3 runs (0 already present)\n"; stdout != want {
		t.Errorf("import output = %q, want %q", stdout, want)
	}

	runs := ct.mustRun("ls", "runs", "--store", fresh)
	if rows := nonEmptyLines(runs); len(rows) != 4 {
		t.Fatalf("imported store lists %d lines, want 4:\n%s", len(rows), runs)
	}
	show := ct.mustRun("show", ct.taskID, "--store", fresh)
	if !strings.Contains(show, `"frequency": 440`) {
		t.Errorf("imported task does not resolve:\n%s", show)
	}

	// Importing the same archive again skips every record.
	stdout = ct.mustRun("import", archive, "--store", fresh)
	if want := "imported 0 tasks, 0 methods, 0 runs (5 already present)\n"; stdout != want {
		t.Errorf("second import output = %q, want %q", stdout, want)
	}
}

func TestRun_ExportStatusFilter(t *testing.T) {
	ct := newCrucibleTest(t)
	archive := filepath.Join(t.TempDir(), "done.tar.zst")
	stdout := ct.mustRun("export", archive, "--status", "done", "--store", ct.path)
	if !strings.Contains(stdout, "exported 1 tasks, 1 methods, 1 runs") {
		t.Errorf("filtered export output = %q", stdout)
	}
}

func TestRun_ExportBadRecipient(t *testing.T) {
	ct := newCrucibleTest(t)
	archive := filepath.Join(t.TempDir(), "sealed.tar.zst")
	if code, _, _ := ct.run("export", archive, "--recipient", "age1notakey", "--store", ct.path); code == 0 {
		t.Fatal("export with a malformed recipient succeeded")
	}
	if _, err := os.Stat(archive); err == nil {
		t.Error("failed export left the output file behind")
	}
}

func TestRun_ExportSealed(t *testing.T) {
	ct := newCrucibleTest(t)
	dir := t.TempDir()
	identity := filepath.Join(dir, "identity.txt")

	keyOut := ct.mustRun("keygen", "-o", identity)
	public := strings.TrimPrefix(strings.TrimSpace(keyOut), "public key: ")

	archive := filepath.Join(dir, "sealed.tar.zst")
	stdout := ct.mustRun("export", archive, "--recipient", public, "--store", ct.path)
	if !strings.Contains(stdout, "sealed to 1 recipient(s)") {
		t.Errorf("export output %q does not note sealing", stdout)
	}

	fresh := filepath.Join(dir, "fresh.db")
	if code, _, _ := ct.run("import", archive, "--store", fresh); code == 0 {
		t.Fatal("import of a sealed archive without an identity succeeded")
	}
	stdout = ct.mustRun("import", archive, "--store", fresh, "--identity", identity)
	if !strings.Contains(stdout, "imported 1 tasks, 1 methods, 3 runs") {
		t.Errorf("sealed import output = %q", stdout)
	}
}

func TestRun_Keygen(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"crucible", "keygen"}, &stdout, &stderr); code != 0 {
		t.Fatalf("keygen exited %d, stderr:\n%s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "# public key: age1") || !strings.Contains(out, "AGE-SECRET-KEY-") {
		t.Errorf("keygen output missing keypair:\n%s", out)
	}
}

func TestRun_KeygenToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.txt")
	var stdout, stderr bytes.Buffer
	if code := run([]string{"crucible", "keygen", "-o", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("keygen -o exited %d, stderr:\n%s", code, stderr.String())
	}
	if strings.Contains(stdout.String(), "AGE-SECRET-KEY-") {
		t.Error("keygen -o printed the private key to stdout")
	}
	if !strings.HasPrefix(stdout.String(), "public key: age1") {
		t.Errorf("keygen -o stdout = %q, want the public key", stdout.String())
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("identity file: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("identity file mode = %o, want 600", mode)
	}
	key, err := readIdentityFile(path)
	if err != nil {
		t.Fatalf("readIdentityFile: %v", err)
	}
	if !strings.HasPrefix(key, "AGE-SECRET-KEY-") {
		t.Errorf("identity file key = %q", key)
	}
}

func TestRun_SealedStore(t *testing.T) {
	clearStoreEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "wave-bench.db")
	key := make([]byte, store.KeySize)
	rand.Read(key)
	taskID, _ := seedStore(t, path, key)

	keyPath := filepath.Join(dir, "store.key")
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(key)+"\n"), 0o600); err != nil {
		t.Fatalf("writing key file: %v", err)
	}
	ct := &crucibleTest{t: t, path: path}

	if code, _, _ := ct.run("ls", "tasks", "--store", path); code == 0 {
		t.Fatal("ls on a sealed store without a key succeeded")
	}

	tasks := ct.mustRun("ls", "tasks", "--store", path, "--key-file", keyPath)
	if !strings.Contains(tasks, taskID) {
		t.Errorf("ls tasks with the key missing id %s:\n%s", taskID, tasks)
	}

	short := filepath.Join(dir, "short.key")
	if err := os.WriteFile(short, []byte("abcd"), 0o600); err != nil {
		t.Fatalf("writing short key: %v", err)
	}
	code, _, stderr := ct.run("ls", "tasks", "--store", path, "--key-file", short)
	if code == 0 {
		t.Fatal("a truncated key was accepted")
	}
	if !strings.Contains(stderr, "64 hex characters") {
		t.Errorf("stderr %q does not explain the key length", stderr)
	}
}

func TestReadIdentityFile(t *testing.T) {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	dir := t.TempDir()

	path := filepath.Join(dir, "identity.txt")
	content := fmt.Sprintf("# created 2026-08-26\n\n# public key: %s\n%s\n", keypair.PublicKey, keypair.PrivateKey)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing identity: %v", err)
	}
	key, err := readIdentityFile(path)
	if err != nil {
		t.Fatalf("readIdentityFile: %v", err)
	}
	if key != keypair.PrivateKey {
		t.Errorf("readIdentityFile = %q, want the private key", key)
	}

	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, []byte("# nothing here\n\n"), 0o600); err != nil {
		t.Fatalf("writing empty identity: %v", err)
	}
	if _, err := readIdentityFile(empty); err == nil {
		t.Error("identity file with no key parsed")
	}

	garbage := filepath.Join(dir, "garbage.txt")
	if err := os.WriteFile(garbage, []byte("not-a-key\n"), 0o600); err != nil {
		t.Fatalf("writing garbage identity: %v", err)
	}
	if _, err := readIdentityFile(garbage); err == nil {
		t.Error("identity file with a malformed key parsed")
	}
}

func TestTruncatePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		width   int
		want    string
	}{
		{"short", `{"a":1}`, 10, `{"a":1}`},
		{"exact", "abcde", 5, "abcde"},
		{"cut", "abcdefgh", 5, "abcd…"},
		{"multibyte", "日本語のテキスト", 4, "日本語…"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := truncatePayload([]byte(test.payload), test.width); got != test.want {
				t.Errorf("truncatePayload(%q, %d) = %q, want %q", test.payload, test.width, got, test.want)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 << 20, "5.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, test := range tests {
		if got := formatSize(test.bytes); got != test.want {
			t.Errorf("formatSize(%d) = %q, want %q", test.bytes, got, test.want)
		}
	}
}
