package rules

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, dir, "a.rules", `# comment line
alert tcp any any -> any 80 (msg:"one"; sid:1;)

alert udp any any -> any 53 (msg:"two"; sid:2;)
`)
	writeFile(t, dir, "b.rules", `alert tcp any any -> any any (msg:"three"; sid:3;)
drop tcp any any -> any any (msg:"dropped"; sid:4;)
alert tcp any -> any (msg:"bad header"; sid:5;)
alert tcp any any -> any any
`)
	writeFile(t, dir, "ignored.txt", `alert tcp any any -> any any (msg:"ignored"; sid:6;)`)

	result := LoadRules(dir, "", testLogger())

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if len(result.Rules) != 3 {
		t.Fatalf("loaded %d rules, want 3", len(result.Rules))
	}
	if result.Failed() != 3 {
		t.Errorf("failed = %d, want 3", result.Failed())
	}
	if len(result.Files) != 2 {
		t.Fatalf("files = %d, want 2", len(result.Files))
	}

	wantSids := []string{"1", "2", "3"}
	for i, want := range wantSids {
		if got := result.Rules[i].SidOrDefault(); got != want {
			t.Errorf("rule %d sid = %q, want %q", i, got, want)
		}
	}

	failures := result.Files[1].Failures
	if failures[0].Reason != ReasonNotAlert || failures[0].Line != 2 || failures[0].File != "b.rules" {
		t.Errorf("first failure = %+v", failures[0])
	}
	if failures[1].Reason != ReasonBadHeader {
		t.Errorf("second failure = %+v", failures[1])
	}
	if failures[2].Reason != ReasonMissingOptions {
		t.Errorf("third failure = %+v", failures[2])
	}
}

func TestLoadRulesMissingDirectory(t *testing.T) {
	result := LoadRules(filepath.Join(t.TempDir(), "missing"), DefaultRulesExtension, testLogger())

	if result.Err == nil {
		t.Error("expected directory error to be recorded")
	}
	if len(result.Rules) != 0 {
		t.Errorf("loaded %d rules, want 0", len(result.Rules))
	}
}

func TestStoreBySid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "x.rules", `alert tcp any any -> any any (msg:"first"; sid:1;)
alert tcp any any -> any any (msg:"second"; sid:2;)
`)
	store := NewStore(LoadRules(dir, "", testLogger()).Rules)

	if store.Len() != 2 {
		t.Fatalf("Len() = %d", store.Len())
	}
	rule, ok := store.BySid("2")
	if !ok || rule.MsgOrDefault() != "second" {
		t.Errorf("BySid(2) = %+v, %v", rule, ok)
	}
	if _, ok := store.BySid("99"); ok {
		t.Error("BySid(99) should not be found")
	}
}
