package cli

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

// execute runs the command tree with args, capturing combined output.
// Flag state is restored afterwards so parsed values do not leak
// between tests.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(resetFlags)
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func resetFlags() {
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	reset(rootCmd.PersistentFlags())
	for _, c := range rootCmd.Commands() {
		reset(c.Flags())
	}
	rootCmd.SetArgs(nil)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestHelpMutatesNothing(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	for _, args := range [][]string{
		{"-h"},
		{"setup", "-h"},
		{"build", "-h"},
		{"sysinfo", "-h"},
		{"run", "-h"},
		{"deploy", "-h"},
		{"exec", "-h"},
	} {
		out, err := execute(t, args...)
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", args, err)
		}
		if !strings.Contains(out, "Usage:") {
			t.Errorf("%v: help output missing usage, got %q", args, out)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("help created files: %v", entries)
	}
}

func TestUnknownFlagFails(t *testing.T) {
	if _, err := execute(t, "run", "--definitely-not-a-flag"); err == nil {
		t.Fatal("expected an error for an unknown flag")
	}
}

func TestUnknownCommandExitsOne(t *testing.T) {
	t.Cleanup(resetFlags)
	restore := exitFunc
	var code int
	exitFunc = func(c int) { code = c }
	defer func() { exitFunc = restore }()

	rootCmd.SetArgs([]string{"no-such-command"})
	Execute()
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "benchfleet") || !strings.Contains(out, Version) {
		t.Errorf("version output = %q", out)
	}
}

func TestEnvOverridesInventory(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, "config.yaml", minimalConfig)
	t.Setenv("BENCHFLEET_INVENTORY", "fleet-a.ini")

	_, err := execute(t, "run")
	if err == nil {
		t.Fatal("expected an error for the missing inventory")
	}
	if !strings.Contains(err.Error(), "fleet-a.ini") {
		t.Errorf("error %q does not use the environment override", err)
	}
}
