package cli

import (
	"strings"
	"testing"
)

func TestExecLocalFleet(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, "host.ini", "[all]\nlocalhost connection=local\n")

	out, err := execute(t, "exec", "--", "echo", "fleet-ok")
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if !strings.Contains(out, "fleet-ok") {
		t.Errorf("output missing command stdout: %q", out)
	}
	if !strings.Contains(out, "1 node") {
		t.Errorf("output missing group label: %q", out)
	}
}

func TestExecFailedCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, "host.ini", "[all]\nlocalhost connection=local\n")

	_, err := execute(t, "exec", "--", "false")
	if err == nil {
		t.Fatal("expected an error when the command fails everywhere")
	}
	if !strings.Contains(err.Error(), "1 of 1 nodes failed") {
		t.Errorf("error = %q", err)
	}
}

func TestExecSudoRejectsLocalFleet(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, "host.ini", "[all]\nlocalhost connection=local\n")

	_, err := execute(t, "exec", "--sudo", "--", "id")
	if err == nil || !strings.Contains(err.Error(), "ssh nodes only") {
		t.Fatalf("err = %v, want the sudo restriction", err)
	}
}
