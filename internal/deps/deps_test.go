package deps

import (
	"os"
	"path/filepath"
	"testing"
)

// fakeTool writes an executable shell script named name into a fresh PATH.
func fakeTool(t *testing.T, name, script string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir)
}

func TestCheckInstalled(t *testing.T) {
	fakeTool(t, "pw-record", `echo "pw-record"; echo "Compiled with libpipewire 1.2.7"`)

	status := CheckPwRecord()
	if !status.Installed {
		t.Fatal("pw-record in PATH but Installed=false")
	}
	if status.Path == "" {
		t.Error("installed but path empty")
	}
	if status.Version != "pw-record" {
		t.Errorf("Version = %q, want first output line", status.Version)
	}
	if !status.Required {
		t.Error("pw-record should be required")
	}
}

func TestCheckNotInstalled(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	status := CheckNotifySend()
	if status.Installed {
		t.Error("expected Installed=false with empty PATH")
	}
	if status.Path != "" {
		t.Error("expected empty path when not installed")
	}
	if status.Name != "notify-send" {
		t.Errorf("Name = %q", status.Name)
	}
}

func TestCheckVersionFailure(t *testing.T) {
	fakeTool(t, "notify-send", "exit 3")

	status := CheckNotifySend()
	if !status.Installed {
		t.Fatal("expected Installed=true")
	}
	if status.Version != "" {
		t.Errorf("failing version command should leave Version empty, got %q", status.Version)
	}
}

func TestMissing(t *testing.T) {
	statuses := []Status{
		{Name: "pw-record", Required: true},
		{Name: "notify-send"},
		{Name: "other", Required: true, Installed: true},
	}
	missing := Missing(statuses)
	if len(missing) != 1 || missing[0] != "pw-record" {
		t.Errorf("Missing = %v, want [pw-record]", missing)
	}
}
