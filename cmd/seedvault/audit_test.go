package main

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forest6511/seedvault/pkg/audit"
)

func TestAuditListAndVerify(t *testing.T) {
	c := newCLI(t)
	c.importTestPhrase()
	c.mustRun(lines(testPassword), "show")

	out := c.mustRun("", "audit", "list")
	for _, op := range []string{audit.OpImport, audit.OpUnlock, audit.OpExport, audit.OpLock} {
		if !strings.Contains(out, op) {
			t.Errorf("expected %s in audit list, got:\n%s", op, out)
		}
	}
	if strings.Contains(out, testPhrase) || strings.Contains(out, testPassword) {
		t.Fatal("audit list leaked secret material")
	}

	out = c.mustRun("", "audit", "list", "--json", "--limit", "2")
	var events []audit.Event
	if err := json.Unmarshal([]byte(out), &events); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events, got %d", len(events))
	}

	out = c.mustRun(lines(testPassword), "audit", "verify")
	if !strings.Contains(out, "Audit log verified") {
		t.Errorf("unexpected verify output: %q", out)
	}
}

func TestAuditVerifyDetectsTampering(t *testing.T) {
	c := newCLI(t)
	c.importTestPhrase()

	files, _ := filepath.Glob(filepath.Join(c.dir, audit.DirName, "*.jsonl"))
	if len(files) != 1 {
		t.Fatalf("expected 1 audit file, got %d", len(files))
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(data), `"source":"cli"`, `"source":"mcp"`, 1)
	if err := os.WriteFile(files[0], []byte(tampered), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := c.run(lines(testPassword), "audit", "verify")
	if err == nil {
		t.Fatal("expected verification failure")
	}
	if !strings.Contains(out, "FAILED") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestAuditExport(t *testing.T) {
	c := newCLI(t)
	c.importTestPhrase()
	file := filepath.Join(t.TempDir(), "audit.csv")

	c.mustRun("", "audit", "export", "--format", "csv", "-o", file)
	f, err := os.Open(file)
	if err != nil {
		t.Fatalf("export file missing: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(records) < 2 {
		t.Errorf("expected header and at least one row, got %d records", len(records))
	}

	if _, err := c.run("", "audit", "export", "--until", "yesterday"); err == nil {
		t.Error("expected error for malformed --until")
	}
	if _, err := c.run("", "audit", "export", "--format", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestAuditPrune(t *testing.T) {
	c := newCLI(t)
	c.importTestPhrase()

	if _, err := c.run("", "audit", "prune"); err == nil {
		t.Error("expected error without --older-than")
	}

	out := c.mustRun(lines(testPassword), "audit", "prune", "--older-than", "30d", "--dry-run")
	if !strings.Contains(out, "Would delete 0") {
		t.Errorf("unexpected dry-run output: %q", out)
	}

	out = c.mustRun(lines(testPassword), "audit", "prune", "--older-than", "1d", "-f")
	if !strings.Contains(out, "No audit log entries to delete") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestParseDuration(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"24h", 24 * time.Hour, false},
		{"7d", 7 * day, false},
		{"2w", 14 * day, false},
		{"12m", 360 * day, false},
		{"1y", 365 * day, false},
		{"90s", 90 * time.Second, false},
		{"1h30m", 90 * time.Minute, false},
		{"d", 0, true},
		{"-3d", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDuration(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
