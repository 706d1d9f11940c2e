package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ShayCichocki/finsight/internal/llm"
)

func TestInsightsCommands(t *testing.T) {
	dir := isolate(t)
	cfgPath := writeTestConfig(t, dir, "file")

	steps := []struct {
		args []string
		want string
	}{
		{[]string{"insights", "add", "aapl", "Strong", "quarter"}, "Added stock insight for AAPL"},
		{[]string{"insights", "add", "--topic", "industry", "Semiconductors", "Demand is cyclical"}, "Added industry insight for Semiconductors"},
		{[]string{"insights", "show", "$AAPL"}, "Strong quarter"},
		{[]string{"insights", "show", "MSFT"}, "No stock insights for MSFT."},
		{[]string{"insights", "list", "--topic", "industry"}, "Semiconductors"},
		{[]string{"insights", "lesson", "Check", "earnings", "dates"}, "Lesson added"},
		{[]string{"insights", "lessons"}, "Check earnings dates"},
		{[]string{"insights", "summary"}, "recent: AAPL"},
	}

	for _, step := range steps {
		resetFlags()
		args := append([]string{"--config", cfgPath}, step.args...)
		out, err := run(t, args...)
		if err != nil {
			t.Fatalf("%v: %v", step.args, err)
		}
		if !strings.Contains(out, step.want) {
			t.Errorf("%v output = %q, want it to contain %q", step.args, out, step.want)
		}
	}
}

func TestInsightsShowRejectsUnknownTopic(t *testing.T) {
	dir := isolate(t)
	cfgPath := writeTestConfig(t, dir, "memory")

	_, err := run(t, "--config", cfgPath, "insights", "show", "--topic", "crypto", "BTC")
	if err == nil || !strings.Contains(err.Error(), "unknown topic") {
		t.Errorf("err = %v, want unknown topic", err)
	}
}

func TestInsightsExportImport(t *testing.T) {
	dir := isolate(t)
	src := writeTestConfig(t, dir, "file")

	if _, err := run(t, "--config", src, "insights", "add", "NVDA", "Datacenter growth"); err != nil {
		t.Fatalf("add: %v", err)
	}
	resetFlags()
	if _, err := run(t, "--config", src, "insights", "lesson", "Prefer fresh news"); err != nil {
		t.Fatalf("lesson: %v", err)
	}

	exportPath := filepath.Join(dir, "backup.json")
	resetFlags()
	if _, err := run(t, "--config", src, "insights", "export", exportPath); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := os.Stat(exportPath); err != nil {
		t.Fatalf("export file: %v", err)
	}

	resetFlags()
	out, err := run(t, "--config", src, "--data-dir", filepath.Join(dir, "other"), "insights", "import", exportPath)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "Imported 1 insights and 1 lessons") {
		t.Errorf("import output = %q", out)
	}

	resetFlags()
	out, err = run(t, "--config", src, "--data-dir", filepath.Join(dir, "other"), "insights", "show", "NVDA")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "Datacenter growth") {
		t.Errorf("show after import = %q", out)
	}
}

func TestConfigShowMasksKeys(t *testing.T) {
	dir := isolate(t)
	cfgPath := writeTestConfig(t, dir, "memory")
	t.Setenv("FINNHUB_API_KEY", "finnhub-secret-key-12345")

	out, err := run(t, "--config", cfgPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "finnhub-secret-key-12345") {
		t.Error("config show printed a raw key")
	}
	for _, want := range []string{"cache.backend: memory", "finnhub key: finnhub...2345 [environment]", "anthropic key: (not set) [none]"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigInit(t *testing.T) {
	dir := isolate(t)

	out, err := run(t, "config", "init", "--project")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, ".finsight.yaml") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, ".finsight.yaml")); err != nil {
		t.Fatalf("project config not written: %v", err)
	}

	resetFlags()
	if _, err := run(t, "config", "init", "--project"); err == nil {
		t.Error("second init without --force should fail")
	}

	resetFlags()
	if _, err := run(t, "config", "init", "--project", "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}

	resetFlags()
	if _, err := run(t, "config", "init"); err != nil {
		t.Fatalf("user config init: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "xdg", "finsight", "config.yaml")); err != nil {
		t.Errorf("user config not written: %v", err)
	}
}

func TestAskCommandOffline(t *testing.T) {
	dir := isolate(t)
	cfgPath := writeTestConfig(t, dir, "memory")

	out, err := run(t, "--config", cfgPath, "ask", "How", "is", "AAPL", "doing?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !strings.HasPrefix(out, "Mock response from Orchestrator") {
		t.Errorf("ask output = %q", out)
	}
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf, []llm.Usage{
		{Model: "claude-test", InputTokens: 120, OutputTokens: 30, Calls: 1, Failures: 1},
		{Model: "gpt-4o-mini", InputTokens: 10, OutputTokens: 5, Calls: 2},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("printed %d lines, want 2: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "claude-test") || !strings.Contains(lines[0], "120 in / 30 out tokens, 1 calls") || !strings.Contains(lines[0], "1 failed") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if strings.Contains(lines[1], "failed") {
		t.Errorf("line 1 = %q, should not mention failures", lines[1])
	}
}
