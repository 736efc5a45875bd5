package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestRun_ListsTasks(t *testing.T) {
	var out bytes.Buffer
	if code := run(nil, &out, &out); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	for name := range tasks {
		if !strings.Contains(out.String(), name) {
			t.Errorf("task %q missing from listing", name)
		}
	}
}

func TestRun_UnknownTask(t *testing.T) {
	var out bytes.Buffer
	if code := run([]string{"archive-everything"}, &out, &out); code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(out.String(), `unknown task "archive-everything"`) {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestRun_DryRunPrintsPlan(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"create-reports", "-smoke", "-dry-run", "-date", "2025-10-06"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d: %s", code, stderr.String())
	}

	var plan struct {
		Task    string  `json:"task"`
		Job     string  `json:"job"`
		Options options `json:"options"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &plan); err != nil {
		t.Fatalf("plan is not JSON: %v\n%s", err, stdout.String())
	}
	if plan.Task != "create-reports" || plan.Job != "CreateReports" {
		t.Errorf("plan = %+v", plan)
	}
	if !plan.Options.Smoke || plan.Options.Date != "2025-10-06" {
		t.Errorf("options = %+v", plan.Options)
	}
}

func TestParseOptions_RejectsBadDate(t *testing.T) {
	var stderr bytes.Buffer
	if _, err := parseOptions("ingest-appointments", []string{"-date", "06/10/2025"}, &stderr); err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(stderr.String(), "expected yyyy-mm-dd") {
		t.Errorf("stderr = %s", stderr.String())
	}
}

func TestTasks_AreComplete(t *testing.T) {
	for name, tk := range tasks {
		if tk.run == nil || tk.job == "" || tk.description == "" {
			t.Errorf("task %q is incomplete", name)
		}
	}
}

func TestParseOptions_EnvSecrets(t *testing.T) {
	var stderr bytes.Buffer
	opts, err := parseOptions("send-batch", []string{"-env-secrets"}, &stderr)
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if !opts.EnvSecrets {
		t.Error("EnvSecrets not set")
	}
}

func TestRun_DryRunRequeueStale(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"requeue-stale-batches", "-dry-run"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), `"job": "RequeueStaleBatches"`) {
		t.Errorf("plan = %s", stdout.String())
	}
}
