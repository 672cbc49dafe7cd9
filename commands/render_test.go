package commands

import (
	"strings"
	"testing"
	"time"

	"github.com/guidelab/stageground/rules"
	"github.com/guidelab/stageground/staging"
	"github.com/guidelab/stageground/validation"
)

func TestWriteReport(t *testing.T) {
	report := &validation.Report{
		Files: []rules.FileResult{
			{Path: "input/anc.bpmn"},
			{
				Path: "sushi-config.json",
				Violations: []rules.Violation{
					{
						RuleCode: "SUSHI-MISSING-BASE",
						Severity: rules.SeverityError,
						Message:  "dependencies must include hl7.fhir.uv.cpg",
						Location: &rules.Location{Path: "dependencies"},
					},
				},
				Blocked: true,
			},
		},
		Rollup:    validation.Rollup{Errors: 1},
		CanCommit: false,
	}

	var buf strings.Builder
	writeReport(&buf, report)
	out := buf.String()

	if !strings.Contains(out, "input/anc.bpmn: ok") {
		t.Errorf("expected clean file line, got:\n%s", out)
	}
	if !strings.Contains(out, "[error] SUSHI-MISSING-BASE") {
		t.Errorf("expected violation line, got:\n%s", out)
	}
	if !strings.Contains(out, "at dependencies") {
		t.Errorf("expected structural location, got:\n%s", out)
	}
	if !strings.Contains(out, "1 error(s), 0 warning(s), 0 info") {
		t.Errorf("expected rollup line, got:\n%s", out)
	}
	if !strings.Contains(out, "blocked") {
		t.Errorf("expected blocked status, got:\n%s", out)
	}
}

func TestWriteReportReady(t *testing.T) {
	report := &validation.Report{CanCommit: true}

	var buf strings.Builder
	writeReport(&buf, report)

	if !strings.Contains(buf.String(), "ready to commit") {
		t.Errorf("expected ready status, got:\n%s", buf.String())
	}
}

func TestWriteSavePointsNewestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	infos := []staging.SavePointInfo{
		{ID: "sp-old", Timestamp: base},
		{ID: "sp-new", Timestamp: base.Add(time.Minute)},
	}

	var buf strings.Builder
	writeSavePoints(&buf, infos)
	out := buf.String()

	newIdx := strings.Index(out, "sp-new")
	oldIdx := strings.Index(out, "sp-old")
	if newIdx == -1 || oldIdx == -1 {
		t.Fatalf("missing save points in output:\n%s", out)
	}
	if newIdx > oldIdx {
		t.Errorf("expected newest save point first:\n%s", out)
	}
}

func TestWriteSavePointsEmpty(t *testing.T) {
	var buf strings.Builder
	writeSavePoints(&buf, nil)

	if !strings.Contains(buf.String(), "no save points") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}
