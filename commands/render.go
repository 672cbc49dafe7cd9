package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/guidelab/stageground/rules"
	"github.com/guidelab/stageground/staging"
	"github.com/guidelab/stageground/validation"
)

// writeJSON renders any value as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeReport renders a validation report as human-readable text.
func writeReport(w io.Writer, report *validation.Report) {
	for _, file := range report.Files {
		if len(file.Violations) == 0 {
			fmt.Fprintf(w, "%s: ok\n", file.Path)
			continue
		}
		fmt.Fprintf(w, "%s:\n", file.Path)
		for _, v := range file.Violations {
			writeViolation(w, v)
		}
	}
	for _, v := range report.Session {
		writeViolation(w, v)
	}

	fmt.Fprintf(w, "%d error(s), %d warning(s), %d info\n",
		report.Rollup.Errors, report.Rollup.Warnings, report.Rollup.Info)
	if report.CanCommit {
		fmt.Fprintln(w, "session is ready to commit")
	} else {
		fmt.Fprintln(w, "session is blocked: fix the errors above or commit with --override")
	}
}

func writeViolation(w io.Writer, v rules.Violation) {
	location := ""
	if v.Location != nil {
		switch {
		case v.Location.Path != "":
			location = " at " + v.Location.Path
		case v.Location.Line > 0:
			location = fmt.Sprintf(" at line %d", v.Location.Line)
		}
	}
	fmt.Fprintf(w, "  [%s] %s: %s%s\n", v.Severity, v.RuleCode, v.Message, location)
}

// writeSavePoints renders the save-point history, newest first.
func writeSavePoints(w io.Writer, infos []staging.SavePointInfo) {
	if len(infos) == 0 {
		fmt.Fprintln(w, "no save points")
		return
	}
	for i := len(infos) - 1; i >= 0; i-- {
		fmt.Fprintf(w, "%s  %s\n", infos[i].ID, infos[i].Timestamp.Format("2006-01-02 15:04:05 MST"))
	}
}
