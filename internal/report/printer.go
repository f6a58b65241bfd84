// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package report renders run results for people and machines.
package report

import (
	"fmt"
	"io"

	"grimm.is/peerbench/internal/fuzz"
	"grimm.is/peerbench/internal/latency"
	"grimm.is/peerbench/internal/matrix"
)

// Printer writes human-readable results.
type Printer struct {
	w      io.Writer
	styles Styles
}

// NewPrinter creates a Printer for w. colorMode is auto, always or never.
func NewPrinter(w io.Writer, colorMode string) *Printer {
	return &Printer{w: w, styles: newStyles(newRenderer(w, ColorEnabled(colorMode, w)))}
}

// Verdict prints one line per trial and a summary line. The failure manifest
// itself is carried by Verdict.Err.
func (p *Printer) Verdict(v *latency.Verdict) {
	fmt.Fprintln(p.w, p.styles.Header.Render(fmt.Sprintf("%s: %d variants", v.Tool, v.Total)))
	for _, o := range v.Outcomes {
		if o.Succeeded {
			fmt.Fprintf(p.w, "%s %s\n", p.styles.Pass.Render("PASS"), variantLabel(v.Tool, o.Variant))
			continue
		}
		fmt.Fprintf(p.w, "%s %s %s\n", p.styles.Fail.Render("FAIL"), variantLabel(v.Tool, o.Variant),
			p.styles.Comment.Render(fmt.Sprintf("(server launch ok: %t, client run ok: %t)", o.RemoteLaunchOK, o.LocalRunOK)))
	}

	if v.Passed() {
		fmt.Fprintln(p.w, p.styles.Pass.Render(fmt.Sprintf("All %d variants passed", v.Total)))
		return
	}
	fmt.Fprintln(p.w, p.styles.Fail.Render(fmt.Sprintf("%d of %d variants failed", len(v.Failures), v.Total)))
}

// Skipped notes extended variants that were not run.
func (p *Printer) Skipped(tool string, skipped []matrix.Variant) {
	if len(skipped) == 0 {
		return
	}
	fmt.Fprintln(p.w, p.styles.Skip.Render(fmt.Sprintf("Extended test option skipped (%d variants of %s)", len(skipped), tool)))
}

// Classification prints the two advisory kernel log lines.
func (p *Printer) Classification(c fuzz.LogClassification) {
	fmt.Fprintln(p.w, p.advisory("crash detected", c.CrashDetected))
	fmt.Fprintln(p.w, p.advisory("call trace detected", c.TraceDetected))
}

func (p *Printer) advisory(label string, hit bool) string {
	if hit {
		return p.styles.Fail.Render(label+": yes") + " " + p.styles.Comment.Render("(advisory)")
	}
	return p.styles.Pass.Render(label+": no")
}

func variantLabel(tool string, v matrix.Variant) string {
	label := tool
	if v.Option != "" {
		label += " " + v.Option
	}
	if v.Extended {
		label += " [extended]"
	}
	return label
}
