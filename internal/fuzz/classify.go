// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package fuzz

import (
	"strings"

	"grimm.is/peerbench/internal/logging"
)

// Markers searched for in the kernel log, case-insensitively.
const (
	CrashMarker = "unhandled"
	TraceMarker = "Call Trace:"
)

// LogClassification is what a kernel log says about a fuzz run. It is
// advisory: neither flag fails the run.
type LogClassification struct {
	CrashDetected bool `json:"crash_detected" yaml:"crash_detected"`
	TraceDetected bool `json:"trace_detected" yaml:"trace_detected"`
}

// Classify scans kernel log text for the crash and trace markers.
func Classify(text string) LogClassification {
	lower := strings.ToLower(text)
	return LogClassification{
		CrashDetected: strings.Contains(lower, strings.ToLower(CrashMarker)),
		TraceDetected: strings.Contains(lower, strings.ToLower(TraceMarker)),
	}
}

// Log writes one advisory line per detected marker.
func (c LogClassification) Log(logger *logging.Logger) {
	if c.CrashDetected {
		logger.Info("Testcase failure as segfault", "marker", CrashMarker)
	}
	if c.TraceDetected {
		logger.Info("Some call traces seen, please check", "marker", TraceMarker)
	}
	if !c.CrashDetected && !c.TraceDetected {
		logger.Info("Kernel log clean")
	}
}
