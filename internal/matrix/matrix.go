// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package matrix enumerates the option variants a benchmark tool runs with.
package matrix

import (
	"strings"

	"grimm.is/peerbench/internal/errors"
)

// Variant is one option value under test.
type Variant struct {
	Option   string `json:"option" yaml:"option"`
	Extended bool   `json:"extended" yaml:"extended"`
}

func (v Variant) String() string {
	if v.Extended {
		return v.Option + " (extended)"
	}
	return v.Option
}

// Matrix is the ordered set of variants for one tool. Mandatory variants
// always come before extended ones; each group keeps configuration order.
type Matrix struct {
	tool            string
	mandatory       []Variant
	extended        []Variant
	extendedEnabled bool
}

// New builds a Matrix. An empty tool identifier is a configuration error.
// Extended options are retained even when disabled so callers can report
// what was skipped; Extended() hides them.
func New(tool string, mandatory, extended []string, extendedEnabled bool) (*Matrix, error) {
	tool = strings.TrimSpace(tool)
	if tool == "" {
		return nil, errors.New(errors.KindConfiguration, "tool identifier is required")
	}

	m := &Matrix{tool: tool, extendedEnabled: extendedEnabled}
	for _, opt := range mandatory {
		m.mandatory = append(m.mandatory, Variant{Option: strings.TrimSpace(opt)})
	}
	for _, opt := range extended {
		m.extended = append(m.extended, Variant{Option: strings.TrimSpace(opt), Extended: true})
	}
	return m, nil
}

// Tool returns the tool identifier all variants run with.
func (m *Matrix) Tool() string {
	return m.tool
}

// Mandatory returns the mandatory variants in order.
func (m *Matrix) Mandatory() []Variant {
	return append([]Variant(nil), m.mandatory...)
}

// Extended returns the extended variants in order, or nil when extended
// testing is disabled.
func (m *Matrix) Extended() []Variant {
	if !m.extendedEnabled {
		return nil
	}
	return append([]Variant(nil), m.extended...)
}

// ExtendedEnabled reports whether extended variants will run.
func (m *Matrix) ExtendedEnabled() bool {
	return m.extendedEnabled
}

// Skipped returns the configured extended variants that will not run.
func (m *Matrix) Skipped() []Variant {
	if m.extendedEnabled {
		return nil
	}
	return append([]Variant(nil), m.extended...)
}

// Len is the number of variants that will run.
func (m *Matrix) Len() int {
	return len(m.mandatory) + len(m.Extended())
}
