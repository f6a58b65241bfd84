// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"grimm.is/peerbench/internal/errors"
)

// LoadFile loads an HCL or JSON config file and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindConfiguration, "failed to read config file %s", path)
	}
	return LoadBytes(path, data)
}

// LoadBytes decodes config source. The filename extension selects the syntax;
// anything other than .json is parsed as native HCL. Expressions may refer to
// the process environment as env.NAME.
func LoadBytes(filename string, data []byte) (*Config, error) {
	name := filename
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json", ".hcl":
	default:
		name = filename + ".hcl"
	}

	var cfg Config
	if err := hclsimple.Decode(name, data, evalContext(), &cfg); err != nil {
		return nil, errors.Wrap(err, errors.KindConfiguration, "failed to decode config")
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

func evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vars[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
	}
}

// EncodeHCL renders cfg as formatted HCL source.
func EncodeHCL(cfg *Config) []byte {
	f := hclwrite.NewEmptyFile()
	gohcl.EncodeIntoBody(cfg, f.Body())
	return hclwrite.Format(f.Bytes())
}
