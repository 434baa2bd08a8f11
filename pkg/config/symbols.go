package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// symbolsFile is the on-disk universe format:
//
//	symbols:
//	  - AAPL
//	  - MSFT
type symbolsFile struct {
	Symbols []string `yaml:"symbols"`
}

// LoadSymbolsFile reads a YAML universe file.
// Tickers are upper-cased, blanks and duplicates dropped, order kept.
func LoadSymbolsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f symbolsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(f.Symbols))
	out := make([]string, 0, len(f.Symbols))
	for _, s := range f.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no symbols", path)
	}
	return out, nil
}
