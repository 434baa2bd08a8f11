package contracts

import "strings"

// Symbol is a ticker, the join key across snapshots, history and forecasts
type Symbol string

// NormalizeSymbol trims and upper-cases a raw ticker
func NormalizeSymbol(s string) Symbol {
	return Symbol(strings.ToUpper(strings.TrimSpace(s)))
}

func (s Symbol) String() string { return string(s) }

// ParseSymbols normalizes a ticker list, dropping blanks and duplicates (order kept)
func ParseSymbols(raw []string) []Symbol {
	seen := make(map[Symbol]struct{}, len(raw))
	out := make([]Symbol, 0, len(raw))
	for _, r := range raw {
		s := NormalizeSymbol(r)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
