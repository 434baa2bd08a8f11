package commands

import (
	"fmt"
	"math"
	"strings"

	"github.com/wonny/marketlens/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

// PrintHeader prints a titled block header
func PrintHeader(title, subtitle string) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", title)
	if subtitle != "" {
		fmt.Printf("  %s\n", subtitle)
	}
	PrintSeparator()
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Println()
	fmt.Printf("⚠️  %s\n", message)
	fmt.Println()
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

var snapshotColumns = []string{"#", "SYMBOL", "NAME", "SECTOR", "PRICE", "CHANGE", "VOLUME", "MKT CAP", "P/E", "YIELD"}
var snapshotWidths = []int{3, 7, 24, 22, 10, 8, 12, 9, 7, 6}

// PrintSnapshots prints snapshot rows in the given order
func PrintSnapshots(items []contracts.StockSnapshot) {
	PrintTableHeader(snapshotColumns, snapshotWidths)
	for i, s := range items {
		PrintTableRow([]string{
			fmt.Sprintf("%d", i+1),
			string(s.Symbol),
			truncate(s.Name, snapshotWidths[2]),
			truncate(s.Sector, snapshotWidths[3]),
			fmt.Sprintf("%.2f", s.Price),
			formatPct(s.Change),
			formatCount(float64(s.Volume)),
			formatCount(s.MarketCap),
			formatOptional(s.PERatio),
			fmt.Sprintf("%.2f%%", s.DividendYield),
		}, snapshotWidths)
	}
}

// formatPct renders a signed percentage; "n/a" when undefined
func formatPct(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f%%", *p)
}

func formatOptional(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f", *p)
}

// formatCount abbreviates large numbers (1.2K, 3.4M, 2.6B, 3.1T)
func formatCount(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1e12:
		return fmt.Sprintf("%.2fT", v/1e12)
	case abs >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.1fK", v/1e3)
	}
	return fmt.Sprintf("%.0f", v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
