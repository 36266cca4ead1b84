package outwriter

import (
	"os"

	"golang.org/x/term"

	"github.com/pkmeta/metaspot/internal/contract"
)

// Width bounds of the archetype column.
const (
	minNameWidth = 15
	maxNameWidth = 60
)

// getMaxNameWidth calculates the maximum width for archetype signatures in table output
// based on terminal width and table configuration.
func getMaxNameWidth(cfg *contract.Config) int {
	var termWidth int

	// Check for absolute width override from flag/env
	if cfg.Width > 0 {
		termWidth = cfg.Width
	}

	if termWidth == 0 { // Not set by override
		detectedWidth, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil || detectedWidth <= 0 {
			termWidth = 80 // Conservative default for narrow terminals and CI
		} else {
			termWidth = detectedWidth
		}
	}

	// Rank + Cluster + Count + Ratio + Winrate + Mean Rank + Tier with borders/padding
	baseWidth := 70

	// Reserve space for table borders, separators, and padding
	baseWidth += 20

	available := termWidth - baseWidth
	if available < minNameWidth {
		return minNameWidth
	}
	if available > maxNameWidth {
		return maxNameWidth
	}
	return available
}
