// Command rangeexplorer is a read-only, live view of the range
// directories under a data root: their on-disk footprint and how
// recently each was touched, refreshed on an interval. It is the
// range-server analogue of hiveexplorer's live hive-tree view.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	dataDir := flag.String("data-dir", "./data", "root directory to scan for range directories")
	interval := flag.Duration("interval", 0, "refresh interval; 0 uses the built-in default")
	flag.Parse()

	m := newModel(*dataDir, *interval)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
