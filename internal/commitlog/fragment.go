package commitlog

import (
	"fmt"
	"path"
)

// FragmentDescriptor describes one closed, queued fragment file.
type FragmentDescriptor struct {
	Dir      string
	Num      int64
	Size     int64
	Revision int64 // highest revision recorded in this fragment
}

// fragmentFileName renders a fragment number as a fixed-width, numerically
// sortable file name so that directory listings (which most filesystem
// brokers return in lexicographic order) already reflect fragment order.
func fragmentFileName(num int64) string {
	return fmt.Sprintf("%020d", num)
}

// FragmentPath renders the file path of fragment num within dir. The
// recovery coordinator's replayer (spec.md §4.13) uses this to locate
// a dead server's fragments without reaching into this package's
// private naming scheme.
func FragmentPath(dir string, num int64) string {
	return path.Join(dir, fragmentFileName(num))
}
