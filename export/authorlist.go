package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/danielrlewis/mkssi-fast-export/authormap"
	"github.com/danielrlewis/mkssi-fast-export/rcs"
)

// writeAuthorList implements --authorlist (§6): one unresolved
// username per line, sorted, instead of a fast-import stream.
func writeAuthorList(repo *rcs.Repository, am *authormap.Map, out io.Writer) error {
	if am == nil {
		am = authormap.Empty()
	}
	unresolved := am.Unresolved(allAuthors(repo))
	sort.Strings(unresolved)
	for _, u := range unresolved {
		if _, err := fmt.Fprintln(out, u); err != nil {
			return err
		}
	}
	return nil
}
