package schema

import (
	"fmt"
	"io"
)

// WriteListing prints every index entry as "<key padded to 30> → <collection>",
// sorted by key.
func WriteListing(w io.Writer, idx *Index) error {
	for _, entry := range idx.Entries() {
		if _, err := fmt.Fprintf(w, "%-30s → %s\n", entry.Key, entry.Collection); err != nil {
			return err
		}
	}

	return nil
}
