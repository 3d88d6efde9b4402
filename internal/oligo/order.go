package oligo

import (
	"bufio"
	"io"
	"strings"

	"labplanner/pkg/domain"
)

// WriteOrder renders a synthesis order: one tab-separated row per oligo with
// name, sequence, scale, purification and description.
func WriteOrder(w io.Writer, oligos []domain.Oligo) error {
	bw := bufio.NewWriter(w)
	for _, o := range oligos {
		row := []string{o.Name, o.Sequence, o.Scale(), o.Purification(), o.Description}
		if _, err := bw.WriteString(strings.Join(row, "\t") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
