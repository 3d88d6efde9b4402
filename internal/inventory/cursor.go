package inventory

import "labplanner/pkg/domain"

// cursor is the next free cell of the box being filled. It is passed by value
// through the per-step placement functions.
type cursor struct {
	row int
	col int
}

// next advances one cell in row-major order.
func (c cursor) next(cols int) cursor {
	c.col++
	if c.col >= cols {
		c.col = 0
		c.row++
	}
	return c
}

// index is the row-major offset of the cursor.
func (c cursor) index(cols int) int { return c.row*cols + c.col }

// place stores s at the cursor and returns the advanced cursor. A cursor past
// the last row yields a CapacityExceeded error from the box.
func (c cursor) place(box *domain.Box, s domain.Sample) (cursor, error) {
	if err := box.Place(c.row, c.col, s); err != nil {
		return c, err
	}
	return c.next(box.Cols()), nil
}

func (c cursor) placeAll(box *domain.Box, samples []domain.Sample) (cursor, error) {
	var err error
	for _, s := range samples {
		if c, err = c.place(box, s); err != nil {
			return c, err
		}
	}
	return c, nil
}
