// Package grid provides index/coordinate conversions for row-major grids,
// used for frame buffer addressing.
package grid

// Coords converts a row-major cell index into (x, y) coordinates for a
// grid with the given number of columns.
func Coords(index, cols int) (x, y int) {
	return index % cols, index / cols
}

// Index converts (x, y) coordinates into a row-major cell index for a
// grid with the given number of columns.
func Index(x, y, cols int) int {
	return y*cols + x
}
