// Package spatial provides the broad phase for projectile hits.
//
// Entities are stored as integer indices into the caller's slice, so a
// rebuild per tick allocates nothing once the cells have grown.
package spatial

import (
	"math"
	"sort"
)

// SpatialGrid buckets entity indices into fixed-size square cells.
//
// Cell size should be at least the largest query radius; a query then
// touches at most a 3x3 block of cells.
//
// Memory layout: cells are stored in row-major order (cells[row*cols+col])
type SpatialGrid struct {
	cellSize    float64
	invCellSize float64
	cols, rows  int
	cells       [][]uint32
	scratch     []uint32 // reused by QueryRadius
}

// NewSpatialGrid creates a grid covering a width×height world.
func NewSpatialGrid(width, height, cellSize float64) *SpatialGrid {
	cols := max(int(math.Ceil(width/cellSize)), 1)
	rows := max(int(math.Ceil(height/cellSize)), 1)

	cells := make([][]uint32, cols*rows)
	for i := range cells {
		cells[i] = make([]uint32, 0, 4)
	}

	return &SpatialGrid{
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		cols:        cols,
		rows:        rows,
		cells:       cells,
		scratch:     make([]uint32, 0, 16),
	}
}

// Clear empties every cell, keeping capacity.
func (g *SpatialGrid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

// Insert adds entity id at (x, y). Positions outside the world land in the
// nearest edge cell.
func (g *SpatialGrid) Insert(id uint32, x, y float64) {
	idx := g.cellIndex(x, y)
	g.cells[idx] = append(g.cells[idx], id)
}

func (g *SpatialGrid) clampCol(col int) int {
	return min(max(col, 0), g.cols-1)
}

func (g *SpatialGrid) clampRow(row int) int {
	return min(max(row, 0), g.rows-1)
}

func (g *SpatialGrid) cellIndex(x, y float64) int {
	col := g.clampCol(int(math.Floor(x * g.invCellSize)))
	row := g.clampRow(int(math.Floor(y * g.invCellSize)))
	return row*g.cols + col
}

// QueryRadius returns the ids of entities that may lie within radius of
// (cx, cy), in ascending order. Callers still run the exact distance check.
//
// IMPORTANT: The returned slice is reused on subsequent calls.
func (g *SpatialGrid) QueryRadius(cx, cy, radius float64) []uint32 {
	g.scratch = g.scratch[:0]

	minCol := g.clampCol(int(math.Floor((cx - radius) * g.invCellSize)))
	maxCol := g.clampCol(int(math.Floor((cx + radius) * g.invCellSize)))
	minRow := g.clampRow(int(math.Floor((cy - radius) * g.invCellSize)))
	maxRow := g.clampRow(int(math.Floor((cy + radius) * g.invCellSize)))

	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			g.scratch = append(g.scratch, g.cells[row*g.cols+col]...)
		}
	}

	// Hit order must not depend on cell layout.
	sort.Slice(g.scratch, func(i, j int) bool { return g.scratch[i] < g.scratch[j] })
	return g.scratch
}

// Dimensions returns the grid dimensions.
func (g *SpatialGrid) Dimensions() (cols, rows int, cellSize float64) {
	return g.cols, g.rows, g.cellSize
}
