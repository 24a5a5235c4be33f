// Package pathfind finds walking directions over ASCII arena maps.
//
// The grid is the same []string every bot receives as mapAscii: one rune
// per TileSize×TileSize pixel tile. Find runs A* over 4-connected tiles and
// then smooths the result by aiming at the farthest path tile that a
// bot-sized body can reach in a straight line.
package pathfind

import (
	"container/heap"
	"math"

	"bot-arena/internal/physics"
)

const (
	// TileSize is the edge length of one map tile in pixels.
	TileSize = 20.0

	// CorridorHalfWidth is half the width of the swept corridor used by the
	// line-of-sight test. Tuned by hand; slightly wider than a bot.
	CorridorHalfWidth = TileSize * 0.9
)

// Cell addresses one tile of the map.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Center returns the pixel-space center of the tile.
func (c Cell) Center() physics.Vec {
	return physics.Vec{
		X: float64(c.Col)*TileSize + TileSize/2,
		Y: float64(c.Row)*TileSize + TileSize/2,
	}
}

// CellAt returns the tile containing pixel position p.
func CellAt(p physics.Vec) Cell {
	return Cell{
		Row: int(math.Floor(p.Y / TileSize)),
		Col: int(math.Floor(p.X / TileSize)),
	}
}

// Direction is the unit vector returned to bot code. X and Y mirror DX and
// DY so scripts can use the result either as a move delta or as a vector.
type Direction struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

func direction(v physics.Vec) Direction {
	return Direction{DX: v.X, DY: v.Y, X: v.X, Y: v.Y}
}

// IsSolid reports whether a tile blocks movement. Tiles outside the grid
// count as solid.
func IsSolid(grid []string, c Cell) bool {
	if c.Row < 0 || c.Row >= len(grid) || c.Col < 0 || c.Col >= len(grid[c.Row]) {
		return true
	}
	switch grid[c.Row][c.Col] {
	case 'H', '-', '|', '+':
		return true
	}
	return false
}

// Find returns the unit direction a bot at from should move in to reach to.
// It returns the zero Direction when both points share a tile, when the
// goal is solid or off the map, or when no path exists.
func Find(grid []string, from, to physics.Vec) Direction {
	start := CellAt(from)
	goal := CellAt(to)
	if start == goal || IsSolid(grid, goal) {
		return Direction{}
	}

	path := astar(grid, start, goal)
	if len(path) < 2 {
		return Direction{}
	}

	target := path[1]
	for i := len(path) - 1; i >= 1; i-- {
		if HasLineOfSight(grid, from, path[i]) {
			target = path[i]
			break
		}
	}

	return direction(physics.Normalize(physics.Sub(target.Center(), from)))
}

// HasLineOfSight reports whether a body of width 2*CorridorHalfWidth can
// travel straight from pixel position from to the center of target without
// touching a solid tile.
//
// The segment is cut at every grid line it crosses; the midpoint of every
// piece is offset to both sides of the travel line and each offset point
// must land on a walkable tile.
func HasLineOfSight(grid []string, from physics.Vec, target Cell) bool {
	end := target.Center()
	v := physics.Sub(end, from)
	length := physics.Magnitude(v)
	if length == 0 {
		length = 1
	}
	normal := physics.Vec{X: -v.Y / length, Y: v.X / length}

	ts := []float64{0, 1}
	ts = appendCrossings(ts, from.X, end.X, v.X)
	ts = appendCrossings(ts, from.Y, end.Y, v.Y)
	sortFloats(ts)

	for i := 0; i < len(ts)-1; i++ {
		mid := physics.Add(from, physics.Scale(v, (ts[i]+ts[i+1])/2))
		for _, sign := range [2]float64{-1, 1} {
			probe := physics.Add(mid, physics.Scale(normal, CorridorHalfWidth*sign))
			if IsSolid(grid, CellAt(probe)) {
				return false
			}
		}
	}
	return true
}

// appendCrossings adds the segment parameters at which one axis crosses a
// grid line.
func appendCrossings(ts []float64, a, b, delta float64) []float64 {
	if delta == 0 {
		return ts
	}
	lo, hi := math.Min(a, b), math.Max(a, b)
	for k := math.Floor(lo / TileSize); k <= math.Floor(hi/TileSize); k++ {
		t := (k*TileSize - a) / delta
		if t > 0 && t < 1 {
			ts = append(ts, t)
		}
	}
	return ts
}

// sortFloats is an insertion sort; segment parameter lists are tiny.
func sortFloats(s []float64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// =============================================================================
// A* SEARCH
// =============================================================================

var neighborOffsets = [...]Cell{
	{Row: -1, Col: 0},
	{Row: 0, Col: 1},
	{Row: 1, Col: 0},
	{Row: 0, Col: -1},
}

type pathNode struct {
	cell   Cell
	g      float64
	f      float64
	seq    int
	index  int
	parent *pathNode
}

// pathQueue orders by f, then by push order so equal-cost expansions are
// stable.
type pathQueue []*pathNode

func (pq pathQueue) Len() int { return len(pq) }

func (pq pathQueue) Less(i, j int) bool {
	if pq[i].f == pq[j].f {
		return pq[i].seq < pq[j].seq
	}
	return pq[i].f < pq[j].f
}

func (pq pathQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *pathQueue) Push(x any) {
	item := x.(*pathNode)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *pathQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

func heuristic(a, b Cell) float64 {
	return math.Hypot(float64(a.Col-b.Col), float64(a.Row-b.Row))
}

// astar returns the tile path from start to goal inclusive, or nil.
func astar(grid []string, start, goal Cell) []Cell {
	open := &pathQueue{}
	heap.Init(open)
	seq := 0
	heap.Push(open, &pathNode{cell: start, f: heuristic(start, goal)})

	gScore := map[Cell]float64{start: 0}
	closed := make(map[Cell]struct{})

	for open.Len() > 0 {
		current := heap.Pop(open).(*pathNode)
		if current.cell == goal {
			return reconstructPath(current)
		}
		if _, done := closed[current.cell]; done {
			continue
		}
		closed[current.cell] = struct{}{}

		for _, off := range neighborOffsets {
			next := Cell{Row: current.cell.Row + off.Row, Col: current.cell.Col + off.Col}
			if IsSolid(grid, next) {
				continue
			}
			if _, done := closed[next]; done {
				continue
			}
			g := current.g + 1
			if best, seen := gScore[next]; seen && g >= best {
				continue
			}
			gScore[next] = g
			seq++
			heap.Push(open, &pathNode{
				cell:   next,
				g:      g,
				f:      g + heuristic(next, goal),
				seq:    seq,
				parent: current,
			})
		}
	}
	return nil
}

func reconstructPath(node *pathNode) []Cell {
	var path []Cell
	for n := node; n != nil; n = n.parent {
		path = append(path, n.cell)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
