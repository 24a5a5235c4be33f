package gameconfig

import (
	"sort"
	"strings"

	"bot-arena/internal/physics"
)

// Map legend.
const (
	glyphWallHoriz = '-'
	glyphWallVert  = '|'
	glyphConnector = '+'
	glyphBlock     = 'H'
	glyphBase      = 'B'
	glyphPowerUp   = 'P'
)

// checkpointOrder ranks checkpoint glyphs. B, H and P keep their own meaning.
const checkpointOrder = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ParsedMap is the engine geometry derived from an ASCII grid.
type ParsedMap struct {
	Walls       []physics.Segment
	Blocks      []physics.Rect
	Bases       []physics.Vec
	Checkpoints []physics.Vec // Sorted by glyph rank
	PowerUps    []physics.Vec
}

// NormalizeRows strips carriage returns and drops empty rows.
func NormalizeRows(ascii []string) []string {
	rows := make([]string, 0, len(ascii))
	for _, r := range ascii {
		r = strings.ReplaceAll(r, "\r", "")
		if r != "" {
			rows = append(rows, r)
		}
	}
	return rows
}

// ParseMap converts an ASCII grid into walls, blocks and spawn points.
//
//	H  solid block
//	-  horizontal thin wall through the cell middle
//	|  vertical thin wall through the cell middle
//	+  connector, joined to every adjacent wall cell
//	B  base spawn
//	P  power-up spawn
//	0-9 A-Z  checkpoints in rank order
func ParseMap(ascii []string) ParsedMap {
	rows := NormalizeRows(ascii)

	at := func(col, row int) byte {
		if row < 0 || row >= len(rows) || col < 0 || col >= len(rows[row]) {
			return 0
		}
		return rows[row][col]
	}
	center := func(col, row int) physics.Vec {
		return physics.Vec{
			X: float64(col)*TileSize + TileSize/2,
			Y: float64(row)*TileSize + TileSize/2,
		}
	}
	isWall := func(ch byte) bool {
		switch ch {
		case glyphWallHoriz, glyphWallVert, glyphBlock, glyphConnector:
			return true
		}
		return false
	}

	var out ParsedMap
	type rankedPoint struct {
		rank int
		pos  physics.Vec
	}
	checkpoints := map[byte]rankedPoint{}

	for row, line := range rows {
		for col := 0; col < len(line); col++ {
			ch := line[col]
			x, y := float64(col)*TileSize, float64(row)*TileSize

			switch {
			case ch == glyphBase:
				out.Bases = append(out.Bases, center(col, row))
			case ch == glyphPowerUp:
				out.PowerUps = append(out.PowerUps, center(col, row))
			case ch == glyphBlock:
				out.Blocks = append(out.Blocks, physics.Rect{X: x, Y: y, Width: TileSize, Height: TileSize})
			case ch == glyphWallHoriz:
				mid := y + TileSize/2
				out.Walls = append(out.Walls, physics.Segment{
					Start: physics.Vec{X: x, Y: mid},
					End:   physics.Vec{X: x + TileSize, Y: mid},
				})
			case ch == glyphWallVert:
				mid := x + TileSize/2
				out.Walls = append(out.Walls, physics.Segment{
					Start: physics.Vec{X: mid, Y: y},
					End:   physics.Vec{X: mid, Y: y + TileSize},
				})
			case ch == glyphConnector:
				from := center(col, row)
				for _, d := range [4][2]int{{0, -1}, {1, 0}, {0, 1}, {-1, 0}} {
					if isWall(at(col+d[0], row+d[1])) {
						out.Walls = append(out.Walls, physics.Segment{Start: from, End: center(col+d[0], row+d[1])})
					}
				}
			default:
				if rank := strings.IndexByte(checkpointOrder, ch); rank >= 0 {
					checkpoints[ch] = rankedPoint{rank: rank, pos: center(col, row)}
				}
			}
		}
	}

	ranked := make([]rankedPoint, 0, len(checkpoints))
	for _, p := range checkpoints {
		ranked = append(ranked, p)
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].rank < ranked[j].rank })
	for _, p := range ranked {
		out.Checkpoints = append(out.Checkpoints, p.pos)
	}
	return out
}

// GridSize returns the column and row count of a normalized grid. Ragged
// rows count by the widest row.
func GridSize(rows []string) (cols, nrows int) {
	for _, r := range rows {
		if len(r) > cols {
			cols = len(r)
		}
	}
	return cols, len(rows)
}
