package behavior

import (
	"math"
	"sort"
)

// Cell is a quantized heatmap position.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// CellCount is one heatmap entry.
type CellCount struct {
	Cell  Cell `json:"cell"`
	Count int  `json:"count"`
}

// Heatmap counts pointer visits per grid cell. When it grows past maxCells
// it keeps only the keepCells hottest cells. Not safe for concurrent use;
// the Tracker guards it.
type Heatmap struct {
	cellSize  float64
	maxCells  int
	keepCells int
	counts    map[Cell]int
}

// NewHeatmap creates a heatmap.
func NewHeatmap(cellSize float64, maxCells, keepCells int) *Heatmap {
	if cellSize <= 0 {
		cellSize = 50
	}
	if keepCells <= 0 || keepCells > maxCells {
		keepCells = maxCells / 2
	}
	return &Heatmap{
		cellSize:  cellSize,
		maxCells:  maxCells,
		keepCells: keepCells,
		counts:    make(map[Cell]int),
	}
}

// CellFor quantizes a screen position.
func (h *Heatmap) CellFor(x, y float64) Cell {
	return Cell{
		X: int(math.Floor(x / h.cellSize)),
		Y: int(math.Floor(y / h.cellSize)),
	}
}

// Add records one visit at (x, y).
func (h *Heatmap) Add(x, y float64) {
	h.counts[h.CellFor(x, y)]++
	if h.maxCells > 0 && len(h.counts) > h.maxCells {
		h.prune()
	}
}

func (h *Heatmap) prune() {
	sorted := h.sorted()
	h.counts = make(map[Cell]int, h.keepCells)
	for _, cc := range sorted[:h.keepCells] {
		h.counts[cc.Cell] = cc.Count
	}
}

// sorted returns entries hottest first, ties broken by row then column.
func (h *Heatmap) sorted() []CellCount {
	out := make([]CellCount, 0, len(h.counts))
	for c, n := range h.counts {
		out = append(out, CellCount{Cell: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return hotter(out[i], out[j]) })
	return out
}

// Hotspot returns the pixel origin of the hottest cell.
func (h *Heatmap) Hotspot() (x, y float64, ok bool) {
	if len(h.counts) == 0 {
		return 0, 0, false
	}
	var best CellCount
	first := true
	for c, n := range h.counts {
		cand := CellCount{Cell: c, Count: n}
		if first || hotter(cand, best) {
			best, first = cand, false
		}
	}
	return float64(best.Cell.X) * h.cellSize, float64(best.Cell.Y) * h.cellSize, true
}

func hotter(a, b CellCount) bool {
	if a.Count != b.Count {
		return a.Count > b.Count
	}
	if a.Cell.Y != b.Cell.Y {
		return a.Cell.Y < b.Cell.Y
	}
	return a.Cell.X < b.Cell.X
}

// Cells returns a snapshot, hottest first.
func (h *Heatmap) Cells() []CellCount {
	return h.sorted()
}

// Len returns the number of tracked cells.
func (h *Heatmap) Len() int {
	return len(h.counts)
}

// Count returns the visit count for the cell containing (x, y).
func (h *Heatmap) Count(x, y float64) int {
	return h.counts[h.CellFor(x, y)]
}

// Clear drops all cells.
func (h *Heatmap) Clear() {
	h.counts = make(map[Cell]int)
}
