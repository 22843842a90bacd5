package view

import (
	"strings"

	"bucketadmin/internal/domain"
)

// Cell is one partition slot of the occupancy grid.
type Cell struct {
	Label   string
	Present bool
}

// Grid is the 256-cell partition occupancy of one user, ordered 00..ff.
type Grid struct {
	Cells [domain.PartitionCount]Cell
}

// BuildGrid marks every cell whose label appears in records. Records that
// are not lowercase two-digit hex labels match nothing and are ignored.
func BuildGrid(records []domain.PartitionRecord) Grid {
	present := make(map[string]bool, len(records))
	for _, r := range records {
		present[r.Partition] = true
	}

	var g Grid
	for i := range g.Cells {
		label := domain.PartitionLabel(i)
		g.Cells[i] = Cell{Label: label, Present: present[label]}
	}
	return g
}

// Present counts the marked cells.
func (g Grid) Present() int {
	n := 0
	for _, c := range g.Cells {
		if c.Present {
			n++
		}
	}
	return n
}

// Rows splits the grid into 16 rows of 16 cells.
func (g Grid) Rows() [][]Cell {
	rows := make([][]Cell, 0, 16)
	for i := 0; i < len(g.Cells); i += 16 {
		rows = append(rows, g.Cells[i:i+16])
	}
	return rows
}

// RenderGridText draws the grid as 16 lines; present cells show their
// label, absent ones "..".
func RenderGridText(g Grid) string {
	var b strings.Builder
	for _, row := range g.Rows() {
		for j, c := range row {
			if j > 0 {
				b.WriteByte(' ')
			}
			if c.Present {
				b.WriteString(c.Label)
			} else {
				b.WriteString("..")
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
