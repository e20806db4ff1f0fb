package utils

import (
	"fmt"
	"sort"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// DOK is a square, append only accumulator for global matrix entries. Each
// assembly thread owns one; they are merged with Join after the parallel
// region, so no per entry locking is needed.
type DOK struct {
	M        *sparse.DOK
	readOnly bool
	name     string
}

func NewDOK(nr, nc int) (R DOK) {
	R = DOK{
		sparse.NewDOK(nr, nc),
		false,
		"unnamed - hint: pass a variable name to SetReadOnly()",
	}
	return
}

// Dims and At minimally satisfy the mat.Matrix interface.
func (m DOK) Dims() (r, c int)    { return m.M.Dims() }
func (m DOK) At(i, j int) float64 { return m.M.At(i, j) }
func (m DOK) T() mat.Matrix       { return m.M.T() }
func (m DOK) NNZ() int            { return m.M.NNZ() }

func (m *DOK) SetReadOnly(name ...string) DOK {
	if len(name) != 0 {
		m.name = name[0]
	}
	m.readOnly = true
	return *m
}

// AddAt accumulates val into entry (i, j).
func (m DOK) AddAt(i, j int, val float64) {
	m.checkWritable()
	m.M.Set(i, j, m.M.At(i, j)+val)
}

// AddBlock scatters a dense local block into the rows and columns given by
// the local to global index lists.
func (m DOK) AddBlock(rows, cols []int, blk mat.Matrix) {
	nr, nc := blk.Dims()
	if nr != len(rows) || nc != len(cols) {
		panic(fmt.Errorf("block dimensions %dx%d do not match index lengths %d, %d",
			nr, nc, len(rows), len(cols)))
	}
	for i, gi := range rows {
		for j, gj := range cols {
			if v := blk.At(i, j); v != 0 {
				m.AddAt(gi, gj, v)
			}
		}
	}
}

// Join adds every stored entry of other into the receiver.
func (m DOK) Join(other DOK) {
	m.checkWritable()
	other.M.DoNonZero(func(i, j int, v float64) {
		m.M.Set(i, j, m.M.At(i, j)+v)
	})
}

// WithoutRows copies the matrix leaving out every entry of the given rows,
// used when a nodal condition replaces an equation.
func (m DOK) WithoutRows(rows map[int]bool) (R DOK) {
	nr, nc := m.Dims()
	R = NewDOK(nr, nc)
	m.M.DoNonZero(func(i, j int, v float64) {
		if !rows[i] {
			R.M.Set(i, j, v)
		}
	})
	return
}

// RowEntries returns the stored (column, value) pairs of row i sorted by
// column.
func (m DOK) RowEntries(i int) (cols []int, vals []float64) {
	type ent struct {
		j int
		v float64
	}
	var row []ent
	m.M.DoNonZero(func(ii, jj int, v float64) {
		if ii == i {
			row = append(row, ent{jj, v})
		}
	})
	sort.Slice(row, func(a, b int) bool { return row[a].j < row[b].j })
	for _, e := range row {
		cols = append(cols, e.j)
		vals = append(vals, e.v)
	}
	return
}

func (m DOK) checkWritable() {
	if m.readOnly {
		err := fmt.Errorf("attempt to write to a read only matrix named: \"%v\"", m.name)
		panic(err)
	}
}

// ToCSR compresses the accumulated entries for consumption by a solver.
func (m DOK) ToCSR() *sparse.CSR {
	return m.M.ToCSR()
}

// ToDense is meant for diagnostics and small test problems.
func (m DOK) ToDense() *mat.Dense {
	nr, nc := m.Dims()
	D := mat.NewDense(nr, nc, nil)
	m.M.DoNonZero(func(i, j int, v float64) {
		D.Set(i, j, v)
	})
	return D
}
