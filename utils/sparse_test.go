package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestDOKAccumulate(t *testing.T) {
	a := NewDOK(3, 3)
	a.AddAt(0, 0, 1)
	a.AddAt(0, 0, 2)
	a.AddBlock([]int{1, 2}, []int{1, 2}, mat.NewDense(2, 2, []float64{
		4, -1,
		-1, 0,
	}))
	// Zeros in a block are not stored
	assert.Equal(t, 4, a.NNZ())
	assert.Equal(t, 3., a.At(0, 0))
	assert.Panics(t, func() { a.AddBlock([]int{0}, []int{0, 1}, mat.NewDense(1, 1, nil)) })

	b := NewDOK(3, 3)
	b.AddAt(2, 2, 5)
	b.AddAt(0, 0, -3)
	a.Join(b)
	assert.Equal(t, 0., a.At(0, 0))
	assert.Equal(t, 5., a.At(2, 2))

	cols, vals := a.RowEntries(1)
	assert.Equal(t, []int{1, 2}, cols)
	assert.Equal(t, []float64{4, -1}, vals)
	cols, vals = a.RowEntries(2)
	assert.Equal(t, []int{1, 2}, cols)
	assert.Equal(t, []float64{-1, 5}, vals)
	assert.True(t, mat.Equal(a.ToDense().T(), a.T()))
}

func TestDOKWithoutRows(t *testing.T) {
	a := NewDOK(3, 3)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			a.AddAt(i, j, float64(1+i*3+j))
		}
	}
	r := a.WithoutRows(map[int]bool{0: true, 2: true})
	assert.Equal(t, 3, r.NNZ())
	cols, _ := r.RowEntries(0)
	assert.Empty(t, cols)
	_, vals := r.RowEntries(1)
	assert.Equal(t, []float64{4, 5, 6}, vals)
	// The source is untouched
	assert.Equal(t, 9, a.NNZ())

	csr := r.ToCSR()
	assert.Equal(t, 3, csr.NNZ())
	assert.Equal(t, 5., csr.At(1, 1))
}

func TestDOKReadOnly(t *testing.T) {
	a := NewDOK(2, 2)
	a.AddAt(1, 1, 1)
	ro := a.SetReadOnly("jacobian")
	err := func() (err interface{}) {
		defer func() { err = recover() }()
		ro.AddAt(0, 0, 1)
		return
	}()
	require.NotNil(t, err)
	assert.Contains(t, err.(error).Error(), `"jacobian"`)
	assert.Panics(t, func() { a.Join(NewDOK(2, 2)) })
}
