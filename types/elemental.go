package types

import (
	"fmt"
	"math"
)

/*
EdgeKey is an always positive number that stores an edge's vertices as indices in a way that can be compared
An edge between vertices [4] and [0] will always be stored as [0,4], in the ascending order of the index values
*/
type EdgeKey uint64

func NewEdgeKey(verts [2]int) (packed EdgeKey) {
	// This packs two index coordinates into two 32 bit unsigned integers to act as a hash and an indirect access method
	var (
		limit = math.MaxUint32
	)
	for _, vert := range verts {
		if vert < 0 || vert > limit {
			panic(fmt.Errorf("unable to pack two ints into a uint64, have %d and %d as inputs",
				verts[0], verts[1]))
		}
	}
	var i1, i2 int
	if verts[0] <= verts[1] {
		i1, i2 = verts[0], verts[1]
	} else {
		i1, i2 = verts[1], verts[0]
	}
	packed = EdgeKey(i1 + i2<<32)
	return
}

func (ek EdgeKey) GetVertices(rev bool) (verts [2]int) {
	var (
		enTmp EdgeKey
	)
	enTmp = ek >> 32
	verts[1] = int(enTmp)
	verts[0] = int(ek - enTmp*(1<<32))
	if rev {
		verts[0], verts[1] = verts[1], verts[0]
	}
	return
}

/*
ElemSideKey addresses one side of one element. The element ID is stored in the
upper 48 bits and the local side index in the lower 16, so keys sort by
element first and then by side.
*/
type ElemSideKey uint64

const sideBits = 16

func NewElemSideKey(elem, side int) ElemSideKey {
	if elem < 0 || elem >= 1<<(64-sideBits) || side < 0 || side >= 1<<sideBits {
		panic(fmt.Errorf("unable to pack element %d, side %d into an ElemSideKey", elem, side))
	}
	return ElemSideKey(uint64(elem)<<sideBits | uint64(side))
}

func (k ElemSideKey) Elem() int { return int(k >> sideBits) }
func (k ElemSideKey) Side() int { return int(k & (1<<sideBits - 1)) }

func (k ElemSideKey) String() string {
	return fmt.Sprintf("(elem %d, side %d)", k.Elem(), k.Side())
}
