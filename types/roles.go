package types

import "fmt"

// ElementRole says which side of an assembly operation a block of degrees of
// freedom belongs to. It is a classification tag only and is never stored
// with mesh data.
type ElementRole uint8

const (
	Element  ElementRole = iota // The current element
	Neighbor                    // The element across an internal face
	Lower                       // A lower dimensional (mortar/interface) element
)

// NumRoles sizes per role tables.
const NumRoles = 3

func (r ElementRole) String() string {
	switch r {
	case Element:
		return "Element"
	case Neighbor:
		return "Neighbor"
	case Lower:
		return "Lower"
	}
	return fmt.Sprintf("ElementRole(%d)", int(r))
}

// DGJacobianType names one block of a face coupled Jacobian by the role of
// its row (test function) and column (trial function).
type DGJacobianType uint8

const (
	ElementElement DGJacobianType = iota
	ElementNeighbor
	NeighborElement
	NeighborNeighbor
	// Mortar couplings
	LowerLower
	LowerElement
	LowerNeighbor
	ElementLower
	NeighborLower
)

var dgRoles = [...][2]ElementRole{
	ElementElement:   {Element, Element},
	ElementNeighbor:  {Element, Neighbor},
	NeighborElement:  {Neighbor, Element},
	NeighborNeighbor: {Neighbor, Neighbor},
	LowerLower:       {Lower, Lower},
	LowerElement:     {Lower, Element},
	LowerNeighbor:    {Lower, Neighbor},
	ElementLower:     {Element, Lower},
	NeighborLower:    {Neighbor, Lower},
}

var dgNames = [...]string{
	"ElementElement", "ElementNeighbor", "NeighborElement", "NeighborNeighbor",
	"LowerLower", "LowerElement", "LowerNeighbor", "ElementLower", "NeighborLower",
}

// Roles returns the (row, column) roles of the block.
func (t DGJacobianType) Roles() (row, col ElementRole) {
	if int(t) >= len(dgRoles) {
		panic(fmt.Errorf("unknown DGJacobianType %d", int(t)))
	}
	r := dgRoles[t]
	return r[0], r[1]
}

// ColumnRole is the role of the trial (j variable) side of the block.
func (t DGJacobianType) ColumnRole() ElementRole {
	_, col := t.Roles()
	return col
}

func (t DGJacobianType) String() string {
	if int(t) < len(dgNames) {
		return dgNames[t]
	}
	return fmt.Sprintf("DGJacobianType(%d)", int(t))
}

// NewDGJacobianType is the inverse of Roles.
func NewDGJacobianType(row, col ElementRole) DGJacobianType {
	for t, r := range dgRoles {
		if r[0] == row && r[1] == col {
			return DGJacobianType(t)
		}
	}
	panic(fmt.Errorf("no DGJacobianType for roles (%s, %s)", row, col))
}

// FaceType records on which side(s) of a face a finite volume variable has
// degrees of freedom. Elem is the owning (lower id) element of the face.
type FaceType uint8

const (
	FaceNeither FaceType = iota
	FaceElem
	FaceNeighbor
	FaceBoth
)

func (f FaceType) String() string {
	return [...]string{"NEITHER", "ELEM", "NEIGHBOR", "BOTH"}[f]
}

// NewFaceType classifies a face from the presence of a variable on each side.
func NewFaceType(onElem, onNeighbor bool) FaceType {
	switch {
	case onElem && onNeighbor:
		return FaceBoth
	case onElem:
		return FaceElem
	case onNeighbor:
		return FaceNeighbor
	}
	return FaceNeither
}

func (f FaceType) HasElem() bool     { return f == FaceElem || f == FaceBoth }
func (f FaceType) HasNeighbor() bool { return f == FaceNeighbor || f == FaceBoth }
