package types

import "fmt"

// ElementType is the geometric shape of a mesh entity.
type ElementType uint8

const (
	Node1 ElementType = iota // Point, the side of an Edge2 and the 0-d lower element in 1D
	Edge2                    // Two node line
	Quad4                    // Four node quadrilateral, nodes counter clockwise
)

func (e ElementType) String() string {
	switch e {
	case Node1:
		return "NODE1"
	case Edge2:
		return "EDGE2"
	case Quad4:
		return "QUAD4"
	}
	return fmt.Sprintf("ElementType(%d)", int(e))
}

func (e ElementType) Dim() int {
	return [...]int{0, 1, 2}[e]
}

func (e ElementType) NumNodes() int {
	return [...]int{1, 2, 4}[e]
}

func (e ElementType) NumSides() int {
	return [...]int{0, 2, 4}[e]
}

func (e ElementType) NumChildren() int {
	return [...]int{1, 2, 4}[e]
}

// SideType is the type of the entity bounding this one.
func (e ElementType) SideType() ElementType {
	switch e {
	case Edge2:
		return Node1
	case Quad4:
		return Edge2
	}
	panic(fmt.Errorf("%s has no sides", e))
}

// SideLocalNodes returns the local node numbers of side s, ordered so that
// walking them keeps the element interior on the left in 2D.
func (e ElementType) SideLocalNodes(s int) []int {
	switch e {
	case Edge2:
		return []int{s}
	case Quad4:
		return []int{s, (s + 1) % 4}
	}
	panic(fmt.Errorf("%s has no sides", e))
}
