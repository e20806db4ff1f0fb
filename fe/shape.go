package fe

import (
	"fmt"
	"strings"

	"github.com/notargets/femcore/types"
)

type Family uint8

const (
	Lagrange Family = iota // Nodal, continuous across elements
	Monomial               // Element local, discontinuous
)

func (f Family) String() string {
	return [...]string{"LAGRANGE", "MONOMIAL"}[f]
}

type Order uint8

const (
	Constant Order = iota
	First
)

func (o Order) String() string {
	return [...]string{"CONSTANT", "FIRST"}[o]
}

// FEType pairs a family with a polynomial order.
type FEType struct {
	Family Family
	Order  Order
}

// NewFEType parses names like "LAGRANGE"/"FIRST".
func NewFEType(family, order string) (ft FEType, err error) {
	switch strings.ToUpper(family) {
	case "", "LAGRANGE":
		ft.Family = Lagrange
	case "MONOMIAL":
		ft.Family = Monomial
	default:
		err = fmt.Errorf("unknown finite element family %q", family)
		return
	}
	switch strings.ToUpper(order) {
	case "", "FIRST":
		ft.Order = First
	case "CONSTANT":
		ft.Order = Constant
	default:
		err = fmt.Errorf("unknown finite element order %q", order)
		return
	}
	if ft.Family == Lagrange && ft.Order == Constant {
		err = fmt.Errorf("LAGRANGE/CONSTANT is not a valid finite element type")
	}
	return
}

func (ft FEType) String() string {
	return ft.Family.String() + "/" + ft.Order.String()
}

// IsNodal is true when degrees of freedom live on mesh nodes.
func (ft FEType) IsNodal() bool { return ft.Family == Lagrange }

// NumShapes is the number of shape functions on an element of type et.
func (ft FEType) NumShapes(et types.ElementType) int {
	switch ft.Family {
	case Lagrange:
		return et.NumNodes()
	case Monomial:
		if ft.Order == Constant {
			return 1
		}
		return et.Dim() + 1
	}
	panic(fmt.Errorf("unknown family %d", ft.Family))
}

// Shape evaluates shape function i at reference point p.
func (ft FEType) Shape(et types.ElementType, i int, p [3]float64) float64 {
	switch ft.Family {
	case Lagrange:
		return lagrangeShape(et, i, p)
	case Monomial:
		if i == 0 {
			return 1
		}
		return p[i-1]
	}
	panic(fmt.Errorf("unknown family %d", ft.Family))
}

// ShapeDeriv returns the reference frame derivatives of shape function i.
func (ft FEType) ShapeDeriv(et types.ElementType, i int, p [3]float64) (d [3]float64) {
	switch ft.Family {
	case Lagrange:
		return lagrangeDeriv(et, i, p)
	case Monomial:
		if i > 0 {
			d[i-1] = 1
		}
		return
	}
	panic(fmt.Errorf("unknown family %d", ft.Family))
}

func lagrangeShape(et types.ElementType, i int, p [3]float64) float64 {
	switch et {
	case types.Node1:
		return 1
	case types.Edge2:
		v := RefVertices(et)[i]
		return 0.5 * (1 + v[0]*p[0])
	case types.Quad4:
		v := RefVertices(et)[i]
		return 0.25 * (1 + v[0]*p[0]) * (1 + v[1]*p[1])
	}
	panic(fmt.Errorf("no lagrange shapes for %s", et))
}

func lagrangeDeriv(et types.ElementType, i int, p [3]float64) (d [3]float64) {
	switch et {
	case types.Node1:
	case types.Edge2:
		v := RefVertices(et)[i]
		d[0] = 0.5 * v[0]
	case types.Quad4:
		v := RefVertices(et)[i]
		d[0] = 0.25 * v[0] * (1 + v[1]*p[1])
		d[1] = 0.25 * (1 + v[0]*p[0]) * v[1]
	default:
		panic(fmt.Errorf("no lagrange shapes for %s", et))
	}
	return
}
