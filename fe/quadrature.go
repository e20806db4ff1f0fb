package fe

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/femcore/types"
)

// JacobiGQ returns the N+1 point Gauss quadrature for the Jacobi weight
// (1-x)^alpha (1+x)^beta on [-1,1], via the eigen decomposition of the
// symmetric tridiagonal Jacobi matrix.
func JacobiGQ(alpha, beta float64, N int) (x, w []float64) {
	if N == 0 {
		x = []float64{-(alpha - beta) / (alpha + beta + 2.)}
		w = []float64{2.}
		return
	}
	var (
		h1 = make([]float64, N+1)
		JJ = mat.NewSymDense(N+1, nil)
	)
	for i := 0; i < N+1; i++ {
		h1[i] = 2*float64(i) + alpha + beta
	}
	// main diagonal: -1/2*(alpha^2-beta^2)./(h1+2)./h1
	fac := -.5 * (alpha*alpha - beta*beta)
	for i := 0; i < N+1; i++ {
		val := h1[i]
		JJ.SetSym(i, i, fac/(val*(val+2.)))
	}
	// Handle division by zero
	eps := 1.e-16
	if alpha+beta < 10*eps {
		JJ.SetSym(0, 0, 0.)
	}
	// 1st upper diagonal
	for i := 0; i < N; i++ {
		ip1 := float64(i + 1)
		val := h1[i]
		d1 := 2. / (val + 2.)
		d1 *= math.Sqrt(ip1 * (ip1 + alpha + beta) * (ip1 + alpha) * (ip1 + beta) / ((val + 1.) * (val + 3.)))
		JJ.SetSym(i, i+1, d1)
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(JJ, true); !ok {
		panic("eigenvalue decomposition failed")
	}
	x = eig.Values(nil)
	VVr := mat.NewDense(N+1, N+1, nil)
	eig.VectorsTo(VVr)
	g0 := gamma0(alpha, beta)
	w = make([]float64, N+1)
	for i := range w {
		v := VVr.At(0, i)
		w[i] = v * v * g0
	}
	return
}

func gamma0(alpha, beta float64) float64 {
	ab1 := alpha + beta + 1.
	a1 := alpha + 1.
	b1 := beta + 1.
	return math.Gamma(a1) * math.Gamma(b1) * math.Pow(2, ab1) / ab1 / math.Gamma(ab1)
}

// GaussLegendre returns the rule with n points, exact for polynomials of
// degree 2n-1.
func GaussLegendre(n int) (x, w []float64) {
	if n < 1 {
		panic(fmt.Errorf("gauss rule needs at least one point, have %d", n))
	}
	return JacobiGQ(0, 0, n-1)
}

// PointsForOrder is the number of Gauss points needed to integrate a
// polynomial of the given order exactly.
func PointsForOrder(order int) int {
	if order < 0 {
		order = 0
	}
	return order/2 + 1
}

// QRule holds quadrature points in the reference frame of the element being
// integrated. Side rules store volume reference coordinates for each point
// together with the weights of the side reference frame.
type QRule struct {
	Type    types.ElementType
	Order   int
	Side    int // -1 for a volume rule
	Points  [][3]float64
	Weights []float64
}

func (q *QRule) NumPoints() int { return len(q.Weights) }

// NewQRule builds a volume rule for the element type.
func NewQRule(et types.ElementType, order int) (q *QRule) {
	q = &QRule{Type: et, Order: order, Side: -1}
	switch et {
	case types.Node1:
		q.Points = [][3]float64{{}}
		q.Weights = []float64{1}
	case types.Edge2:
		x, w := GaussLegendre(PointsForOrder(order))
		for i := range x {
			q.Points = append(q.Points, [3]float64{x[i], 0, 0})
		}
		q.Weights = w
	case types.Quad4:
		x, w := GaussLegendre(PointsForOrder(order))
		for j := range x {
			for i := range x {
				q.Points = append(q.Points, [3]float64{x[i], x[j], 0})
				q.Weights = append(q.Weights, w[i]*w[j])
			}
		}
	default:
		panic(fmt.Errorf("no quadrature for %s", et))
	}
	return
}

// NewSideQRule builds a rule on side s of the element type, mapped into the
// element's volume reference coordinates.
func NewSideQRule(et types.ElementType, order, side int) (q *QRule) {
	sideRule := NewQRule(et.SideType(), order)
	verts := RefVertices(et)
	ln := et.SideLocalNodes(side)
	q = &QRule{Type: et, Order: order, Side: side, Weights: sideRule.Weights}
	for _, p := range sideRule.Points {
		var pt [3]float64
		switch len(ln) {
		case 1:
			pt = verts[ln[0]]
		case 2:
			a, b := verts[ln[0]], verts[ln[1]]
			s := 0.5 * (p[0] + 1)
			for d := 0; d < 3; d++ {
				pt[d] = a[d] + s*(b[d]-a[d])
			}
		}
		q.Points = append(q.Points, pt)
	}
	return
}

// RefVertices returns the reference coordinates of the element's nodes.
func RefVertices(et types.ElementType) [][3]float64 {
	switch et {
	case types.Node1:
		return [][3]float64{{}}
	case types.Edge2:
		return [][3]float64{{-1, 0, 0}, {1, 0, 0}}
	case types.Quad4:
		return [][3]float64{{-1, -1, 0}, {1, -1, 0}, {1, 1, 0}, {-1, 1, 0}}
	}
	panic(fmt.Errorf("no reference element for %s", et))
}

// ChildToParent maps a point in the reference frame of child c into the
// reference frame of its parent. Children are numbered the way the mesh
// refinement creates them: child c contains parent vertex c.
func ChildToParent(et types.ElementType, child int, p [3]float64) (pp [3]float64) {
	if et == types.Node1 {
		return p
	}
	corner := RefVertices(et)[child]
	for d := 0; d < et.Dim(); d++ {
		pp[d] = 0.5 * (p[d] + corner[d])
	}
	return
}
