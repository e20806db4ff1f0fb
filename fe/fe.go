package fe

import (
	"fmt"
	"math"

	"github.com/notargets/femcore/types"
)

// FE holds shape function values, physical gradients and integration weights
// of one finite element type on one element, at the points of the last
// reinit. Phi and GradPhi are indexed [shape][qp].
type FE struct {
	Type      FEType
	ElemType  types.ElementType
	Phi       [][]float64
	GradPhi   [][][3]float64
	JxW       []float64
	QPoints   [][3]float64
	Normals   [][3]float64
	RefPoints [][3]float64
}

func NewFE(ft FEType) *FE {
	return &FE{Type: ft}
}

func (f *FE) NumShapes() int  { return len(f.Phi) }
func (f *FE) NumQPoints() int { return len(f.QPoints) }

// Reinit evaluates the element at the points of a volume rule.
func (f *FE) Reinit(et types.ElementType, coords [][3]float64, q *QRule) {
	f.evaluate(et, coords, q.Points)
	for qp, w := range q.Weights {
		f.JxW[qp] = w * f.detJ(et, coords, q.Points[qp])
	}
	f.Normals = f.Normals[:0]
}

// ReinitSide evaluates the element at the points of a side rule and computes
// outward unit normals at each point.
func (f *FE) ReinitSide(et types.ElementType, coords [][3]float64, q *QRule) {
	if q.Side < 0 {
		panic(fmt.Errorf("ReinitSide called with a volume rule"))
	}
	f.evaluate(et, coords, q.Points)
	f.Normals = make([][3]float64, len(q.Points))
	for qp, w := range q.Weights {
		area, n := sideMetric(et, coords, q.Side, q.Points[qp])
		f.JxW[qp] = w * area
		f.Normals[qp] = n
	}
}

// ReinitAtPhysical evaluates the element at physical points, typically the
// quadrature points of the element on the other side of a face. JxW is
// zeroed because the weights belong to whoever owns the points.
func (f *FE) ReinitAtPhysical(et types.ElementType, coords [][3]float64, points [][3]float64) {
	ref := make([][3]float64, len(points))
	for i, x := range points {
		ref[i] = InverseMap(et, coords, x)
	}
	f.evaluate(et, coords, ref)
	f.Normals = f.Normals[:0]
}

func (f *FE) evaluate(et types.ElementType, coords [][3]float64, ref [][3]float64) {
	var (
		ns  = f.Type.NumShapes(et)
		nqp = len(ref)
	)
	if len(coords) != et.NumNodes() {
		panic(fmt.Errorf("%s needs %d node coordinates, have %d", et, et.NumNodes(), len(coords)))
	}
	f.ElemType = et
	f.RefPoints = ref
	f.Phi = resize2(f.Phi, ns, nqp)
	f.GradPhi = resizeGrad(f.GradPhi, ns, nqp)
	f.JxW = make([]float64, nqp)
	f.QPoints = make([][3]float64, nqp)
	for qp, p := range ref {
		x, t := geomMap(et, coords, p)
		f.QPoints[qp] = x
		for i := 0; i < ns; i++ {
			f.Phi[i][qp] = f.Type.Shape(et, i, p)
			f.GradPhi[i][qp] = physicalGrad(et, t, f.Type.ShapeDeriv(et, i, p))
		}
	}
}

func (f *FE) detJ(et types.ElementType, coords [][3]float64, p [3]float64) float64 {
	_, t := geomMap(et, coords, p)
	switch et.Dim() {
	case 0:
		return 1
	case 1:
		return norm(t[0])
	default:
		return math.Abs(t[0][0]*t[1][1] - t[1][0]*t[0][1])
	}
}

// geomMap returns the physical point and the reference tangents dx/dxi_k.
func geomMap(et types.ElementType, coords [][3]float64, p [3]float64) (x [3]float64, t [2][3]float64) {
	for a := range coords {
		N := lagrangeShape(et, a, p)
		dN := lagrangeDeriv(et, a, p)
		for d := 0; d < 3; d++ {
			x[d] += N * coords[a][d]
			t[0][d] += dN[0] * coords[a][d]
			t[1][d] += dN[1] * coords[a][d]
		}
	}
	return
}

func physicalGrad(et types.ElementType, t [2][3]float64, dref [3]float64) (g [3]float64) {
	switch et.Dim() {
	case 0:
	case 1:
		l2 := dot(t[0], t[0])
		for d := 0; d < 3; d++ {
			g[d] = dref[0] * t[0][d] / l2
		}
	default:
		det := t[0][0]*t[1][1] - t[1][0]*t[0][1]
		g[0] = (t[1][1]*dref[0] - t[0][1]*dref[1]) / det
		g[1] = (-t[1][0]*dref[0] + t[0][0]*dref[1]) / det
	}
	return
}

// sideMetric returns the side's area element and the outward unit normal at
// the reference point p lying on side s.
func sideMetric(et types.ElementType, coords [][3]float64, s int, p [3]float64) (area float64, n [3]float64) {
	_, t := geomMap(et, coords, p)
	switch et {
	case types.Edge2:
		sign := -1.
		if s == 1 {
			sign = 1.
		}
		l := norm(t[0])
		for d := 0; d < 3; d++ {
			n[d] = sign * t[0][d] / l
		}
		return 1, n
	case types.Quad4:
		verts := RefVertices(et)
		ln := et.SideLocalNodes(s)
		var (
			r  [3]float64
			tt [3]float64
		)
		for d := 0; d < 2; d++ {
			r[d] = 0.5 * (verts[ln[1]][d] - verts[ln[0]][d])
		}
		for d := 0; d < 3; d++ {
			tt[d] = t[0][d]*r[0] + t[1][d]*r[1]
		}
		area = norm(tt)
		n = [3]float64{tt[1] / area, -tt[0] / area, 0}
		if t[0][0]*t[1][1]-t[1][0]*t[0][1] < 0 { // Clockwise node ordering
			n[0], n[1] = -n[0], -n[1]
		}
		return
	}
	panic(fmt.Errorf("%s has no sides", et))
}

// InverseMap finds the reference point of the element that maps to the
// physical point x, by Newton iteration on the geometric map.
func InverseMap(et types.ElementType, coords [][3]float64, x [3]float64) (p [3]float64) {
	if et.Dim() == 0 {
		return
	}
	for it := 0; it < 25; it++ {
		xp, t := geomMap(et, coords, p)
		var r [3]float64
		for d := 0; d < 3; d++ {
			r[d] = x[d] - xp[d]
		}
		var dp [3]float64
		if et.Dim() == 1 {
			dp[0] = dot(t[0], r) / dot(t[0], t[0])
		} else {
			det := t[0][0]*t[1][1] - t[1][0]*t[0][1]
			dp[0] = (t[1][1]*r[0] - t[1][0]*r[1]) / det
			dp[1] = (-t[0][1]*r[0] + t[0][0]*r[1]) / det
		}
		for d := 0; d < 2; d++ {
			p[d] += dp[d]
		}
		if math.Abs(dp[0])+math.Abs(dp[1]) < 1.e-14 {
			break
		}
	}
	return
}

// Map returns the physical location of reference point p.
func Map(et types.ElementType, coords [][3]float64, p [3]float64) [3]float64 {
	x, _ := geomMap(et, coords, p)
	return x
}

func dot(a, b [3]float64) float64 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }
func norm(a [3]float64) float64   { return math.Sqrt(dot(a, a)) }

func resize2(A [][]float64, n, m int) [][]float64 {
	if len(A) != n {
		A = make([][]float64, n)
	}
	for i := range A {
		if len(A[i]) != m {
			A[i] = make([]float64, m)
		}
	}
	return A
}

func resizeGrad(A [][][3]float64, n, m int) [][][3]float64 {
	if len(A) != n {
		A = make([][][3]float64, n)
	}
	for i := range A {
		if len(A[i]) != m {
			A[i] = make([][3]float64, m)
		}
	}
	return A
}
