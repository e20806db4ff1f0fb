package assembly

import (
	"github.com/notargets/femcore/ad"
	"github.com/notargets/femcore/fe"
	"github.com/notargets/femcore/mesh"
	"github.com/notargets/femcore/system"
	"github.com/notargets/femcore/types"
	"github.com/notargets/femcore/utils"
)

func elemCoords(m mesh.Backend, id int) [][3]float64 {
	e := m.Elem(id)
	X := make([][3]float64, len(e.Nodes))
	for i, n := range e.Nodes {
		X[i] = m.Node(n).X
	}
	return X
}

func (a *Assembly) volumeRule(et types.ElementType) *fe.QRule {
	key := [2]int{int(et), -1}
	q, ok := a.qrules[key]
	if !ok {
		q = fe.NewQRule(et, a.p.QuadratureOrder)
		a.qrules[key] = q
	}
	return q
}

func (a *Assembly) sideRule(et types.ElementType, side int) *fe.QRule {
	key := [2]int{int(et), side}
	q, ok := a.sideQrules[key]
	if !ok {
		q = fe.NewSideQRule(et, a.p.QuadratureOrder, side)
		a.sideQrules[key] = q
	}
	return q
}

func (a *Assembly) takePoints(geom *fe.FE) {
	a.JxW = geom.JxW
	a.QPoints = geom.QPoints
	a.Coord = make([]float64, len(a.QPoints))
	for qp, x := range a.QPoints {
		a.Coord[qp] = a.p.Cache.CoordFactor(x)
	}
}

// ReinitElem prepares volume integration over elem.
func (a *Assembly) ReinitElem(elem int) {
	var (
		m      = a.p.Cache.Mesh()
		e      = m.Elem(elem)
		coords = elemCoords(m, elem)
		q      = a.volumeRule(e.Type)
	)
	a.clearEntities()
	a.Elem = elem
	a.geom[types.Element].Reinit(e.Type, coords, q)
	for _, f := range a.fes[types.Element] {
		f.Reinit(e.Type, coords, q)
	}
	a.takePoints(a.geom[types.Element])
}

// ReinitSide prepares integration over one side of elem, with outward
// normals.
func (a *Assembly) ReinitSide(elem, side int) {
	var (
		m      = a.p.Cache.Mesh()
		e      = m.Elem(elem)
		coords = elemCoords(m, elem)
		q      = a.sideRule(e.Type, side)
	)
	a.clearEntities()
	a.Elem, a.Side = elem, side
	a.geom[types.Element].ReinitSide(e.Type, coords, q)
	for _, f := range a.fes[types.Element] {
		f.ReinitSide(e.Type, coords, q)
	}
	a.takePoints(a.geom[types.Element])
	a.Normals = a.geom[types.Element].Normals
}

// ReinitFace prepares integration over the face shared by elem and nbr.
// Points and normals come from elem; the neighbor is evaluated at the same
// physical points.
func (a *Assembly) ReinitFace(elem, side, nbr, nbrSide int) {
	a.ReinitSide(elem, side)
	a.Neighbor, a.NbrSide = nbr, nbrSide
	a.reinitAtPoints(types.Neighbor, nbr)
}

func (a *Assembly) reinitAtPoints(role types.ElementRole, elem int) {
	var (
		m      = a.p.Cache.Mesh()
		et     = m.Elem(elem).Type
		coords = elemCoords(m, elem)
	)
	a.geom[role].ReinitAtPhysical(et, coords, a.QPoints)
	for _, f := range a.fes[role] {
		f.ReinitAtPhysical(et, coords, a.QPoints)
	}
}

// ReinitLower prepares integration over a lower dimensional element. Its
// interior parent plays the Element role and the element across the parent
// side, if any, the Neighbor role.
func (a *Assembly) ReinitLower(lower int) {
	var (
		m      = a.p.Cache.Mesh()
		e      = m.Elem(lower)
		coords = elemCoords(m, lower)
		q      = a.volumeRule(e.Type)
	)
	a.clearEntities()
	a.Lower = lower
	a.geom[types.Lower].Reinit(e.Type, coords, q)
	for _, f := range a.fes[types.Lower] {
		f.Reinit(e.Type, coords, q)
	}
	a.takePoints(a.geom[types.Lower])
	a.Elem, a.Side = e.InteriorParent, e.InteriorSide
	a.reinitAtPoints(types.Element, a.Elem)
	if nbr := m.Neighbor(a.Elem, a.Side); nbr != mesh.InvalidID {
		a.Neighbor = nbr
		a.reinitAtPoints(types.Neighbor, nbr)
	}
}

// ReinitFV selects the elements of a finite volume face without any
// quadrature.
func (a *Assembly) ReinitFV(fi *mesh.FaceInfo) {
	a.clearEntities()
	a.Face = fi
	a.Elem, a.Side = fi.Elem, fi.ElemSide
	a.Neighbor, a.NbrSide = fi.Neighbor, fi.NeighborSide
}

// ReinitFVElem selects an element for a finite volume elemental kernel.
func (a *Assembly) ReinitFVElem(elem int) {
	a.clearEntities()
	a.Elem = elem
}

func (a *Assembly) ReinitNode(node int) {
	a.clearEntities()
	a.Node = node
}

// FE returns the values of v's finite element type on the element playing
// role at the current points.
func (a *Assembly) FE(v *system.Variable, role types.ElementRole) *fe.FE {
	return a.fes[role][v.FE]
}

// solution is v's local solution on the element playing role. An element
// without v's DOFs is a configuration error of the object reading it.
func (a *Assembly) solution(v *system.Variable, role types.ElementRole) []float64 {
	var (
		s    = v.System()
		elem = a.RoleElem(role)
		u    = s.Values(s.Solution, elem, v)
	)
	if len(u) == 0 {
		name := "assembly"
		if a.obj != nil {
			name = a.obj.Name()
		}
		utils.ConfigErrorf(name, "variable %s has no degrees of freedom on %s element %d", v.Name(), role, elem)
	}
	return u
}

// seeded is true when values of v carry derivatives in this pass.
func (a *Assembly) seeded(v *system.Variable) bool {
	return a.doJacobian && v.System() == a.sys
}

// Value interpolates v at the current points, without derivatives.
func (a *Assembly) Value(v *system.Variable, role types.ElementRole) []float64 {
	var (
		f   = a.FE(v, role)
		u   = a.solution(v, role)
		out = make([]float64, f.NumQPoints())
	)
	for qp := range out {
		for j := 0; j < f.NumShapes(); j++ {
			out[qp] += f.Phi[j][qp] * u[j]
		}
	}
	return out
}

func (a *Assembly) Grad(v *system.Variable, role types.ElementRole) [][3]float64 {
	var (
		f   = a.FE(v, role)
		u   = a.solution(v, role)
		out = make([][3]float64, f.NumQPoints())
	)
	for qp := range out {
		for j := 0; j < f.NumShapes(); j++ {
			for d := 0; d < 3; d++ {
				out[qp][d] += f.GradPhi[j][qp][d] * u[j]
			}
		}
	}
	return out
}

// ADValue interpolates v at the current points. Nonlinear variables are
// seeded with the shape function values at their offset for role, so the
// derivative vector holds the sensitivity to each local DOF.
func (a *Assembly) ADValue(v *system.Variable, role types.ElementRole) []ad.Real {
	var (
		f   = a.FE(v, role)
		u   = a.solution(v, role)
		out = make([]ad.Real, f.NumQPoints())
		sd  = a.seeded(v)
		off int
	)
	if sd {
		off = a.layout.Offset(v.Number, role)
	}
	for qp := range out {
		r := &out[qp]
		if sd {
			r.Derivs = make([]float64, a.layout.Size())
		}
		for j := 0; j < f.NumShapes(); j++ {
			r.Value += f.Phi[j][qp] * u[j]
			if sd {
				r.Derivs[off+j] = f.Phi[j][qp]
			}
		}
	}
	return out
}

func (a *Assembly) ADGrad(v *system.Variable, role types.ElementRole) []ad.Vec {
	var (
		f   = a.FE(v, role)
		u   = a.solution(v, role)
		out = make([]ad.Vec, f.NumQPoints())
		sd  = a.seeded(v)
		off int
	)
	if sd {
		off = a.layout.Offset(v.Number, role)
	}
	for qp := range out {
		for d := 0; d < 3; d++ {
			r := &out[qp][d]
			if sd {
				r.Derivs = make([]float64, a.layout.Size())
			}
			for j := 0; j < f.NumShapes(); j++ {
				g := f.GradPhi[j][qp][d]
				r.Value += g * u[j]
				if sd {
					r.Derivs[off+j] = g
				}
			}
		}
	}
	return out
}

// CellValue is the value of a finite volume variable on the element playing
// role.
func (a *Assembly) CellValue(v *system.Variable, role types.ElementRole) ad.Real {
	u := a.solution(v, role)
	if !a.seeded(v) {
		return ad.Constant(u[0])
	}
	return ad.Seeded(u[0], a.layout.Size(), a.layout.Offset(v.Number, role))
}

// NodalValue is the value of a nodal variable at the current node.
func (a *Assembly) NodalValue(v *system.Variable) (val float64, dof int, ok bool) {
	s := v.System()
	if dof, ok = s.NodeDof(a.Node, v, 0); ok {
		val = s.Solution.AtVec(dof)
	}
	return
}
