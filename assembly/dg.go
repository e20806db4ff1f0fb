package assembly

import (
	"github.com/notargets/femcore/ad"
	"github.com/notargets/femcore/system"
	"github.com/notargets/femcore/types"
)

type faceQP struct {
	flux ad.Real // Averaged normal flux from the Elem side
	jump ad.Real // Elem minus Neighbor value
}

// ADDGDiffusion is the interior penalty discretization of the Laplacian on
// internal faces. Epsilon -1 gives the symmetric method.
type ADDGDiffusion struct {
	Base
	D, Epsilon, Sigma float64
}

func NewADDGDiffusion(b Base, d, epsilon, sigma float64) *ADDGDiffusion {
	return &ADDGDiffusion{Base: b, D: d, Epsilon: epsilon, Sigma: sigma}
}

func (k *ADDGDiffusion) Kind() Kind { return DGKernelKind }

func (k *ADDGDiffusion) RowVariable(role types.ElementRole) *system.Variable {
	if role == types.Lower {
		return nil
	}
	return k.variable
}

func (k *ADDGDiffusion) ADFaceResidual(a *Assembly, role types.ElementRole, i, qp int) ad.Real {
	q := memo(a, 0, func() []faceQP {
		return faceTerms(a, k.variable, k.variable, k.D, k.D)
	})[qp]
	var (
		f    = a.FE(k.variable, role)
		n    = a.Normals[qp]
		h    = a.Face.ElemVolume / a.Face.Area
		sign = 1.
	)
	if role == types.Neighbor {
		sign = -1
	}
	r := q.flux.Scale(-sign * f.Phi[i][qp])
	r = r.Add(q.jump.Scale(k.Epsilon * 0.5 * k.D * dot(f.GradPhi[i][qp], n)))
	return r.Add(q.jump.Scale(sign * k.Sigma / h * f.Phi[i][qp]))
}

// faceTerms evaluates the averaged normal flux of u on the Elem side and v on
// the Neighbor side, and the jump u - v.
func faceTerms(a *Assembly, u, v *system.Variable, du, dv float64) []faceQP {
	var (
		ue  = a.ADValue(u, types.Element)
		un  = a.ADValue(v, types.Neighbor)
		ge  = a.ADGrad(u, types.Element)
		gn  = a.ADGrad(v, types.Neighbor)
		out = make([]faceQP, len(ue))
	)
	for qp := range out {
		n := a.Normals[qp]
		out[qp].flux = ge[qp].DotF(n).Scale(0.5 * du).Add(gn[qp].DotF(n).Scale(0.5 * dv))
		out[qp].jump = ue[qp].Sub(un[qp])
	}
	return out
}

// ADInterfaceDiffusion couples u on one block to v on the block across an
// interface by the averaged diffusive flux, with an optional penalty on the
// jump u - v.
type ADInterfaceDiffusion struct {
	Base
	NeighborVar *system.Variable
	D, DNeighbor float64
	Penalty      float64
}

func NewADInterfaceDiffusion(b Base, nbrVar *system.Variable, d, dNbr, penalty float64) *ADInterfaceDiffusion {
	return &ADInterfaceDiffusion{Base: b, NeighborVar: nbrVar, D: d, DNeighbor: dNbr, Penalty: penalty}
}

func (k *ADInterfaceDiffusion) Kind() Kind { return InterfaceKernelKind }

func (k *ADInterfaceDiffusion) RowVariable(role types.ElementRole) *system.Variable {
	switch role {
	case types.Element:
		return k.variable
	case types.Neighbor:
		return k.NeighborVar
	}
	return nil
}

func (k *ADInterfaceDiffusion) ADFaceResidual(a *Assembly, role types.ElementRole, i, qp int) ad.Real {
	q := memo(a, 0, func() []faceQP {
		return faceTerms(a, k.variable, k.NeighborVar, k.D, k.DNeighbor)
	})[qp]
	var (
		phi  = a.FE(k.RowVariable(role), role).Phi[i][qp]
		sign = 1.
	)
	if role == types.Neighbor {
		sign = -1
	}
	return q.flux.Scale(-sign * phi).Add(q.jump.Scale(sign * k.Penalty * phi))
}

// ADEqualValueConstraint enforces u on the primary side equal to the
// secondary side value through a Lagrange multiplier living on a lower
// dimensional block. The multiplier is the object's variable.
type ADEqualValueConstraint struct {
	Base
	Primary, Secondary *system.Variable
}

func NewADEqualValueConstraint(b Base, primary, secondary *system.Variable) *ADEqualValueConstraint {
	return &ADEqualValueConstraint{Base: b, Primary: primary, Secondary: secondary}
}

func (c *ADEqualValueConstraint) Kind() Kind { return MortarKind }

func (c *ADEqualValueConstraint) RowVariable(role types.ElementRole) *system.Variable {
	switch role {
	case types.Element:
		return c.Primary
	case types.Neighbor:
		return c.Secondary
	}
	return c.variable
}

func (c *ADEqualValueConstraint) ADFaceResidual(a *Assembly, role types.ElementRole, i, qp int) ad.Real {
	phi := a.FE(c.RowVariable(role), role).Phi[i][qp]
	switch role {
	case types.Lower:
		jump := memo(a, 0, func() []ad.Real {
			var (
				up  = a.ADValue(c.Primary, types.Element)
				us  = a.ADValue(c.Secondary, types.Neighbor)
				out = make([]ad.Real, len(up))
			)
			for qp := range out {
				out[qp] = up[qp].Sub(us[qp])
			}
			return out
		})
		return jump[qp].Scale(phi)
	case types.Neighbor:
		phi = -phi
	}
	lm := memo(a, 1, func() []ad.Real { return a.ADValue(c.variable, types.Lower) })
	return lm[qp].Scale(phi)
}
