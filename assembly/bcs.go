package assembly

import (
	"github.com/notargets/femcore/ad"
	"github.com/notargets/femcore/types"
)

// NeumannBC imposes the inflow flux g through -g phi_i on its sides.
type NeumannBC struct {
	Base
	Value float64
}

func NewNeumannBC(b Base, value float64) *NeumannBC { return &NeumannBC{Base: b, Value: value} }

func (bc *NeumannBC) Kind() Kind { return IntegratedBCKind }

func (bc *NeumannBC) Residual(a *Assembly, i, qp int) float64 {
	return -bc.Value * a.FE(bc.variable, types.Element).Phi[i][qp]
}

func (bc *NeumannBC) Jacobian(a *Assembly, i, j, qp int) float64 { return 0 }

// ADRobinBC is the convective condition alpha (u - uInf) phi_i.
type ADRobinBC struct {
	Base
	Alpha, UInf float64
}

func NewADRobinBC(b Base, alpha, uInf float64) *ADRobinBC {
	return &ADRobinBC{Base: b, Alpha: alpha, UInf: uInf}
}

func (bc *ADRobinBC) Kind() Kind { return IntegratedBCKind }

func (bc *ADRobinBC) ADResidual(a *Assembly, i, qp int) ad.Real {
	u := memo(a, 0, func() []ad.Real { return a.ADValue(bc.variable, types.Element) })
	return u[qp].AddScalar(-bc.UInf).Scale(bc.Alpha * a.FE(bc.variable, types.Element).Phi[i][qp])
}

// DirichletBC replaces the equation at each boundary node by u - g. F, when
// set, gives g as a function of position.
type DirichletBC struct {
	Base
	Value float64
	F     func(x [3]float64) float64
}

func NewDirichletBC(b Base, value float64) *DirichletBC { return &DirichletBC{Base: b, Value: value} }

func (bc *DirichletBC) Kind() Kind { return NodalBCKind }

func (bc *DirichletBC) NodalResidual(a *Assembly, u float64) float64 {
	g := bc.Value
	if bc.F != nil {
		g = bc.F(a.p.Cache.Mesh().Node(a.Node).X)
	}
	return u - g
}
