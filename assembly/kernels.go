package assembly

import (
	"github.com/notargets/femcore/ad"
	"github.com/notargets/femcore/system"
	"github.com/notargets/femcore/types"
)

func dot(a, b [3]float64) float64 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

// Diffusion is the hand coded Laplacian, grad u . grad phi_i.
type Diffusion struct {
	Base
}

func NewDiffusion(b Base) *Diffusion { return &Diffusion{Base: b} }

func (k *Diffusion) Kind() Kind { return KernelKind }

func (k *Diffusion) Residual(a *Assembly, i, qp int) float64 {
	grad := memo(a, 0, func() [][3]float64 { return a.Grad(k.variable, types.Element) })
	return dot(grad[qp], a.FE(k.variable, types.Element).GradPhi[i][qp])
}

func (k *Diffusion) Jacobian(a *Assembly, i, j, qp int) float64 {
	f := a.FE(k.variable, types.Element)
	return dot(f.GradPhi[j][qp], f.GradPhi[i][qp])
}

// ADDiffusion is the same operator with the Jacobian taken from the AD
// residual.
type ADDiffusion struct {
	Base
}

func NewADDiffusion(b Base) *ADDiffusion { return &ADDiffusion{Base: b} }

func (k *ADDiffusion) Kind() Kind { return KernelKind }

func (k *ADDiffusion) ADResidual(a *Assembly, i, qp int) ad.Real {
	g := memo(a, 0, func() []ad.Vec { return a.ADGrad(k.variable, types.Element) })
	return g[qp].DotF(a.FE(k.variable, types.Element).GradPhi[i][qp])
}

// ADMatDiffusion has the solution dependent diffusivity k0 (1 + alpha u).
type ADMatDiffusion struct {
	Base
	K0, Alpha float64
}

func NewADMatDiffusion(b Base, k0, alpha float64) *ADMatDiffusion {
	return &ADMatDiffusion{Base: b, K0: k0, Alpha: alpha}
}

func (k *ADMatDiffusion) Kind() Kind { return KernelKind }

// Diffusivity evaluates the material at one point.
func (k *ADMatDiffusion) Diffusivity(u ad.Real) ad.Real {
	return u.Scale(k.Alpha).AddScalar(1).Scale(k.K0)
}

func (k *ADMatDiffusion) ADResidual(a *Assembly, i, qp int) ad.Real {
	flux := memo(a, 0, func() []ad.Vec {
		var (
			u    = a.ADValue(k.variable, types.Element)
			grad = a.ADGrad(k.variable, types.Element)
			out  = make([]ad.Vec, len(u))
		)
		for qp := range u {
			out[qp] = grad[qp].Scale(k.Diffusivity(u[qp]))
		}
		return out
	})
	return flux[qp].DotF(a.FE(k.variable, types.Element).GradPhi[i][qp])
}

// BodyForce is the source term -f phi_i. F, when set, replaces the constant
// Value as a function of position.
type BodyForce struct {
	Base
	Value float64
	F     func(x [3]float64) float64
}

func NewBodyForce(b Base, value float64) *BodyForce { return &BodyForce{Base: b, Value: value} }

func (k *BodyForce) Kind() Kind { return KernelKind }

func (k *BodyForce) Residual(a *Assembly, i, qp int) float64 {
	f := k.Value
	if k.F != nil {
		f = k.F(a.QPoints[qp])
	}
	return -f * a.FE(k.variable, types.Element).Phi[i][qp]
}

func (k *BodyForce) Jacobian(a *Assembly, i, j, qp int) float64 { return 0 }

// ADCoupledReaction is the reaction rate * u * v with v another variable,
// giving an off diagonal block wherever v is nonlinear.
type ADCoupledReaction struct {
	Base
	Rate    float64
	Coupled *system.Variable
}

func NewADCoupledReaction(b Base, coupled *system.Variable, rate float64) *ADCoupledReaction {
	return &ADCoupledReaction{Base: b, Rate: rate, Coupled: coupled}
}

func (k *ADCoupledReaction) Kind() Kind { return KernelKind }

func (k *ADCoupledReaction) CoupledVariables() []*system.Variable {
	return []*system.Variable{k.Coupled}
}

func (k *ADCoupledReaction) ADResidual(a *Assembly, i, qp int) ad.Real {
	uv := memo(a, 0, func() []ad.Real {
		var (
			u   = a.ADValue(k.variable, types.Element)
			v   = a.ADValue(k.Coupled, types.Element)
			out = make([]ad.Real, len(u))
		)
		for qp := range u {
			out[qp] = u[qp].Mul(v[qp]).Scale(k.Rate)
		}
		return out
	})
	return uv[qp].Scale(a.FE(k.variable, types.Element).Phi[i][qp])
}

// memo keeps per point values an object computes once per visit. The
// memo is cleared whenever an object begins on a new entity; slot separates
// several quantities of one object.
func memo[T any](a *Assembly, slot int, build func() []T) []T {
	if v, ok := a.memo[slot]; ok {
		return v.([]T)
	}
	vals := build()
	a.memo[slot] = vals
	return vals
}
