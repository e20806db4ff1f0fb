package assembly

import (
	"testing"

	"github.com/notargets/femcore/ad"
	"github.com/notargets/femcore/mesh"
	"github.com/notargets/femcore/system"
	"github.com/notargets/femcore/types"
	"github.com/notargets/femcore/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLine(t *testing.T) (*Problem, *system.Variable, Object) {
	t.Helper()
	p := newProblem(mesh.GenerateLine(2, 0, 1))
	u := p.AddVariable(system.VariableParams{Name: "u"})
	k := NewADDiffusion(NewBase("diff", u))
	p.AddObject(k)
	p.Setup()
	return p, u, k
}

func TestStateMachine(t *testing.T) {
	p, _, k := setupLine(t)
	a := newAssembly(p, 0, true)
	a.ReinitElem(0)

	// The legal path, with and without the Jacobian step
	for _, jac := range []bool{false, true} {
		a.begin(k)
		assert.Equal(t, Idle, a.State())
		a.residualDone()
		assert.Equal(t, ResidualComputed, a.State())
		if jac {
			a.jacobianDone()
			assert.Equal(t, JacobianComputed, a.State())
		}
		a.accumulate()
		assert.Equal(t, Accumulated, a.State())
		a.finish()
		assert.Equal(t, Idle, a.State())
	}

	for name, steps := range map[string][]func(){
		"jacobian before residual": {func() { a.begin(k) }, a.jacobianDone},
		"accumulate from idle":     {func() { a.begin(k) }, a.accumulate},
		"finish before accumulate": {func() { a.begin(k) }, a.residualDone, a.finish},
		"residual twice":           {func() { a.begin(k) }, a.residualDone, a.residualDone},
		"begin while busy":         {func() { a.begin(k) }, a.residualDone, func() { a.begin(k) }},
	} {
		t.Run(name, func(t *testing.T) {
			a.state = Idle
			fe := utils.CatchFatal(func() {
				for _, step := range steps {
					step()
				}
			})
			require.NotNil(t, fe)
			assert.Equal(t, utils.InternalError, fe.Kind)
			assert.Equal(t, "diff", fe.Object)
		})
	}
}

func TestLocalBlocks(t *testing.T) {
	p, u, k := setupLine(t)
	a := newAssembly(p, 0, true)
	a.ReinitElem(1)
	a.begin(k)
	re := a.Re(types.Element, u)
	assert.Same(t, re, a.Re(types.Element, u))
	assert.Equal(t, 2, re.Len())
	ke := a.Ke(types.Element, types.Element, u, u)
	r, c := ke.Dims()
	assert.Equal(t, [2]int{2, 2}, [2]int{r, c})

	// No neighbor is selected on a plain element visit
	fe := utils.CatchFatal(func() { a.Re(types.Neighbor, u) })
	require.NotNil(t, fe)
	assert.Equal(t, utils.InternalError, fe.Kind)
	assert.Equal(t, []int{1, 2}, a.Dofs(u, types.Element))
}

func TestProcessDerivatives(t *testing.T) {
	p, u, k := setupLine(t)
	a := newAssembly(p, 0, true)
	a.ReinitElem(1)
	a.begin(k)

	var (
		off = a.Layout().Offset(u.Number, types.Element)
		r   = ad.Seeded(1, a.Layout().Size(), off+1).Add(ad.Seeded(0, a.Layout().Size(), off).Scale(3))
		got = make(map[int]float64)
		seq []int
	)
	a.ProcessDerivatives(r, func(dof int, d float64) {
		got[dof] = d
		seq = append(seq, dof)
	})
	assert.Equal(t, map[int]float64{1: 3, 2: 1}, got)
	assert.Equal(t, []int{1, 2}, seq)

	// Constants have nothing to hand out
	a.ProcessDerivatives(ad.Constant(4), func(int, float64) { t.Fatal("unexpected derivative") })

	a.AddResidualAt(2, r)
	a.residualDone()
	a.processPending()
	a.jacobianDone()
	a.accumulate()
	a.finish()
	assert.Equal(t, 1., a.residual[2])
	assert.Equal(t, 3., a.jac.At(2, 1))
	assert.Equal(t, 1., a.jac.At(2, 2))
}

func TestBaseRestriction(t *testing.T) {
	p := newProblem(mesh.GenerateLine(2, 0, 1))
	u := p.AddVariable(system.VariableParams{Name: "u", Blocks: []mesh.SubdomainID{1}})
	b := NewBase("k", u)
	assert.True(t, b.HasBlock(1))
	assert.False(t, b.HasBlock(0))
	b.Restrict(0, 3)
	assert.True(t, b.HasBlock(0))
	assert.False(t, b.HasBlock(1))

	b.OnBoundary(4, 2)
	assert.Equal(t, []mesh.BoundaryID{2, 4}, b.Boundaries())
	assert.True(t, b.onAnyBoundary([]mesh.BoundaryID{7, 4}))
	assert.False(t, b.onAnyBoundary(nil))
	assert.Equal(t, "k on u", b.String())
	assert.Equal(t, "FVFluxKernel", FVFluxKind.String())
	assert.Equal(t, "ResidualComputed", ResidualComputed.String())
	assert.Equal(t, utils.BCDirichlet, FVDirichletKind.BCType())
	assert.True(t, IntegratedBCKind.BCType().OnSideset())
	assert.False(t, MortarKind.BCType().OnSideset())
	assert.False(t, DGKernelKind.BCType().OnSideset())
}
