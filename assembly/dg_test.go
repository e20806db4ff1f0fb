package assembly

import (
	"testing"

	"github.com/notargets/femcore/mesh"
	"github.com/notargets/femcore/system"
	"github.com/notargets/femcore/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestDGDiffusionSymmetric(t *testing.T) {
	build := func(threads int) *GlobalResult {
		p := newProblem(mesh.GenerateQuad(3, 2, 0, 1, 0, 1))
		p.Threads = threads
		u := p.AddVariable(system.VariableParams{Name: "u", Family: "MONOMIAL", Order: "FIRST"})
		p.AddObject(NewADDiffusion(NewBase("vol", u)))
		p.AddObject(NewADDGDiffusion(NewBase("dg", u), 1, -1, 8))
		p.Setup()
		p.NL.SetFunction(u, func(x [3]float64) float64 { return x[0] + x[1] })
		return p.ComputeResidualAndJacobian()
	}
	g := build(1)
	J := g.Dense()
	n, _ := J.Dims()
	require.Equal(t, 18, n)
	assert.True(t, mat.EqualApprox(J, J.T(), 1e-12))

	// Elements 0 and 1 share a face, so their DOFs couple
	var coupled bool
	for i := 0; i < 3; i++ {
		for j := 3; j < 6; j++ {
			coupled = coupled || J.At(i, j) != 0
		}
	}
	assert.True(t, coupled)
	// Elements 0 and 2 do not
	for i := 0; i < 3; i++ {
		for j := 6; j < 9; j++ {
			assert.Zero(t, J.At(i, j))
		}
	}

	many := build(4)
	assert.True(t, mat.EqualApprox(J, many.Dense(), 1e-12))
	assert.InDeltaSlice(t, g.Residual.RawVector().Data, many.Residual.RawVector().Data, 1e-12)
}

// u0 lives on the left cell and u1 on the right one; they meet at x = 1.
func interfaceProblem() (p *Problem, u0, u1 *system.Variable) {
	m := mesh.GenerateLine(2, 0, 2)
	m.AssignSubdomains(func(c [3]float64) mesh.SubdomainID {
		if c[0] < 1 {
			return 0
		}
		return 1
	})
	m.AddSideBoundary(0, 1, ifaceID)
	m.SetBoundaryName(ifaceID, "iface")
	p = newProblem(m)
	u0 = p.AddVariable(system.VariableParams{Name: "u0", Blocks: []mesh.SubdomainID{0}})
	u1 = p.AddVariable(system.VariableParams{Name: "u1", Blocks: []mesh.SubdomainID{1}})
	return
}

func TestInterfaceKernel(t *testing.T) {
	p, u0, u1 := interfaceProblem()
	b := NewBase("iface", u0)
	b.OnBoundary(ifaceID)
	p.AddObject(NewADInterfaceDiffusion(b, u1, 1, 1, 10))
	p.Setup()
	require.Equal(t, 4, p.NL.NDofs())

	g := p.ComputeResidualAndJacobian()
	assertMatrix(t, [][]float64{
		{0, 0, 0, 0},
		{0.5, 9.5, -9.5, -0.5},
		{-0.5, -9.5, 9.5, 0.5},
		{0, 0, 0, 0},
	}, g.Dense(), 1e-12)
}

func TestMortarEqualValue(t *testing.T) {
	p, u0, u1 := interfaceProblem()
	m := p.Cache.Mesh().(*mesh.Mesh)
	lower := m.AddLowerDBlock(2, "interface", m.InterfaceSides(0, 1))
	require.Len(t, lower, 1)
	p.Cache.MeshChanged()
	lm := p.AddVariable(system.VariableParams{Name: "lm", Blocks: []mesh.SubdomainID{2}})
	p.AddObject(NewADDiffusion(NewBase("d0", u0)))
	p.AddObject(NewADDiffusion(NewBase("d1", u1)))
	p.AddObject(NewADEqualValueConstraint(NewBase("mortar", lm), u0, u1))
	p.Setup()
	require.Equal(t, 5, p.NL.NDofs())
	p.NL.SetFunction(u0, func(x [3]float64) float64 { return 2 })
	p.NL.SetFunction(u1, func(x [3]float64) float64 { return 0.5 })
	p.NL.SetConstant(lm, 3)

	g := p.ComputeResidualAndJacobian()
	assertMatrix(t, [][]float64{
		{1, -1, 0, 0, 0},
		{-1, 1, 0, 0, 1},
		{0, 0, 1, -1, -1},
		{0, 0, -1, 1, 0},
		{0, 1, -1, 0, 0},
	}, g.Dense(), 1e-12)
	assert.InDeltaSlice(t, []float64{0, 3, -3, 0, 1.5}, g.Residual.RawVector().Data, 1e-12)
}

func TestMortarNeedsSecondary(t *testing.T) {
	m := mesh.GenerateLine(2, 0, 2)
	m.AddLowerDBlock(2, "edge", m.BoundarySides(mesh.Right))
	p := newProblem(m)
	u := p.AddVariable(system.VariableParams{Name: "u"})
	lm := p.AddVariable(system.VariableParams{Name: "lm", Blocks: []mesh.SubdomainID{2}})
	p.AddObject(NewADEqualValueConstraint(NewBase("mortar", lm), u, u))
	p.Setup()
	fe := utils.CatchFatal(func() { p.ComputeResidual() })
	require.NotNil(t, fe)
	assert.Equal(t, utils.ConfigError, fe.Kind)
	assert.Equal(t, "mortar", fe.Object)
}

func TestCoupledVariableBlocks(t *testing.T) {
	t.Run("Uncovered", func(t *testing.T) {
		p, u0, u1 := interfaceProblem()
		p.AddObject(NewADCoupledReaction(NewBase("react", u0), u1, 1))
		fe := utils.CatchFatal(p.Setup)
		require.NotNil(t, fe)
		assert.Equal(t, utils.ConfigError, fe.Kind)
		assert.Equal(t, "react", fe.Object)
		assert.Contains(t, fe.Msg, "coupled variable u1")
	})
	t.Run("Covered", func(t *testing.T) {
		p, u0, _ := interfaceProblem()
		w := p.AddVariable(system.VariableParams{Name: "w"})
		p.AddObject(NewADCoupledReaction(NewBase("react", u0), w, 2))
		p.AddObject(NewADDiffusion(NewBase("wdiff", w)))
		p.Setup()
		p.NL.SetConstant(u0, 1)
		p.NL.SetConstant(w, 3)
		// The reaction 2 * 1 * 3 over the unit left cell is the only nonzero term
		var sum float64
		for _, r := range p.ComputeResidual().RawVector().Data {
			sum += r
		}
		assert.InDelta(t, 6, sum, 1e-12)
	})
}

func TestMortarVariableBlocks(t *testing.T) {
	p, u0, u1 := interfaceProblem()
	m := p.Cache.Mesh().(*mesh.Mesh)
	m.AddLowerDBlock(2, "interface", m.InterfaceSides(0, 1))
	p.Cache.MeshChanged()
	lm := p.AddVariable(system.VariableParams{Name: "lm", Blocks: []mesh.SubdomainID{2}})
	// Primary and secondary are swapped relative to the parents of the interface
	p.AddObject(NewADEqualValueConstraint(NewBase("mortar", lm), u1, u0))
	p.Setup()
	fe := utils.CatchFatal(func() { p.ComputeResidualAndJacobian() })
	require.NotNil(t, fe)
	assert.Equal(t, utils.ConfigError, fe.Kind)
	assert.Equal(t, "mortar", fe.Object)
	assert.Contains(t, fe.Msg, "u1 is not defined")
}
