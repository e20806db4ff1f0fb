package assembly

import (
	"testing"

	"github.com/notargets/femcore/mesh"
	"github.com/notargets/femcore/system"
	"github.com/notargets/femcore/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newProblem(m *mesh.Mesh) *Problem {
	c := mesh.NewTopologyCache(m, nil)
	c.Prepare()
	return NewProblem("test", c, nil)
}

func assertMatrix(t *testing.T, want [][]float64, got *mat.Dense, tol float64) {
	t.Helper()
	r, c := got.Dims()
	require.Equal(t, len(want), r)
	for i := range want {
		require.Equal(t, len(want[i]), c)
		for j := range want[i] {
			assert.InDeltaf(t, want[i][j], got.At(i, j), tol, "entry (%d, %d)", i, j)
		}
	}
}

func TestDiffusionJacobian1D(t *testing.T) {
	for _, kind := range []string{"hand", "ad"} {
		t.Run(kind, func(t *testing.T) {
			p := newProblem(mesh.GenerateLine(2, 0, 1))
			u := p.AddVariable(system.VariableParams{Name: "u"})
			if kind == "hand" {
				p.AddObject(NewDiffusion(NewBase("diff", u)))
			} else {
				p.AddObject(NewADDiffusion(NewBase("diff", u)))
			}
			p.Setup()
			p.NL.SetFunction(u, func(x [3]float64) float64 { return x[0] })

			g := p.ComputeResidualAndJacobian()
			h := 0.5
			assertMatrix(t, [][]float64{
				{1 / h, -1 / h, 0},
				{-1 / h, 2 / h, -1 / h},
				{0, -1 / h, 1 / h},
			}, g.Dense(), 1e-10)
			assert.InDeltaSlice(t, []float64{-1, 0, 1}, g.Residual.RawVector().Data, 1e-10)

			// The residual only pass agrees
			r := p.ComputeResidual()
			assert.InDeltaSlice(t, g.Residual.RawVector().Data, r.RawVector().Data, 1e-14)
		})
	}
}

func TestADMatchesHandCoded(t *testing.T) {
	build := func(ad bool) *GlobalResult {
		p := newProblem(mesh.GenerateQuad(3, 2, 0, 1, 0, 1))
		u := p.AddVariable(system.VariableParams{Name: "u"})
		if ad {
			p.AddObject(NewADDiffusion(NewBase("diff", u)))
		} else {
			p.AddObject(NewDiffusion(NewBase("diff", u)))
		}
		p.Setup()
		p.NL.SetFunction(u, func(x [3]float64) float64 { return x[0]*x[0] + 2*x[1] })
		return p.ComputeResidualAndJacobian()
	}
	hand, ad := build(false), build(true)
	assert.True(t, mat.EqualApprox(hand.Dense(), ad.Dense(), 1e-12))
	assert.InDeltaSlice(t, hand.Residual.RawVector().Data, ad.Residual.RawVector().Data, 1e-12)
}

// The AD Jacobian of a nonlinear operator matches central differences of
// the residual.
func TestADJacobianFiniteDifference(t *testing.T) {
	p := newProblem(mesh.GenerateQuad(2, 2, 0, 1, 0, 1))
	u := p.AddVariable(system.VariableParams{Name: "u"})
	v := p.AddVariable(system.VariableParams{Name: "v"})
	p.AddObject(NewADMatDiffusion(NewBase("matdiff", u), 1, 0.5))
	p.AddObject(NewADCoupledReaction(NewBase("react", u), v, 2))
	p.AddObject(NewADDiffusion(NewBase("vdiff", v)))
	bc := NewBase("robin", u)
	bc.OnBoundary(mesh.Right)
	p.AddObject(NewADRobinBC(bc, 3, 0.25))
	p.Setup()
	p.NL.SetFunction(u, func(x [3]float64) float64 { return 1 + x[0] + x[1]*x[1] })
	p.NL.SetFunction(v, func(x [3]float64) float64 { return 0.5 - x[0]*x[1] })

	var (
		J   = p.ComputeResidualAndJacobian().Dense()
		n   = p.NL.NDofs()
		sol = p.NL.Solution
		eps = 1e-6
	)
	for j := 0; j < n; j++ {
		x0 := sol.AtVec(j)
		sol.SetVec(j, x0+eps)
		rp := mat.VecDenseCopyOf(p.ComputeResidual())
		sol.SetVec(j, x0-eps)
		rm := mat.VecDenseCopyOf(p.ComputeResidual())
		sol.SetVec(j, x0)
		for i := 0; i < n; i++ {
			fd := (rp.AtVec(i) - rm.AtVec(i)) / (2 * eps)
			assert.InDeltaf(t, fd, J.At(i, j), 1e-6, "entry (%d, %d)", i, j)
		}
	}
}

func TestThreadsAgree(t *testing.T) {
	build := func(threads int) *GlobalResult {
		p := newProblem(mesh.GenerateQuad(4, 3, 0, 2, 0, 1))
		p.Threads = threads
		u := p.AddVariable(system.VariableParams{Name: "u"})
		p.AddObject(NewADMatDiffusion(NewBase("diff", u), 2, 1))
		p.AddObject(NewBodyForce(NewBase("force", u), 3))
		bc := NewBase("left", u)
		bc.OnBoundary(mesh.QuadLeft)
		p.AddObject(NewDirichletBC(bc, 1))
		nbc := NewBase("top", u)
		nbc.OnBoundary(mesh.Top)
		p.AddObject(NewNeumannBC(nbc, 0.5))
		p.Setup()
		p.NL.SetFunction(u, func(x [3]float64) float64 { return x[0] * x[1] })
		return p.ComputeResidualAndJacobian()
	}
	one := build(1)
	for _, threads := range []int{2, 3, 7} {
		many := build(threads)
		assert.True(t, mat.EqualApprox(one.Dense(), many.Dense(), 1e-12), "threads %d", threads)
		assert.InDeltaSlice(t, one.Residual.RawVector().Data, many.Residual.RawVector().Data, 1e-12)
	}
}

func TestNodalBCReplacesRows(t *testing.T) {
	p := newProblem(mesh.GenerateLine(2, 0, 1))
	u := p.AddVariable(system.VariableParams{Name: "u"})
	p.AddObject(NewDiffusion(NewBase("diff", u)))
	left := NewBase("left", u)
	left.OnBoundary(mesh.Left)
	p.AddObject(NewDirichletBC(left, 2))
	right := NewBase("right", u)
	right.OnBoundary(mesh.Right)
	bc := NewDirichletBC(right, 0)
	bc.F = func(x [3]float64) float64 { return 3 * x[0] }
	p.AddObject(bc)
	p.Setup()
	p.NL.SetFunction(u, func(x [3]float64) float64 { return x[0] })

	g := p.ComputeResidualAndJacobian()
	assertMatrix(t, [][]float64{
		{1, 0, 0},
		{-2, 4, -2},
		{0, 0, 1},
	}, g.Dense(), 1e-10)
	assert.InDeltaSlice(t, []float64{-2, 0, -2}, g.Residual.RawVector().Data, 1e-10)
	cols, vals := g.Row(0)
	assert.Equal(t, []int{0}, cols)
	assert.Equal(t, []float64{1}, vals)
}

func TestLaterNodalBCWins(t *testing.T) {
	p := newProblem(mesh.GenerateLine(1, 0, 1))
	u := p.AddVariable(system.VariableParams{Name: "u"})
	p.AddObject(NewDiffusion(NewBase("diff", u)))
	for i, g := range []float64{5, 7} {
		b := NewBase([]string{"first", "second"}[i], u)
		b.OnBoundary(mesh.Left)
		p.AddObject(NewDirichletBC(b, g))
	}
	p.Setup()
	r := p.ComputeResidual()
	assert.InDelta(t, -7, r.AtVec(0), 1e-14)
}

func TestSaveIn(t *testing.T) {
	p := newProblem(mesh.GenerateLine(2, 0, 1))
	u := p.AddVariable(system.VariableParams{Name: "u"})
	saved := p.AddAuxVariable(system.VariableParams{Name: "saved"})
	diag := p.AddAuxVariable(system.VariableParams{Name: "diag"})
	b := NewBase("diff", u)
	b.SetSaveIn(saved, diag)
	p.AddObject(NewDiffusion(b))
	p.Setup()
	p.NL.SetFunction(u, func(x [3]float64) float64 { return x[0] })

	// Stale values are cleared at the start of every pass
	p.Aux.SetConstant(saved, 100)
	for range 2 {
		p.ComputeResidualAndJacobian()
		for node, want := range map[int][2]float64{0: {-1, 2}, 1: {0, 4}, 2: {1, 2}} {
			ds, ok := p.Aux.NodeDof(node, saved, 0)
			require.True(t, ok)
			dd, ok := p.Aux.NodeDof(node, diag, 0)
			require.True(t, ok)
			assert.InDelta(t, want[0], p.Aux.Solution.AtVec(ds), 1e-10, "node %d", node)
			assert.InDelta(t, want[1], p.Aux.Solution.AtVec(dd), 1e-10, "node %d", node)
		}
	}
}

func TestSetupValidation(t *testing.T) {
	for name, tc := range map[string]struct {
		build func(p *Problem)
		kind  utils.FatalKind
		msg   string
	}{
		"no variables": {
			build: func(p *Problem) {},
			kind:  utils.ConfigError, msg: "no nonlinear variables",
		},
		"aux variable": {
			build: func(p *Problem) {
				p.AddVariable(system.VariableParams{Name: "u"})
				a := p.AddAuxVariable(system.VariableParams{Name: "a"})
				p.AddObject(NewDiffusion(NewBase("diff", a)))
			},
			kind: utils.ConfigError, msg: "not a nonlinear variable",
		},
		"fv kernel on fe variable": {
			build: func(p *Problem) {
				u := p.AddVariable(system.VariableParams{Name: "u"})
				p.AddObject(NewFVDiffusion(NewBase("fv", u), 1))
			},
			kind: utils.ConfigError, msg: "finite volume",
		},
		"bc without boundary": {
			build: func(p *Problem) {
				u := p.AddVariable(system.VariableParams{Name: "u"})
				p.AddObject(NewNeumannBC(NewBase("bc", u), 1))
			},
			kind: utils.ConfigError, msg: "no boundary",
		},
		"save-in on dg": {
			build: func(p *Problem) {
				u := p.AddVariable(system.VariableParams{Name: "u", Family: "MONOMIAL"})
				a := p.AddAuxVariable(system.VariableParams{Name: "a", Family: "MONOMIAL"})
				b := NewBase("dg", u)
				b.SetSaveIn(a, nil)
				p.AddObject(NewADDGDiffusion(b, 1, -1, 6))
			},
			kind: utils.ConfigError, msg: "save-in is not supported",
		},
		"save-in type mismatch": {
			build: func(p *Problem) {
				u := p.AddVariable(system.VariableParams{Name: "u"})
				a := p.AddAuxVariable(system.VariableParams{Name: "a", Family: "MONOMIAL", Order: "CONSTANT"})
				b := NewBase("diff", u)
				b.SetSaveIn(a, nil)
				p.AddObject(NewDiffusion(b))
			},
			kind: utils.ConfigError, msg: "save-in variable a",
		},
	} {
		t.Run(name, func(t *testing.T) {
			p := newProblem(mesh.GenerateLine(2, 0, 1))
			fe := utils.CatchFatal(func() {
				tc.build(p)
				p.Setup()
			})
			require.NotNil(t, fe)
			assert.Equal(t, tc.kind, fe.Kind)
			assert.Contains(t, fe.Msg, tc.msg)
		})
	}
}

func TestDuplicateObjectName(t *testing.T) {
	p := newProblem(mesh.GenerateLine(2, 0, 1))
	u := p.AddVariable(system.VariableParams{Name: "u"})
	p.AddObject(NewDiffusion(NewBase("diff", u)))
	fe := utils.CatchFatal(func() { p.AddObject(NewADDiffusion(NewBase("diff", u))) })
	require.NotNil(t, fe)
	assert.Equal(t, "diff", fe.Object)
}

func TestMeshChangeNeedsSetup(t *testing.T) {
	m := mesh.GenerateLine(2, 0, 1)
	p := newProblem(m)
	u := p.AddVariable(system.VariableParams{Name: "u"})
	p.AddObject(NewDiffusion(NewBase("diff", u)))

	fe := utils.CatchFatal(func() { p.ComputeResidual() })
	require.NotNil(t, fe)
	assert.Contains(t, fe.Msg, "Setup must run")

	p.Setup()
	assert.Equal(t, 3, p.ComputeResidual().Len())

	m.RefineUniformly()
	p.Cache.MeshChanged()
	fe = utils.CatchFatal(func() { p.ComputeResidual() })
	require.NotNil(t, fe)
	assert.Equal(t, utils.ConfigError, fe.Kind)
	assert.Contains(t, fe.Msg, "run Setup again")

	p.Setup()
	assert.Equal(t, 5, p.ComputeResidual().Len())
}

func TestMetrics(t *testing.T) {
	m := mesh.GenerateLine(4, 0, 1)
	c := mesh.NewTopologyCache(m, nil)
	c.Prepare()
	metrics := utils.NewMetrics(prometheus.NewRegistry())
	p := NewProblem("metrics", c, metrics)
	p.Threads = 2
	u := p.AddVariable(system.VariableParams{Name: "u"})
	p.AddObject(NewDiffusion(NewBase("diff", u)))
	b := NewBase("left", u)
	b.OnBoundary(mesh.Left)
	p.AddObject(NewDirichletBC(b, 0))
	p.Setup()
	p.ComputeResidual()
	p.ComputeResidualAndJacobian()

	assert.Equal(t, 1., testutil.ToFloat64(metrics.AssemblyPasses.WithLabelValues("residual")))
	assert.Equal(t, 1., testutil.ToFloat64(metrics.AssemblyPasses.WithLabelValues("jacobian")))
	assert.Equal(t, 8., testutil.ToFloat64(metrics.ObjectsVisited.WithLabelValues("element")))
	assert.Equal(t, 2., testutil.ToFloat64(metrics.ObjectsVisited.WithLabelValues("node")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.AssemblyDuration))
}
