package system

import (
	"testing"

	"github.com/notargets/femcore/mesh"
	"github.com/notargets/femcore/types"
	"github.com/notargets/femcore/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func preparedCache(m *mesh.Mesh) *mesh.TopologyCache {
	c := mesh.NewTopologyCache(m, nil)
	c.Prepare()
	return c
}

func TestAddVariable(t *testing.T) {
	s := NewSystem("nl", Nonlinear)
	u := s.AddVariable(VariableParams{Name: "u"})
	v := s.AddVariable(VariableParams{Name: "v", Family: "MONOMIAL", Order: "CONSTANT", FV: true})
	assert.Equal(t, 0, u.Number)
	assert.Equal(t, 1, v.Number)
	assert.Equal(t, 2, s.NumVariables())
	got, ok := s.Variable("v")
	assert.True(t, ok)
	assert.Same(t, v, got)
	assert.Equal(t, 2, u.NumDofs(types.Edge2))
	assert.Equal(t, 4, u.NumDofs(types.Quad4))
	assert.Equal(t, 1, v.NumDofs(types.Quad4))
	assert.Same(t, s, u.System())

	fe := utils.CatchFatal(func() { s.AddVariable(VariableParams{Name: "u"}) })
	require.NotNil(t, fe)
	assert.Equal(t, utils.ConfigError, fe.Kind)
	assert.Equal(t, "u", fe.Object)

	for name, p := range map[string]VariableParams{
		"family": {Name: "a", Family: "HERMITE"},
		"fv":     {Name: "b", FV: true},
		"array":  {Name: "c", Field: ArrayField},
		"empty":  {},
	} {
		fe = utils.CatchFatal(func() { s.AddVariable(p) })
		require.NotNil(t, fe, name)
		assert.Equal(t, utils.ConfigError, fe.Kind, name)
	}
	assert.Equal(t, 2, s.NumVariables())
}

func TestFieldTypes(t *testing.T) {
	ft, err := ParseFieldType("vector")
	assert.NoError(t, err)
	assert.Equal(t, VectorField, ft)
	_, err = ParseFieldType("tensor")
	assert.Error(t, err)

	s := NewSystem("nl", Nonlinear)
	vec := s.AddVariable(VariableParams{Name: "vel", Field: VectorField})
	arr := s.AddVariable(VariableParams{Name: "c", Field: ArrayField, Count: 2})
	assert.Equal(t, 3, vec.NumComponents())
	assert.Equal(t, 6, vec.NumDofs(types.Edge2))
	assert.Equal(t, 4, arr.NumDofs(types.Edge2))
}

func TestDistribute(t *testing.T) {
	s := NewSystem("nl", Nonlinear)
	u := s.AddVariable(VariableParams{Name: "u"})
	assert.False(t, s.HasADIndexing())
	fe := utils.CatchFatal(func() { s.DofIndices(0, u) })
	require.NotNil(t, fe)
	assert.Contains(t, fe.Msg, "before the system was distributed")

	c := preparedCache(mesh.GenerateLine(2, 0, 1))
	s.Distribute(c)
	assert.True(t, s.HasADIndexing())
	assert.Equal(t, 3, s.NDofs())
	assert.Equal(t, 2, s.MaxDofsPerElem())
	assert.Equal(t, []int{0, 1}, s.DofIndices(0, u))
	assert.Equal(t, []int{1, 2}, s.DofIndices(1, u))
	dof, ok := s.NodeDof(2, u, 0)
	assert.True(t, ok)
	assert.Equal(t, 2, dof)
	assert.Equal(t, 3, s.Solution.Len())

	// Adding a variable invalidates the numbering
	m := s.AddVariable(VariableParams{Name: "m", Family: "MONOMIAL", Order: "CONSTANT"})
	assert.False(t, s.HasADIndexing())
	s.Distribute(c)
	assert.Equal(t, 5, s.NDofs())
	assert.Equal(t, []int{0, 1}, s.DofIndices(0, u))
	assert.Equal(t, []int{2}, s.DofIndices(0, m))
	assert.Equal(t, []int{1, 3}, s.DofIndices(1, u))
	assert.Equal(t, []int{4}, s.DofIndices(1, m))
}

func TestBlockRestriction(t *testing.T) {
	msh := mesh.GenerateLine(4, 0, 1)
	msh.AssignSubdomains(func(c [3]float64) mesh.SubdomainID {
		if c[0] < 0.5 {
			return 0
		}
		return 1
	})
	ids := msh.AddLowerDBlock(2, "interface", msh.InterfaceSides(0, 1))
	require.Equal(t, 1, len(ids))

	s := NewSystem("nl", Nonlinear)
	u := s.AddVariable(VariableParams{Name: "u", Blocks: []mesh.SubdomainID{1}})
	w := s.AddVariable(VariableParams{Name: "w"})
	lm := s.AddVariable(VariableParams{Name: "lm", Family: "MONOMIAL", Order: "CONSTANT",
		Blocks: []mesh.SubdomainID{2}})
	assert.Equal(t, []mesh.SubdomainID{1}, u.Blocks())
	assert.Nil(t, w.Blocks())
	assert.True(t, w.HasBlock(7))
	assert.False(t, u.HasBlock(0))

	s.Distribute(preparedCache(msh))
	assert.Empty(t, s.DofIndices(0, u))
	assert.Equal(t, 2, len(s.DofIndices(2, u)))
	// Unrestricted variables stay off the lower dimensional block
	assert.Empty(t, s.DofIndices(ids[0], w))
	assert.Equal(t, 1, len(s.DofIndices(ids[0], lm)))
	assert.Empty(t, s.DofIndices(1, lm))
	// u on 3 nodes, w on 5 nodes, lm on the interface point
	assert.Equal(t, 9, s.NDofs())
}

func TestSolutionVectors(t *testing.T) {
	s := NewSystem("aux", Aux)
	u := s.AddVariable(VariableParams{Name: "u"})
	m := s.AddVariable(VariableParams{Name: "m", Family: "MONOMIAL", Order: "CONSTANT"})
	s.Distribute(preparedCache(mesh.GenerateLine(2, 0, 1)))
	assert.False(t, s.HasADIndexing())

	s.SetFunction(u, func(x [3]float64) float64 { return 2 * x[0] })
	s.SetConstant(m, 3)
	assert.Equal(t, []float64{1, 2}, s.Values(s.Solution, 1, u))
	assert.Equal(t, []float64{3}, s.Values(s.Solution, 0, m))
	s.SetFunction(m, func(x [3]float64) float64 { return x[0] })
	assert.InDelta(t, 0.75, s.Values(s.Solution, 1, m)[0], 1.e-14)

	s.CopyOldSolutions()
	s.SetConstant(u, 0)
	s.CopyOldSolutions()
	assert.Equal(t, []float64{1, 2}, s.Values(s.SolutionOlder, 1, u))
	assert.Equal(t, []float64{0, 0}, s.Values(s.SolutionOld, 1, u))
}
