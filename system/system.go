package system

import (
	"fmt"

	"github.com/notargets/femcore/mesh"
	"github.com/notargets/femcore/utils"
	"gonum.org/v1/gonum/mat"
)

type nodeDofKey struct {
	node, v, comp int
}

type elemVarKey struct {
	elem, v int
}

// System owns a numbered set of variables, their degree of freedom map and
// the solution vectors. Solution vectors are read only during assembly.
type System struct {
	Name string
	Kind Kind

	vars   []*Variable
	byName map[string]*Variable

	cache      *mesh.TopologyCache
	generation uint64
	nodeDofs   map[nodeDofKey]int
	elemDofs   map[elemVarKey][]int
	ndofs      int
	maxDofs    int

	Solution      *mat.VecDense
	SolutionOld   *mat.VecDense
	SolutionOlder *mat.VecDense
}

func NewSystem(name string, kind Kind) *System {
	return &System{
		Name:   name,
		Kind:   kind,
		byName: make(map[string]*Variable),
	}
}

// AddVariable numbers a new variable after the existing ones. The system
// must be distributed again before use.
func (s *System) AddVariable(p VariableParams) *Variable {
	if len(p.Name) == 0 {
		utils.ConfigErrorf(s.Name, "variables need a name")
	}
	if _, ok := s.byName[p.Name]; ok {
		utils.ConfigErrorf(p.Name, "variable is defined twice in system %q", s.Name)
	}
	v := newVariable(s, len(s.vars), p)
	s.vars = append(s.vars, v)
	s.byName[p.Name] = v
	s.cache = nil
	return v
}

func (s *System) Variable(name string) (v *Variable, ok bool) {
	v, ok = s.byName[name]
	return
}

func (s *System) Variables() []*Variable { return s.vars }
func (s *System) NumVariables() int      { return len(s.vars) }
func (s *System) NDofs() int             { return s.ndofs }

// MaxDofsPerElem is the largest number of degrees of freedom any one
// variable has on any active element. It sizes each variable block of the
// derivative vector.
func (s *System) MaxDofsPerElem() int { return s.maxDofs }

// HasADIndexing is true for distributed nonlinear systems, whose element
// DOF lists can be used to map derivative vectors to global indices.
func (s *System) HasADIndexing() bool {
	return s.Kind == Nonlinear && s.cache != nil
}

// Distribute numbers the degrees of freedom over the active elements of the
// mesh and sizes the solution vectors. Nodal variables share one DOF per
// node and component between all elements touching the node. Existing
// solution values are not carried over.
func (s *System) Distribute(cache *mesh.TopologyCache) {
	var (
		m       = cache.Mesh()
		elemIDs = m.ActiveElements()
	)
	s.cache = cache
	s.generation = cache.Generation()
	s.nodeDofs = make(map[nodeDofKey]int)
	s.elemDofs = make(map[elemVarKey][]int)
	s.ndofs, s.maxDofs = 0, 0
	for _, id := range elemIDs {
		e := m.Elem(id)
		for _, v := range s.vars {
			if !v.DefinedOn(e, m.Dimension()) {
				continue
			}
			var (
				ns   = v.FE.NumShapes(e.Type)
				nc   = v.NumComponents()
				dofs = make([]int, 0, ns*nc)
			)
			for c := 0; c < nc; c++ {
				for i := 0; i < ns; i++ {
					if v.FE.IsNodal() {
						key := nodeDofKey{e.Nodes[i], v.Number, c}
						dof, ok := s.nodeDofs[key]
						if !ok {
							dof = s.ndofs
							s.ndofs++
							s.nodeDofs[key] = dof
						}
						dofs = append(dofs, dof)
					} else {
						dofs = append(dofs, s.ndofs)
						s.ndofs++
					}
				}
			}
			s.elemDofs[elemVarKey{id, v.Number}] = dofs
			if len(dofs) > s.maxDofs {
				s.maxDofs = len(dofs)
			}
		}
	}
	n := s.ndofs
	if n == 0 {
		n = 1 // gonum does not allow empty vectors
	}
	s.Solution = mat.NewVecDense(n, nil)
	s.SolutionOld = mat.NewVecDense(n, nil)
	s.SolutionOlder = mat.NewVecDense(n, nil)
	utils.Logf("system %q: %d variables, %d dofs, at most %d dofs per variable and element",
		s.Name, len(s.vars), s.ndofs, s.maxDofs)
}

func (s *System) checkDistributed(op string) {
	if s.cache == nil {
		utils.ConfigErrorf(s.Name, "%s called before the system was distributed", op)
	}
	utils.Assert(s.generation == s.cache.Generation(), s.Name,
		"%s called on a DOF map built for mesh generation %d, the mesh is at %d",
		op, s.generation, s.cache.Generation())
}

// DofIndices returns the global DOFs of variable v on elem, component major.
// A variable not defined on the element has none.
func (s *System) DofIndices(elem int, v *Variable) []int {
	s.checkDistributed("DofIndices")
	return s.elemDofs[elemVarKey{elem, v.Number}]
}

// NodeDof returns the DOF of a nodal variable component at a node.
func (s *System) NodeDof(node int, v *Variable, comp int) (dof int, ok bool) {
	s.checkDistributed("NodeDof")
	dof, ok = s.nodeDofs[nodeDofKey{node, v.Number, comp}]
	return
}

// Values gathers the entries of vec at the DOFs of v on elem.
func (s *System) Values(vec *mat.VecDense, elem int, v *Variable) []float64 {
	dofs := s.DofIndices(elem, v)
	vals := make([]float64, len(dofs))
	for i, d := range dofs {
		vals[i] = vec.AtVec(d)
	}
	return vals
}

// SetConstant sets every DOF of v in the current solution to val.
func (s *System) SetConstant(v *Variable, val float64) {
	s.checkDistributed("SetConstant")
	for key, dofs := range s.elemDofs {
		if key.v == v.Number {
			for _, d := range dofs {
				s.Solution.SetVec(d, val)
			}
		}
	}
}

// SetFunction sets nodal DOFs of v from f at node locations, and element
// DOFs of a constant monomial from f at the element centroid.
func (s *System) SetFunction(v *Variable, f func(x [3]float64) float64) {
	s.checkDistributed("SetFunction")
	m := s.cache.Mesh()
	for key, dofs := range s.elemDofs {
		if key.v != v.Number {
			continue
		}
		e := m.Elem(key.elem)
		switch {
		case v.FE.IsNodal():
			ns := v.FE.NumShapes(e.Type)
			for i, d := range dofs {
				s.Solution.SetVec(d, f(m.Node(e.Nodes[i%ns]).X))
			}
		default:
			var c [3]float64
			for _, n := range e.Nodes {
				for d := 0; d < 3; d++ {
					c[d] += m.Node(n).X[d] / float64(len(e.Nodes))
				}
			}
			// Higher monomial terms start at zero
			ns := v.FE.NumShapes(e.Type)
			for i, d := range dofs {
				if i%ns == 0 {
					s.Solution.SetVec(d, f(c))
				}
			}
		}
	}
}

// CopyOldSolutions shifts the solution history back one step.
func (s *System) CopyOldSolutions() {
	s.SolutionOlder.CopyVec(s.SolutionOld)
	s.SolutionOld.CopyVec(s.Solution)
}

func (s *System) String() string {
	return fmt.Sprintf("%s system %q with %d variables and %d dofs", s.Kind, s.Name, len(s.vars), s.ndofs)
}
