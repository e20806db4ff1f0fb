package assembly

import (
	"fmt"
	"sort"

	"github.com/notargets/femcore/ad"
	"github.com/notargets/femcore/fe"
	"github.com/notargets/femcore/mesh"
	"github.com/notargets/femcore/system"
	"github.com/notargets/femcore/types"
	"github.com/notargets/femcore/utils"
	"gonum.org/v1/gonum/mat"
)

// State tracks one residual object through one element, face or node.
type State uint8

const (
	Idle State = iota
	ResidualComputed
	JacobianComputed
	Accumulated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case ResidualComputed:
		return "ResidualComputed"
	case JacobianComputed:
		return "JacobianComputed"
	case Accumulated:
		return "Accumulated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type reKey struct {
	role types.ElementRole
	v    int
}

type keKey struct {
	row, col types.ElementRole
	iv, jv   int
}

// capture is one AD residual kept for slicing after the residual loop.
type capture struct {
	role types.ElementRole
	v    *system.Variable
	i    int
	r    ad.Real
}

type globalEntry struct {
	row int
	r   ad.Real
}

type triplet struct {
	i, j int
	v    float64
}

type nodalEntry struct {
	order int // Position of the BC in the problem, later ones win
	dof   int
	value float64
}

// Assembly is the per thread composition root every residual object works
// through. It holds the current entities, the finite element values at the
// current quadrature points, the local residual and Jacobian blocks, and the
// thread's share of the global residual and Jacobian.
type Assembly struct {
	Thread int

	p          *Problem
	sys        *system.System
	layout     ad.Layout
	doJacobian bool
	state      State
	obj        Object

	Elem, Side         int
	Neighbor, NbrSide  int
	Lower              int
	Node               int
	Face               *mesh.FaceInfo
	fes                [types.NumRoles]map[fe.FEType]*fe.FE
	geom               [types.NumRoles]*fe.FE
	JxW, Coord         []float64
	QPoints, Normals   [][3]float64
	qrules, sideQrules map[[2]int]*fe.QRule

	re        map[reKey]*mat.VecDense
	ke        map[keKey]*mat.Dense
	reOrder   []reKey
	keOrder   []keKey
	captured  []capture
	pending   []globalEntry
	globalKe  []triplet
	nodalNext *nodalEntry
	memo      map[int]any

	residual []float64
	jac      utils.DOK
	nodal    []nodalEntry
}

func newAssembly(p *Problem, thread int, doJacobian bool) *Assembly {
	a := &Assembly{
		Thread:     thread,
		p:          p,
		sys:        p.NL,
		layout:     ad.NewLayout(p.NL),
		doJacobian: doJacobian,
		qrules:     make(map[[2]int]*fe.QRule),
		sideQrules: make(map[[2]int]*fe.QRule),
		re:         make(map[reKey]*mat.VecDense),
		ke:         make(map[keKey]*mat.Dense),
		memo:       make(map[int]any),
		residual:   make([]float64, p.NL.NDofs()),
	}
	if doJacobian {
		a.jac = utils.NewDOK(p.NL.NDofs(), p.NL.NDofs())
	}
	for r := range a.fes {
		a.fes[r] = make(map[fe.FEType]*fe.FE, len(p.feTypes))
		for _, ft := range p.feTypes {
			a.fes[r][ft] = fe.NewFE(ft)
		}
		a.geom[r] = fe.NewFE(fe.FEType{Family: fe.Lagrange, Order: fe.First})
	}
	a.clearEntities()
	return a
}

func (a *Assembly) State() State      { return a.state }
func (a *Assembly) DoJacobian() bool  { return a.doJacobian }
func (a *Assembly) Layout() ad.Layout { return a.layout }
func (a *Assembly) Problem() *Problem { return a.p }
func (a *Assembly) NumQPoints() int   { return len(a.JxW) }

func (a *Assembly) clearEntities() {
	a.Elem, a.Side = mesh.InvalidID, mesh.InvalidID
	a.Neighbor, a.NbrSide = mesh.InvalidID, mesh.InvalidID
	a.Lower, a.Node = mesh.InvalidID, mesh.InvalidID
	a.Face = nil
	a.Normals = nil
}

// RoleElem is the element playing role, or InvalidID.
func (a *Assembly) RoleElem(role types.ElementRole) int {
	switch role {
	case types.Element:
		return a.Elem
	case types.Neighbor:
		return a.Neighbor
	case types.Lower:
		return a.Lower
	}
	return mesh.InvalidID
}

// Dofs returns the global DOFs of v on the element playing role.
func (a *Assembly) Dofs(v *system.Variable, role types.ElementRole) []int {
	elem := a.RoleElem(role)
	if elem == mesh.InvalidID {
		return nil
	}
	return v.System().DofIndices(elem, v)
}

/*
State transitions. Each residual object runs begin, residualDone,
optionally jacobianDone, accumulate and finish on every entity it visits.
Anything else is a bug in the driving loop.
*/
func (a *Assembly) transition(from []State, to State) {
	for _, s := range from {
		if a.state == s {
			a.state = to
			return
		}
	}
	name := "assembly"
	if a.obj != nil {
		name = a.obj.Name()
	}
	utils.InternalErrorf(name, "illegal assembly transition from %s to %s", a.state, to)
}

func (a *Assembly) begin(o Object) {
	if a.state != Idle {
		utils.InternalErrorf(o.Name(), "assembly is in state %s, not Idle, at the start of an object", a.state)
	}
	a.obj = o
	clear(a.re)
	clear(a.ke)
	clear(a.memo)
	a.reOrder, a.keOrder = a.reOrder[:0], a.keOrder[:0]
	a.captured, a.pending, a.globalKe = a.captured[:0], a.pending[:0], a.globalKe[:0]
	a.nodalNext = nil
}

func (a *Assembly) residualDone() { a.transition([]State{Idle}, ResidualComputed) }
func (a *Assembly) jacobianDone() { a.transition([]State{ResidualComputed}, JacobianComputed) }

func (a *Assembly) finish() {
	a.transition([]State{Accumulated}, Idle)
	a.obj = nil
}

// Re is the local residual block of v on the element playing role.
func (a *Assembly) Re(role types.ElementRole, v *system.Variable) *mat.VecDense {
	key := reKey{role, v.Number}
	if blk, ok := a.re[key]; ok {
		return blk
	}
	n := len(a.Dofs(v, role))
	if n == 0 {
		utils.InternalErrorf(v.Name(), "no degrees of freedom on the %s element %d", role, a.RoleElem(role))
	}
	blk := mat.NewVecDense(n, nil)
	a.re[key] = blk
	a.reOrder = append(a.reOrder, key)
	return blk
}

// Ke is the local Jacobian block of row variable iv on role row against
// column variable jv on role col.
func (a *Assembly) Ke(row, col types.ElementRole, iv, jv *system.Variable) *mat.Dense {
	key := keKey{row, col, iv.Number, jv.Number}
	if blk, ok := a.ke[key]; ok {
		return blk
	}
	nr, nc := len(a.Dofs(iv, row)), len(a.Dofs(jv, col))
	if nr == 0 || nc == 0 {
		utils.InternalErrorf(iv.Name(), "empty Jacobian block %s/%s against %s/%s", row, iv.Name(), col, jv.Name())
	}
	blk := mat.NewDense(nr, nc, nil)
	a.ke[key] = blk
	a.keOrder = append(a.keOrder, key)
	return blk
}

func addVec(v *mat.VecDense, i int, val float64) { v.SetVec(i, v.AtVec(i)+val) }
func addMat(m *mat.Dense, i, j int, val float64) { m.Set(i, j, m.At(i, j)+val) }

// captureAD records the integrated AD residual of test function i and adds
// its value to the local residual.
func (a *Assembly) captureAD(role types.ElementRole, v *system.Variable, i int, r ad.Real) {
	addVec(a.Re(role, v), i, r.Value)
	if a.doJacobian && !r.IsConstant() {
		a.captured = append(a.captured, capture{role, v, i, r})
	}
}

// sliceCaptured fills the local Jacobian blocks from the captured
// derivative vectors, reading each column variable's block at its offset.
func (a *Assembly) sliceCaptured(cols ...types.ElementRole) {
	for _, c := range a.captured {
		for _, col := range cols {
			t := types.NewDGJacobianType(c.role, col)
			for _, jv := range a.sys.Variables() {
				dofs := a.Dofs(jv, col)
				if len(dofs) == 0 {
					continue
				}
				off := ad.OffsetDG(jv.Number, a.layout.MaxDofs, t, a.layout.NumVars)
				utils.Assert(off+len(dofs) <= len(c.r.Derivs), c.v.Name(),
					"offset %d with %d dofs is past the derivative vector of length %d", off, len(dofs), len(c.r.Derivs))
				var blk *mat.Dense
				for j := range dofs {
					if d := c.r.Derivs[off+j]; d != 0 {
						if blk == nil {
							blk = a.Ke(c.role, col, c.v, jv)
						}
						addMat(blk, c.i, j, d)
					}
				}
			}
		}
	}
}

// AddResidualAt queues a residual contribution for a global row. Objects
// that discover their coupling from the mesh use this instead of Re.
func (a *Assembly) AddResidualAt(row int, r ad.Real) {
	a.pending = append(a.pending, globalEntry{row, r})
}

// ProcessDerivatives hands f the derivatives of r keyed by global DOF, for
// every role with an element present, in increasing DOF order.
func (a *Assembly) ProcessDerivatives(r ad.Real, f func(dof int, d float64)) {
	if r.IsConstant() {
		return
	}
	g := make(map[int]float64)
	for role := types.Element; role <= types.Lower; role++ {
		if elem := a.RoleElem(role); elem != mesh.InvalidID {
			ad.AddGlobalDerivatives(g, r, a.sys, elem, role)
		}
	}
	dofs := make([]int, 0, len(g))
	for dof, d := range g {
		if d != 0 {
			dofs = append(dofs, dof)
		}
	}
	sort.Ints(dofs)
	for _, dof := range dofs {
		f(dof, g[dof])
	}
}

func (a *Assembly) processPending() {
	for _, e := range a.pending {
		row := e.row
		a.ProcessDerivatives(e.r, func(dof int, d float64) {
			a.globalKe = append(a.globalKe, triplet{row, dof, d})
		})
	}
}

// setNodal records the replacement residual of a nodal condition.
func (a *Assembly) setNodal(order, dof int, value float64) {
	a.nodalNext = &nodalEntry{order, dof, value}
}

// accumulate adds the local blocks into the thread's global share and runs
// the object's save-in.
func (a *Assembly) accumulate() {
	a.transition([]State{ResidualComputed, JacobianComputed}, Accumulated)
	vars := a.sys.Variables()
	for _, key := range a.reOrder {
		blk := a.re[key]
		for i, d := range a.Dofs(vars[key.v], key.role) {
			a.residual[d] += blk.AtVec(i)
		}
	}
	for _, e := range a.pending {
		a.residual[e.row] += e.r.Value
	}
	if a.doJacobian {
		for _, key := range a.keOrder {
			a.jac.AddBlock(a.Dofs(vars[key.iv], key.row), a.Dofs(vars[key.jv], key.col), a.ke[key])
		}
		for _, t := range a.globalKe {
			a.jac.AddAt(t.i, t.j, t.v)
		}
	}
	if a.nodalNext != nil {
		a.nodal = append(a.nodal, *a.nodalNext)
	}
	a.saveIn()
}

// saveIn copies this object's contributions into auxiliary variables. The
// auxiliary solution is shared by all threads.
func (a *Assembly) saveIn() {
	b := a.obj.base()
	if b.saveIn == nil && b.diagSaveIn == nil {
		return
	}
	aux := a.p.Aux
	a.p.saveMu.Lock()
	defer a.p.saveMu.Unlock()
	v := b.variable
	if a.Node != mesh.InvalidID {
		if b.saveIn != nil && a.nodalNext != nil {
			if dof, ok := aux.NodeDof(a.Node, b.saveIn, 0); ok {
				aux.Solution.SetVec(dof, aux.Solution.AtVec(dof)+a.nodalNext.value)
			}
		}
		if b.diagSaveIn != nil {
			if dof, ok := aux.NodeDof(a.Node, b.diagSaveIn, 0); ok {
				aux.Solution.SetVec(dof, aux.Solution.AtVec(dof)+1)
			}
		}
		return
	}
	if blk, ok := a.re[reKey{types.Element, v.Number}]; ok && b.saveIn != nil {
		for i, d := range aux.DofIndices(a.Elem, b.saveIn) {
			aux.Solution.SetVec(d, aux.Solution.AtVec(d)+blk.AtVec(i))
		}
	}
	if blk, ok := a.ke[keKey{types.Element, types.Element, v.Number, v.Number}]; ok && b.diagSaveIn != nil {
		for i, d := range aux.DofIndices(a.Elem, b.diagSaveIn) {
			aux.Solution.SetVec(d, aux.Solution.AtVec(d)+blk.At(i, i))
		}
	}
}
