package assembly

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/james-bowman/sparse"
	"github.com/notargets/femcore/ad"
	"github.com/notargets/femcore/fe"
	"github.com/notargets/femcore/mesh"
	"github.com/notargets/femcore/system"
	"github.com/notargets/femcore/types"
	"github.com/notargets/femcore/utils"
	"gonum.org/v1/gonum/mat"
)

// Problem owns the systems, the residual objects and the loops that drive
// them over the mesh. Every loop runs Threads goroutines, each with its own
// Assembly; their shares are summed once the loop ends.
type Problem struct {
	Name            string
	Cache           *mesh.TopologyCache
	NL, Aux         *system.System
	Threads         int
	QuadratureOrder int
	Metrics         *utils.Metrics

	objects    []Object
	byKind     map[Kind][]Object
	feTypes    []fe.FEType
	generation uint64
	ready      bool
	saveMu     sync.Mutex
}

func NewProblem(name string, cache *mesh.TopologyCache, metrics *utils.Metrics) *Problem {
	if metrics == nil {
		metrics = utils.NewUnregisteredMetrics()
	}
	return &Problem{
		Name:            name,
		Cache:           cache,
		NL:              system.NewSystem("nl", system.Nonlinear),
		Aux:             system.NewSystem("aux", system.Aux),
		Threads:         1,
		QuadratureOrder: 2,
		Metrics:         metrics,
	}
}

func (p *Problem) AddVariable(vp system.VariableParams) *system.Variable {
	p.ready = false
	return p.NL.AddVariable(vp)
}

func (p *Problem) AddAuxVariable(vp system.VariableParams) *system.Variable {
	p.ready = false
	return p.Aux.AddVariable(vp)
}

// Variable looks a name up in the nonlinear system, then the auxiliary one.
func (p *Problem) Variable(name string) (v *system.Variable, ok bool) {
	if v, ok = p.NL.Variable(name); ok {
		return
	}
	return p.Aux.Variable(name)
}

// AddObject appends o. Objects run in the order they were added within
// each loop, and of two nodal conditions on one DOF the later one wins.
func (p *Problem) AddObject(o Object) {
	for _, other := range p.objects {
		if other.Name() == o.Name() {
			utils.ConfigErrorf(o.Name(), "an object with this name already exists")
		}
	}
	o.base().order = len(p.objects)
	p.objects = append(p.objects, o)
	p.ready = false
}

func (p *Problem) Objects() []Object { return p.objects }

// Setup distributes the DOFs, registers FV variables with the mesh and
// validates every object. It must run again after the mesh changes.
func (p *Problem) Setup() {
	if p.Cache == nil {
		utils.ConfigErrorf(p.Name, "problem has no topology cache")
	}
	if p.NL.NumVariables() == 0 {
		utils.ConfigErrorf(p.Name, "problem has no nonlinear variables")
	}
	if p.Threads < 1 {
		p.Threads = 1
	}
	p.NL.Distribute(p.Cache)
	p.Aux.Distribute(p.Cache)
	if p.NL.NDofs() == 0 {
		utils.ConfigErrorf(p.Name, "nonlinear system has no degrees of freedom on this mesh")
	}
	p.feTypes = p.feTypes[:0]
	seen := make(map[fe.FEType]bool)
	for _, s := range []*system.System{p.NL, p.Aux} {
		for _, v := range s.Variables() {
			if v.FV {
				p.Cache.RegisterFVVariable(v)
			}
			if !seen[v.FE] {
				seen[v.FE] = true
				p.feTypes = append(p.feTypes, v.FE)
			}
		}
	}
	p.byKind = make(map[Kind][]Object)
	for _, o := range p.objects {
		p.validate(o)
		p.byKind[o.Kind()] = append(p.byKind[o.Kind()], o)
	}
	p.generation = p.Cache.Generation()
	p.ready = true
	utils.Logf("%s: %d objects, %d nonlinear and %d auxiliary DOFs, %d threads",
		p.Name, len(p.objects), p.NL.NDofs(), p.Aux.NDofs(), p.Threads)
}

func (p *Problem) validate(o Object) {
	v := o.Variable()
	if v == nil {
		utils.ConfigErrorf(o.Name(), "object has no variable")
	}
	if v.System() != p.NL {
		utils.ConfigErrorf(o.Name(), "variable %s is not a nonlinear variable", v.Name())
	}
	var (
		kind = o.Kind()
		isFV = kind >= FVElementalKind
		ok   bool
	)
	if v.FV != isFV {
		utils.ConfigErrorf(o.Name(), "%s object acting on variable %s, which is finite volume: %t",
			kind, v.Name(), v.FV)
	}
	switch kind {
	case KernelKind, IntegratedBCKind:
		_, hand := o.(HandResidual)
		_, isAD := o.(ADResidual)
		ok = hand || isAD
	case NodalBCKind:
		_, ok = o.(NodalResidual)
		if ok && !v.FE.IsNodal() {
			utils.ConfigErrorf(o.Name(), "nodal condition on variable %s, which has no nodal DOFs", v.Name())
		}
	case DGKernelKind, InterfaceKernelKind, MortarKind:
		var fr FaceResidual
		if fr, ok = o.(FaceResidual); ok {
			for role := types.Element; role <= types.Lower; role++ {
				if rv := fr.RowVariable(role); rv != nil && rv.System() != p.NL {
					utils.ConfigErrorf(o.Name(), "%s variable %s is not a nonlinear variable", role, rv.Name())
				}
			}
		}
	case FVElementalKind:
		_, ok = o.(FVElementalResidual)
	case FVFluxKind:
		_, ok = o.(FVFluxResidual)
	case FVFluxBCKind:
		_, ok = o.(FVBoundaryResidual)
	case FVDirichletKind:
		_, ok = o.(FVBoundaryValue)
	}
	if !ok {
		utils.InternalErrorf(o.Name(), "%s object does not implement its residual interface", kind)
	}
	if v.Field != system.Standard {
		utils.ConfigErrorf(o.Name(), "%s fields are not supported by residual objects", v.Field)
	}
	b := o.base()
	if c, isCoupled := o.(Coupler); isCoupled {
		p.checkCoupled(o, c)
	}
	if kind.BCType().OnSideset() && len(b.boundaries) == 0 {
		utils.ConfigErrorf(o.Name(), "%s object has no boundary", kind)
	}
	for _, sv := range []*system.Variable{b.saveIn, b.diagSaveIn} {
		if sv == nil {
			continue
		}
		if kind != KernelKind && kind != IntegratedBCKind && kind != NodalBCKind {
			utils.ConfigErrorf(o.Name(), "save-in is not supported on %s objects", kind)
		}
		if sv.System() != p.Aux {
			utils.ConfigErrorf(o.Name(), "save-in variable %s is not an auxiliary variable", sv.Name())
		}
		if sv.FE != v.FE {
			utils.ConfigErrorf(o.Name(), "save-in variable %s is %s but %s is %s", sv.Name(), sv.FE, v.Name(), v.FE)
		}
	}
}

// checkCoupled requires every coupled variable to live on each block the
// object runs on.
func (p *Problem) checkCoupled(o Object, c Coupler) {
	for _, jv := range c.CoupledVariables() {
		if jv == nil {
			utils.ConfigErrorf(o.Name(), "coupled variable is missing")
		}
		for _, sid := range p.Cache.MeshSubdomains() {
			if o.HasBlock(sid) && o.Variable().HasBlock(sid) && !jv.HasBlock(sid) {
				utils.ConfigErrorf(o.Name(), "coupled variable %s is not defined on block %v",
					jv.Name(), sid)
			}
		}
	}
}

func (p *Problem) checkReady() {
	if !p.ready {
		utils.ConfigErrorf(p.Name, "Setup must run before assembly")
	}
	if p.Cache.Generation() != p.generation {
		utils.ConfigErrorf(p.Name, "mesh changed at generation %d since Setup at %d; run Setup again",
			p.Cache.Generation(), p.generation)
	}
}

// GlobalResult is the assembled residual, and the Jacobian when one was
// requested.
type GlobalResult struct {
	Residual *mat.VecDense
	Jacobian *sparse.CSR
	dok      utils.DOK
}

// Dense returns the Jacobian as a dense matrix, for inspection and tests.
func (g *GlobalResult) Dense() *mat.Dense {
	if g.Jacobian == nil {
		return nil
	}
	return g.dok.ToDense()
}

// Row returns the nonzero columns and values of one Jacobian row, in column
// order.
func (g *GlobalResult) Row(i int) (cols []int, vals []float64) {
	if g.Jacobian == nil {
		return
	}
	return g.dok.RowEntries(i)
}

func (p *Problem) ComputeResidual() *mat.VecDense {
	return p.compute(false).Residual
}

func (p *Problem) ComputeResidualAndJacobian() *GlobalResult {
	return p.compute(true)
}

func (p *Problem) compute(doJacobian bool) *GlobalResult {
	p.checkReady()
	var (
		start = time.Now()
		kind  = "residual"
		asms  = make([]*Assembly, p.Threads)
	)
	if doJacobian {
		kind = "jacobian"
	}
	p.Metrics.AssemblyPasses.WithLabelValues(kind).Inc()
	p.zeroSaveIn()
	for t := range asms {
		asms[t] = newAssembly(p, t, doJacobian)
	}
	// Face data is built once up front, outside the parallel regions.
	faces := p.Cache.AllFaceInfo()

	if p.has(KernelKind, FVElementalKind) {
		elems := p.elements(false)
		p.run(asms, "element", len(elems), func(a *Assembly, k int) { a.onElement(elems[k]) })
	}
	if p.has(IntegratedBCKind) {
		sides := p.boundarySides(IntegratedBCKind)
		p.run(asms, "side", len(sides), func(a *Assembly, k int) { a.onSide(sides[k]) })
	}
	if p.has(DGKernelKind, FVFluxKind, FVFluxBCKind) {
		owned := p.ownedFaces(faces)
		p.run(asms, "face", len(owned), func(a *Assembly, k int) { a.onFace(owned[k]) })
	}
	if p.has(InterfaceKernelKind) {
		sides := p.boundarySides(InterfaceKernelKind)
		p.run(asms, "interface", len(sides), func(a *Assembly, k int) { a.onInterface(sides[k]) })
	}
	if p.has(MortarKind) {
		lowers := p.elements(true)
		p.run(asms, "lower", len(lowers), func(a *Assembly, k int) { a.onLower(lowers[k]) })
	}
	if p.has(NodalBCKind) {
		nodes := p.boundaryNodes()
		p.run(asms, "node", len(nodes), func(a *Assembly, k int) { a.onNode(nodes[k]) })
	}

	res := p.join(asms, doJacobian)
	elapsed := time.Since(start)
	p.Metrics.AssemblyDuration.Observe(elapsed.Seconds())
	if utils.Verbose {
		utils.Logf("%s: %s pass over %d DOFs in %v, %s", p.Name, kind, p.NL.NDofs(), elapsed, utils.GetMemUsage())
	}
	return res
}

func (p *Problem) has(kinds ...Kind) bool {
	for _, k := range kinds {
		if len(p.byKind[k]) > 0 {
			return true
		}
	}
	return false
}

// run spreads n entities over the threads.
func (p *Problem) run(asms []*Assembly, entity string, n int, visit func(a *Assembly, k int)) {
	if n == 0 {
		return
	}
	utils.NewPartitionMap(len(asms), n).ParallelFor(func(thread, kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			visit(asms[thread], k)
		}
	})
	p.Metrics.ObjectsVisited.WithLabelValues(entity).Add(float64(n))
}

func (p *Problem) isLocal(elem int) bool {
	m := p.Cache.Mesh()
	return m.Elem(elem).ProcessorID == m.Rank()
}

// elements lists the active local elements of mesh dimension, or the lower
// dimensional ones.
func (p *Problem) elements(lowerD bool) (ids []int) {
	m := p.Cache.Mesh()
	for _, id := range m.ActiveElements() {
		if p.isLocal(id) && m.Elem(id).IsLowerD(m.Dimension()) == lowerD {
			ids = append(ids, id)
		}
	}
	return
}

// boundarySides lists the local sides carrying a boundary of any object of
// kind, in element then side order.
func (p *Problem) boundarySides(kind Kind) (sides []types.ElemSideKey) {
	var (
		m   = p.Cache.Mesh()
		set = make(map[types.ElemSideKey]bool)
	)
	for _, o := range p.byKind[kind] {
		for _, bid := range o.base().Boundaries() {
			for _, elem := range p.Cache.BoundaryElems(bid) {
				e := m.Elem(elem)
				if !e.Active || !p.isLocal(elem) || e.IsLowerD(m.Dimension()) {
					continue
				}
				for side := 0; side < e.Type.NumSides(); side++ {
					for _, b := range p.Cache.BoundaryIDs(elem, side) {
						if b == bid {
							set[types.NewElemSideKey(elem, side)] = true
						}
					}
				}
			}
		}
	}
	for k := range set {
		sides = append(sides, k)
	}
	sort.Slice(sides, func(i, j int) bool { return sides[i] < sides[j] })
	return
}

func (p *Problem) ownedFaces(all []*mesh.FaceInfo) (owned []*mesh.FaceInfo) {
	for _, fi := range all {
		if p.isLocal(fi.Elem) {
			owned = append(owned, fi)
		}
	}
	return
}

func (p *Problem) boundaryNodes() (nodes []int) {
	var (
		m   = p.Cache.Mesh()
		set = make(map[int]bool)
	)
	for _, o := range p.byKind[NodalBCKind] {
		for _, bid := range o.base().Boundaries() {
			for _, n := range p.Cache.BoundaryNodes(bid) {
				if m.Node(n).ProcessorID == m.Rank() {
					set[n] = true
				}
			}
		}
	}
	for n := range set {
		nodes = append(nodes, n)
	}
	sort.Ints(nodes)
	return
}

func (p *Problem) zeroSaveIn() {
	for _, o := range p.objects {
		b := o.base()
		for _, sv := range []*system.Variable{b.saveIn, b.diagSaveIn} {
			if sv != nil {
				p.Aux.SetConstant(sv, 0)
			}
		}
	}
}

// join sums the thread shares, then lets the nodal conditions replace
// their rows.
func (p *Problem) join(asms []*Assembly, doJacobian bool) *GlobalResult {
	var (
		n     = p.NL.NDofs()
		res   = mat.NewVecDense(n, nil)
		jac   utils.DOK
		nodal []nodalEntry
	)
	for _, a := range asms {
		for i, r := range a.residual {
			if r != 0 {
				res.SetVec(i, res.AtVec(i)+r)
			}
		}
		nodal = append(nodal, a.nodal...)
	}
	if doJacobian {
		jac = utils.NewDOK(n, n)
		for _, a := range asms {
			jac.Join(a.jac)
		}
	}
	sort.SliceStable(nodal, func(i, j int) bool {
		if nodal[i].order != nodal[j].order {
			return nodal[i].order < nodal[j].order
		}
		return nodal[i].dof < nodal[j].dof
	})
	rows := make(map[int]bool, len(nodal))
	for _, e := range nodal {
		res.SetVec(e.dof, e.value)
		rows[e.dof] = true
	}
	g := &GlobalResult{Residual: res}
	if doJacobian {
		if len(rows) > 0 {
			jac = jac.WithoutRows(rows)
			for dof := range rows {
				jac.AddAt(dof, dof, 1)
			}
		}
		jac.SetReadOnly("jacobian")
		g.dok = jac
		g.Jacobian = jac.ToCSR()
	}
	return g
}

func (p *Problem) String() string {
	return fmt.Sprintf("%s: %d objects\n%s%s", p.Name, len(p.objects), p.NL, p.Aux)
}

/*
Per entity drivers. Each walks the state machine of every applicable object
once: begin, residual, optionally Jacobian, accumulate, finish.
*/

func (a *Assembly) meshDim() int { return a.p.Cache.Mesh().Dimension() }

func (a *Assembly) onElement(elem int) {
	var (
		e      = a.p.Cache.Mesh().Elem(elem)
		dim    = a.meshDim()
		reinit = false
	)
	for _, o := range a.p.byKind[KernelKind] {
		if !o.HasBlock(e.Subdomain) || !o.Variable().DefinedOn(e, dim) {
			continue
		}
		if !reinit {
			a.ReinitElem(elem)
			reinit = true
		}
		a.integrate(o)
	}
	for _, o := range a.p.byKind[FVElementalKind] {
		if !o.HasBlock(e.Subdomain) || !o.Variable().DefinedOn(e, dim) {
			continue
		}
		a.ReinitFVElem(elem)
		a.begin(o)
		r := o.(FVElementalResidual).FVResidual(a, a.p.Cache.ElemInfo(elem))
		a.AddResidualAt(a.Dofs(o.Variable(), types.Element)[0], r)
		a.globalDone()
	}
}

func (a *Assembly) onSide(key types.ElemSideKey) {
	var (
		elem, side = key.Elem(), key.Side()
		e          = a.p.Cache.Mesh().Elem(elem)
		bids       = a.p.Cache.BoundaryIDs(elem, side)
		reinit     = false
	)
	for _, o := range a.p.byKind[IntegratedBCKind] {
		if !o.base().onAnyBoundary(bids) || !o.HasBlock(e.Subdomain) || !o.Variable().DefinedOn(e, a.meshDim()) {
			continue
		}
		if !reinit {
			a.ReinitSide(elem, side)
			reinit = true
		}
		a.integrate(o)
	}
}

func (a *Assembly) onInterface(key types.ElemSideKey) {
	var (
		m          = a.p.Cache.Mesh()
		elem, side = key.Elem(), key.Side()
		nbr        = m.Neighbor(elem, side)
		bids       = a.p.Cache.BoundaryIDs(elem, side)
		reinit     = false
	)
	if nbr == mesh.InvalidID {
		return
	}
	var (
		e, n = m.Elem(elem), m.Elem(nbr)
		dim  = a.meshDim()
	)
	for _, o := range a.p.byKind[InterfaceKernelKind] {
		fr := o.(FaceResidual)
		nv := fr.RowVariable(types.Neighbor)
		if !o.base().onAnyBoundary(bids) || !o.HasBlock(e.Subdomain) ||
			!o.Variable().DefinedOn(e, dim) || nv == nil || !nv.DefinedOn(n, dim) {
			continue
		}
		if !reinit {
			fi := a.p.Cache.FaceInfo(elem, side)
			nbrSide := fi.NeighborSide
			if fi.Elem != elem {
				nbrSide = fi.ElemSide
			}
			a.ReinitFace(elem, side, nbr, nbrSide)
			a.Face = fi
			reinit = true
		}
		a.integrateFace(o, false)
	}
}

func (a *Assembly) onLower(lower int) {
	var (
		m = a.p.Cache.Mesh()
		e = m.Elem(lower)
	)
	if e.InteriorParent == mesh.InvalidID {
		return
	}
	reinit := false
	for _, o := range a.p.byKind[MortarKind] {
		if !o.HasBlock(e.Subdomain) || !o.Variable().DefinedOn(e, a.meshDim()) {
			continue
		}
		if !reinit {
			a.ReinitLower(lower)
			reinit = true
		}
		if a.Neighbor == mesh.InvalidID {
			utils.ConfigErrorf(o.Name(), "lower dimensional element %d has no secondary element across side %d of %d",
				lower, a.Side, a.Elem)
		}
		fr := o.(FaceResidual)
		for role := types.Element; role <= types.Neighbor; role++ {
			parent := a.RoleElem(role)
			if rv := fr.RowVariable(role); rv != nil && !rv.DefinedOn(m.Elem(parent), a.meshDim()) {
				utils.ConfigErrorf(o.Name(), "%s variable %s is not defined on element %d next to lower dimensional element %d",
					role, rv.Name(), parent, lower)
			}
		}
		a.integrateFace(o, true)
	}
}

func (a *Assembly) onNode(node int) {
	for _, o := range a.p.byKind[NodalBCKind] {
		onNode := false
		for _, bid := range o.base().Boundaries() {
			if a.p.Cache.IsBoundaryNode(node, bid) {
				onNode = true
				break
			}
		}
		if !onNode {
			continue
		}
		a.ReinitNode(node)
		u, dof, ok := a.NodalValue(o.Variable())
		if !ok {
			continue
		}
		a.begin(o)
		a.setNodal(o.base().order, dof, o.(NodalResidual).NodalResidual(a, u))
		a.residualDone()
		if a.doJacobian {
			a.jacobianDone()
		}
		a.accumulate()
		a.finish()
	}
}

// integrate runs a kernel or integrated BC over the current quadrature.
func (a *Assembly) integrate(o Object) {
	var (
		v  = o.Variable()
		ns = a.FE(v, types.Element).NumShapes()
	)
	a.begin(o)
	switch k := o.(type) {
	case ADResidual:
		for i := 0; i < ns; i++ {
			var r ad.Real
			for qp := range a.JxW {
				r = r.Add(k.ADResidual(a, i, qp).Scale(a.JxW[qp] * a.Coord[qp]))
			}
			a.captureAD(types.Element, v, i, r)
		}
		a.residualDone()
		if a.doJacobian {
			a.sliceCaptured(types.Element)
			a.jacobianDone()
		}
	case HandResidual:
		re := a.Re(types.Element, v)
		for i := 0; i < ns; i++ {
			for qp := range a.JxW {
				addVec(re, i, k.Residual(a, i, qp)*a.JxW[qp]*a.Coord[qp])
			}
		}
		a.residualDone()
		if a.doJacobian {
			ke := a.Ke(types.Element, types.Element, v, v)
			for i := 0; i < ns; i++ {
				for j := 0; j < ns; j++ {
					for qp := range a.JxW {
						addMat(ke, i, j, k.Jacobian(a, i, j, qp)*a.JxW[qp]*a.Coord[qp])
					}
				}
			}
			if od, ok := o.(OffDiagJacobian); ok {
				a.offDiagonal(od, v, ns)
			}
			a.jacobianDone()
		}
	}
	a.accumulate()
	a.finish()
}

func (a *Assembly) offDiagonal(od OffDiagJacobian, v *system.Variable, ns int) {
	for _, jv := range od.CoupledVariables() {
		if jv.System() != a.sys || jv == v || len(a.Dofs(jv, types.Element)) == 0 {
			continue
		}
		var (
			nj = a.FE(jv, types.Element).NumShapes()
			ke = a.Ke(types.Element, types.Element, v, jv)
		)
		for i := 0; i < ns; i++ {
			for j := 0; j < nj; j++ {
				for qp := range a.JxW {
					addMat(ke, i, j, od.OffDiagJacobian(a, jv, i, j, qp)*a.JxW[qp]*a.Coord[qp])
				}
			}
		}
	}
}

// integrateFace runs an object with rows on several roles. Local objects
// slice their Jacobian by role; global ones go through the DOF map.
func (a *Assembly) integrateFace(o Object, global bool) {
	fr := o.(FaceResidual)
	a.begin(o)
	for role := types.Element; role <= types.Lower; role++ {
		v := fr.RowVariable(role)
		if v == nil || a.RoleElem(role) == mesh.InvalidID {
			continue
		}
		dofs := a.Dofs(v, role)
		if len(dofs) == 0 {
			continue
		}
		for i := 0; i < a.FE(v, role).NumShapes(); i++ {
			var r ad.Real
			for qp := range a.JxW {
				r = r.Add(fr.ADFaceResidual(a, role, i, qp).Scale(a.JxW[qp] * a.Coord[qp]))
			}
			if global {
				a.AddResidualAt(dofs[i], r)
			} else {
				a.captureAD(role, v, i, r)
			}
		}
	}
	if global {
		a.globalDone()
		return
	}
	a.residualDone()
	if a.doJacobian {
		a.sliceCaptured(types.Element, types.Neighbor)
		a.jacobianDone()
	}
	a.accumulate()
	a.finish()
}

// globalDone completes an object whose residuals were all queued with
// AddResidualAt.
func (a *Assembly) globalDone() {
	a.residualDone()
	if a.doJacobian {
		a.processPending()
		a.jacobianDone()
	}
	a.accumulate()
	a.finish()
}

func (a *Assembly) onFace(fi *mesh.FaceInfo) {
	if fi.Neighbor != mesh.InvalidID && len(a.p.byKind[DGKernelKind]) > 0 {
		a.onDGFace(fi)
	}
	for _, o := range a.p.byKind[FVFluxKind] {
		a.fvFlux(o, fi)
	}
	if fi.IsBoundary() || len(fi.BoundaryIDs) > 0 {
		for _, o := range a.p.byKind[FVFluxBCKind] {
			if o.base().onAnyBoundary(fi.BoundaryIDs) {
				a.fvBoundary(o, fi)
			}
		}
	}
}

func (a *Assembly) onDGFace(fi *mesh.FaceInfo) {
	var (
		m      = a.p.Cache.Mesh()
		e, n   = m.Elem(fi.Elem), m.Elem(fi.Neighbor)
		dim    = a.meshDim()
		reinit = false
	)
	for _, o := range a.p.byKind[DGKernelKind] {
		v := o.Variable()
		if !o.HasBlock(e.Subdomain) || !o.HasBlock(n.Subdomain) || !v.DefinedOn(e, dim) || !v.DefinedOn(n, dim) {
			continue
		}
		if !reinit {
			a.ReinitFace(fi.Elem, fi.ElemSide, fi.Neighbor, fi.NeighborSide)
			a.Face = fi
			reinit = true
		}
		a.integrateFace(o, false)
	}
}

// dirichletValue finds a Dirichlet condition of v on the face.
func (a *Assembly) dirichletValue(v *system.Variable, fi *mesh.FaceInfo, ft types.FaceType) (g float64, ok bool) {
	for _, o := range a.p.byKind[FVDirichletKind] {
		if o.Variable() != v || !o.base().onAnyBoundary(fi.BoundaryIDs) {
			continue
		}
		if ft != types.FaceElem && ft != types.FaceNeighbor {
			utils.ConfigErrorf(o.Name(), "Dirichlet condition on face (%d, %d) where %s is %s",
				fi.Elem, fi.ElemSide, v.Name(), ft)
		}
		return o.(FVBoundaryValue).BoundaryValue(fi), true
	}
	return
}

func (a *Assembly) fvFlux(o Object, fi *mesh.FaceInfo) {
	on := o.HasBlock(fi.ElemSubdomain) || (!fi.IsBoundary() && o.HasBlock(fi.NeighborSubdomain))
	if !on {
		return
	}
	var (
		v         = o.Variable()
		ft        = fi.FaceType(v.Name())
		g, dir    = a.dirichletValue(v, fi, ft)
		elem, nbr = FluxSides(o.Name(), fi, ft, dir)
	)
	if !elem && !nbr {
		return
	}
	a.ReinitFV(fi)
	a.begin(o)
	face := &FVFace{Info: fi, Type: ft}
	switch ft {
	case types.FaceBoth:
		face.ElemValue = a.CellValue(v, types.Element)
		face.NeighborValue = a.CellValue(v, types.Neighbor)
		face.Distance = distance(fi.ElemCentroid, fi.NeighborCentroid)
	case types.FaceElem:
		face.ElemValue = a.CellValue(v, types.Element)
		face.NeighborValue = ad.Constant(g)
		face.Distance = projectedDistance(fi, fi.ElemCentroid)
	case types.FaceNeighbor:
		face.ElemValue = ad.Constant(g)
		face.NeighborValue = a.CellValue(v, types.Neighbor)
		face.Distance = projectedDistance(fi, fi.NeighborCentroid)
	}
	r := o.(FVFluxResidual).FVFlux(a, face).Scale(fi.Area * fi.FaceCoord)
	if elem {
		a.AddResidualAt(a.Dofs(v, types.Element)[0], r)
	}
	if nbr {
		a.AddResidualAt(a.Dofs(v, types.Neighbor)[0], r.Scale(-1))
	}
	a.globalDone()
}

func (a *Assembly) fvBoundary(o Object, fi *mesh.FaceInfo) {
	var (
		v    = o.Variable()
		ft   = fi.FaceType(v.Name())
		role types.ElementRole
		c    [3]float64
	)
	switch ft {
	case types.FaceElem:
		role, c = types.Element, fi.ElemCentroid
	case types.FaceNeighbor:
		role, c = types.Neighbor, fi.NeighborCentroid
	default:
		utils.ConfigErrorf(o.Name(), "flux boundary condition on face (%d, %d) where %s is %s",
			fi.Elem, fi.ElemSide, v.Name(), ft)
	}
	a.ReinitFV(fi)
	a.begin(o)
	face := &FVBoundaryFace{
		Info:     fi,
		Value:    a.CellValue(v, role),
		Normal:   BCNormal(fi, ft),
		Distance: projectedDistance(fi, c),
		Role:     role,
	}
	r := o.(FVBoundaryResidual).FVBoundaryFlux(a, face).Scale(fi.Area * fi.FaceCoord)
	a.AddResidualAt(a.Dofs(v, role)[0], r)
	a.globalDone()
}
