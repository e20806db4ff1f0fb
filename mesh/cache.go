package mesh

import (
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/notargets/femcore/utils"
)

// Cached holds one value derived from the mesh, stamped with the mesh
// generation it was built for. A read at a newer generation rebuilds it.
// If the build panics the old stamp is kept, so the value stays dirty.
type Cached[T any] struct {
	mu    sync.Mutex
	gen   uint64
	built bool
	val   T
}

func (c *Cached[T]) Get(gen uint64, build func() T) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.built || c.gen != gen {
		v := build()
		c.val, c.gen, c.built = v, gen, true
	}
	return c.val
}

// Valid reports whether the value is current for generation gen.
func (c *Cached[T]) Valid(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.built && c.gen == gen
}

func (c *Cached[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.val, c.built = zero, false
}

type CoordSystem uint8

const (
	CoordXYZ CoordSystem = iota
	CoordRZ
)

func (cs CoordSystem) String() string {
	return [...]string{"XYZ", "RZ"}[cs]
}

// BlockRestricted is implemented by anything that lives on a subset of the
// mesh subdomains. Variables and residual objects share this one interface.
type BlockRestricted interface {
	Name() string
	HasBlock(sid SubdomainID) bool
}

// TopologyCache answers topology queries against a mesh backend. Boundary
// and subdomain sets are rebuilt eagerly by MeshChanged, everything else is
// rebuilt lazily on the first read after the generation moves. The cache is
// read only during an assembly pass; MeshChanged must only be called between
// passes.
type TopologyCache struct {
	mesh     Backend
	prepared bool
	gen      uint64
	metrics  *utils.Metrics

	coordSys CoordSystem
	rzAxis   int

	// Eager
	boundaryIDs     []BoundaryID
	subdomains      []SubdomainID
	boundaryNodes   map[BoundaryID]map[int]bool
	boundaryElems   map[BoundaryID]map[int]bool
	boundaryByName  map[string]BoundaryID
	subdomainByName map[string]SubdomainID

	// Lazy
	faces        Cached[*faceTable]
	nodeToElem   Cached[map[int][]int]
	nodeToActive Cached[map[int][]int]
	qpMaps       Cached[*qpMapStore]

	fvMu   sync.Mutex
	fvVars []BlockRestricted
}

func NewTopologyCache(b Backend, metrics *utils.Metrics) *TopologyCache {
	return &TopologyCache{
		mesh:    b,
		metrics: metrics,
	}
}

// SetMesh replaces the backend. The cache must be prepared again.
func (c *TopologyCache) SetMesh(b Backend) {
	c.mesh = b
	c.prepared = false
}

func (c *TopologyCache) Mesh() Backend { return c.mesh }

// Prepare finalizes the backend connectivity and builds the eager sets.
func (c *TopologyCache) Prepare() {
	if c.mesh == nil {
		utils.ConfigErrorf("TopologyCache", "no mesh has been set; a mesh must be attached before Prepare")
	}
	c.prepared = true
	c.MeshChanged()
}

// MeshChanged must follow every mutation of the backend. It bumps the
// generation, which invalidates face info, node maps and qp maps, and
// rebuilds the boundary and subdomain sets right away.
func (c *TopologyCache) MeshChanged() {
	c.check("MeshChanged")
	c.mesh.FindNeighbors()
	c.gen++
	c.rebuildBoundarySets()
	c.countRebuild("boundary")
	utils.Logf("topology cache at generation %d: %d boundaries, %d subdomains",
		c.gen, len(c.boundaryIDs), len(c.subdomains))
}

// Generation changes every time MeshChanged runs. Dependents compare it to a
// stored value to know when to resynchronize.
func (c *TopologyCache) Generation() uint64 { return c.gen }

func (c *TopologyCache) check(op string) {
	if c.mesh == nil {
		utils.ConfigErrorf("TopologyCache", "%s called before a mesh was set", op)
	}
	if !c.prepared {
		utils.ConfigErrorf("TopologyCache", "%s called on a mesh that has not been prepared", op)
	}
}

func (c *TopologyCache) countRebuild(cache string) {
	if c.metrics != nil {
		c.metrics.CacheRebuilds.WithLabelValues(cache).Inc()
	}
}

func (c *TopologyCache) SetCoordSystem(cs CoordSystem, rzAxis int) {
	c.coordSys, c.rzAxis = cs, rzAxis
	c.faces.Reset()
}

func (c *TopologyCache) CoordSystem() CoordSystem { return c.coordSys }

// CoordFactor is the coordinate transformation factor at a physical point.
func (c *TopologyCache) CoordFactor(x [3]float64) float64 {
	if c.coordSys == CoordRZ {
		return 2 * math.Pi * x[c.rzAxis]
	}
	return 1
}

func (c *TopologyCache) rebuildBoundarySets() {
	var (
		m        = c.mesh
		bset     = make(map[BoundaryID]bool)
		sset     = make(map[SubdomainID]bool)
		meshDim  = m.Dimension()
		addNode  = func(bid BoundaryID, n int) { c.boundaryNodes[bid][n] = true }
		initBIDs = func(bid BoundaryID) {
			if !bset[bid] {
				bset[bid] = true
				c.boundaryNodes[bid] = make(map[int]bool)
				c.boundaryElems[bid] = make(map[int]bool)
			}
		}
	)
	c.boundaryNodes = make(map[BoundaryID]map[int]bool)
	c.boundaryElems = make(map[BoundaryID]map[int]bool)
	for _, id := range m.ActiveElements() {
		e := m.Elem(id)
		sset[e.Subdomain] = true
		if e.Type.Dim() != meshDim {
			continue
		}
		for s := 0; s < e.Type.NumSides(); s++ {
			for _, bid := range m.SideBoundaryIDs(id, s) {
				initBIDs(bid)
				c.boundaryElems[bid][id] = true
				for _, n := range m.SideNodes(id, s) {
					addNode(bid, n)
				}
			}
		}
	}
	for n := 0; n < m.NumNodes(); n++ {
		if m.Node(n).Removed {
			continue
		}
		for _, bid := range m.NodeBoundaryIDs(n) {
			initBIDs(bid)
			addNode(bid, n)
		}
	}
	c.boundaryIDs = make([]BoundaryID, 0, len(bset))
	for bid := range bset {
		c.boundaryIDs = append(c.boundaryIDs, bid)
	}
	sort.Slice(c.boundaryIDs, func(i, j int) bool { return c.boundaryIDs[i] < c.boundaryIDs[j] })
	c.subdomains = make([]SubdomainID, 0, len(sset))
	for sid := range sset {
		c.subdomains = append(c.subdomains, sid)
	}
	sort.Slice(c.subdomains, func(i, j int) bool { return c.subdomains[i] < c.subdomains[j] })

	c.boundaryByName = make(map[string]BoundaryID)
	for _, bid := range c.boundaryIDs {
		if name := m.BoundaryName(bid); len(name) != 0 {
			c.boundaryByName[name] = bid
		}
	}
	c.subdomainByName = make(map[string]SubdomainID)
	for _, sid := range c.subdomains {
		if name := m.SubdomainName(sid); len(name) != 0 {
			c.subdomainByName[name] = sid
		}
	}
}

// BoundaryIDs returns the boundaries that side of elem lies on.
func (c *TopologyCache) BoundaryIDs(elem, side int) []BoundaryID {
	c.check("BoundaryIDs")
	return c.mesh.SideBoundaryIDs(elem, side)
}

func (c *TopologyCache) IsBoundaryNode(node int, bid BoundaryID) bool {
	c.check("IsBoundaryNode")
	return c.boundaryNodes[bid][node]
}

func (c *TopologyCache) IsBoundaryElem(elem int, bid BoundaryID) bool {
	c.check("IsBoundaryElem")
	return c.boundaryElems[bid][elem]
}

// BoundaryNodes returns the sorted nodes of a boundary.
func (c *TopologyCache) BoundaryNodes(bid BoundaryID) []int {
	c.check("BoundaryNodes")
	return sortedKeys(c.boundaryNodes[bid])
}

// BoundaryElems returns the sorted elements with a side on a boundary.
func (c *TopologyCache) BoundaryElems(bid BoundaryID) []int {
	c.check("BoundaryElems")
	return sortedKeys(c.boundaryElems[bid])
}

func (c *TopologyCache) MeshBoundaryIDs() []BoundaryID {
	c.check("MeshBoundaryIDs")
	return c.boundaryIDs
}

func (c *TopologyCache) MeshSubdomains() []SubdomainID {
	c.check("MeshSubdomains")
	return c.subdomains
}

// BoundaryID looks up a boundary by name. A name that parses as an integer
// ID already present on the mesh is accepted too.
func (c *TopologyCache) BoundaryID(name string) (bid BoundaryID, ok bool) {
	c.check("BoundaryID")
	if bid, ok = c.boundaryByName[name]; ok {
		return
	}
	if n, isInt := parseID(name); isInt {
		for _, b := range c.boundaryIDs {
			if int(b) == n {
				return b, true
			}
		}
	}
	return InvalidID, false
}

func (c *TopologyCache) SubdomainID(name string) (sid SubdomainID, ok bool) {
	c.check("SubdomainID")
	if sid, ok = c.subdomainByName[name]; ok {
		return
	}
	if n, isInt := parseID(name); isInt {
		for _, s := range c.subdomains {
			if int(s) == n {
				return s, true
			}
		}
	}
	return InvalidID, false
}

// NodeToElemMap maps every node of the active mesh to the active elements
// that have it as a vertex.
func (c *TopologyCache) NodeToElemMap() map[int][]int {
	c.check("NodeToElemMap")
	return c.nodeToElem.Get(c.gen, func() map[int][]int {
		c.countRebuild("node_to_elem")
		return c.buildNodeToElem(func(int) bool { return true })
	})
}

// NodeToElems returns the elements touching node.
func (c *TopologyCache) NodeToElems(node int) []int {
	elems, ok := c.NodeToElemMap()[node]
	utils.Assert(ok, "TopologyCache", "node %d is not in the active mesh", node)
	return elems
}

// NodeToActiveSemilocalElemMap restricts NodeToElemMap to elements owned
// by this rank or touching a node owned by this rank.
func (c *TopologyCache) NodeToActiveSemilocalElemMap() map[int][]int {
	c.check("NodeToActiveSemilocalElemMap")
	return c.nodeToActive.Get(c.gen, func() map[int][]int {
		c.countRebuild("node_to_active_semilocal_elem")
		m, rank := c.mesh, c.mesh.Rank()
		return c.buildNodeToElem(func(id int) bool {
			e := m.Elem(id)
			if e.ProcessorID == rank {
				return true
			}
			for _, n := range e.Nodes {
				if m.Node(n).ProcessorID == rank {
					return true
				}
			}
			return false
		})
	})
}

func (c *TopologyCache) buildNodeToElem(keep func(id int) bool) map[int][]int {
	n2e := make(map[int][]int)
	for _, id := range c.mesh.ActiveElements() {
		if !keep(id) {
			continue
		}
		for _, n := range c.mesh.Elem(id).Nodes {
			n2e[n] = append(n2e[n], id)
		}
	}
	return n2e
}

// RegisterFVVariable adds a variable whose face types are computed with the
// face info. Registration invalidates the face info.
func (c *TopologyCache) RegisterFVVariable(v BlockRestricted) {
	c.fvMu.Lock()
	defer c.fvMu.Unlock()
	for _, old := range c.fvVars {
		if old.Name() == v.Name() {
			return
		}
	}
	c.fvVars = append(c.fvVars, v)
	c.faces.Reset()
}

func sortedKeys(set map[int]bool) (keys []int) {
	keys = make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return
}

func parseID(name string) (n int, ok bool) {
	var err error
	if n, err = strconv.Atoi(name); err != nil {
		return 0, false
	}
	return n, true
}

// isLocalFace reports whether a face between elem and nbr has a locally
// owned element on either side.
func isLocalFace(m Backend, elem, nbr int) bool {
	rank := m.Rank()
	if m.Elem(elem).ProcessorID == rank {
		return true
	}
	return nbr != InvalidID && m.Elem(nbr).ProcessorID == rank
}
