package mesh

import (
	"fmt"
	"sort"

	"github.com/notargets/femcore/types"
	"github.com/notargets/femcore/utils"
)

type BoundaryID int
type SubdomainID int

const InvalidID = -1

// Node is one mesh vertex. Nodes are addressed by their index in Mesh.Nodes.
type Node struct {
	ID          int
	X           [3]float64
	ProcessorID int
	Removed     bool
}

// Element is one mesh entity of any dimension. Parent, Children and
// InteriorParent are indices into Mesh.Elements, never pointers.
type Element struct {
	ID             int
	Type           types.ElementType
	Nodes          []int
	Subdomain      SubdomainID
	ProcessorID    int
	Level          int
	Parent         int
	Children       []int
	InteriorParent int // For lower dimensional elements, the element whose side this is
	InteriorSide   int
	Active         bool
	Removed        bool
}

// IsLowerD is true for elements of lower dimension than the mesh they live in.
func (e *Element) IsLowerD(meshDim int) bool { return e.Type.Dim() < meshDim }

// Backend is the unstructured mesh storage the topology cache is built on.
type Backend interface {
	Dimension() int
	NumNodes() int
	NumElements() int
	Node(id int) *Node
	Elem(id int) *Element
	ActiveElements() []int
	Rank() int
	Neighbor(elem, side int) int
	SideNodes(elem, side int) []int
	SideBoundaryIDs(elem, side int) []BoundaryID
	NodeBoundaryIDs(node int) []BoundaryID
	BoundaryName(bid BoundaryID) string
	SubdomainName(sid SubdomainID) string
	FindNeighbors()
}

// Mesh represents a complete unstructured mesh with arena storage. Removed
// entities keep their slot so that IDs stay stable across adaptivity.
type Mesh struct {
	Dim      int
	Nodes    []Node
	Elements []Element

	// Connectivity (built by FindNeighbors)
	EToE [][]int // Element to element across each side, -1 on the boundary

	sideBoundaries map[types.ElemSideKey][]BoundaryID
	nodeBoundaries map[int][]BoundaryID
	boundaryNames  map[BoundaryID]string
	subdomainNames map[SubdomainID]string

	// Processor this view of the mesh belongs to
	rank int
	// Number of processors the elements are partitioned over
	NumProcessors int
}

func NewMesh(dim int) *Mesh {
	return &Mesh{
		Dim:            dim,
		sideBoundaries: make(map[types.ElemSideKey][]BoundaryID),
		nodeBoundaries: make(map[int][]BoundaryID),
		boundaryNames:  make(map[BoundaryID]string),
		subdomainNames: make(map[SubdomainID]string),
		NumProcessors:  1,
	}
}

func (m *Mesh) AddNode(x ...float64) int {
	var X [3]float64
	copy(X[:], x)
	id := len(m.Nodes)
	m.Nodes = append(m.Nodes, Node{ID: id, X: X})
	return id
}

func (m *Mesh) AddElement(et types.ElementType, nodes []int, sub SubdomainID) int {
	if len(nodes) != et.NumNodes() {
		panic(fmt.Errorf("%s needs %d nodes, have %d", et, et.NumNodes(), len(nodes)))
	}
	id := len(m.Elements)
	nn := make([]int, len(nodes))
	copy(nn, nodes)
	m.Elements = append(m.Elements, Element{
		ID:             id,
		Type:           et,
		Nodes:          nn,
		Subdomain:      sub,
		Parent:         InvalidID,
		InteriorParent: InvalidID,
		InteriorSide:   InvalidID,
		Active:         true,
	})
	return id
}

func (m *Mesh) Dimension() int          { return m.Dim }
func (m *Mesh) NumNodes() int           { return len(m.Nodes) }
func (m *Mesh) NumElements() int        { return len(m.Elements) }
func (m *Mesh) Node(id int) *Node       { return &m.Nodes[id] }
func (m *Mesh) Elem(id int) *Element    { return &m.Elements[id] }
func (m *Mesh) Rank() int               { return m.rank }
func (m *Mesh) SetRank(rank int)        { m.rank = rank }
func (m *Mesh) IsLocal(elem int) bool   { return m.Elements[elem].ProcessorID == m.rank }
func (m *Mesh) IsLocalNode(id int) bool { return m.Nodes[id].ProcessorID == m.rank }

// ActiveElements returns the IDs of all active elements of every dimension.
func (m *Mesh) ActiveElements() (ids []int) {
	for i := range m.Elements {
		if e := &m.Elements[i]; e.Active && !e.Removed {
			ids = append(ids, i)
		}
	}
	return
}

// ActiveLocalElements returns active elements owned by this rank.
func (m *Mesh) ActiveLocalElements() (ids []int) {
	for _, id := range m.ActiveElements() {
		if m.IsLocal(id) {
			ids = append(ids, id)
		}
	}
	return
}

func (m *Mesh) Neighbor(elem, side int) int {
	if m.EToE == nil || elem >= len(m.EToE) || m.EToE[elem] == nil {
		return InvalidID
	}
	return m.EToE[elem][side]
}

func (m *Mesh) SideNodes(elem, side int) []int {
	e := &m.Elements[elem]
	ln := e.Type.SideLocalNodes(side)
	gn := make([]int, len(ln))
	for i, l := range ln {
		gn[i] = e.Nodes[l]
	}
	return gn
}

func (m *Mesh) Coords(elem int) [][3]float64 {
	e := &m.Elements[elem]
	X := make([][3]float64, len(e.Nodes))
	for i, n := range e.Nodes {
		X[i] = m.Nodes[n].X
	}
	return X
}

func (m *Mesh) SideCoords(elem, side int) [][3]float64 {
	sn := m.SideNodes(elem, side)
	X := make([][3]float64, len(sn))
	for i, n := range sn {
		X[i] = m.Nodes[n].X
	}
	return X
}

func (m *Mesh) Centroid(elem int) [3]float64 {
	return centroid(m.Coords(elem))
}

func centroid(X [][3]float64) (c [3]float64) {
	for _, x := range X {
		for d := 0; d < 3; d++ {
			c[d] += x[d]
		}
	}
	for d := 0; d < 3; d++ {
		c[d] /= float64(len(X))
	}
	return
}

func (m *Mesh) AddSideBoundary(elem, side int, bid BoundaryID) {
	key := types.NewElemSideKey(elem, side)
	for _, b := range m.sideBoundaries[key] {
		if b == bid {
			return
		}
	}
	m.sideBoundaries[key] = append(m.sideBoundaries[key], bid)
}

func (m *Mesh) RemoveSideBoundaries(elem, side int) {
	delete(m.sideBoundaries, types.NewElemSideKey(elem, side))
}

func (m *Mesh) AddNodeBoundary(node int, bid BoundaryID) {
	for _, b := range m.nodeBoundaries[node] {
		if b == bid {
			return
		}
	}
	m.nodeBoundaries[node] = append(m.nodeBoundaries[node], bid)
}

func (m *Mesh) SideBoundaryIDs(elem, side int) []BoundaryID {
	return m.sideBoundaries[types.NewElemSideKey(elem, side)]
}

func (m *Mesh) NodeBoundaryIDs(node int) []BoundaryID {
	return m.nodeBoundaries[node]
}

func (m *Mesh) SetBoundaryName(bid BoundaryID, name string) { m.boundaryNames[bid] = name }
func (m *Mesh) SetSubdomainName(sid SubdomainID, name string) {
	m.subdomainNames[sid] = name
}
func (m *Mesh) BoundaryName(bid BoundaryID) string     { return m.boundaryNames[bid] }
func (m *Mesh) SubdomainName(sid SubdomainID) string   { return m.subdomainNames[sid] }
func (m *Mesh) BoundaryNames() map[BoundaryID]string   { return m.boundaryNames }
func (m *Mesh) SubdomainNames() map[SubdomainID]string { return m.subdomainNames }

// FindNeighbors builds element to element connectivity for active elements
// of the mesh dimension, matching sides through their sorted vertex keys.
func (m *Mesh) FindNeighbors() {
	var (
		faceMap = make(map[types.EdgeKey]types.ElemSideKey)
	)
	m.EToE = make([][]int, len(m.Elements))
	for _, elemID := range m.ActiveElements() {
		e := &m.Elements[elemID]
		if e.Type.Dim() != m.Dim {
			continue
		}
		ns := e.Type.NumSides()
		m.EToE[elemID] = make([]int, ns)
		for s := 0; s < ns; s++ {
			m.EToE[elemID][s] = InvalidID
			key := sideKey(m.SideNodes(elemID, s))
			if other, exists := faceMap[key]; exists {
				// Face already exists - this is an interior face
				nbr, nbrSide := other.Elem(), other.Side()
				m.EToE[elemID][s] = nbr
				m.EToE[nbr][nbrSide] = elemID
				delete(faceMap, key)
			} else {
				faceMap[key] = types.NewElemSideKey(elemID, s)
			}
		}
	}
}

func sideKey(nodes []int) types.EdgeKey {
	if len(nodes) == 1 {
		return types.NewEdgeKey([2]int{nodes[0], nodes[0]})
	}
	return types.NewEdgeKey([2]int{nodes[0], nodes[1]})
}

// Partition assigns contiguous runs of active elements to np processors.
// A node belongs to the lowest processor of the elements touching it.
func (m *Mesh) Partition(np int) {
	active := m.ActiveElements()
	pm := utils.NewPartitionMap(np, len(active))
	m.NumProcessors = pm.ParallelDegree
	for i, id := range active {
		bn, _, _ := pm.GetBucket(i)
		m.Elements[id].ProcessorID = bn
	}
	for i := range m.Nodes {
		m.Nodes[i].ProcessorID = np
	}
	for _, id := range active {
		e := &m.Elements[id]
		for _, n := range e.Nodes {
			if e.ProcessorID < m.Nodes[n].ProcessorID {
				m.Nodes[n].ProcessorID = e.ProcessorID
			}
		}
	}
	for i := range m.Nodes {
		if m.Nodes[i].ProcessorID == np {
			m.Nodes[i].ProcessorID = 0
		}
	}
}

// SubdomainIDs returns the sorted set of subdomains of active elements.
func (m *Mesh) SubdomainIDs() (ids []SubdomainID) {
	seen := make(map[SubdomainID]bool)
	for _, id := range m.ActiveElements() {
		sid := m.Elements[id].Subdomain
		if !seen[sid] {
			seen[sid] = true
			ids = append(ids, sid)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return
}

// PrintStatistics prints mesh statistics
func (m *Mesh) PrintStatistics() {
	active := m.ActiveElements()
	fmt.Printf("Mesh Statistics:\n")
	fmt.Printf("  Dimension: %d\n", m.Dim)
	fmt.Printf("  Nodes: %d\n", len(m.Nodes))
	fmt.Printf("  Active elements: %d (of %d stored)\n", len(active), len(m.Elements))

	typeCounts := make(map[types.ElementType]int)
	for _, id := range active {
		typeCounts[m.Elements[id].Type]++
	}
	fmt.Printf("  Element types:\n")
	for t, count := range typeCounts {
		fmt.Printf("    %s: %d\n", t, count)
	}

	boundaryFaces := 0
	for _, id := range active {
		for _, nbr := range m.EToE[id] {
			if nbr < 0 {
				boundaryFaces++
			}
		}
	}
	fmt.Printf("  Boundary faces: %d\n", boundaryFaces)
}
