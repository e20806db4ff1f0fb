package mesh

import (
	"fmt"

	"github.com/notargets/femcore/types"
)

// Boundary IDs assigned by the generators
const (
	Left     BoundaryID = 0
	Right    BoundaryID = 1
	Bottom   BoundaryID = 0
	Top      BoundaryID = 2
	QuadLeft BoundaryID = 3 // Left side of a quad mesh
)

// GenerateLine builds nx equal Edge2 elements on [xmin, xmax] in subdomain 0
// with sidesets "left" (0) and "right" (1).
func GenerateLine(nx int, xmin, xmax float64) *Mesh {
	if nx < 1 {
		panic(fmt.Errorf("line mesh needs at least one element, have %d", nx))
	}
	m := NewMesh(1)
	h := (xmax - xmin) / float64(nx)
	for i := 0; i <= nx; i++ {
		m.AddNode(xmin + float64(i)*h)
	}
	for i := 0; i < nx; i++ {
		m.AddElement(types.Edge2, []int{i, i + 1}, 0)
	}
	m.AddSideBoundary(0, 0, Left)
	m.AddSideBoundary(nx-1, 1, Right)
	m.SetBoundaryName(Left, "left")
	m.SetBoundaryName(Right, "right")
	m.FindNeighbors()
	return m
}

// GenerateQuad builds an nx by ny grid of Quad4 elements in subdomain 0 with
// sidesets "bottom" (0), "right" (1), "top" (2) and "left" (3).
func GenerateQuad(nx, ny int, xmin, xmax, ymin, ymax float64) *Mesh {
	if nx < 1 || ny < 1 {
		panic(fmt.Errorf("quad mesh needs at least one element per direction, have %d x %d", nx, ny))
	}
	m := NewMesh(2)
	hx := (xmax - xmin) / float64(nx)
	hy := (ymax - ymin) / float64(ny)
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			m.AddNode(xmin+float64(i)*hx, ymin+float64(j)*hy)
		}
	}
	nid := func(i, j int) int { return j*(nx+1) + i }
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			id := m.AddElement(types.Quad4,
				[]int{nid(i, j), nid(i+1, j), nid(i+1, j+1), nid(i, j+1)}, 0)
			if j == 0 {
				m.AddSideBoundary(id, 0, Bottom)
			}
			if i == nx-1 {
				m.AddSideBoundary(id, 1, Right)
			}
			if j == ny-1 {
				m.AddSideBoundary(id, 2, Top)
			}
			if i == 0 {
				m.AddSideBoundary(id, 3, QuadLeft)
			}
		}
	}
	m.SetBoundaryName(Bottom, "bottom")
	m.SetBoundaryName(Right, "right")
	m.SetBoundaryName(Top, "top")
	m.SetBoundaryName(QuadLeft, "left")
	m.FindNeighbors()
	return m
}

// AssignSubdomains sets the subdomain of every active element of the mesh
// dimension from its centroid.
func (m *Mesh) AssignSubdomains(f func(c [3]float64) SubdomainID) {
	for _, id := range m.ActiveElements() {
		if m.Elements[id].Type.Dim() == m.Dim {
			m.Elements[id].Subdomain = f(m.Centroid(id))
		}
	}
}

// InterfaceSides returns the sides of elements in subdomain a whose neighbor
// is in subdomain b, ordered by element then side.
func (m *Mesh) InterfaceSides(a, b SubdomainID) (sides []types.ElemSideKey) {
	for _, id := range m.ActiveElements() {
		e := &m.Elements[id]
		if e.Type.Dim() != m.Dim || e.Subdomain != a {
			continue
		}
		for s := 0; s < e.Type.NumSides(); s++ {
			if nbr := m.Neighbor(id, s); nbr != InvalidID && m.Elements[nbr].Subdomain == b {
				sides = append(sides, types.NewElemSideKey(id, s))
			}
		}
	}
	return
}

// BoundarySides returns all active element sides carrying boundary bid.
func (m *Mesh) BoundarySides(bid BoundaryID) (sides []types.ElemSideKey) {
	for _, id := range m.ActiveElements() {
		e := &m.Elements[id]
		if e.Type.Dim() != m.Dim {
			continue
		}
		for s := 0; s < e.Type.NumSides(); s++ {
			for _, b := range m.SideBoundaryIDs(id, s) {
				if b == bid {
					sides = append(sides, types.NewElemSideKey(id, s))
				}
			}
		}
	}
	return
}

// AddLowerDBlock creates one lower dimensional element on each of the given
// sides, in subdomain sub, sharing the side's nodes. Returns the new IDs.
func (m *Mesh) AddLowerDBlock(sub SubdomainID, name string, sides []types.ElemSideKey) (ids []int) {
	for _, key := range sides {
		elem, side := key.Elem(), key.Side()
		parent := m.Elements[elem]
		id := m.AddElement(parent.Type.SideType(), m.SideNodes(elem, side), sub)
		low := &m.Elements[id]
		low.InteriorParent = elem
		low.InteriorSide = side
		low.ProcessorID = parent.ProcessorID
		low.Level = parent.Level
		ids = append(ids, id)
	}
	if len(name) != 0 {
		m.SetSubdomainName(sub, name)
	}
	return
}
