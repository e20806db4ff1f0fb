package mesh

import (
	"sort"

	"github.com/notargets/femcore/types"
	"github.com/notargets/femcore/utils"
)

// childSidesOnParentSide lists the (child, child side) pairs that tile side s
// of the parent. Child c contains parent vertex c, so the children on side s
// are s and s+1, each on its own side s.
func childSidesOnParentSide(et types.ElementType, s int) (cs [][2]int) {
	switch et {
	case types.Edge2:
		return [][2]int{{s, s}}
	case types.Quad4:
		return [][2]int{{s, s}, {(s + 1) % 4, s}}
	}
	return nil
}

// Refine splits each listed element: Edge2 into two, Quad4 into four. Quad4
// meshes must be refined uniformly since hanging nodes are not supported.
// Lower dimensional elements follow their interior parents. The caller must
// notify the topology cache with MeshChanged afterwards.
func (m *Mesh) Refine(elems []int) (children []int) {
	var (
		refined  = make(map[int]bool, len(elems))
		midNodes = make(map[types.EdgeKey]int)
	)
	for _, id := range elems {
		e := &m.Elements[id]
		if !e.Active || e.Removed || e.Type.Dim() != m.Dim {
			utils.ConfigErrorf("Mesh.Refine", "element %d is not an active element of dimension %d", id, m.Dim)
		}
		refined[id] = true
	}
	if m.Dim == 2 {
		for _, id := range m.ActiveElements() {
			if m.Elements[id].Type.Dim() == 2 && !refined[id] {
				utils.ConfigErrorf("Mesh.Refine",
					"partial refinement of a QUAD4 mesh would create hanging nodes at element %d", id)
			}
		}
	}
	midNode := func(a, b int) int {
		key := types.NewEdgeKey([2]int{a, b})
		if n, ok := midNodes[key]; ok {
			return n
		}
		xa, xb := m.Nodes[a].X, m.Nodes[b].X
		n := m.AddNode(0.5*(xa[0]+xb[0]), 0.5*(xa[1]+xb[1]), 0.5*(xa[2]+xb[2]))
		midNodes[key] = n
		return n
	}
	sorted := append([]int(nil), elems...)
	sort.Ints(sorted)
	for _, id := range sorted {
		parent := m.Elements[id]
		var kids [][]int
		switch parent.Type {
		case types.Edge2:
			n0, n1 := parent.Nodes[0], parent.Nodes[1]
			mid := midNode(n0, n1)
			kids = [][]int{{n0, mid}, {mid, n1}}
		case types.Quad4:
			n := parent.Nodes
			m01, m12, m23, m30 := midNode(n[0], n[1]), midNode(n[1], n[2]), midNode(n[2], n[3]), midNode(n[3], n[0])
			c := centroid(m.Coords(id))
			ctr := m.AddNode(c[0], c[1], c[2])
			kids = [][]int{
				{n[0], m01, ctr, m30},
				{m01, n[1], m12, ctr},
				{ctr, m12, n[2], m23},
				{m30, ctr, m23, n[3]},
			}
		}
		kidIDs := make([]int, len(kids))
		for c, nodes := range kids {
			cid := m.AddElement(parent.Type, nodes, parent.Subdomain)
			ch := &m.Elements[cid]
			ch.Parent = id
			ch.Level = parent.Level + 1
			ch.ProcessorID = parent.ProcessorID
			kidIDs[c] = cid
		}
		for s := 0; s < parent.Type.NumSides(); s++ {
			for _, bid := range m.SideBoundaryIDs(id, s) {
				for _, cs := range childSidesOnParentSide(parent.Type, s) {
					m.AddSideBoundary(kidIDs[cs[0]], cs[1], bid)
				}
			}
		}
		p := &m.Elements[id]
		p.Children = kidIDs
		p.Active = false
		children = append(children, kidIDs...)
	}
	m.refineLowerD(refined, midNodes)
	m.FindNeighbors()
	return
}

func (m *Mesh) refineLowerD(refined map[int]bool, midNodes map[types.EdgeKey]int) {
	for _, id := range m.ActiveElements() {
		low := m.Elements[id]
		if low.InteriorParent == InvalidID || !refined[low.InteriorParent] {
			continue
		}
		parent := m.Elements[low.InteriorParent]
		s := low.InteriorSide
		cs := childSidesOnParentSide(parent.Type, s)
		switch low.Type {
		case types.Node1:
			m.Elements[id].InteriorParent = parent.Children[cs[0][0]]
			m.Elements[id].InteriorSide = cs[0][1]
		case types.Edge2:
			a, b := low.Nodes[0], low.Nodes[1]
			mid := midNodes[types.NewEdgeKey([2]int{a, b})]
			halves := [][]int{{a, mid}, {mid, b}}
			var kidIDs []int
			for c, nodes := range halves {
				cid := m.AddElement(types.Edge2, nodes, low.Subdomain)
				ch := &m.Elements[cid]
				ch.Parent = id
				ch.Level = low.Level + 1
				ch.ProcessorID = low.ProcessorID
				ch.InteriorParent = parent.Children[cs[c][0]]
				ch.InteriorSide = cs[c][1]
				kidIDs = append(kidIDs, cid)
			}
			m.Elements[id].Children = kidIDs
			m.Elements[id].Active = false
		}
	}
}

// RefineUniformly refines every active element of the mesh dimension.
func (m *Mesh) RefineUniformly() (children []int) {
	var elems []int
	for _, id := range m.ActiveElements() {
		if m.Elements[id].Type.Dim() == m.Dim {
			elems = append(elems, id)
		}
	}
	return m.Refine(elems)
}

// Coarsen restores each listed parent and removes its children. Children
// must be active leaves. The caller must notify the topology cache with
// MeshChanged afterwards.
func (m *Mesh) Coarsen(parents []int) {
	restore := make(map[int]bool, len(parents))
	for _, id := range parents {
		p := &m.Elements[id]
		if p.Active || p.Removed || len(p.Children) == 0 {
			utils.ConfigErrorf("Mesh.Coarsen", "element %d is not a refined parent", id)
		}
		for _, cid := range p.Children {
			if !m.Elements[cid].Active {
				utils.ConfigErrorf("Mesh.Coarsen", "child %d of element %d is not an active leaf", cid, id)
			}
		}
		restore[id] = true
	}
	if m.Dim == 2 {
		for _, id := range m.ActiveElements() {
			e := &m.Elements[id]
			if e.Type.Dim() == 2 && (e.Parent == InvalidID || !restore[e.Parent]) {
				utils.ConfigErrorf("Mesh.Coarsen",
					"partial coarsening of a QUAD4 mesh would create hanging nodes at element %d", id)
			}
		}
	}
	removed := make(map[int]int) // child -> parent
	for id := range restore {
		p := &m.Elements[id]
		for _, cid := range p.Children {
			removed[cid] = id
			ch := &m.Elements[cid]
			ch.Active = false
			ch.Removed = true
			for s := 0; s < ch.Type.NumSides(); s++ {
				m.RemoveSideBoundaries(cid, s)
			}
		}
		p.Children = nil
		p.Active = true
	}
	// Lower dimensional elements follow their interior parents back up
	for i := range m.Elements {
		low := &m.Elements[i]
		if low.Removed || low.InteriorParent == InvalidID {
			continue
		}
		parentID, ok := removed[low.InteriorParent]
		if !ok {
			continue
		}
		switch low.Type {
		case types.Node1:
			low.InteriorParent = parentID
		case types.Edge2:
			if low.Active && low.Parent != InvalidID {
				lp := &m.Elements[low.Parent]
				for _, cid := range lp.Children {
					m.Elements[cid].Active = false
					m.Elements[cid].Removed = true
				}
				lp.Children = nil
				lp.Active = true
			}
		}
	}
	m.removeOrphanNodes()
	m.FindNeighbors()
}

func (m *Mesh) removeOrphanNodes() {
	used := make([]bool, len(m.Nodes))
	for i := range m.Elements {
		if m.Elements[i].Removed {
			continue
		}
		for _, n := range m.Elements[i].Nodes {
			used[n] = true
		}
	}
	for i := range m.Nodes {
		m.Nodes[i].Removed = !used[i]
	}
}
