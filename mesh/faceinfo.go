package mesh

import (
	"sort"

	"github.com/notargets/femcore/fe"
	"github.com/notargets/femcore/types"
)

// FaceInfo is the geometric record of one face of the mesh. Elem is the
// face owner: the lower ID element when both sides have the same refinement
// level, otherwise the finer one. Normal always points out of Elem; anything
// that needs the other orientation negates it.
type FaceInfo struct {
	Elem, ElemSide         int
	Neighbor, NeighborSide int // InvalidID on a physical boundary
	ElemSubdomain          SubdomainID
	NeighborSubdomain      SubdomainID

	Normal           [3]float64
	Area             float64
	FaceCentroid     [3]float64
	ElemCentroid     [3]float64
	NeighborCentroid [3]float64 // Reflected through the face on a boundary
	ElemVolume       float64
	NeighborVolume   float64
	DCN              [3]float64 // NeighborCentroid - ElemCentroid
	FaceCoord        float64    // Coordinate transformation factor at the face centroid

	BoundaryIDs []BoundaryID
	faceTypes   map[string]types.FaceType
}

func (fi *FaceInfo) IsBoundary() bool { return fi.Neighbor == InvalidID }

// FaceType returns where an FV variable has degrees of freedom around the
// face. Variables never registered with the cache are FaceNeither.
func (fi *FaceInfo) FaceType(varName string) types.FaceType {
	return fi.faceTypes[varName]
}

// HasBoundary reports whether the face carries boundary bid.
func (fi *FaceInfo) HasBoundary(bid BoundaryID) bool {
	for _, b := range fi.BoundaryIDs {
		if b == bid {
			return true
		}
	}
	return false
}

// ElemInfo is the geometric record of one active element.
type ElemInfo struct {
	Elem      int
	Subdomain SubdomainID
	Centroid  [3]float64
	Volume    float64
	Coord     float64
}

type faceTable struct {
	faces []*FaceInfo
	index map[types.ElemSideKey]*FaceInfo
	elems map[int]*ElemInfo
}

// AllFaceInfo returns one record per face that touches a locally owned
// element, rebuilding first if the mesh changed since the last build.
func (c *TopologyCache) AllFaceInfo() []*FaceInfo {
	return c.faceTable().faces
}

// FaceInfo returns the record of the face on side of elem, looked up from
// either side of the face. Faces between two ghost elements are not kept
// and return nil.
func (c *TopologyCache) FaceInfo(elem, side int) *FaceInfo {
	return c.faceTable().index[types.NewElemSideKey(elem, side)]
}

func (c *TopologyCache) ElemInfo(elem int) *ElemInfo {
	return c.faceTable().elems[elem]
}

// FaceTypeCounts tallies the face types of an FV variable.
func (c *TopologyCache) FaceTypeCounts(varName string) map[types.FaceType]int {
	counts := make(map[types.FaceType]int)
	for _, fi := range c.AllFaceInfo() {
		counts[fi.FaceType(varName)]++
	}
	return counts
}

func (c *TopologyCache) faceTable() *faceTable {
	c.check("FaceInfo")
	return c.faces.Get(c.gen, func() *faceTable {
		c.countRebuild("face_info")
		return c.buildFaceTable()
	})
}

// ownsFace decides which of two face neighbors carries the face record.
func ownsFace(m Backend, elem, nbr int) bool {
	if nbr == InvalidID {
		return true
	}
	le, ln := m.Elem(elem).Level, m.Elem(nbr).Level
	if le == ln {
		return elem < nbr
	}
	return le > ln
}

func (c *TopologyCache) buildFaceTable() (ft *faceTable) {
	var (
		m     = c.mesh
		dim   = m.Dimension()
		geom  = fe.NewFE(fe.FEType{Family: fe.Lagrange, Order: fe.First})
		fvVar []BlockRestricted
	)
	c.fvMu.Lock()
	fvVar = append(fvVar, c.fvVars...)
	c.fvMu.Unlock()
	ft = &faceTable{
		index: make(map[types.ElemSideKey]*FaceInfo),
		elems: make(map[int]*ElemInfo),
	}
	for _, id := range m.ActiveElements() {
		e := m.Elem(id)
		if e.Type.Dim() != dim {
			continue
		}
		for s := 0; s < e.Type.NumSides(); s++ {
			nbr := m.Neighbor(id, s)
			if !ownsFace(m, id, nbr) || !isLocalFace(m, id, nbr) {
				continue
			}
			geom.ReinitSide(e.Type, elemCoords(m, id), fe.NewSideQRule(e.Type, 0, s))
			fi := &FaceInfo{
				Elem:              id,
				ElemSide:          s,
				Neighbor:          nbr,
				NeighborSide:      InvalidID,
				ElemSubdomain:     e.Subdomain,
				NeighborSubdomain: InvalidID,
				Normal:            geom.Normals[0],
				FaceCentroid:      geom.QPoints[0],
				BoundaryIDs:       m.SideBoundaryIDs(id, s),
				faceTypes:         make(map[string]types.FaceType, len(fvVar)),
			}
			for _, w := range geom.JxW {
				fi.Area += w
			}
			fi.FaceCoord = c.CoordFactor(fi.FaceCentroid)
			ei := c.elemInfo(ft, geom, id)
			fi.ElemCentroid, fi.ElemVolume = ei.Centroid, ei.Volume
			if nbr != InvalidID {
				ni := c.elemInfo(ft, geom, nbr)
				fi.NeighborSide = neighborSide(m, id, nbr)
				fi.BoundaryIDs = unionBoundaryIDs(fi.BoundaryIDs, m.SideBoundaryIDs(nbr, fi.NeighborSide))
				fi.NeighborSubdomain = m.Elem(nbr).Subdomain
				fi.NeighborCentroid, fi.NeighborVolume = ni.Centroid, ni.Volume
			} else {
				for d := 0; d < 3; d++ {
					fi.NeighborCentroid[d] = 2*fi.FaceCentroid[d] - fi.ElemCentroid[d]
				}
			}
			for d := 0; d < 3; d++ {
				fi.DCN[d] = fi.NeighborCentroid[d] - fi.ElemCentroid[d]
			}
			for _, v := range fvVar {
				onNbr := nbr != InvalidID && v.HasBlock(fi.NeighborSubdomain)
				fi.faceTypes[v.Name()] = types.NewFaceType(v.HasBlock(e.Subdomain), onNbr)
			}
			ft.faces = append(ft.faces, fi)
			ft.index[types.NewElemSideKey(id, s)] = fi
			if nbr != InvalidID {
				ft.index[types.NewElemSideKey(nbr, fi.NeighborSide)] = fi
			}
		}
	}
	return
}

func (c *TopologyCache) elemInfo(ft *faceTable, geom *fe.FE, id int) *ElemInfo {
	if ei, ok := ft.elems[id]; ok {
		return ei
	}
	var (
		e      = c.mesh.Elem(id)
		coords = elemCoords(c.mesh, id)
		vol    = fe.NewFE(geom.Type)
	)
	vol.Reinit(e.Type, coords, fe.NewQRule(e.Type, 2))
	ei := &ElemInfo{Elem: id, Subdomain: e.Subdomain, Centroid: centroid(coords)}
	for _, w := range vol.JxW {
		ei.Volume += w
	}
	ei.Coord = c.CoordFactor(ei.Centroid)
	ft.elems[id] = ei
	return ei
}

// unionBoundaryIDs merges the sidesets attached to either side of a face into
// a fresh sorted slice without duplicates.
func unionBoundaryIDs(a, b []BoundaryID) []BoundaryID {
	if len(b) == 0 {
		return a
	}
	out := make([]BoundaryID, 0, len(a)+len(b))
	out = append(append(out, a...), b...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, id := range out {
		if i == 0 || id != out[n-1] {
			out[n] = id
			n++
		}
	}
	return out[:n]
}

// neighborSide returns the local side of nbr that touches elem.
func neighborSide(m Backend, elem, nbr int) int {
	for s := 0; s < m.Elem(nbr).Type.NumSides(); s++ {
		if m.Neighbor(nbr, s) == elem {
			return s
		}
	}
	return InvalidID
}

func elemCoords(m Backend, id int) [][3]float64 {
	e := m.Elem(id)
	X := make([][3]float64, len(e.Nodes))
	for i, n := range e.Nodes {
		X[i] = m.Node(n).X
	}
	return X
}
