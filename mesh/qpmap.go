package mesh

import (
	"math"
	"sync"

	"github.com/notargets/femcore/fe"
	"github.com/notargets/femcore/types"
)

// QpMap pairs a quadrature point on one element with the closest
// quadrature point on a related element, measured in the parent reference
// frame.
type QpMap struct {
	From     int
	To       int
	Distance float64
}

// ChildQpMap is a coarsening entry: the child and point a parent point
// takes its data from.
type ChildQpMap struct {
	Child int
	QpMap
}

type qpMapKey struct {
	et         types.ElementType
	order      int
	parentSide int
	child      int
	childSide  int
}

type qpMapStore struct {
	mu      sync.Mutex
	refine  map[qpMapKey][]QpMap
	coarsen map[qpMapKey][]ChildQpMap
}

func (c *TopologyCache) qpStore() *qpMapStore {
	c.check("QpMap")
	return c.qpMaps.Get(c.gen, func() *qpMapStore {
		return &qpMapStore{
			refine:  make(map[qpMapKey][]QpMap),
			coarsen: make(map[qpMapKey][]ChildQpMap),
		}
	})
}

// RefinementMap maps each quadrature point of child (on childSide, or the
// volume when childSide is -1) to the closest quadrature point of the
// parent (on parentSide, or the volume when -1). Entry i is for child point
// i. Ties go to the lowest parent point index.
func (c *TopologyCache) RefinementMap(et types.ElementType, order, parentSide, child, childSide int) []QpMap {
	var (
		store = c.qpStore()
		key   = qpMapKey{et, order, parentSide, child, childSide}
	)
	store.mu.Lock()
	defer store.mu.Unlock()
	if qm, ok := store.refine[key]; ok {
		return qm
	}
	c.countRebuild("refinement_map")
	parentPts := rulePoints(et, order, parentSide)
	childPts := rulePoints(et, order, childSide)
	qm := make([]QpMap, len(childPts))
	for i, p := range childPts {
		pp := fe.ChildToParent(et, child, p)
		j, d := closest(pp, parentPts)
		qm[i] = QpMap{From: j, To: i, Distance: d}
	}
	store.refine[key] = qm
	return qm
}

// CoarseningMap maps each volume quadrature point of a parent to the
// closest volume point among all of its children. Ties go to the lowest
// child, then the lowest point index.
func (c *TopologyCache) CoarseningMap(et types.ElementType, order int) []ChildQpMap {
	var (
		store = c.qpStore()
		key   = qpMapKey{et, order, -1, -1, -1}
	)
	store.mu.Lock()
	defer store.mu.Unlock()
	if qm, ok := store.coarsen[key]; ok {
		return qm
	}
	c.countRebuild("coarsening_map")
	pts := rulePoints(et, order, -1)
	qm := make([]ChildQpMap, len(pts))
	for i, p := range pts {
		best := ChildQpMap{Child: InvalidID, QpMap: QpMap{From: InvalidID, To: i, Distance: math.Inf(1)}}
		for ch := 0; ch < et.NumChildren(); ch++ {
			mapped := make([][3]float64, len(pts))
			for j, cp := range pts {
				mapped[j] = fe.ChildToParent(et, ch, cp)
			}
			j, d := closest(p, mapped)
			if d < best.Distance {
				best = ChildQpMap{Child: ch, QpMap: QpMap{From: j, To: i, Distance: d}}
			}
		}
		qm[i] = best
	}
	store.coarsen[key] = qm
	return qm
}

func rulePoints(et types.ElementType, order, side int) [][3]float64 {
	if side < 0 {
		return fe.NewQRule(et, order).Points
	}
	return fe.NewSideQRule(et, order, side).Points
}

// closest returns the first index of the point nearest to p.
func closest(p [3]float64, pts [][3]float64) (idx int, dist float64) {
	idx, dist = InvalidID, math.Inf(1)
	for i, q := range pts {
		var d2 float64
		for d := 0; d < 3; d++ {
			d2 += (p[d] - q[d]) * (p[d] - q[d])
		}
		if d := math.Sqrt(d2); d < dist {
			idx, dist = i, d
		}
	}
	return
}
