package mesh

import (
	"fmt"
	"math"
	"testing"

	"github.com/notargets/femcore/types"
	"github.com/notargets/femcore/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prepared(m *Mesh) (c *TopologyCache, metrics *utils.Metrics) {
	metrics = utils.NewMetrics(prometheus.NewRegistry())
	c = NewTopologyCache(m, metrics)
	c.Prepare()
	return
}

func TestCached(t *testing.T) {
	var (
		c      Cached[int]
		builds int
		build  = func() int { builds++; return builds }
	)
	assert.Equal(t, 1, c.Get(1, build))
	assert.Equal(t, 1, c.Get(1, build))
	assert.True(t, c.Valid(1))
	assert.False(t, c.Valid(2))
	assert.Equal(t, 2, c.Get(2, build))

	// A failed rebuild leaves the value dirty
	assert.Panics(t, func() { c.Get(3, func() int { panic("build failed") }) })
	assert.False(t, c.Valid(3))
	assert.Equal(t, 3, c.Get(3, build))
	c.Reset()
	assert.False(t, c.Valid(3))
}

func TestUnpreparedCache(t *testing.T) {
	c := NewTopologyCache(nil, nil)
	fe := utils.CatchFatal(func() { c.AllFaceInfo() })
	require.NotNil(t, fe)
	assert.Equal(t, utils.ConfigError, fe.Kind)
	assert.Equal(t, "TopologyCache", fe.Object)

	fe = utils.CatchFatal(func() { c.Prepare() })
	require.NotNil(t, fe)
	assert.Equal(t, utils.ConfigError, fe.Kind)

	c.SetMesh(GenerateLine(2, 0, 1))
	fe = utils.CatchFatal(func() { c.NodeToElemMap() })
	require.NotNil(t, fe)
	assert.Contains(t, fe.Error(), "not been prepared")

	c.Prepare()
	assert.Nil(t, utils.CatchFatal(func() { c.NodeToElemMap() }))
}

func TestBoundarySets(t *testing.T) {
	c, _ := prepared(GenerateQuad(2, 2, 0, 1, 0, 1))
	assert.Equal(t, []BoundaryID{Bottom, Right, Top, QuadLeft}, c.MeshBoundaryIDs())
	assert.Equal(t, []SubdomainID{0}, c.MeshSubdomains())
	assert.Equal(t, []int{0, 1, 2}, c.BoundaryNodes(Bottom))
	assert.Equal(t, []int{0, 1}, c.BoundaryElems(Bottom))
	assert.Equal(t, []int{0, 2}, c.BoundaryElems(QuadLeft))
	assert.True(t, c.IsBoundaryNode(2, Right))
	assert.False(t, c.IsBoundaryNode(4, Bottom))
	assert.True(t, c.IsBoundaryElem(3, Top))
	assert.False(t, c.IsBoundaryElem(0, Top))
	assert.Equal(t, []BoundaryID{Bottom}, c.BoundaryIDs(1, 0))

	bid, ok := c.BoundaryID("left")
	assert.True(t, ok)
	assert.Equal(t, QuadLeft, bid)
	bid, ok = c.BoundaryID("2")
	assert.True(t, ok)
	assert.Equal(t, Top, bid)
	_, ok = c.BoundaryID("nowhere")
	assert.False(t, ok)
	sid, ok := c.SubdomainID("0")
	assert.True(t, ok)
	assert.Equal(t, SubdomainID(0), sid)
}

func TestNodeSets(t *testing.T) {
	m := GenerateLine(2, 0, 1)
	m.AddNodeBoundary(1, 7)
	m.SetBoundaryName(7, "middle")
	c, _ := prepared(m)
	assert.Equal(t, []BoundaryID{Left, Right, 7}, c.MeshBoundaryIDs())
	assert.Equal(t, []int{1}, c.BoundaryNodes(7))
	assert.Empty(t, c.BoundaryElems(7))
	bid, ok := c.BoundaryID("middle")
	assert.True(t, ok)
	assert.Equal(t, BoundaryID(7), bid)
}

func TestNodeToElemMap(t *testing.T) {
	c, metrics := prepared(GenerateQuad(2, 2, 0, 1, 0, 1))
	n2e := c.NodeToElemMap()
	assert.Equal(t, 9, len(n2e))
	assert.Equal(t, []int{0, 1, 2, 3}, n2e[4])
	assert.Equal(t, []int{0}, n2e[0])
	assert.Equal(t, []int{0, 1}, c.NodeToElems(1))
	c.NodeToElemMap()
	assert.Equal(t, 1., testutil.ToFloat64(metrics.CacheRebuilds.WithLabelValues("node_to_elem")))

	if utils.Debug {
		fe := utils.CatchFatal(func() { c.NodeToElems(99) })
		require.NotNil(t, fe)
		assert.Equal(t, utils.InternalError, fe.Kind)
	} else {
		assert.Nil(t, c.NodeToElems(99))
	}
}

func TestNodeToActiveSemilocalElemMap(t *testing.T) {
	m := GenerateLine(4, 0, 1)
	m.Partition(2)
	m.SetRank(1)
	c, _ := prepared(m)
	n2e := c.NodeToActiveSemilocalElemMap()
	assert.Equal(t, 3, len(n2e))
	assert.Equal(t, []int{2}, n2e[2])
	assert.Equal(t, []int{2, 3}, n2e[3])
	_, ok := n2e[1]
	assert.False(t, ok)
}

// Face counts follow the mesh through refinement once MeshChanged runs
func TestFaceInfoInvalidation(t *testing.T) {
	t.Run("Line", func(t *testing.T) {
		m := GenerateLine(2, 0, 1)
		c, metrics := prepared(m)
		gen := c.Generation()
		assert.Equal(t, 3, len(c.AllFaceInfo()))
		m.Refine([]int{0})
		c.MeshChanged()
		assert.Equal(t, gen+1, c.Generation())
		assert.Equal(t, 4, len(c.AllFaceInfo()))
		assert.Equal(t, 2., testutil.ToFloat64(metrics.CacheRebuilds.WithLabelValues("face_info")))
		m.Coarsen([]int{0})
		c.MeshChanged()
		assert.Equal(t, 3, len(c.AllFaceInfo()))
	})
	t.Run("Quad", func(t *testing.T) {
		m := GenerateQuad(2, 2, 0, 1, 0, 1)
		c, _ := prepared(m)
		assert.Equal(t, 12, len(c.AllFaceInfo()))
		m.RefineUniformly()
		c.MeshChanged()
		assert.Equal(t, 40, len(c.AllFaceInfo()))
		assert.Equal(t, 4, len(c.BoundaryElems(Bottom)))
	})
}

type blockVar struct {
	name   string
	blocks map[SubdomainID]bool
}

func (v blockVar) Name() string                 { return v.name }
func (v blockVar) HasBlock(sid SubdomainID) bool { return v.blocks[sid] }

func TestFaceInfoGeometry(t *testing.T) {
	t.Run("Line", func(t *testing.T) {
		c, _ := prepared(GenerateLine(2, 0, 1))
		faces := c.AllFaceInfo()
		require.Equal(t, 3, len(faces))
		left, mid, right := faces[0], faces[1], faces[2]
		assert.True(t, left.IsBoundary())
		assert.True(t, left.HasBoundary(Left))
		assert.InDeltaSlice(t, []float64{-1, 0, 0}, left.Normal[:], 1.e-14)
		assert.InDelta(t, -0.25, left.NeighborCentroid[0], 1.e-14)
		assert.Equal(t, 0, mid.Elem)
		assert.Equal(t, 1, mid.ElemSide)
		assert.Equal(t, 1, mid.Neighbor)
		assert.Equal(t, 0, mid.NeighborSide)
		assert.InDeltaSlice(t, []float64{1, 0, 0}, mid.Normal[:], 1.e-14)
		assert.InDelta(t, 1., mid.Area, 1.e-14)
		assert.InDelta(t, 0.5, mid.DCN[0], 1.e-14)
		assert.InDelta(t, 0.5, mid.ElemVolume, 1.e-14)
		assert.InDelta(t, 1., mid.FaceCoord, 1.e-14)
		assert.InDeltaSlice(t, []float64{1, 0, 0}, right.Normal[:], 1.e-14)
		// Same record from either side
		assert.Same(t, mid, c.FaceInfo(1, 0))
		assert.Same(t, mid, c.FaceInfo(0, 1))
		assert.InDelta(t, 0.75, c.ElemInfo(1).Centroid[0], 1.e-14)
	})
	t.Run("Quad", func(t *testing.T) {
		c, _ := prepared(GenerateQuad(2, 2, 0, 1, 0, 1))
		fi := c.FaceInfo(0, 1)
		require.NotNil(t, fi)
		assert.InDeltaSlice(t, []float64{1, 0, 0}, fi.Normal[:], 1.e-14)
		assert.InDelta(t, 0.5, fi.Area, 1.e-14)
		fi = c.FaceInfo(2, 0)
		assert.Equal(t, 0, fi.Elem)
		assert.Equal(t, 2, fi.ElemSide)
		assert.InDeltaSlice(t, []float64{0, 1, 0}, fi.Normal[:], 1.e-14)
		for _, fi := range c.AllFaceInfo() {
			var l2, outward float64
			for d := 0; d < 3; d++ {
				l2 += fi.Normal[d] * fi.Normal[d]
				outward += fi.Normal[d] * (fi.FaceCentroid[d] - fi.ElemCentroid[d])
			}
			assert.InDelta(t, 1., l2, 1.e-12)
			assert.True(t, outward > 0, "normal must point out of the owner")
			if !fi.IsBoundary() {
				assert.True(t, fi.Elem < fi.Neighbor)
			}
		}
	})
	t.Run("RZ", func(t *testing.T) {
		c, _ := prepared(GenerateLine(2, 1, 2))
		c.SetCoordSystem(CoordRZ, 0)
		assert.InDelta(t, 3*math.Pi, c.FaceInfo(0, 1).FaceCoord, 1.e-12)
		assert.Equal(t, "RZ", c.CoordSystem().String())
	})
	t.Run("LevelJump", func(t *testing.T) {
		m := GenerateLine(2, 0, 1)
		m.Refine([]int{1})
		c, _ := prepared(m)
		// Coarse element 0 meets the finer child 2; the finer one owns the face
		fi := c.FaceInfo(0, 1)
		require.NotNil(t, fi)
		assert.Equal(t, 2, fi.Elem)
		assert.InDeltaSlice(t, []float64{-1, 0, 0}, fi.Normal[:], 1.e-14)
	})
	t.Run("SidesetOnEitherSide", func(t *testing.T) {
		m := GenerateLine(3, 0, 3)
		// Face 0|1 is tagged on the owner side, face 1|2 on both sides
		m.AddSideBoundary(0, 1, 7)
		m.AddSideBoundary(2, 0, 9)
		m.AddSideBoundary(1, 1, 9)
		m.AddSideBoundary(1, 1, 8)
		c, _ := prepared(m)
		first := c.FaceInfo(0, 1)
		require.NotNil(t, first)
		assert.Equal(t, []BoundaryID{7}, first.BoundaryIDs)
		second := c.FaceInfo(2, 0)
		require.NotNil(t, second)
		assert.Equal(t, 1, second.Elem)
		assert.Equal(t, []BoundaryID{8, 9}, second.BoundaryIDs)
		assert.True(t, second.HasBoundary(9))
		// The mesh side lists are not aliased by the merged record
		assert.Equal(t, []BoundaryID{9, 8}, m.SideBoundaryIDs(1, 1))
	})
	t.Run("LocalOnly", func(t *testing.T) {
		m := GenerateLine(4, 0, 1)
		m.Partition(2)
		c, _ := prepared(m)
		assert.Equal(t, 3, len(c.AllFaceInfo()))
		assert.Nil(t, c.FaceInfo(3, 1))
	})
}

func TestFaceTypes(t *testing.T) {
	m := GenerateLine(4, 0, 1)
	m.AssignSubdomains(func(c [3]float64) SubdomainID {
		if c[0] < 0.5 {
			return 0
		}
		return 1
	})
	c, _ := prepared(m)
	c.RegisterFVVariable(blockVar{"u", map[SubdomainID]bool{0: true}})
	c.RegisterFVVariable(blockVar{"v", map[SubdomainID]bool{1: true}})
	c.RegisterFVVariable(blockVar{"w", map[SubdomainID]bool{0: true, 1: true}})

	var got []string
	for _, fi := range c.AllFaceInfo() {
		got = append(got, fmt.Sprintf("%s/%s/%s", fi.FaceType("u"), fi.FaceType("v"), fi.FaceType("w")))
	}
	assert.Equal(t, []string{
		"ELEM/NEITHER/ELEM",
		"BOTH/NEITHER/BOTH",
		"ELEM/NEIGHBOR/BOTH",
		"NEITHER/BOTH/BOTH",
		"NEITHER/ELEM/ELEM",
	}, got)
	assert.Equal(t, types.FaceNeither, c.AllFaceInfo()[0].FaceType("unknown"))

	// Never NEITHER next to a block the variable lives on
	for _, name := range []string{"u", "v", "w"} {
		for _, fi := range c.AllFaceInfo() {
			active := (name != "v" && fi.ElemSubdomain == 0) || (name != "u" && fi.ElemSubdomain == 1) ||
				(!fi.IsBoundary() && ((name != "v" && fi.NeighborSubdomain == 0) || (name != "u" && fi.NeighborSubdomain == 1)))
			if active {
				assert.NotEqual(t, types.FaceNeither, fi.FaceType(name))
			}
		}
	}
	counts := c.FaceTypeCounts("u")
	assert.Equal(t, 2, counts[types.FaceNeither])
	assert.Equal(t, 2, counts[types.FaceElem])
}
