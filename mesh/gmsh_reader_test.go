package mesh

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/notargets/femcore/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoQuadMsh = `$MeshFormat
2.2 0 8
$EndMeshFormat
$PhysicalNames
4
1 1 "left"
1 2 "right"
2 10 "block"
0 5 "corner"
$EndPhysicalNames
$Nodes
6
1 0 0 0
2 1 0 0
3 2 0 0
4 0 1 0
5 1 1 0
6 2 1 0
$EndNodes
$Elements
5
1 1 2 1 1 1 4
2 1 2 2 2 3 6
3 3 2 10 1 1 2 5 4
4 3 2 10 1 2 3 6 5
5 15 2 5 1 1
$EndElements
$NodeData
1
"ignored"
$EndNodeData
`

// Helper function to create temporary test files
func createTempMshFile(t *testing.T, content string) string {
	t.Helper()
	tmpFile := filepath.Join(t.TempDir(), "test.msh")
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	return tmpFile
}

func TestReadGmsh(t *testing.T) {
	m, err := ReadGmsh(createTempMshFile(t, twoQuadMsh))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Dim)
	assert.Equal(t, 6, len(m.Nodes))
	require.Equal(t, 2, len(m.Elements))
	assert.Equal(t, types.Quad4, m.Elements[0].Type)
	assert.Equal(t, []int{0, 1, 4, 3}, m.Elements[0].Nodes)
	assert.Equal(t, SubdomainID(10), m.Elements[1].Subdomain)
	assert.Equal(t, "block", m.SubdomainName(10))
	assert.Equal(t, 1, m.Neighbor(0, 1))
	assert.Equal(t, []BoundaryID{1}, m.SideBoundaryIDs(0, 3))
	assert.Equal(t, []BoundaryID{2}, m.SideBoundaryIDs(1, 1))
	assert.Equal(t, "right", m.BoundaryName(2))
	assert.Equal(t, []BoundaryID{5}, m.NodeBoundaryIDs(0))

	c, _ := prepared(m)
	bid, ok := c.BoundaryID("corner")
	assert.True(t, ok)
	assert.Equal(t, []int{0}, c.BoundaryNodes(bid))
	assert.Equal(t, 7, len(c.AllFaceInfo()))
}

func TestReadGmshErrors(t *testing.T) {
	_, err := ReadGmsh(filepath.Join(t.TempDir(), "missing.msh"))
	assert.Error(t, err)

	_, err = ParseGmsh(strings.NewReader(strings.Replace(twoQuadMsh, "2.2 0 8", "4.1 0 8", 1)))
	assert.ErrorContains(t, err, "unsupported Gmsh format version")

	_, err = ParseGmsh(strings.NewReader(strings.Replace(twoQuadMsh, "4 3 2 10 1 2 3 6 5", "4 3 2 10 1 2 3 6 9", 1)))
	assert.ErrorContains(t, err, "unknown node 9")

	_, err = ParseGmsh(strings.NewReader(strings.Replace(twoQuadMsh, "4 3 2 10 1 2 3 6 5", "4 2 2 10 1 2 3 6", 1)))
	assert.ErrorContains(t, err, "unsupported Gmsh element type 2")

	_, err = ParseGmsh(strings.NewReader(strings.Replace(twoQuadMsh, "2 1 2 2 2 3 6", "2 1 2 2 2 1 6", 1)))
	assert.ErrorContains(t, err, "does not lie on any element side")
}

func TestReadGmshInternalSideset(t *testing.T) {
	msh := strings.NewReplacer(
		"4\n1 1 \"left\"", "5\n1 3 \"iface\"\n1 1 \"left\"",
		"$Elements\n5\n", "$Elements\n6\n",
		"5 15 2 5 1 1\n", "5 15 2 5 1 1\n6 1 2 3 3 5 2\n",
	).Replace(twoQuadMsh)
	m, err := ParseGmsh(strings.NewReader(msh))
	require.NoError(t, err)
	// The shared edge is stored on whichever element the reader visited last
	tagged := len(m.SideBoundaryIDs(0, 1)) + len(m.SideBoundaryIDs(1, 3))
	require.Equal(t, 1, tagged)

	c, _ := prepared(m)
	bid, ok := c.BoundaryID("iface")
	require.True(t, ok)
	fi := c.FaceInfo(0, 1)
	require.NotNil(t, fi)
	assert.False(t, fi.IsBoundary())
	assert.Equal(t, 0, fi.Elem)
	assert.Equal(t, []BoundaryID{bid}, fi.BoundaryIDs)
	assert.Same(t, fi, c.FaceInfo(1, 3))
}
