package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/notargets/femcore/types"
)

// gmshElementType22 maps the Gmsh v2.2 element numbers we support
var gmshElementType22 = map[int]types.ElementType{
	1:  types.Edge2, // 2-node line
	3:  types.Quad4, // 4-node quadrangle
	15: types.Node1, // 1-node point
}

type gmshElement struct {
	id    int
	etype types.ElementType
	tag   int
	nodes []int
}

type gmshFile struct {
	version  string
	names    map[int]string // Physical tag to name
	nodeIdx  map[int]int    // Gmsh node ID to mesh node index
	coords   [][3]float64
	elements []gmshElement
}

// ReadGmsh reads a Gmsh MSH 2.2 ASCII file. Elements of the highest
// dimension become the mesh, with their physical tag as subdomain. Lower
// dimension elements lying on a side become sidesets, points in a 2D mesh
// become nodesets, both with their physical tag as boundary ID.
func ReadGmsh(filename string) (*Mesh, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	m, err := ParseGmsh(file)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	return m, nil
}

func ParseGmsh(r io.Reader) (*Mesh, error) {
	var (
		scanner = bufio.NewScanner(r)
		gf      = &gmshFile{
			names:   make(map[int]string),
			nodeIdx: make(map[int]int),
		}
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var err error
		switch line {
		case "$MeshFormat":
			err = gf.readMeshFormat(scanner)
		case "$PhysicalNames":
			err = gf.readPhysicalNames(scanner)
		case "$Nodes":
			err = gf.readNodes(scanner)
		case "$Elements":
			err = gf.readElements(scanner)
		default:
			if strings.HasPrefix(line, "$") && !strings.HasPrefix(line, "$End") {
				// Skip data and periodic sections
				skipTo(scanner, "$End"+line[1:])
			}
		}
		if err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}
	if !strings.HasPrefix(gf.version, "2.") {
		return nil, fmt.Errorf("unsupported Gmsh format version %q, need 2.2", gf.version)
	}
	return gf.build()
}

func skipTo(scanner *bufio.Scanner, marker string) {
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == marker {
			return
		}
	}
}

func (gf *gmshFile) readMeshFormat(scanner *bufio.Scanner) error {
	if !scanner.Scan() {
		return fmt.Errorf("unexpected EOF in MeshFormat")
	}
	parts := strings.Fields(scanner.Text())
	if len(parts) < 3 {
		return fmt.Errorf("invalid MeshFormat line")
	}
	gf.version = parts[0]
	if parts[1] != "0" {
		return fmt.Errorf("binary Gmsh files are not supported")
	}
	skipTo(scanner, "$EndMeshFormat")
	return nil
}

func (gf *gmshFile) readPhysicalNames(scanner *bufio.Scanner) error {
	if !scanner.Scan() {
		return fmt.Errorf("unexpected EOF in PhysicalNames")
	}
	numNames, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return fmt.Errorf("invalid physical name count: %w", err)
	}
	for i := 0; i < numNames; i++ {
		if !scanner.Scan() {
			return fmt.Errorf("unexpected EOF reading physical names")
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) < 3 {
			return fmt.Errorf("invalid physical name line: %s", scanner.Text())
		}
		tag, err := strconv.Atoi(parts[1])
		if err != nil {
			return fmt.Errorf("invalid physical tag: %w", err)
		}
		gf.names[tag] = strings.Trim(strings.Join(parts[2:], " "), "\"")
	}
	skipTo(scanner, "$EndPhysicalNames")
	return nil
}

func (gf *gmshFile) readNodes(scanner *bufio.Scanner) error {
	if !scanner.Scan() {
		return fmt.Errorf("unexpected EOF in Nodes")
	}
	numNodes, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return fmt.Errorf("invalid node count: %w", err)
	}
	for i := 0; i < numNodes; i++ {
		if !scanner.Scan() {
			return fmt.Errorf("unexpected EOF reading nodes")
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) < 4 {
			return fmt.Errorf("invalid node line: %s", scanner.Text())
		}
		nodeID, err := strconv.Atoi(parts[0])
		if err != nil {
			return fmt.Errorf("invalid node id: %w", err)
		}
		var X [3]float64
		for d := 0; d < 3; d++ {
			if X[d], err = strconv.ParseFloat(parts[1+d], 64); err != nil {
				return fmt.Errorf("node %d: %w", nodeID, err)
			}
		}
		gf.nodeIdx[nodeID] = len(gf.coords)
		gf.coords = append(gf.coords, X)
	}
	skipTo(scanner, "$EndNodes")
	return nil
}

func (gf *gmshFile) readElements(scanner *bufio.Scanner) error {
	if !scanner.Scan() {
		return fmt.Errorf("unexpected EOF in Elements")
	}
	numElements, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return fmt.Errorf("invalid element count: %w", err)
	}
	for i := 0; i < numElements; i++ {
		if !scanner.Scan() {
			return fmt.Errorf("unexpected EOF reading elements")
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) < 3 {
			return fmt.Errorf("invalid element line")
		}
		elemID, _ := strconv.Atoi(parts[0])
		gmshType, _ := strconv.Atoi(parts[1])
		numTags, _ := strconv.Atoi(parts[2])
		if len(parts) < 3+numTags {
			return fmt.Errorf("element %d: invalid element tags", elemID)
		}
		etype, ok := gmshElementType22[gmshType]
		if !ok {
			return fmt.Errorf("element %d: unsupported Gmsh element type %d", elemID, gmshType)
		}
		var tag int
		if numTags > 0 {
			tag, _ = strconv.Atoi(parts[3])
		}
		nodeStart := 3 + numTags
		if len(parts) < nodeStart+etype.NumNodes() {
			return fmt.Errorf("element %d: expected %d nodes, got %d",
				elemID, etype.NumNodes(), len(parts)-nodeStart)
		}
		ge := gmshElement{id: elemID, etype: etype, tag: tag, nodes: make([]int, etype.NumNodes())}
		for j := range ge.nodes {
			nodeID, _ := strconv.Atoi(parts[nodeStart+j])
			if ge.nodes[j], ok = gf.nodeIdx[nodeID]; !ok {
				return fmt.Errorf("element %d: unknown node %d", elemID, nodeID)
			}
		}
		gf.elements = append(gf.elements, ge)
	}
	skipTo(scanner, "$EndElements")
	return nil
}

func (gf *gmshFile) build() (*Mesh, error) {
	dim := 0
	for _, ge := range gf.elements {
		if d := ge.etype.Dim(); d > dim {
			dim = d
		}
	}
	if dim == 0 {
		return nil, fmt.Errorf("no line or quadrilateral elements found")
	}
	m := NewMesh(dim)
	for _, X := range gf.coords {
		m.AddNode(X[:]...)
	}
	for _, ge := range gf.elements {
		if ge.etype.Dim() == dim {
			sid := SubdomainID(ge.tag)
			m.AddElement(ge.etype, ge.nodes, sid)
			if name, ok := gf.names[ge.tag]; ok {
				m.SetSubdomainName(sid, name)
			}
		}
	}
	m.FindNeighbors()
	sides := make(map[types.EdgeKey]types.ElemSideKey)
	for _, id := range m.ActiveElements() {
		for s := 0; s < m.Elements[id].Type.NumSides(); s++ {
			sides[sideKey(m.SideNodes(id, s))] = types.NewElemSideKey(id, s)
		}
	}
	for _, ge := range gf.elements {
		if ge.etype.Dim() == dim {
			continue
		}
		bid := BoundaryID(ge.tag)
		if name, ok := gf.names[ge.tag]; ok {
			m.SetBoundaryName(bid, name)
		}
		if ge.etype.Dim() == dim-1 {
			key, ok := sides[sideKey(ge.nodes)]
			if !ok {
				return nil, fmt.Errorf("boundary element %d does not lie on any element side", ge.id)
			}
			m.AddSideBoundary(key.Elem(), key.Side(), bid)
			continue
		}
		for _, n := range ge.nodes {
			m.AddNodeBoundary(n, bid)
		}
	}
	return m, nil
}
