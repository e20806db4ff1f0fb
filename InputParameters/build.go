package InputParameters

import (
	"strings"

	"github.com/notargets/femcore/assembly"
	"github.com/notargets/femcore/mesh"
	"github.com/notargets/femcore/system"
	"github.com/notargets/femcore/utils"
)

// BuildMesh reads or generates the mesh, assigns the blocks, refines it and
// cuts the interfaces.
func (ip *InputParameters) BuildMesh() (m *mesh.Mesh, err error) {
	mp := ip.Mesh
	switch {
	case len(mp.File) != 0:
		if m, err = mesh.ReadGmsh(mp.File); err != nil {
			return
		}
	case mp.Dim == 1:
		m = mesh.GenerateLine(mp.NX, mp.XMin, mp.XMax)
	default:
		m = mesh.GenerateQuad(mp.NX, mp.NY, mp.XMin, mp.XMax, mp.YMin, mp.YMax)
	}
	for _, b := range mp.Blocks {
		for _, id := range m.ActiveElements() {
			e := m.Elem(id)
			if e.Type.Dim() != m.Dim {
				continue
			}
			c := m.Centroid(id)
			if c[0] >= b.XMin && c[0] <= b.XMax && (m.Dim == 1 || (c[1] >= b.YMin && c[1] <= b.YMax)) {
				e.Subdomain = mesh.SubdomainID(b.ID)
			}
		}
		if len(b.Name) != 0 {
			m.SetSubdomainName(mesh.SubdomainID(b.ID), b.Name)
		}
	}
	for i := 0; i < mp.Refine; i++ {
		m.RefineUniformly()
	}
	m.FindNeighbors()
	for _, ifc := range ip.Interfaces {
		var (
			primary   = blockID(m, ifc.Primary)
			secondary = blockID(m, ifc.Secondary)
			sides     = m.InterfaceSides(primary, secondary)
			bid       = mesh.BoundaryID(ifc.SidesetID)
		)
		if len(sides) == 0 {
			utils.ConfigErrorf("Interfaces", "blocks %q and %q do not touch", ifc.Primary, ifc.Secondary)
		}
		for _, key := range sides {
			m.AddSideBoundary(key.Elem(), key.Side(), bid)
		}
		if len(ifc.Sideset) != 0 {
			m.SetBoundaryName(bid, ifc.Sideset)
		}
		if len(ifc.LowerBlock) != 0 {
			m.AddLowerDBlock(mesh.SubdomainID(ifc.LowerID), ifc.LowerBlock, sides)
		}
	}
	return
}

func blockID(m *mesh.Mesh, name string) mesh.SubdomainID {
	for sid, n := range m.SubdomainNames() {
		if n == name {
			return sid
		}
	}
	utils.ConfigErrorf("Interfaces", "unknown block %q", name)
	return mesh.InvalidID
}

// BuildProblem prepares the topology cache for m, adds the variables and
// objects, runs Setup and applies the initial condition.
func (ip *InputParameters) BuildProblem(m *mesh.Mesh, metrics *utils.Metrics) *assembly.Problem {
	c := mesh.NewTopologyCache(m, metrics)
	c.Prepare()
	switch strings.ToUpper(ip.Mesh.CoordSystem) {
	case "", "XYZ":
	case "RZ":
		c.SetCoordSystem(mesh.CoordRZ, ip.Mesh.RZAxis)
	default:
		utils.ConfigErrorf("Mesh", "unknown coordinate system %q", ip.Mesh.CoordSystem)
	}
	p := assembly.NewProblem(ip.Title, c, metrics)
	if ip.Threads > 0 {
		p.Threads = ip.Threads
	}
	if ip.QuadratureOrder > 0 {
		p.QuadratureOrder = ip.QuadratureOrder
	}
	for _, v := range ip.Variables {
		p.AddVariable(variableParams(c, v))
	}
	for _, v := range ip.AuxVariables {
		p.AddAuxVariable(variableParams(c, v))
	}
	f := assembly.NewFactory()
	for _, o := range ip.Kernels {
		p.AddObject(f.Create(p, assembly.Params(o)))
	}
	for _, o := range ip.BCs {
		p.AddObject(f.Create(p, assembly.Params(o)))
	}
	p.Setup()
	for name, val := range ip.InitialCondition {
		v, ok := p.Variable(name)
		if !ok {
			utils.ConfigErrorf("InitialCondition", "unknown variable %q", name)
		}
		v.System().SetConstant(v, val)
	}
	return p
}

func variableParams(c *mesh.TopologyCache, v VariableParameters) system.VariableParams {
	field, err := system.ParseFieldType(v.Field)
	if err != nil {
		utils.ConfigErrorf(v.Name, "%s", err)
	}
	vp := system.VariableParams{
		Name:   v.Name,
		Family: v.Family,
		Order:  v.Order,
		Field:  field,
		Count:  v.Count,
		FV:     v.FV,
	}
	for _, name := range v.Blocks {
		sid, ok := c.SubdomainID(name)
		if !ok {
			utils.ConfigErrorf(v.Name, "unknown block %q", name)
		}
		vp.Blocks = append(vp.Blocks, sid)
	}
	return vp
}
