package InputParameters

import (
	"fmt"
	"sort"

	"github.com/ghodss/yaml"
)

// Parameters obtained from the YAML input file
type InputParameters struct {
	Title            string                `yaml:"Title"`
	Mesh             MeshParameters        `yaml:"Mesh"`
	Variables        []VariableParameters  `yaml:"Variables"`
	AuxVariables     []VariableParameters  `yaml:"AuxVariables"`
	Kernels          []ObjectParameters    `yaml:"Kernels"`
	BCs              []ObjectParameters    `yaml:"BCs"`
	Threads          int                   `yaml:"Threads"`
	QuadratureOrder  int                   `yaml:"QuadratureOrder"`
	InitialCondition map[string]float64    `yaml:"InitialCondition"` // Constant value per variable name
	Interfaces       []InterfaceParameters `yaml:"Interfaces"`
}

type MeshParameters struct {
	Dim         int               `yaml:"Dim"`
	NX          int               `yaml:"NX"`
	NY          int               `yaml:"NY"`
	XMin        float64           `yaml:"XMin"`
	XMax        float64           `yaml:"XMax"`
	YMin        float64           `yaml:"YMin"`
	YMax        float64           `yaml:"YMax"`
	File        string            `yaml:"File"` // Gmsh file, replaces the generated mesh
	Refine      int               `yaml:"Refine"`
	CoordSystem string            `yaml:"CoordSystem"` // XYZ or RZ
	RZAxis      int               `yaml:"RZAxis"`
	Blocks      []BlockParameters `yaml:"Blocks"`
}

// BlockParameters assigns elements whose centroid lies in the box to a
// subdomain. Later blocks win.
type BlockParameters struct {
	Name string  `yaml:"Name"`
	ID   int     `yaml:"ID"`
	XMin float64 `yaml:"XMin"`
	XMax float64 `yaml:"XMax"`
	YMin float64 `yaml:"YMin"`
	YMax float64 `yaml:"YMax"`
}

// InterfaceParameters names the sides between two blocks as a sideset and
// optionally builds a lower dimensional block on them.
type InterfaceParameters struct {
	Primary    string `yaml:"Primary"`
	Secondary  string `yaml:"Secondary"`
	Sideset    string `yaml:"Sideset"`
	SidesetID  int    `yaml:"SidesetID"`
	LowerBlock string `yaml:"LowerBlock"`
	LowerID    int    `yaml:"LowerID"`
}

type VariableParameters struct {
	Name   string   `yaml:"Name"`
	Family string   `yaml:"Family"`
	Order  string   `yaml:"Order"`
	Field  string   `yaml:"Field"`
	Count  int      `yaml:"Count"`
	Blocks []string `yaml:"Blocks"`
	FV     bool     `yaml:"FV"`
}

// ObjectParameters has the field layout of assembly.Params, so one converts
// to the other directly.
type ObjectParameters struct {
	Type       string             `yaml:"Type"`
	Name       string             `yaml:"Name"`
	Variable   string             `yaml:"Variable"`
	Coupled    map[string]string  `yaml:"Coupled"`
	Blocks     []string           `yaml:"Blocks"`
	Boundary   []string           `yaml:"Boundary"`
	Values     map[string]float64 `yaml:"Values"`
	SaveIn     string             `yaml:"SaveIn"`
	DiagSaveIn string             `yaml:"DiagSaveIn"`
}

func (ip *InputParameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, ip); err != nil {
		return err
	}
	return ip.check()
}

func (ip *InputParameters) check() error {
	m := &ip.Mesh
	if len(m.File) == 0 {
		if m.Dim != 1 && m.Dim != 2 {
			return fmt.Errorf("mesh dimension must be 1 or 2, have %d", m.Dim)
		}
		if m.NX < 1 || (m.Dim == 2 && m.NY < 1) {
			return fmt.Errorf("mesh needs at least one element per direction, have NX=%d NY=%d", m.NX, m.NY)
		}
		if m.XMax <= m.XMin || (m.Dim == 2 && m.YMax <= m.YMin) {
			return fmt.Errorf("mesh bounds are empty")
		}
	}
	if len(ip.Variables) == 0 {
		return fmt.Errorf("no variables")
	}
	for _, o := range append(append([]ObjectParameters{}, ip.Kernels...), ip.BCs...) {
		if len(o.Type) == 0 || len(o.Variable) == 0 {
			return fmt.Errorf("object %q needs a Type and a Variable", o.Name)
		}
	}
	return nil
}

func (ip *InputParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	m := ip.Mesh
	if len(m.File) != 0 {
		fmt.Printf("[%s]\t\t= Mesh File\n", m.File)
	} else {
		fmt.Printf("[%dD %dx%d]\t\t= Mesh\n", m.Dim, m.NX, m.NY)
	}
	fmt.Printf("[%d]\t\t\t\t= Refinements\n", m.Refine)
	fmt.Printf("[%d]\t\t\t\t= Threads\n", ip.Threads)
	for _, v := range ip.Variables {
		fmt.Printf("Variable[%s] = %s/%s %v\n", v.Name, v.Family, v.Order, v.Blocks)
	}
	for _, v := range ip.AuxVariables {
		fmt.Printf("AuxVariable[%s] = %s/%s %v\n", v.Name, v.Family, v.Order, v.Blocks)
	}
	for _, k := range ip.Kernels {
		fmt.Printf("Kernels[%s] = %s on %s %v\n", k.Name, k.Type, k.Variable, k.Values)
	}
	for _, bc := range ip.BCs {
		fmt.Printf("BCs[%s] = %s on %s %v %v\n", bc.Name, bc.Type, bc.Variable, bc.Boundary, bc.Values)
	}
	keys := make([]string, 0, len(ip.InitialCondition))
	for k := range ip.InitialCondition {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("InitialCondition[%s] = %v\n", key, ip.InitialCondition[key])
	}
}
