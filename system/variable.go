package system

import (
	"fmt"
	"sort"
	"strings"

	"github.com/notargets/femcore/fe"
	"github.com/notargets/femcore/mesh"
	"github.com/notargets/femcore/types"
	"github.com/notargets/femcore/utils"
)

type FieldType uint8

const (
	Standard FieldType = iota
	VectorField
	ArrayField
)

func (f FieldType) String() string {
	return [...]string{"STANDARD", "VECTOR", "ARRAY"}[f]
}

func ParseFieldType(s string) (FieldType, error) {
	switch strings.ToUpper(s) {
	case "", "STANDARD":
		return Standard, nil
	case "VECTOR":
		return VectorField, nil
	case "ARRAY":
		return ArrayField, nil
	}
	return Standard, fmt.Errorf("unknown field type %q", s)
}

// Kind separates variables the nonlinear solver updates from auxiliary
// variables computed by the application.
type Kind uint8

const (
	Nonlinear Kind = iota
	Aux
)

func (k Kind) String() string {
	return [...]string{"NONLINEAR", "AUXILIARY"}[k]
}

// Variable is one named field of a System. Number is unique within the
// system and is what the derivative vector offsets are computed from.
type Variable struct {
	name   string
	Number int
	FE     fe.FEType
	Field  FieldType
	Count  int // Components of an array variable
	Kind   Kind
	FV     bool // Cell centered finite volume variable
	blocks map[mesh.SubdomainID]bool
	sys    *System
}

// VariableParams describes a variable to add to a system. An empty Blocks
// list means the variable lives everywhere.
type VariableParams struct {
	Name   string
	Family string
	Order  string
	Field  FieldType
	Count  int
	Blocks []mesh.SubdomainID
	FV     bool
}

func (v *Variable) Name() string { return v.name }

// HasBlock is the block restriction check shared by variables and every
// residual object.
func (v *Variable) HasBlock(sid mesh.SubdomainID) bool {
	return v.blocks == nil || v.blocks[sid]
}

// DefinedOn reports whether the variable has DOFs on e. Unrestricted
// variables skip lower dimensional elements, which must be named explicitly.
func (v *Variable) DefinedOn(e *mesh.Element, meshDim int) bool {
	if v.blocks == nil {
		return e.Type.Dim() == meshDim
	}
	return v.blocks[e.Subdomain]
}

func (v *Variable) Blocks() (sids []mesh.SubdomainID) {
	for sid := range v.blocks {
		sids = append(sids, sid)
	}
	sort.Slice(sids, func(i, j int) bool { return sids[i] < sids[j] })
	return
}

func (v *Variable) System() *System { return v.sys }

func (v *Variable) NumComponents() int {
	switch v.Field {
	case VectorField:
		return 3
	case ArrayField:
		return v.Count
	}
	return 1
}

// NumDofs is the number of degrees of freedom the variable has on an
// element of type et. It depends only on the FE type and the element type.
func (v *Variable) NumDofs(et types.ElementType) int {
	return v.FE.NumShapes(et) * v.NumComponents()
}

func (v *Variable) String() string {
	return fmt.Sprintf("%s (#%d %s %s)", v.name, v.Number, v.FE, v.Field)
}

func newVariable(sys *System, number int, p VariableParams) *Variable {
	ft, err := fe.NewFEType(p.Family, p.Order)
	if err != nil {
		utils.ConfigErrorf(p.Name, "%v", err)
	}
	if p.FV && (ft.Family != fe.Monomial || ft.Order != fe.Constant) {
		utils.ConfigErrorf(p.Name, "finite volume variables must be MONOMIAL/CONSTANT, have %s", ft)
	}
	if p.Field == ArrayField && p.Count < 1 {
		utils.ConfigErrorf(p.Name, "array variables need a component count of at least one")
	}
	v := &Variable{
		name:   p.Name,
		Number: number,
		FE:     ft,
		Field:  p.Field,
		Count:  p.Count,
		Kind:   sys.Kind,
		FV:     p.FV,
		sys:    sys,
	}
	if len(p.Blocks) != 0 {
		v.blocks = make(map[mesh.SubdomainID]bool, len(p.Blocks))
		for _, sid := range p.Blocks {
			v.blocks[sid] = true
		}
	}
	return v
}
