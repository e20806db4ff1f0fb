package assembly

import (
	"fmt"
	"sort"

	"github.com/notargets/femcore/ad"
	"github.com/notargets/femcore/mesh"
	"github.com/notargets/femcore/system"
	"github.com/notargets/femcore/types"
	"github.com/notargets/femcore/utils"
)

// Kind tags the residual object variants. The problem loops dispatch on it;
// each kind requires one of the residual interfaces below.
type Kind uint8

const (
	KernelKind Kind = iota
	IntegratedBCKind
	NodalBCKind
	DGKernelKind
	InterfaceKernelKind
	MortarKind
	FVElementalKind
	FVFluxKind
	FVFluxBCKind
	FVDirichletKind
)

func (k Kind) String() string {
	return [...]string{"Kernel", "IntegratedBC", "NodalBC", "DGKernel", "InterfaceKernel",
		"MortarConstraint", "FVElementalKernel", "FVFluxKernel", "FVFluxBC", "FVDirichletBC"}[k]
}

// BCType is the boundary condition class of objects of this kind.
func (k Kind) BCType() utils.BCType {
	switch k {
	case NodalBCKind, FVDirichletKind:
		return utils.BCDirichlet
	case IntegratedBCKind, FVFluxBCKind:
		return utils.BCNeumann
	case InterfaceKernelKind:
		return utils.BCInterface
	case MortarKind:
		return utils.BCMortar
	}
	return utils.BCNone
}

// Object is the contract every residual object satisfies. Block
// restriction is the same capability the mesh uses for FV variables.
type Object interface {
	mesh.BlockRestricted
	Kind() Kind
	Variable() *system.Variable
	base() *Base
}

// HandResidual objects supply a residual and its diagonal Jacobian per test
// function, trial function and quadrature point.
type HandResidual interface {
	Residual(a *Assembly, i, qp int) float64
	Jacobian(a *Assembly, i, j, qp int) float64
}

// Coupler objects read variables other than their own on the elements
// they run on.
type Coupler interface {
	CoupledVariables() []*system.Variable
}

// OffDiagJacobian is implemented by hand coded objects coupled to other
// variables.
type OffDiagJacobian interface {
	Coupler
	OffDiagJacobian(a *Assembly, jv *system.Variable, i, j, qp int) float64
}

// ADResidual objects supply an AD residual per test function and point. The
// Jacobian comes from slicing its derivatives.
type ADResidual interface {
	ADResidual(a *Assembly, i, qp int) ad.Real
}

// FaceResidual objects contribute to more than one role on a face or a lower
// dimensional element. RowVariable gives the test variable of each role;
// nil means the role takes no residual.
type FaceResidual interface {
	RowVariable(role types.ElementRole) *system.Variable
	ADFaceResidual(a *Assembly, role types.ElementRole, i, qp int) ad.Real
}

// NodalResidual objects replace the residual row at boundary nodes.
type NodalResidual interface {
	NodalResidual(a *Assembly, u float64) float64
}

// FVElementalResidual objects integrate over one cell, already multiplied
// by the cell volume.
type FVElementalResidual interface {
	FVResidual(a *Assembly, ei *mesh.ElemInfo) ad.Real
}

// FVFluxResidual objects return the flux out of the face's Elem side per
// unit area.
type FVFluxResidual interface {
	FVFlux(a *Assembly, f *FVFace) ad.Real
}

// FVBoundaryResidual objects return the outward flux per unit area on the
// side of the face where their variable lives.
type FVBoundaryResidual interface {
	FVBoundaryFlux(a *Assembly, f *FVBoundaryFace) ad.Real
}

// FVBoundaryValue objects fix the face value of their variable.
type FVBoundaryValue interface {
	BoundaryValue(fi *mesh.FaceInfo) float64
}

// Base carries what every object shares: its name, its variable and its
// block and boundary restriction. Concrete objects embed it.
type Base struct {
	name       string
	variable   *system.Variable
	blocks     map[mesh.SubdomainID]bool
	boundaries map[mesh.BoundaryID]bool
	saveIn     *system.Variable
	diagSaveIn *system.Variable
	order      int
}

func NewBase(name string, v *system.Variable) Base {
	return Base{name: name, variable: v}
}

func (b *Base) base() *Base                  { return b }
func (b *Base) Name() string                 { return b.name }
func (b *Base) Variable() *system.Variable   { return b.variable }
func (b *Base) SaveIn() *system.Variable     { return b.saveIn }
func (b *Base) DiagSaveIn() *system.Variable { return b.diagSaveIn }

// Restrict limits the object to the given blocks.
func (b *Base) Restrict(blocks ...mesh.SubdomainID) {
	b.blocks = make(map[mesh.SubdomainID]bool, len(blocks))
	for _, s := range blocks {
		b.blocks[s] = true
	}
}

// OnBoundary sets the boundaries of a boundary or interface object.
func (b *Base) OnBoundary(bids ...mesh.BoundaryID) {
	b.boundaries = make(map[mesh.BoundaryID]bool, len(bids))
	for _, bid := range bids {
		b.boundaries[bid] = true
	}
}

// SetSaveIn names auxiliary variables that receive this object's residual
// and Jacobian diagonal.
func (b *Base) SetSaveIn(saveIn, diagSaveIn *system.Variable) {
	b.saveIn, b.diagSaveIn = saveIn, diagSaveIn
}

// HasBlock falls back to the variable's blocks when the object has none.
func (b *Base) HasBlock(sid mesh.SubdomainID) bool {
	if b.blocks == nil {
		return b.variable.HasBlock(sid)
	}
	return b.blocks[sid]
}

func (b *Base) HasBoundary(bid mesh.BoundaryID) bool { return b.boundaries[bid] }

func (b *Base) Boundaries() (bids []mesh.BoundaryID) {
	for bid := range b.boundaries {
		bids = append(bids, bid)
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i] < bids[j] })
	return
}

// onAnyBoundary reports whether one of bids is among the object's
// boundaries.
func (b *Base) onAnyBoundary(bids []mesh.BoundaryID) bool {
	for _, bid := range bids {
		if b.boundaries[bid] {
			return true
		}
	}
	return false
}

func (b *Base) String() string {
	return fmt.Sprintf("%s on %s", b.name, b.variable.Name())
}

// FVFace is what a flux kernel sees of one face. On a one sided face with a
// Dirichlet condition the missing side carries the boundary value and
// Distance runs from the cell centroid to the face.
type FVFace struct {
	Info          *mesh.FaceInfo
	ElemValue     ad.Real
	NeighborValue ad.Real
	Distance      float64
	Type          types.FaceType
}

// FVBoundaryFace is a face seen from the side where a boundary condition's
// variable lives. Normal points out of that side.
type FVBoundaryFace struct {
	Info     *mesh.FaceInfo
	Value    ad.Real
	Normal   [3]float64
	Distance float64
	Role     types.ElementRole
}
