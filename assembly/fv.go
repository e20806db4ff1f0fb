package assembly

import (
	"math"

	"github.com/notargets/femcore/ad"
	"github.com/notargets/femcore/mesh"
	"github.com/notargets/femcore/types"
	"github.com/notargets/femcore/utils"
)

// FVDiffusion is the two point diffusive flux D (uElem - uNeighbor) / d.
type FVDiffusion struct {
	Base
	D float64
}

func NewFVDiffusion(b Base, d float64) *FVDiffusion { return &FVDiffusion{Base: b, D: d} }

func (k *FVDiffusion) Kind() Kind { return FVFluxKind }

func (k *FVDiffusion) FVFlux(a *Assembly, f *FVFace) ad.Real {
	return f.ElemValue.Sub(f.NeighborValue).Scale(k.D / f.Distance)
}

// FVBodyForce is the cell source -f V.
type FVBodyForce struct {
	Base
	Value float64
}

func NewFVBodyForce(b Base, value float64) *FVBodyForce { return &FVBodyForce{Base: b, Value: value} }

func (k *FVBodyForce) Kind() Kind { return FVElementalKind }

func (k *FVBodyForce) FVResidual(a *Assembly, ei *mesh.ElemInfo) ad.Real {
	return ad.Constant(-k.Value * ei.Volume * ei.Coord)
}

// FVNeumannBC prescribes the flux through its faces: the outward flux
// Flux . n when Flux is set, otherwise the inflow Value.
type FVNeumannBC struct {
	Base
	Value float64
	Flux  *[3]float64
}

func NewFVNeumannBC(b Base, value float64) *FVNeumannBC { return &FVNeumannBC{Base: b, Value: value} }

func (bc *FVNeumannBC) Kind() Kind { return FVFluxBCKind }

func (bc *FVNeumannBC) FVBoundaryFlux(a *Assembly, f *FVBoundaryFace) ad.Real {
	if bc.Flux != nil {
		return ad.Constant(dot(*bc.Flux, f.Normal))
	}
	return ad.Constant(-bc.Value)
}

// FVDirichletBC fixes the face value. It has no residual of its own; flux
// kernels use its value on the faces it covers.
type FVDirichletBC struct {
	Base
	Value float64
}

func NewFVDirichletBC(b Base, value float64) *FVDirichletBC { return &FVDirichletBC{Base: b, Value: value} }

func (bc *FVDirichletBC) Kind() Kind { return FVDirichletKind }

func (bc *FVDirichletBC) BoundaryValue(fi *mesh.FaceInfo) float64 { return bc.Value }

// BCNormal is the normal a boundary condition uses on a one sided face:
// out of the side where its variable lives. The face normal points out of
// the face's Elem, so it is negated when the variable is only on the
// neighbor side.
func BCNormal(fi *mesh.FaceInfo, ft types.FaceType) [3]float64 {
	n := fi.Normal
	if ft == types.FaceNeighbor {
		for d := range n {
			n[d] = -n[d]
		}
	}
	return n
}

// FluxSides says which rows a flux kernel contributes to on a face of type
// ft. One sided faces contribute only when a Dirichlet condition is active;
// otherwise a flux boundary condition owns them. A face with the variable on
// neither side should never reach a flux kernel.
func FluxSides(obj string, fi *mesh.FaceInfo, ft types.FaceType, dirichlet bool) (elem, nbr bool) {
	switch ft {
	case types.FaceBoth:
		return true, true
	case types.FaceElem:
		return dirichlet, false
	case types.FaceNeighbor:
		return false, dirichlet
	}
	utils.ConfigErrorf(obj, "flux kernel reached face (%d, %d) where its variable is defined on neither side",
		fi.Elem, fi.ElemSide)
	return
}

func distance(a, b [3]float64) float64 {
	var s float64
	for d := range a {
		s += (a[d] - b[d]) * (a[d] - b[d])
	}
	return math.Sqrt(s)
}

// projectedDistance is the distance from a cell centroid to the face along
// the face normal.
func projectedDistance(fi *mesh.FaceInfo, c [3]float64) float64 {
	var s float64
	for d := range c {
		s += (fi.FaceCentroid[d] - c[d]) * fi.Normal[d]
	}
	return math.Abs(s)
}
