package ad

import (
	"github.com/notargets/femcore/system"
	"github.com/notargets/femcore/types"
	"github.com/notargets/femcore/utils"
)

// GlobalDerivatives maps the derivatives of r taken on elem, playing role,
// to global DOF indices of sys. Every DOF of every variable defined on elem
// gets an entry, zero or not.
func GlobalDerivatives(r Real, sys *system.System, elem int, role types.ElementRole) map[int]float64 {
	out := make(map[int]float64)
	AddGlobalDerivatives(out, r, sys, elem, role)
	return out
}

// AddGlobalDerivatives accumulates into an existing map so that one value
// can be mapped for several roles in turn.
func AddGlobalDerivatives(out map[int]float64, r Real, sys *system.System, elem int, role types.ElementRole) {
	if !sys.HasADIndexing() {
		utils.InternalErrorf(sys.Name, "global derivative indexing needs a distributed nonlinear system, have %s", sys)
	}
	l := NewLayout(sys)
	for _, v := range sys.Variables() {
		dofs := sys.DofIndices(elem, v)
		off := l.Offset(v.Number, role)
		utils.Assert(r.Derivs == nil || off+len(dofs) <= len(r.Derivs), sys.Name,
			"derivative vector of length %d is too short for %d dofs at offset %d", len(r.Derivs), len(dofs), off)
		for i, g := range dofs {
			out[g] += r.Deriv(off + i)
		}
	}
}

// GlobalDerivativesQP maps one value per quadrature point.
func GlobalDerivativesQP(rs []Real, sys *system.System, elem int, role types.ElementRole) []map[int]float64 {
	out := make([]map[int]float64, len(rs))
	for qp, r := range rs {
		out[qp] = GlobalDerivatives(r, sys, elem, role)
	}
	return out
}
