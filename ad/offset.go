package ad

import (
	"github.com/notargets/femcore/system"
	"github.com/notargets/femcore/types"
	"github.com/notargets/femcore/utils"
)

// Layout sizes the derivative vector shared by every residual object of a
// system: one block per role, each holding MaxDofs entries per variable.
// The Lower block is as large as the others; its tail is never read.
type Layout struct {
	NumVars int
	MaxDofs int
}

func NewLayout(sys *system.System) Layout {
	return Layout{NumVars: sys.NumVariables(), MaxDofs: sys.MaxDofsPerElem()}
}

func (l Layout) Size() int { return types.NumRoles * l.NumVars * l.MaxDofs }

func (l Layout) Offset(varNum int, role types.ElementRole) int {
	return Offset(varNum, l.MaxDofs, role, l.NumVars)
}

// Offset is the start of variable varNum's block of derivatives for role.
// The Neighbor and Lower roles sit after all Element blocks and need the
// total variable count.
func Offset(varNum, maxDofs int, role types.ElementRole, numVars ...int) int {
	switch role {
	case types.Element:
		return varNum * maxDofs
	case types.Neighbor, types.Lower:
		if len(numVars) == 0 {
			utils.ConfigErrorf("ad.Offset", "the %s role needs the total number of variables", role)
		}
		nv := numVars[0]
		utils.Assert(varNum < nv, "ad.Offset", "variable number %d is not below the variable count %d", varNum, nv)
		if role == types.Neighbor {
			return nv*maxDofs + varNum*maxDofs
		}
		return 2*nv*maxDofs + varNum*maxDofs
	}
	utils.InternalErrorf("ad.Offset", "unknown element role %d", int(role))
	return -1
}

// OffsetDG picks the role of the column side of a face Jacobian block.
func OffsetDG(varNum, maxDofs int, t types.DGJacobianType, numVars ...int) int {
	return Offset(varNum, maxDofs, t.ColumnRole(), numVars...)
}
