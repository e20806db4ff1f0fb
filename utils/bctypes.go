package utils

// BCType classifies a boundary condition by how it constrains a variable on
// a face or node.
type BCType uint16

const (
	// BCNone marks objects that act inside blocks
	BCNone BCType = iota

	// Mathematical boundary conditions
	BCDirichlet // Fixed value
	BCNeumann   // Fixed gradient/flux
	BCRobin     // Mixed/Robin condition

	// Subdomain coupling
	BCInterface // Interface between subdomains
	BCMortar    // Constraint enforced on a lower dimensional block
)

func (bc BCType) String() string {
	switch bc {
	case BCNone:
		return "None"
	case BCDirichlet:
		return "Dirichlet"
	case BCNeumann:
		return "Neumann"
	case BCRobin:
		return "Robin"
	case BCInterface:
		return "Interface"
	case BCMortar:
		return "Mortar"
	}
	return "Unknown"
}

// IsDirichletType is true for conditions that fix the value rather than the
// flux.
func (bc BCType) IsDirichletType() bool {
	return bc == BCDirichlet
}

// IsFluxType is true for conditions that prescribe a flux through the face.
func (bc BCType) IsFluxType() bool {
	return bc == BCNeumann || bc == BCRobin
}

// OnSideset is true for conditions that are applied on named boundaries.
// Mortar constraints live on their own lower dimensional block instead.
func (bc BCType) OnSideset() bool {
	return bc.IsDirichletType() || bc.IsFluxType() || bc == BCInterface
}
