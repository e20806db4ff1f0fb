package assembly

import (
	"sort"

	"github.com/notargets/femcore/mesh"
	"github.com/notargets/femcore/system"
	"github.com/notargets/femcore/utils"
)

// Params describes one residual object as it appears in an input file.
type Params struct {
	Type       string
	Name       string
	Variable   string
	Coupled    map[string]string
	Blocks     []string
	Boundary   []string
	Values     map[string]float64
	SaveIn     string
	DiagSaveIn string
}

// Value returns a named number, or def when the input leaves it out.
func (pr Params) Value(key string, def float64) float64 {
	if v, ok := pr.Values[key]; ok {
		return v
	}
	return def
}

// Constructor builds an object of one type from a prepared Base.
type Constructor func(p *Problem, b Base, pr Params) Object

// Factory maps type names used in input files to constructors.
type Factory struct {
	ctors map[string]Constructor
}

// NewFactory returns a factory with every built in object registered.
func NewFactory() *Factory {
	f := &Factory{ctors: make(map[string]Constructor)}
	f.Register("Diffusion", func(p *Problem, b Base, pr Params) Object { return NewDiffusion(b) })
	f.Register("ADDiffusion", func(p *Problem, b Base, pr Params) Object { return NewADDiffusion(b) })
	f.Register("ADMatDiffusion", func(p *Problem, b Base, pr Params) Object {
		return NewADMatDiffusion(b, pr.Value("K0", 1), pr.Value("Alpha", 0))
	})
	f.Register("BodyForce", func(p *Problem, b Base, pr Params) Object {
		return NewBodyForce(b, pr.Value("Value", 0))
	})
	f.Register("ADCoupledReaction", func(p *Problem, b Base, pr Params) Object {
		return NewADCoupledReaction(b, p.coupled(pr, "v"), pr.Value("Rate", 1))
	})
	f.Register("NeumannBC", func(p *Problem, b Base, pr Params) Object {
		return NewNeumannBC(b, pr.Value("Value", 0))
	})
	f.Register("ADRobinBC", func(p *Problem, b Base, pr Params) Object {
		return NewADRobinBC(b, pr.Value("Alpha", 1), pr.Value("UInf", 0))
	})
	f.Register("DirichletBC", func(p *Problem, b Base, pr Params) Object {
		return NewDirichletBC(b, pr.Value("Value", 0))
	})
	f.Register("ADDGDiffusion", func(p *Problem, b Base, pr Params) Object {
		return NewADDGDiffusion(b, pr.Value("D", 1), pr.Value("Epsilon", -1), pr.Value("Sigma", 6))
	})
	f.Register("ADInterfaceDiffusion", func(p *Problem, b Base, pr Params) Object {
		return NewADInterfaceDiffusion(b, p.coupled(pr, "neighbor_var"),
			pr.Value("D", 1), pr.Value("DNeighbor", 1), pr.Value("Penalty", 0))
	})
	f.Register("ADEqualValueConstraint", func(p *Problem, b Base, pr Params) Object {
		return NewADEqualValueConstraint(b, p.coupled(pr, "primary"), p.coupled(pr, "secondary"))
	})
	f.Register("FVDiffusion", func(p *Problem, b Base, pr Params) Object {
		return NewFVDiffusion(b, pr.Value("D", 1))
	})
	f.Register("FVBodyForce", func(p *Problem, b Base, pr Params) Object {
		return NewFVBodyForce(b, pr.Value("Value", 0))
	})
	f.Register("FVNeumannBC", func(p *Problem, b Base, pr Params) Object {
		bc := NewFVNeumannBC(b, pr.Value("Value", 0))
		_, fx := pr.Values["FluxX"]
		_, fy := pr.Values["FluxY"]
		_, fz := pr.Values["FluxZ"]
		if fx || fy || fz {
			bc.Flux = &[3]float64{pr.Value("FluxX", 0), pr.Value("FluxY", 0), pr.Value("FluxZ", 0)}
		}
		return bc
	})
	f.Register("FVDirichletBC", func(p *Problem, b Base, pr Params) Object {
		return NewFVDirichletBC(b, pr.Value("Value", 0))
	})
	return f
}

// Register adds or replaces a type.
func (f *Factory) Register(typeName string, c Constructor) {
	f.ctors[typeName] = c
}

func (f *Factory) Types() (names []string) {
	for n := range f.ctors {
		names = append(names, n)
	}
	sort.Strings(names)
	return
}

// Create resolves the names in pr against the problem and its mesh and
// builds the object. It does not add it to the problem.
func (f *Factory) Create(p *Problem, pr Params) Object {
	if pr.Name == "" {
		pr.Name = pr.Type
	}
	ctor, ok := f.ctors[pr.Type]
	if !ok {
		utils.ConfigErrorf(pr.Name, "unknown object type %q", pr.Type)
	}
	v, ok := p.Variable(pr.Variable)
	if !ok {
		utils.ConfigErrorf(pr.Name, "unknown variable %q", pr.Variable)
	}
	b := NewBase(pr.Name, v)
	if len(pr.Blocks) > 0 {
		sids := make([]mesh.SubdomainID, len(pr.Blocks))
		for i, name := range pr.Blocks {
			if sids[i], ok = p.Cache.SubdomainID(name); !ok {
				utils.ConfigErrorf(pr.Name, "unknown block %q", name)
			}
		}
		b.Restrict(sids...)
	}
	if len(pr.Boundary) > 0 {
		bids := make([]mesh.BoundaryID, len(pr.Boundary))
		for i, name := range pr.Boundary {
			if bids[i], ok = p.Cache.BoundaryID(name); !ok {
				utils.ConfigErrorf(pr.Name, "unknown boundary %q", name)
			}
		}
		b.OnBoundary(bids...)
	}
	b.SetSaveIn(p.auxVariable(pr, pr.SaveIn), p.auxVariable(pr, pr.DiagSaveIn))
	return ctor(p, b, pr)
}

func (p *Problem) coupled(pr Params, key string) *system.Variable {
	name, ok := pr.Coupled[key]
	if !ok {
		utils.ConfigErrorf(pr.Name, "%s needs a coupled variable %q", pr.Type, key)
	}
	v, ok := p.Variable(name)
	if !ok {
		utils.ConfigErrorf(pr.Name, "unknown coupled variable %q", name)
	}
	return v
}

func (p *Problem) auxVariable(pr Params, name string) *system.Variable {
	if name == "" {
		return nil
	}
	v, ok := p.Aux.Variable(name)
	if !ok {
		utils.ConfigErrorf(pr.Name, "save-in variable %q is not an auxiliary variable", name)
	}
	return v
}
