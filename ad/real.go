package ad

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Real is a forward mode dual number with a dense derivative vector. A nil
// Derivs slice is a constant; every derivative is zero.
type Real struct {
	Value  float64
	Derivs []float64
}

// Constant wraps a plain value.
func Constant(v float64) Real { return Real{Value: v} }

// Seeded is the independent variable at position idx of a derivative vector
// of length n.
func Seeded(v float64, n, idx int) Real {
	r := Real{Value: v, Derivs: make([]float64, n)}
	r.Derivs[idx] = 1
	return r
}

func (r Real) IsConstant() bool { return r.Derivs == nil }

// Deriv returns the partial derivative at position i, zero past the end.
func (r Real) Deriv(i int) float64 {
	if i < 0 || i >= len(r.Derivs) {
		return 0
	}
	return r.Derivs[i]
}

// lincomb returns a*da + b*db, treating nil as zero.
func lincomb(a float64, da []float64, b float64, db []float64) []float64 {
	switch {
	case da == nil && db == nil:
		return nil
	case da == nil:
		d := make([]float64, len(db))
		floats.ScaleTo(d, b, db)
		return d
	case db == nil:
		d := make([]float64, len(da))
		floats.ScaleTo(d, a, da)
		return d
	}
	if len(da) != len(db) {
		panic(fmt.Errorf("derivative vectors of length %d and %d do not match", len(da), len(db)))
	}
	d := make([]float64, len(da))
	floats.ScaleTo(d, a, da)
	floats.AddScaled(d, b, db)
	return d
}

func (r Real) Add(o Real) Real {
	return Real{r.Value + o.Value, lincomb(1, r.Derivs, 1, o.Derivs)}
}

func (r Real) Sub(o Real) Real {
	return Real{r.Value - o.Value, lincomb(1, r.Derivs, -1, o.Derivs)}
}

func (r Real) Mul(o Real) Real {
	return Real{r.Value * o.Value, lincomb(o.Value, r.Derivs, r.Value, o.Derivs)}
}

func (r Real) Div(o Real) Real {
	inv := 1 / o.Value
	return Real{r.Value * inv, lincomb(inv, r.Derivs, -r.Value*inv*inv, o.Derivs)}
}

func (r Real) Scale(s float64) Real {
	return Real{r.Value * s, lincomb(s, r.Derivs, 0, nil)}
}

func (r Real) AddScalar(s float64) Real {
	return Real{r.Value + s, lincomb(1, r.Derivs, 0, nil)}
}

func (r Real) Neg() Real { return r.Scale(-1) }
func (r Real) Sqr() Real { return r.Mul(r) }

func (r Real) Pow(p float64) Real {
	return Real{math.Pow(r.Value, p), lincomb(p*math.Pow(r.Value, p-1), r.Derivs, 0, nil)}
}

func (r Real) Exp() Real {
	e := math.Exp(r.Value)
	return Real{e, lincomb(e, r.Derivs, 0, nil)}
}

func (r Real) String() string {
	return fmt.Sprintf("%g %v", r.Value, r.Derivs)
}

// Vec is a spatial vector of dual numbers, typically a gradient.
type Vec [3]Real

// DotF contracts with a plain vector, e.g. a test function gradient.
func (v Vec) DotF(w [3]float64) Real {
	r := v[0].Scale(w[0])
	for d := 1; d < 3; d++ {
		if w[d] != 0 {
			r = r.Add(v[d].Scale(w[d]))
		}
	}
	return r
}

func (v Vec) Dot(w Vec) Real {
	r := v[0].Mul(w[0])
	for d := 1; d < 3; d++ {
		r = r.Add(v[d].Mul(w[d]))
	}
	return r
}

func (v Vec) Scale(s Real) (o Vec) {
	for d := range v {
		o[d] = v[d].Mul(s)
	}
	return
}

func (v Vec) Add(w Vec) (o Vec) {
	for d := range v {
		o[d] = v[d].Add(w[d])
	}
	return
}

// Values drops the derivatives.
func (v Vec) Values() (x [3]float64) {
	for d := range v {
		x[d] = v[d].Value
	}
	return
}
