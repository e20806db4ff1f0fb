/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	perf "github.com/hodgesds/perf-utils"
	"github.com/notargets/femcore/InputParameters"
	"github.com/notargets/femcore/assembly"
	"github.com/notargets/femcore/mesh"
	"github.com/notargets/femcore/utils"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/mat"
)

// AssembleCmd represents the assemble command
var AssembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Assemble the global residual and Jacobian of a problem",
	Long: `
Builds the mesh and problem described by the input file, then runs one
residual and Jacobian pass and reports on the result,

femcore assemble -I problem.yaml [--dense] [--metrics] [--perf]`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var (
			ip  *InputParameters.InputParameters
			opt AssembleOptions
		)
		if ip, err = readInput(cmd); err != nil {
			return
		}
		opt.Dense, _ = cmd.Flags().GetBool("dense")
		opt.Metrics, _ = cmd.Flags().GetBool("metrics")
		opt.Perf, _ = cmd.Flags().GetBool("perf")
		opt.Threads = viper.GetInt("threads")
		return RunAssemble(cmd.OutOrStdout(), ip, opt)
	},
}

func init() {
	rootCmd.AddCommand(AssembleCmd)
	addInputFlags(AssembleCmd)
	AssembleCmd.Flags().Bool("dense", false, "print the Jacobian as a dense matrix")
	AssembleCmd.Flags().Bool("metrics", false, "print the assembly counters after the pass")
	AssembleCmd.Flags().Bool("perf", false, "count CPU instructions of the pass on the calling thread")
}

type AssembleOptions struct {
	Dense, Metrics, Perf bool
	Threads              int // Overrides the input file when > 0
}

// RunAssemble builds the problem described by ip and writes a report of one
// residual and Jacobian pass to w.
func RunAssemble(w io.Writer, ip *InputParameters.InputParameters, opt AssembleOptions) (err error) {
	var (
		reg     = prometheus.NewRegistry()
		metrics = utils.NewMetrics(reg)
		m       = mustMesh(ip)
		p       = ip.BuildProblem(m, metrics)
		g       *assembly.GlobalResult
	)
	if opt.Threads > 0 {
		p.Threads = opt.Threads
	}
	pass := func() error {
		g = p.ComputeResidualAndJacobian()
		return nil
	}
	if opt.Perf {
		pv, perr := perf.CPUInstructions(pass)
		if perr != nil {
			fmt.Fprintf(w, "CPU instruction counter unavailable: %v\n", perr)
		} else {
			fmt.Fprintf(w, "CPU instructions: %d\n", pv.Value)
		}
	}
	if g == nil {
		_ = pass()
	}
	if utils.IsNan(g.Residual) {
		return fmt.Errorf("residual of %q has NaN entries", p.Name)
	}
	n := g.Residual.Len()
	fmt.Fprintf(w, "Problem: %q, %d threads\n", p.Name, p.Threads)
	for _, o := range p.Objects() {
		fmt.Fprintf(w, "Object %s: %s on %s", o.Name(), o.Kind(), o.Variable().Name())
		if bc := o.Kind().BCType(); bc != utils.BCNone {
			fmt.Fprintf(w, " (%s)", bc)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Degrees of freedom: %d\n", n)
	fmt.Fprintf(w, "Residual norm: %.6e\n", mat.Norm(g.Residual, 2))
	fmt.Fprintf(w, "Jacobian: %d x %d, %d nonzeros\n", n, n, g.Jacobian.NNZ())
	if opt.Dense {
		fmt.Fprintf(w, "J = %v\n", mat.Formatted(g.Dense(), mat.Prefix("    "), mat.Squeeze()))
		fmt.Fprintf(w, "R = %v\n", mat.Formatted(g.Residual.T(), mat.Prefix("    "), mat.Squeeze()))
	}
	if opt.Metrics {
		err = printMetrics(w, reg)
	}
	return
}

func printMetrics(w io.Writer, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			sort.Strings(labels)
			name := mf.GetName()
			if len(labels) != 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				fmt.Fprintf(w, "%s %g\n", name, m.GetCounter().GetValue())
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				fmt.Fprintf(w, "%s count=%d sum=%gs\n", name, h.GetSampleCount(), h.GetSampleSum())
			}
		}
	}
	return nil
}

func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file describing the mesh, variables and objects")
	cmd.Flags().StringP("gridFile", "F", "", "Gmsh (.msh) file, replaces the mesh of the input file")
}

func readInput(cmd *cobra.Command) (ip *InputParameters.InputParameters, err error) {
	var (
		icFile, gridFile string
		data             []byte
	)
	if icFile, err = cmd.Flags().GetString("inputConditionsFile"); err != nil {
		return
	}
	if gridFile, err = cmd.Flags().GetString("gridFile"); err != nil {
		return
	}
	if len(icFile) == 0 {
		err = fmt.Errorf("must supply an input parameters file (-I, --inputConditionsFile), example:%s", exampleFile)
		return
	}
	if data, err = os.ReadFile(icFile); err != nil {
		return
	}
	ip = &InputParameters.InputParameters{}
	if len(gridFile) != 0 {
		ip.Mesh.File = gridFile
	}
	if err = ip.Parse(data); err != nil {
		return
	}
	if len(gridFile) != 0 {
		ip.Mesh.File = gridFile
	}
	if utils.Verbose {
		ip.Print()
	}
	return
}

func mustMesh(ip *InputParameters.InputParameters) *mesh.Mesh {
	m, err := ip.BuildMesh()
	if err != nil {
		utils.ConfigErrorf("Mesh", "%s", err)
	}
	return m
}

const exampleFile = `
########################################
Title: "Diffusion"
Mesh:
  Dim: 1
  NX: 8
  XMax: 1
Variables:
  - Name: u
Kernels:
  - Type: ADDiffusion
    Variable: u
BCs:
  - Type: DirichletBC
    Variable: u
    Boundary: [left, right]
########################################
`
