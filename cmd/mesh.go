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

	"github.com/notargets/femcore/InputParameters"
	"github.com/notargets/femcore/mesh"
	"github.com/notargets/femcore/types"
	"github.com/notargets/femcore/utils"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"
)

// MeshCmd represents the mesh command
var MeshCmd = &cobra.Command{
	Use:   "mesh",
	Short: "Report on the mesh topology of a problem",
	Long: `
Builds the mesh described by the input file and prints its blocks, sidesets,
face counts and the finite volume face classification. With --ranks the mesh
is also partitioned and the ghost exchange is run between the ranks,

femcore mesh -I problem.yaml [--ranks 4]`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var ip *InputParameters.InputParameters
		if ip, err = readInput(cmd); err != nil {
			return
		}
		ranks, _ := cmd.Flags().GetInt("ranks")
		return RunMesh(cmd.OutOrStdout(), ip, ranks)
	},
}

func init() {
	rootCmd.AddCommand(MeshCmd)
	addInputFlags(MeshCmd)
	MeshCmd.Flags().IntP("ranks", "r", 1, "number of ranks to partition the mesh into for the ghost exchange")
}

// RunMesh writes the topology report of the problem described by ip to w.
func RunMesh(w io.Writer, ip *InputParameters.InputParameters, ranks int) error {
	var (
		reg     = prometheus.NewRegistry()
		metrics = utils.NewMetrics(reg)
		m       = mustMesh(ip)
		p       = ip.BuildProblem(m, metrics)
		c       = p.Cache
	)
	if utils.Verbose {
		m.PrintStatistics()
	}
	fmt.Fprintf(w, "Dimension: %d\n", m.Dim)
	fmt.Fprintf(w, "Nodes: %d\n", m.NumNodes())
	fmt.Fprintf(w, "Active elements: %d\n", len(m.ActiveElements()))
	for _, sid := range c.MeshSubdomains() {
		fmt.Fprintf(w, "Block %d %q\n", sid, m.SubdomainName(sid))
	}
	for _, bid := range c.MeshBoundaryIDs() {
		fmt.Fprintf(w, "Sideset %d %q: %d elements, %d nodes\n",
			bid, m.BoundaryName(bid), len(c.BoundaryElems(bid)), len(c.BoundaryNodes(bid)))
	}
	var nb int
	faces := c.AllFaceInfo()
	for _, fi := range faces {
		if fi.IsBoundary() {
			nb++
		}
	}
	fmt.Fprintf(w, "Faces: %d (%d on the boundary)\n", len(faces), nb)
	for _, v := range p.NL.Variables() {
		if !v.FV {
			continue
		}
		counts := c.FaceTypeCounts(v.Name())
		fmt.Fprintf(w, "FV faces of %s:", v.Name())
		for ft := types.FaceNeither; ft <= types.FaceBoth; ft++ {
			fmt.Fprintf(w, " %s=%d", ft, counts[ft])
		}
		fmt.Fprintln(w)
	}
	if ranks > 1 {
		m.Partition(ranks)
		views := mesh.Split(m)
		mesh.ExchangeGhosts(views, metrics)
		for _, v := range views {
			fmt.Fprintf(w, "Rank %d: %d elements, %d ghosts, %d partition sides\n",
				v.Rank(), len(v.ActiveElements())-v.NumGhosts(), v.NumGhosts(), len(v.PartitionSides))
		}
		if err := printMetrics(w, onlyGhosts{reg}); err != nil {
			return err
		}
	}
	return nil
}

// onlyGhosts narrows a gatherer to the ghost exchange counters.
type onlyGhosts struct{ prometheus.Gatherer }

func (g onlyGhosts) Gather() (mfs []*dto.MetricFamily, err error) {
	all, err := g.Gatherer.Gather()
	for _, mf := range all {
		if mf.GetName() == "femcore_ghost_messages_total" {
			mfs = append(mfs, mf)
		}
	}
	return
}
