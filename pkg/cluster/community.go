package cluster

import (
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/sanonone/citefuse/pkg/matrix"
	"github.com/sanonone/citefuse/pkg/metrics"
)

// CommunityAlgorithm is the pluggable partition strategy used by Community.
// Implementations only see the built graph, never the affinity matrix, so
// new algorithms slot in without touching graph construction.
type CommunityAlgorithm interface {
	// Name identifies the algorithm for Assignment.Method.
	Name() string
	// Partition assigns every node 0..n-1 a community label.
	Partition(g *simple.WeightedUndirectedGraph, n int) ([]int, error)
}

// Community builds a weighted k-nearest-neighbor graph from an affinity
// matrix and partitions it with the given algorithm. The number of clusters
// is decided by the algorithm's own quality optimization, not fixed in
// advance.
func Community(aff *matrix.Affinity, algo CommunityAlgorithm, kNeighbors int) (*Assignment, error) {
	n := aff.N()
	g, err := knnGraph(aff, kNeighbors)
	if err != nil {
		return nil, err
	}

	labels, err := algo.Partition(g, n)
	if err != nil {
		return nil, err
	}

	metrics.Clusterings.WithLabelValues(algo.Name()).Inc()
	return &Assignment{
		Cells:  aff.Cells(),
		Labels: labels,
		K:      countLabels(labels),
		Method: algo.Name(),
	}, nil
}

// knnGraph connects every cell to its k most similar cells with edge weight
// equal to the similarity. Edges are undirected, so a pair is connected if
// either endpoint selects the other. Zero-weight neighbors are skipped.
func knnGraph(aff *matrix.Affinity, kNeighbors int) (*simple.WeightedUndirectedGraph, error) {
	ns, err := matrix.Neighbors(aff, kNeighbors)
	if err != nil {
		return nil, err
	}

	n := aff.N()
	g := simple.NewWeightedUndirectedGraph(0, 0)
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}
	for i := 0; i < n; i++ {
		for _, nb := range ns.Of(i) {
			if nb.Weight <= 0 {
				continue
			}
			g.SetWeightedEdge(simple.WeightedEdge{
				F: simple.Node(i),
				T: simple.Node(nb.Index),
				W: nb.Weight,
			})
		}
	}
	return g, nil
}

// Louvain partitions by greedy modularity optimization.
type Louvain struct {
	// Resolution tunes community granularity; 0 means the standard 1.0.
	Resolution float64
	// Seed fixes the node-visit randomization. 0 leaves it unseeded.
	Seed int64
}

func (l Louvain) Name() string { return "louvain" }

func (l Louvain) Partition(g *simple.WeightedUndirectedGraph, n int) ([]int, error) {
	resolution := l.Resolution
	if resolution == 0 {
		resolution = 1
	}
	var src rand.Source
	if l.Seed != 0 {
		src = rand.NewPCG(uint64(l.Seed), 0)
	}
	reduced := community.Modularize(g, resolution, src)
	return denseLabels(reduced.Communities(), n), nil
}

// ConnectedComponents is the trivial baseline partition: one community per
// connected component of the graph.
type ConnectedComponents struct{}

func (ConnectedComponents) Name() string { return "components" }

func (ConnectedComponents) Partition(g *simple.WeightedUndirectedGraph, n int) ([]int, error) {
	return denseLabels(topo.ConnectedComponents(g), n), nil
}

// denseLabels converts node groups into dense labels. Groups are ordered by
// their smallest node ID so the labeling does not depend on the traversal
// order of the underlying algorithm.
func denseLabels(groups [][]graph.Node, n int) []int {
	type keyed struct {
		min   int64
		nodes []graph.Node
	}
	ordered := make([]keyed, 0, len(groups))
	for _, grp := range groups {
		min := grp[0].ID()
		for _, nd := range grp[1:] {
			if nd.ID() < min {
				min = nd.ID()
			}
		}
		ordered = append(ordered, keyed{min: min, nodes: grp})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].min < ordered[j].min })

	labels := make([]int, n)
	for l, grp := range ordered {
		for _, nd := range grp.nodes {
			labels[int(nd.ID())] = l
		}
	}
	return labels
}
