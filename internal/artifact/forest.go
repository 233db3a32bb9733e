package artifact

import (
	"fmt"
	"math"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

const eulerGamma = 0.5772156649015329

// leaf marks a missing child in exported tree arrays.
const leaf = -1

// forestDocument is the JSON export of a fitted isolation forest. The
// per-tree arrays mirror the fitted tree structure node by node.
type forestDocument struct {
	Kind       string         `json:"kind"`
	Features   []string       `json:"features"`
	MaxSamples int            `json:"max_samples"`
	Offset     *float64       `json:"offset"`
	Estimators []treeDocument `json:"estimators"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type treeDocument struct {
	ChildrenLeft  []int     `json:"children_left"`
	ChildrenRight []int     `json:"children_right"`
	Feature       []int     `json:"feature"`
	Threshold     []float64 `json:"threshold"`
	NNodeSamples  []int     `json:"n_node_samples"`

	// FeatureSubset maps tree-local feature indices to vector positions.
	// Absent means the tree saw every feature.
	FeatureSubset []int `json:"feature_subset,omitempty"`
}

type isoNode struct {
	left, right int
	feature     int
	threshold   float64
	isLeaf      bool
	correction  float64 // average path length of the samples left at this leaf
}

type isoTree struct {
	nodes []isoNode
}

// IsolationForest scores vectors by their mean isolation depth.
type IsolationForest struct {
	features   []string
	maxSamples int
	offset     float64
	norm       float64 // average path length for maxSamples
	trees      []isoTree
}

// NewIsolationForest validates doc and builds the forest.
func NewIsolationForest(doc forestDocument) (*IsolationForest, error) {
	if len(doc.Features) == 0 {
		return nil, fmt.Errorf("isolation forest declares no features")
	}
	if doc.MaxSamples < 2 {
		return nil, fmt.Errorf("max_samples must be at least 2, got %d", doc.MaxSamples)
	}
	if doc.Offset == nil {
		return nil, fmt.Errorf("isolation forest has no offset")
	}
	if math.IsNaN(*doc.Offset) || math.IsInf(*doc.Offset, 0) {
		return nil, fmt.Errorf("offset: %w", errNotFinite)
	}
	if len(doc.Estimators) == 0 {
		return nil, fmt.Errorf("isolation forest has no estimators")
	}

	f := &IsolationForest{
		features:   append([]string(nil), doc.Features...),
		maxSamples: doc.MaxSamples,
		offset:     *doc.Offset,
		norm:       averagePathLength(doc.MaxSamples),
		trees:      make([]isoTree, 0, len(doc.Estimators)),
	}

	for i, td := range doc.Estimators {
		tree, err := buildTree(td, len(doc.Features))
		if err != nil {
			return nil, fmt.Errorf("estimator %d: %w", i, err)
		}
		f.trees = append(f.trees, tree)
	}

	return f, nil
}

func buildTree(td treeDocument, dim int) (isoTree, error) {
	n := len(td.ChildrenLeft)
	if n == 0 {
		return isoTree{}, fmt.Errorf("tree has no nodes")
	}
	if len(td.ChildrenRight) != n || len(td.Feature) != n || len(td.Threshold) != n || len(td.NNodeSamples) != n {
		return isoTree{}, fmt.Errorf("tree arrays have inconsistent lengths")
	}

	subset := td.FeatureSubset
	if subset == nil {
		subset = make([]int, dim)
		for i := range subset {
			subset[i] = i
		}
	}
	for _, idx := range subset {
		if idx < 0 || idx >= dim {
			return isoTree{}, fmt.Errorf("feature_subset index %d out of range", idx)
		}
	}

	nodes := make([]isoNode, n)
	for i := 0; i < n; i++ {
		left, right := td.ChildrenLeft[i], td.ChildrenRight[i]

		if left == leaf && right == leaf {
			if td.NNodeSamples[i] < 1 {
				return isoTree{}, fmt.Errorf("leaf %d has no samples", i)
			}
			nodes[i] = isoNode{isLeaf: true, correction: averagePathLength(td.NNodeSamples[i])}
			continue
		}

		// Children always follow their parent, which also rules out cycles.
		if left <= i || left >= n || right <= i || right >= n {
			return isoTree{}, fmt.Errorf("node %d has invalid children (%d, %d)", i, left, right)
		}
		local := td.Feature[i]
		if local < 0 || local >= len(subset) {
			return isoTree{}, fmt.Errorf("node %d splits on unknown feature %d", i, local)
		}
		if math.IsNaN(td.Threshold[i]) {
			return isoTree{}, fmt.Errorf("node %d threshold: %w", i, errNotFinite)
		}

		nodes[i] = isoNode{
			left:      left,
			right:     right,
			feature:   subset[local],
			threshold: td.Threshold[i],
		}
	}

	return isoTree{nodes: nodes}, nil
}

// Kind returns the artifact kind.
func (f *IsolationForest) Kind() string { return KindIsolationForest }

// Features returns the feature names the forest was fitted on.
func (f *IsolationForest) Features() []string { return f.features }

// DecisionFunction returns -2^(-E[h(x)]/c(max_samples)) - offset, so
// negative values are outliers.
func (f *IsolationForest) DecisionFunction(v domain.FeatureVector) (float64, error) {
	if len(v) != len(f.features) {
		return 0, fmt.Errorf("expected %d features, got %d", len(f.features), len(v))
	}

	depths := 0.0
	for i := range f.trees {
		depths += f.trees[i].pathLength(v)
	}

	scores := math.Pow(2, -depths/(float64(len(f.trees))*f.norm))
	return -scores - f.offset, nil
}

// pathLength walks x to a leaf and returns the edge count plus the leaf's
// average path length correction.
func (t *isoTree) pathLength(x domain.FeatureVector) float64 {
	depth := 0.0
	node := 0
	for {
		n := &t.nodes[node]
		if n.isLeaf {
			return depth + n.correction
		}
		// Trees were fitted on float32 inputs; compare at that precision.
		if float64(float32(x[n.feature])) <= n.threshold {
			node = n.left
		} else {
			node = n.right
		}
		depth++
	}
}

// averagePathLength is the expected path length of an unsuccessful BST
// search over n samples.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2.0*(math.Log(fn-1.0)+eulerGamma) - 2.0*(fn-1.0)/fn
	}
}
