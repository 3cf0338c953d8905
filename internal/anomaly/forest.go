package anomaly

import (
	"math"
	"math/rand"
	"sort"
)

const subsampleSize = 256

// forest is an isolation forest: an ensemble of random binary trees where
// the expected path length to isolate a point measures how anomalous it is.
// Scores follow the reference convention: score = -2^(-E[h]/c(psi)), so
// lower means more anomalous and values live in [-1, 0).
type forest struct {
	trees       []*treeNode
	sampleSize  int
	heightLimit int
	offset      float64
}

type treeNode struct {
	left, right *treeNode
	feature     int
	split       float64
	size        int
}

// fitForest trains nEstimators trees on X and fixes the decision offset at
// the contamination quantile of the training scores.
func fitForest(X [][NumFeatures]float64, nEstimators int, contamination float64, seed int64) *forest {
	rng := rand.New(rand.NewSource(seed))

	psi := subsampleSize
	if len(X) < psi {
		psi = len(X)
	}

	f := &forest{
		sampleSize:  psi,
		heightLimit: int(math.Ceil(math.Log2(float64(psi)))),
	}

	for i := 0; i < nEstimators; i++ {
		sample := make([][NumFeatures]float64, psi)
		for j := range sample {
			sample[j] = X[rng.Intn(len(X))]
		}
		f.trees = append(f.trees, buildTree(sample, 0, f.heightLimit, rng))
	}

	scores := make([]float64, len(X))
	for i, x := range X {
		scores[i] = f.score(x)
	}
	sort.Float64s(scores)
	idx := int(contamination * float64(len(scores)))
	if idx >= len(scores) {
		idx = len(scores) - 1
	}
	f.offset = scores[idx]

	return f
}

func buildTree(rows [][NumFeatures]float64, depth, limit int, rng *rand.Rand) *treeNode {
	if len(rows) <= 1 || depth >= limit {
		return &treeNode{size: len(rows)}
	}

	// Candidate features must span a range at this node.
	var candidates []int
	var mins, maxs [NumFeatures]float64
	for q := 0; q < NumFeatures; q++ {
		mins[q], maxs[q] = rows[0][q], rows[0][q]
	}
	for _, row := range rows[1:] {
		for q := 0; q < NumFeatures; q++ {
			if row[q] < mins[q] {
				mins[q] = row[q]
			}
			if row[q] > maxs[q] {
				maxs[q] = row[q]
			}
		}
	}
	for q := 0; q < NumFeatures; q++ {
		if maxs[q] > mins[q] {
			candidates = append(candidates, q)
		}
	}
	if len(candidates) == 0 {
		return &treeNode{size: len(rows)}
	}

	q := candidates[rng.Intn(len(candidates))]
	split := mins[q] + rng.Float64()*(maxs[q]-mins[q])

	var left, right [][NumFeatures]float64
	for _, row := range rows {
		if row[q] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &treeNode{size: len(rows)}
	}

	return &treeNode{
		feature: q,
		split:   split,
		left:    buildTree(left, depth+1, limit, rng),
		right:   buildTree(right, depth+1, limit, rng),
	}
}

// pathLength walks x down the tree, adding the average-path adjustment c(n)
// at the terminating node.
func (t *treeNode) pathLength(x [NumFeatures]float64, depth int) float64 {
	if t.left == nil {
		return float64(depth) + avgPathLength(t.size)
	}
	if x[t.feature] < t.split {
		return t.left.pathLength(x, depth+1)
	}
	return t.right.pathLength(x, depth+1)
}

// avgPathLength is c(n), the expected path length of an unsuccessful BST
// search in a tree of n points.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+0.5772156649) - 2*(fn-1)/fn
}

// score returns the raw anomaly score of x; lower means more anomalous.
func (f *forest) score(x [NumFeatures]float64) float64 {
	total := 0.0
	for _, t := range f.trees {
		total += t.pathLength(x, 0)
	}
	mean := total / float64(len(f.trees))
	return -math.Pow(2, -mean/avgPathLength(f.sampleSize))
}

// decision is score minus the contamination offset; negative means anomaly.
func (f *forest) decision(x [NumFeatures]float64) float64 {
	return f.score(x) - f.offset
}
