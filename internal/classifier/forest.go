package classifier

import (
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/gammazero/workerpool"
	"github.com/lake-guardian/lake-rise-research-cli/internal/properties"
)

// A bootstrap-bagged ensemble of CART trees over per-pixel feature vectors.
// Nothing in the example corpus ships a trainable ensemble, so the trees
// are grown here: Gini impurity, sqrt(#features) candidate features per
// split, majority vote. Tree fitting and batch prediction fan out over a
// worker pool; everything else in the pipeline stays sequential.

// Node is one decision node in flattened form. Leaf nodes carry the class;
// internal nodes route on feature <= threshold to Left, else Right.
type Node struct {
	Feature   int
	Threshold float64
	Left      int32
	Right     int32
	Leaf      bool
	Class     int
}

type Tree struct {
	Nodes []Node
}

func (t *Tree) predict(x []float64) int {
	idx := int32(0)
	for {
		n := t.Nodes[idx]
		if n.Leaf {
			return n.Class
		}
		if x[n.Feature] <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
}

// Forest is the serializable trained model artifact.
type Forest struct {
	Trees       []Tree
	NumFeatures int
	Classes     []int
}

// TrainForest fits the ensemble on a row-per-sample design matrix. Rows
// must be free of NaN; callers filter undefined pixels beforehand.
func TrainForest(x [][]float64, y []int, cfg properties.ForestConfig) (*Forest, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("invalid training set: %d rows, %d labels", len(x), len(y))
	}
	numFeatures := len(x[0])

	classSet := map[int]bool{}
	for _, label := range y {
		classSet[label] = true
	}
	classes := make([]int, 0, len(classSet))
	for c := range classSet {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	forest := &Forest{
		Trees:       make([]Tree, cfg.Trees),
		NumFeatures: numFeatures,
		Classes:     classes,
	}

	mtry := int(math.Sqrt(float64(numFeatures)))
	if mtry < 1 {
		mtry = 1
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	wp := workerpool.New(workers)
	for i := 0; i < cfg.Trees; i++ {
		i := i
		wp.Submit(func() {
			rng := rand.New(rand.NewSource(cfg.Seed + int64(i)))
			sample := make([]int, len(x))
			for j := range sample {
				sample[j] = rng.Intn(len(x))
			}
			forest.Trees[i] = *growTree(x, y, sample, mtry, cfg, rng)
		})
	}
	wp.StopWait()

	return forest, nil
}

// Predict returns the majority class for one feature vector.
func (f *Forest) Predict(x []float64) int {
	votes := map[int]int{}
	for i := range f.Trees {
		votes[f.Trees[i].predict(x)]++
	}
	best, bestVotes := 0, -1
	for _, class := range f.Classes {
		if votes[class] > bestVotes {
			best, bestVotes = class, votes[class]
		}
	}
	return best
}

// PredictBatch classifies many rows, fanning out over the worker pool. The
// output is index aligned with the input.
func (f *Forest) PredictBatch(rows [][]float64, workers int) []int {
	out := make([]int, len(rows))
	if workers < 1 {
		workers = 1
	}
	wp := workerpool.New(workers)
	chunk := (len(rows) + workers - 1) / workers
	if chunk < 1 {
		chunk = 1
	}
	for start := 0; start < len(rows); start += chunk {
		start := start
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		wp.Submit(func() {
			for i := start; i < end; i++ {
				out[i] = f.Predict(rows[i])
			}
		})
	}
	wp.StopWait()
	return out
}

// Save serializes the forest as an opaque model artifact.
func (f *Forest) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create model file %s: %w", path, err)
	}
	defer file.Close()
	if err := gob.NewEncoder(file).Encode(f); err != nil {
		return fmt.Errorf("failed to encode model to %s: %w", path, err)
	}
	return nil
}

// LoadForest reads a previously saved model artifact.
func LoadForest(path string) (*Forest, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file %s: %w", path, err)
	}
	defer file.Close()
	var forest Forest
	if err := gob.NewDecoder(file).Decode(&forest); err != nil {
		return nil, fmt.Errorf("failed to decode model from %s: %w", path, err)
	}
	return &forest, nil
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

func growTree(x [][]float64, y []int, sample []int, mtry int, cfg properties.ForestConfig, rng *rand.Rand) *Tree {
	tree := &Tree{}
	var grow func(rows []int, depth int) int32
	grow = func(rows []int, depth int) int32 {
		idx := int32(len(tree.Nodes))
		tree.Nodes = append(tree.Nodes, Node{})

		majority, pure := majorityClass(y, rows)
		if pure || len(rows) < 2*cfg.MinLeaf || (cfg.MaxDepth > 0 && depth >= cfg.MaxDepth) {
			tree.Nodes[idx] = Node{Leaf: true, Class: majority}
			return idx
		}

		best := bestSplit(x, y, rows, mtry, cfg.MinLeaf, rng)
		if best == nil {
			tree.Nodes[idx] = Node{Leaf: true, Class: majority}
			return idx
		}

		var left, right []int
		for _, r := range rows {
			if x[r][best.feature] <= best.threshold {
				left = append(left, r)
			} else {
				right = append(right, r)
			}
		}
		if len(left) == 0 || len(right) == 0 {
			tree.Nodes[idx] = Node{Leaf: true, Class: majority}
			return idx
		}

		leftIdx := grow(left, depth+1)
		rightIdx := grow(right, depth+1)
		tree.Nodes[idx] = Node{
			Feature:   best.feature,
			Threshold: best.threshold,
			Left:      leftIdx,
			Right:     rightIdx,
		}
		return idx
	}
	grow(sample, 0)
	return tree
}

func majorityClass(y []int, rows []int) (int, bool) {
	counts := map[int]int{}
	for _, r := range rows {
		counts[y[r]]++
	}
	best, bestCount := 0, -1
	for class, count := range counts {
		if count > bestCount || (count == bestCount && class < best) {
			best, bestCount = class, count
		}
	}
	return best, len(counts) == 1
}

func gini(counts map[int]int, total int) float64 {
	if total == 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := float64(c) / float64(total)
		impurity -= p * p
	}
	return impurity
}

func bestSplit(x [][]float64, y []int, rows []int, mtry, minLeaf int, rng *rand.Rand) *split {
	numFeatures := len(x[rows[0]])
	features := rng.Perm(numFeatures)[:mtry]

	parentCounts := map[int]int{}
	for _, r := range rows {
		parentCounts[y[r]]++
	}
	parentGini := gini(parentCounts, len(rows))

	var best *split
	for _, feature := range features {
		sorted := make([]int, len(rows))
		copy(sorted, rows)
		sort.Slice(sorted, func(i, j int) bool {
			return x[sorted[i]][feature] < x[sorted[j]][feature]
		})

		leftCounts := map[int]int{}
		rightCounts := map[int]int{}
		for c, n := range parentCounts {
			rightCounts[c] = n
		}
		for i := 0; i < len(sorted)-1; i++ {
			r := sorted[i]
			leftCounts[y[r]]++
			rightCounts[y[r]]--

			cur := x[sorted[i]][feature]
			next := x[sorted[i+1]][feature]
			if cur == next {
				continue
			}
			nLeft, nRight := i+1, len(sorted)-i-1
			if nLeft < minLeaf || nRight < minLeaf {
				continue
			}
			weighted := (float64(nLeft)*gini(leftCounts, nLeft) +
				float64(nRight)*gini(rightCounts, nRight)) / float64(len(sorted))
			gain := parentGini - weighted
			if best == nil || gain > best.gain {
				best = &split{
					feature:   feature,
					threshold: (cur + next) / 2,
					gain:      gain,
				}
			}
		}
	}
	if best != nil && best.gain <= 0 {
		return nil
	}
	return best
}
