package model

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

// ForestOptions controls forest fitting.
type ForestOptions struct {
	Trees    int
	MaxDepth int // zero means unlimited
	MinLeaf  int
	// MaxFeatures is the number of candidate features per split; zero uses all.
	MaxFeatures int
	Seed        uint64
	Workers     int
}

// DefaultForestOptions grows 100 fully expanded trees (no depth cap, leaves
// of one example) from seed 42.
func DefaultForestOptions() ForestOptions {
	return ForestOptions{Trees: 100, MaxDepth: 0, MinLeaf: 1, Seed: 42}
}

// Forest is a bootstrap-aggregated ensemble of regression trees.
type Forest struct {
	Window int    `msgpack:"window"`
	Trees  []Tree `msgpack:"trees"`
}

var _ Regressor = (*Forest)(nil)

// Tree stores nodes in flat arrays. A negative Feature marks a leaf.
type Tree struct {
	Feature   []int32   `msgpack:"f"`
	Threshold []float64 `msgpack:"t"`
	Left      []int32   `msgpack:"l"`
	Right     []int32   `msgpack:"r"`
	Value     []float64 `msgpack:"v"`
}

// FitForest fits opts.Trees trees in parallel. Tree i draws its bootstrap
// sample from a generator seeded with (opts.Seed, i), so the result does not
// depend on scheduling.
func FitForest(ctx context.Context, x [][]float64, y []float64, opts ForestOptions) (*Forest, error) {
	if len(x) == 0 {
		return nil, errors.New("model: no training examples")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("model: %d feature rows but %d targets", len(x), len(y))
	}
	width := len(x[0])
	for i, row := range x {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrWindowSize, i, len(row), width)
		}
	}
	if opts.Trees <= 0 {
		opts.Trees = DefaultForestOptions().Trees
	}
	if opts.MinLeaf <= 0 {
		opts.MinLeaf = 1
	}
	if opts.MaxFeatures <= 0 || opts.MaxFeatures > width {
		opts.MaxFeatures = width
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	forest := &Forest{Window: width, Trees: make([]Tree, opts.Trees)}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range forest.Trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(opts.Seed, uint64(i)))
			b := &treeBuilder{x: x, y: y, opts: opts, rng: rng}
			forest.Trees[i] = b.build()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return forest, nil
}

// Predict averages the tree outputs.
func (f *Forest) Predict(window []float64) (float64, error) {
	if err := checkWindow(window, f.Window); err != nil {
		return 0, err
	}
	if len(f.Trees) == 0 {
		return 0, errors.New("model: forest has no trees")
	}
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].predict(window)
	}
	return sum / float64(len(f.Trees)), nil
}

func (f *Forest) WindowSize() int { return f.Window }

func (t *Tree) predict(window []float64) float64 {
	node := int32(0)
	for t.Feature[node] >= 0 {
		if window[t.Feature[node]] <= t.Threshold[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
	}
	return t.Value[node]
}

func (t *Tree) validate(width int) error {
	n := len(t.Feature)
	if n == 0 || len(t.Threshold) != n || len(t.Left) != n || len(t.Right) != n || len(t.Value) != n {
		return errors.New("model: malformed tree arrays")
	}
	for i := 0; i < n; i++ {
		f := t.Feature[i]
		if f < 0 {
			continue
		}
		if int(f) >= width {
			return fmt.Errorf("model: node %d splits on feature %d of %d", i, f, width)
		}
		// children are always appended after their parent
		if l, r := t.Left[i], t.Right[i]; l <= int32(i) || r <= int32(i) || int(l) >= n || int(r) >= n {
			return fmt.Errorf("model: node %d has invalid children", i)
		}
	}
	return nil
}

type treeBuilder struct {
	x    [][]float64
	y    []float64
	opts ForestOptions
	rng  *rand.Rand
	tree Tree

	// scratch buffers reused across splits
	order []int
	feats []int
}

func (b *treeBuilder) build() Tree {
	n := len(b.x)
	sample := make([]int, n)
	for i := range sample {
		sample[i] = b.rng.IntN(n)
	}
	b.feats = make([]int, len(b.x[0]))
	for i := range b.feats {
		b.feats[i] = i
	}
	b.grow(sample, 0)
	return b.tree
}

func (b *treeBuilder) addNode(value float64) int32 {
	b.tree.Feature = append(b.tree.Feature, -1)
	b.tree.Threshold = append(b.tree.Threshold, 0)
	b.tree.Left = append(b.tree.Left, -1)
	b.tree.Right = append(b.tree.Right, -1)
	b.tree.Value = append(b.tree.Value, value)
	return int32(len(b.tree.Feature) - 1)
}

func (b *treeBuilder) grow(idx []int, depth int) int32 {
	var sum, sumSq float64
	for _, i := range idx {
		v := b.y[i]
		sum += v
		sumSq += v * v
	}
	n := float64(len(idx))
	node := b.addNode(sum / n)

	if len(idx) < 2*b.opts.MinLeaf || (b.opts.MaxDepth > 0 && depth >= b.opts.MaxDepth) {
		return node
	}
	if sumSq-sum*sum/n <= 1e-12 {
		return node
	}

	feature, threshold, ok := b.bestSplit(idx, sumSq-sum*sum/n)
	if !ok {
		return node
	}

	// partition in place: left side first
	mid := 0
	for j, i := range idx {
		if b.x[i][feature] <= threshold {
			idx[mid], idx[j] = idx[j], idx[mid]
			mid++
		}
	}
	left := b.grow(idx[:mid], depth+1)
	right := b.grow(idx[mid:], depth+1)

	b.tree.Feature[node] = int32(feature)
	b.tree.Threshold[node] = threshold
	b.tree.Left[node] = left
	b.tree.Right[node] = right
	return node
}

// bestSplit sweeps each candidate feature in sorted order and picks the
// threshold with the largest reduction in squared error.
func (b *treeBuilder) bestSplit(idx []int, parentSSE float64) (feature int, threshold float64, ok bool) {
	candidates := b.feats
	if b.opts.MaxFeatures < len(b.feats) {
		b.rng.Shuffle(len(b.feats), func(i, j int) { b.feats[i], b.feats[j] = b.feats[j], b.feats[i] })
		candidates = b.feats[:b.opts.MaxFeatures]
	}

	b.order = append(b.order[:0], idx...)
	order := b.order
	n := len(order)
	minLeaf := b.opts.MinLeaf
	best := parentSSE

	var total, totalSq float64
	for _, i := range order {
		total += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}

	for _, f := range candidates {
		slices.SortFunc(order, func(a, c int) int { return cmp.Compare(b.x[a][f], b.x[c][f]) })

		var leftSum, leftSq float64
		for k := 1; k < n; k++ {
			v := b.y[order[k-1]]
			leftSum += v
			leftSq += v * v
			if k < minLeaf || n-k < minLeaf {
				continue
			}
			lo, hi := b.x[order[k-1]][f], b.x[order[k]][f]
			if lo == hi {
				continue
			}
			nl, nr := float64(k), float64(n-k)
			rightSum, rightSq := total-leftSum, totalSq-leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if sse < best-1e-12 {
				best = sse
				feature = f
				threshold = lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				ok = true
			}
		}
	}
	return feature, threshold, ok
}
