// Package distvol fills a voxel volume with the signed distance to a
// triangle mesh. Voxels near the surface are evaluated exactly. Voxels
// further out are approximated by propagating distances over a voxel
// neighborhood, and voxels beyond a limit receive a fill value.
package distvol

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/soypat/sdfvol"
	"github.com/soypat/sdfvol/internal/d3"
	"github.com/soypat/sdfvol/mesh"
	"github.com/soypat/sdfvol/octree"
	"github.com/soypat/sdfvol/signdist"
)

// voxel states.
const (
	stateUnknown uint8 = iota
	stateCandidate
	stateExact
	stateApprox
	// stateFar is an exact voxel beyond the approximate limit.
	stateFar
)

// Progress weights of each phase.
const (
	progressExact  = 0.9
	progressApprox = 0.98
)

// Result summarizes a volume generation.
type Result struct {
	// Exact is the number of voxels evaluated exactly within the approximate limit.
	Exact int
	// Approximate is the number of voxels given a propagated distance.
	Approximate int
	// Far is the number of voxels written with the fill value.
	Far int
	// Layers is the number of propagation layers run.
	Layers int
	// Elapsed is the wall time of the generation.
	Elapsed time.Duration
}

func (r Result) String() string {
	return fmt.Sprintf("exact=%d approximate=%d far=%d layers=%d elapsed=%v",
		r.Exact, r.Approximate, r.Far, r.Layers, r.Elapsed.Round(time.Millisecond))
}

// Create fills out with the signed distance from each voxel center to m,
// negative inside. If roi is not nil it receives 1 for voxels selected by
// params.ROI and 0 elsewhere. Every voxel of out and roi is written exactly
// once. Parameters and inputs are validated before any voxel is touched.
// On cancellation ctx.Err() is returned and the volumes are left untouched.
func Create(ctx context.Context, m *mesh.Mesh, out, roi *sdfvol.Volume, params Params) (Result, error) {
	start := time.Now()
	if err := checkInputs(m, out, roi, params); err != nil {
		return Result{}, err
	}
	log := sdfvol.Logger()
	g := &generator{
		ctx:     ctx,
		params:  params,
		space:   out.Space,
		workers: params.workers(),
		batch:   params.batchSize(),
	}
	n := out.NumVoxels()
	if m.IsEmpty() {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		g.state = make([]uint8, n)
		g.write(out, roi)
		g.report(1)
		res := Result{Far: n, Elapsed: time.Since(start)}
		log.Info("empty mesh, volume filled", "voxels", n, "fill", params.FillValue)
		return res, nil
	}
	ev := params.Evaluator
	if ev == nil {
		ev = signdist.New(m, octree.New(m), params.Winding)
	}
	g.eval = ev
	g.state = make([]uint8, n)
	g.dist = make([]float64, n)
	g.neg = make([]bool, n)

	tm := time.Now()
	if err := g.classify(m); err != nil {
		return Result{}, err
	}
	log.Debug("exact voxels classified", "candidates", len(g.exact), "voxels", n, "elapsed", time.Since(tm))

	tm = time.Now()
	if err := g.evaluateExact(); err != nil {
		return Result{}, err
	}
	g.report(progressExact)
	log.Debug("exact voxels evaluated", "voxels", len(g.exact), "elapsed", time.Since(tm))

	tm = time.Now()
	layers, err := g.propagate()
	if err != nil {
		return Result{}, err
	}
	g.report(progressApprox)
	log.Debug("approximate distances propagated", "layers", layers, "elapsed", time.Since(tm))

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	res := g.write(out, roi)
	res.Layers = layers
	res.Elapsed = time.Since(start)
	g.report(1)
	log.Info("distance volume generated", "dims", out.Dims, "result", res.String())
	return res, nil
}

func checkInputs(m *mesh.Mesh, out, roi *sdfvol.Volume, params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("%w: nil mesh", ErrInvalidParams)
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	if out == nil {
		return fmt.Errorf("%w: nil output volume", ErrInvalidParams)
	}
	if err := out.Space.Validate(); err != nil {
		return fmt.Errorf("%w: output space: %w", ErrInvalidParams, err)
	}
	if len(out.Data) != out.NumVoxels() {
		return fmt.Errorf("%w: output has %d values for %d voxels", ErrInvalidParams, len(out.Data), out.NumVoxels())
	}
	if roi != nil {
		if roi.Space != out.Space {
			return fmt.Errorf("%w: ROI %v, output %v", ErrSpaceMismatch, roi.Dims, out.Dims)
		}
		if len(roi.Data) != roi.NumVoxels() {
			return fmt.Errorf("%w: ROI has %d values for %d voxels", ErrInvalidParams, len(roi.Data), roi.NumVoxels())
		}
	}
	return nil
}

type generator struct {
	ctx     context.Context
	params  Params
	space   sdfvol.Space
	eval    PointEvaluator
	workers int
	batch   int

	// per voxel state, absolute distance and sign.
	state []uint8
	dist  []float64
	neg   []bool
	// exact holds the linear indices of exact tier voxels in memory order.
	exact []int

	progressMu   sync.Mutex
	progressLast float64
}

// report forwards progress to the user callback keeping it serialized and non-decreasing.
func (g *generator) report(frac float64) {
	if g.params.Progress == nil {
		return
	}
	g.progressMu.Lock()
	defer g.progressMu.Unlock()
	frac = math.Min(1, math.Max(frac, g.progressLast))
	g.progressLast = frac
	g.params.Progress(frac)
}

// classify marks voxels whose center lies within ExactLimit of any triangle.
// The padded triangle bounding box limits the voxels tested. Work is split by
// k slabs so every voxel is written by one goroutine.
func (g *generator) classify(m *mesh.Mesh) error {
	s := g.space
	limit := g.params.ExactLimit
	limit2 := limit * limit
	inv := s.Transform().Inv()
	tris := make([]d3.Triangle, len(m.Triangles))
	boxes := make([]d3.Box, len(m.Triangles))
	ranges := make([][2]VoxelIndex, len(m.Triangles))
	for t := range m.Triangles {
		tris[t] = d3.Triangle(m.Triangle(t))
		bb := tris[t].Bounds()
		boxes[t] = bb
		// Index range of the padded box: bound the 8 corners in index space.
		ib := d3.EmptyBox()
		for _, c := range bb.Pad(limit).Vertices() {
			ib = ib.Include(inv.Transform(c))
		}
		lo := VoxelIndex{
			max(0, int(math.Floor(ib.Min.X))),
			max(0, int(math.Floor(ib.Min.Y))),
			max(0, int(math.Floor(ib.Min.Z))),
		}
		hi := VoxelIndex{
			min(s.Dims[0]-1, int(math.Ceil(ib.Max.X))),
			min(s.Dims[1]-1, int(math.Ceil(ib.Max.Y))),
			min(s.Dims[2]-1, int(math.Ceil(ib.Max.Z))),
		}
		ranges[t] = [2]VoxelIndex{lo, hi}
	}
	nz := s.Dims[2]
	slab := max(1, (nz+g.workers-1)/g.workers)
	err := forBatches(g.ctx, g.workers, nz, slab, func(klo, khi int) {
		for t := range ranges {
			lo, hi := ranges[t][0], ranges[t][1]
			for k := max(lo[2], klo); k <= min(hi[2], khi-1); k++ {
				for j := lo[1]; j <= hi[1]; j++ {
					for i := lo[0]; i <= hi[0]; i++ {
						idx := s.Index(i, j, k)
						if g.state[idx] == stateCandidate {
							continue
						}
						p := s.IndexToWorld(i, j, k)
						if boxes[t].Dist2(p) <= limit2 && tris[t].Dist2(p) <= limit2 {
							g.state[idx] = stateCandidate
						}
					}
				}
			}
		}
	}, nil)
	if err != nil {
		return err
	}
	for idx, st := range g.state {
		if st == stateCandidate {
			g.exact = append(g.exact, idx)
		}
	}
	return nil
}

// evaluateExact computes the exact signed distance of every candidate in
// parallel batches. Voxels beyond ApproxLimit become far.
func (g *generator) evaluateExact() error {
	total := len(g.exact)
	var (
		mu   sync.Mutex
		done int
	)
	onDone := func(n int) {
		mu.Lock()
		done += n
		frac := progressExact * float64(done) / float64(total)
		mu.Unlock()
		g.report(frac)
	}
	return forBatches(g.ctx, g.workers, total, g.batch, func(lo, hi int) {
		for _, idx := range g.exact[lo:hi] {
			i, j, k := g.space.IJK(idx)
			d, inside := g.eval.Query(g.space.IndexToWorld(i, j, k))
			if d > g.params.ApproxLimit {
				g.state[idx] = stateFar
				continue
			}
			g.state[idx] = stateExact
			g.dist[idx] = d
			g.neg[idx] = inside
		}
	}, onDone)
}

// propagate runs layered relaxation from the exact voxels outward. Each
// layer gathers the unresolved neighbors of voxels changed in the previous
// layer, computes for each the smallest neighbor distance plus offset length
// reading only values fixed before the layer, then applies improvements
// after a barrier. It stops when a layer changes nothing. The result is the
// shortest path distance over the neighborhood graph, independent of worker
// scheduling.
func (g *generator) propagate() (layers int, err error) {
	s := g.space
	offsets := NeighborOffsets(s, g.params.ApproxNeighborhood)
	limit := g.params.ApproxLimit
	stamp := make([]int32, len(g.state))
	changed := make([]int, 0, len(g.exact))
	for _, idx := range g.exact {
		if g.state[idx] == stateExact {
			changed = append(changed, idx)
		}
	}
	for i := range g.dist {
		if g.state[i] == stateUnknown {
			g.dist[i] = math.Inf(1)
		}
	}
	type update struct {
		idx  int
		dist float64
		neg  bool
	}
	var (
		frontier []int
		updates  []update
		mu       sync.Mutex
	)
	for layer := int32(1); len(changed) > 0; layer++ {
		if err := g.ctx.Err(); err != nil {
			return layers, err
		}
		// Gather candidates: unresolved neighbors of changed voxels, once per layer.
		frontier = frontier[:0]
		err = forBatches(g.ctx, g.workers, len(changed), g.batch, func(lo, hi int) {
			var local []int
			for _, idx := range changed[lo:hi] {
				v := VoxelIndex{}
				v[0], v[1], v[2] = s.IJK(idx)
				for _, o := range offsets {
					u := v.Add(o.Offset)
					if !s.InBounds(u[0], u[1], u[2]) {
						continue
					}
					uidx := s.Index(u[0], u[1], u[2])
					st := g.state[uidx]
					if st != stateUnknown && st != stateApprox {
						continue
					}
					local = append(local, uidx)
				}
			}
			mu.Lock()
			for _, uidx := range local {
				if stamp[uidx] != layer {
					stamp[uidx] = layer
					frontier = append(frontier, uidx)
				}
			}
			mu.Unlock()
		}, nil)
		if err != nil {
			return layers, err
		}
		// Relax candidates against values fixed before this layer.
		updates = updates[:0]
		err = forBatches(g.ctx, g.workers, len(frontier), g.batch, func(lo, hi int) {
			var local []update
			for _, uidx := range frontier[lo:hi] {
				u := VoxelIndex{}
				u[0], u[1], u[2] = s.IJK(uidx)
				best := math.Inf(1)
				bestNeg := false
				for _, o := range offsets {
					if o.Dist >= best {
						// Offsets are sorted, no later neighbor can do better.
						break
					}
					w := u.Add(o.Offset)
					if !s.InBounds(w[0], w[1], w[2]) {
						continue
					}
					widx := s.Index(w[0], w[1], w[2])
					st := g.state[widx]
					if st != stateExact && st != stateApprox {
						continue
					}
					if d := g.dist[widx] + o.Dist; d < best {
						best = d
						bestNeg = g.neg[widx]
					}
				}
				if best <= limit && best < g.dist[uidx] {
					local = append(local, update{idx: uidx, dist: best, neg: bestNeg})
				}
			}
			mu.Lock()
			updates = append(updates, local...)
			mu.Unlock()
		}, nil)
		if err != nil {
			return layers, err
		}
		// Barrier passed: apply. Each voxel appears at most once per layer.
		changed = changed[:0]
		for _, up := range updates {
			g.dist[up.idx] = up.dist
			g.neg[up.idx] = up.neg
			g.state[up.idx] = stateApprox
			changed = append(changed, up.idx)
		}
		if len(changed) > 0 {
			layers++
		}
	}
	return layers, nil
}

// write stores every voxel once, split by k slabs. Voxels without a value get
// the fill value and ROI 0.
func (g *generator) write(out, roi *sdfvol.Volume) (res Result) {
	s := g.space
	fill := g.params.FillValue
	slabSize := s.Dims[0] * s.Dims[1]
	var mu sync.Mutex
	// Not cancellable: volumes are written completely or not at all.
	_ = forBatches(context.Background(), g.workers, s.Dims[2], 1, func(klo, khi int) {
		var local Result
		for idx := klo * slabSize; idx < khi*slabSize; idx++ {
			var (
				val      float32
				roiValue float32
			)
			switch g.state[idx] {
			case stateExact, stateApprox:
				if g.state[idx] == stateExact {
					local.Exact++
				} else {
					local.Approximate++
				}
				val = float32(g.dist[idx])
				inside := g.neg[idx]
				if inside {
					val = -val
				}
				if g.params.ROI == ROIComputed || inside {
					roiValue = 1
				}
			default:
				local.Far++
				val = fill
			}
			out.Data[idx] = val
			if roi != nil {
				roi.Data[idx] = roiValue
			}
		}
		mu.Lock()
		res.Exact += local.Exact
		res.Approximate += local.Approximate
		res.Far += local.Far
		mu.Unlock()
	}, nil)
	return res
}
