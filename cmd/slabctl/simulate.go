package main

import (
	"context"
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/joshuapare/modelstore/model"
	"github.com/joshuapare/modelstore/session"
	"github.com/joshuapare/modelstore/store"
)

type simOptions struct {
	Objects            int
	Frames             int
	Churn              float64
	Pieces             int
	Mutate             float64
	Seed               int64
	Persistent         bool
	MaxBufferBytes     int
	TransformsCapacity int
	UniformsCapacity   int
}

var simOpts = simOptions{
	Objects:    1000,
	Frames:     300,
	Churn:      0.02,
	Pieces:     8,
	Mutate:     0.1,
	Seed:       1,
	Persistent: true,
}

func init() {
	cmd := newSimulateCmd()
	f := cmd.Flags()
	f.IntVar(&simOpts.Objects, "objects", simOpts.Objects, "Live objects to keep in the world")
	f.IntVar(&simOpts.Frames, "frames", simOpts.Frames, "Simulation frames (one upload cycle each)")
	f.Float64Var(&simOpts.Churn, "churn", simOpts.Churn, "Fraction of objects despawned and respawned per frame")
	f.IntVar(&simOpts.Pieces, "pieces", simOpts.Pieces, "Maximum model pieces (transforms) per object")
	f.Float64Var(&simOpts.Mutate, "mutate", simOpts.Mutate, "Fraction of objects that move per frame")
	f.Int64Var(&simOpts.Seed, "seed", simOpts.Seed, "Random seed")
	f.BoolVar(&simOpts.Persistent, "persistent", simOpts.Persistent, "Keep ring generations between cycles (false forces full copies)")
	f.IntVar(&simOpts.MaxBufferBytes, "max-buffer-bytes", 0, "Cap each ring buffer's size (0 = unlimited)")
	f.IntVar(&simOpts.TransformsCapacity, "transforms-capacity", 0, "Initial transforms capacity in records (0 = default)")
	f.IntVar(&simOpts.UniformsCapacity, "uniforms-capacity", 0, "Initial uniforms capacity in records (0 = default)")
	rootCmd.AddCommand(cmd)
}

func newSimulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate",
		Short: "Run a synthetic spawn/move/despawn workload",
		Long: `The simulate command spawns objects that each own a span of transforms
and a uniforms record, moves a random subset every frame, despawns and
respawns a fraction of them, and runs one upload cycle per frame.

Example:
  slabctl simulate
  slabctl simulate --objects 5000 --frames 600 --churn 0.05
  slabctl simulate --persistent=false --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context(), simOpts)
		},
	}
}

// simObject is a world object for the workload.
type simObject struct {
	kind   session.Kind
	pieces *store.Span[model.Transform]
}

func (o *simObject) Kind() session.Kind                       { return o.kind }
func (o *simObject) Transforms() *store.Span[model.Transform] { return o.pieces }

// SimResult is the outcome of a simulation run.
type SimResult struct {
	Options simOptions
	Elapsed time.Duration

	Spawned   int
	Despawned int
	Draws     int // Objects resolved by the draw pass
	Writes    int // Record writes issued by the workload

	UploadedRecords int
	UploadedRanges  int
	FullCopies      int
	SkippedCycles   int
	LastError       string `json:",omitempty"`

	Session session.Stats
}

type simulation struct {
	opts  simOptions
	s     *session.Session
	rng   *rand.Rand
	live  []*simObject
	defs  []*simObject
	res   SimResult
	clock int
}

func (o simOptions) validate() error {
	switch {
	case o.Objects < 0:
		return errors.Newf("--objects must be >= 0, got %d", o.Objects)
	case o.Frames < 0:
		return errors.Newf("--frames must be >= 0, got %d", o.Frames)
	case o.Pieces < 1:
		return errors.Newf("--pieces must be >= 1, got %d", o.Pieces)
	case o.Churn < 0 || o.Churn > 1:
		return errors.Newf("--churn must be in [0,1], got %g", o.Churn)
	case o.Mutate < 0 || o.Mutate > 1:
		return errors.Newf("--mutate must be in [0,1], got %g", o.Mutate)
	}
	return nil
}

func (o simOptions) config() session.Config {
	cfg := session.DefaultConfig()
	cfg.Ring.Persistent = o.Persistent
	cfg.Ring.MaxBytes = o.MaxBufferBytes
	if o.TransformsCapacity > 0 {
		cfg.Transforms.InitialCapacity = o.TransformsCapacity
		cfg.TransformsUpload.InitialCapacity = o.TransformsCapacity
		cfg.TransformsUpload.Increment = max(o.TransformsCapacity/4, 1)
	}
	if o.UniformsCapacity > 0 {
		cfg.Uniforms.InitialCapacity = o.UniformsCapacity
		cfg.UniformsUpload.InitialCapacity = o.UniformsCapacity
		cfg.UniformsUpload.Increment = max(o.UniformsCapacity/2, 1)
	}
	return cfg
}

func runSimulate(ctx context.Context, opts simOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := simulate(ctx, opts)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(res)
	}
	printSimResult(res)
	return nil
}

func simulate(ctx context.Context, opts simOptions) (SimResult, error) {
	if err := opts.validate(); err != nil {
		return SimResult{}, err
	}

	s, err := session.NewWithRingBuffers(opts.config(), log)
	if err != nil {
		return SimResult{}, errors.Wrap(err, "create session")
	}
	defer s.Close()

	sim := &simulation{
		opts: opts,
		s:    s,
		rng:  rand.New(rand.NewSource(opts.Seed)),
		live: make([]*simObject, 0, opts.Objects),
		res:  SimResult{Options: opts},
	}
	// Definitions share read-only data and never own uniforms.
	for _, k := range []session.Kind{session.KindUnitDef, session.KindFeatureDef, session.KindModel} {
		sim.defs = append(sim.defs, &simObject{kind: k, pieces: store.Dummy[model.Transform]()})
	}

	start := time.Now()
	for range opts.Objects {
		if err := sim.spawn(); err != nil {
			return SimResult{}, err
		}
	}

	for frame := range opts.Frames {
		if err := ctx.Err(); err != nil {
			return SimResult{}, err
		}
		if err := sim.step(ctx, frame); err != nil {
			return SimResult{}, errors.Wrapf(err, "frame %d", frame)
		}
	}

	for len(sim.live) > 0 {
		if err := sim.despawn(len(sim.live) - 1); err != nil {
			return SimResult{}, err
		}
	}

	sim.res.Elapsed = time.Since(start)
	sim.res.Session = s.Stats()
	return sim.res, nil
}

var ownerKinds = []session.Kind{session.KindUnit, session.KindFeature, session.KindProjectile}

func (sim *simulation) spawn() error {
	o := &simObject{kind: ownerKinds[sim.rng.Intn(len(ownerKinds))]}
	sp, err := sim.s.AcquireTransforms(1 + sim.rng.Intn(sim.opts.Pieces))
	if err != nil {
		return errors.Wrap(err, "spawn")
	}
	o.pieces = sp
	for i := range sp.Len() {
		if err := sp.Set(i, model.IdentityTransform()); err != nil {
			return err
		}
	}

	sim.clock++
	err = sim.s.SetUniforms(o, model.ModelUniforms{
		DrawFlag:  model.DrawFlagOpaque,
		ID:        uint16(sim.clock),
		MaxHealth: 100,
		Health:    100,
	})
	if err != nil {
		return err
	}

	sim.res.Writes += sp.Len() + 1
	sim.res.Spawned++
	sim.live = append(sim.live, o)
	return nil
}

func (sim *simulation) despawn(i int) error {
	o := sim.live[i]
	if err := o.pieces.Release(); err != nil {
		return errors.Wrap(err, "release transforms")
	}
	if err := sim.s.RemoveObject(o); err != nil {
		return errors.Wrap(err, "remove object")
	}

	last := len(sim.live) - 1
	sim.live[i] = sim.live[last]
	sim.live = sim.live[:last]
	sim.res.Despawned++
	return nil
}

func (sim *simulation) step(ctx context.Context, frame int) error {
	for _, o := range sim.live {
		if sim.rng.Float64() >= sim.opts.Mutate {
			continue
		}
		piece := sim.rng.Intn(o.pieces.Len())
		err := o.pieces.Update(piece, func(t *model.Transform) {
			t.T.X += sim.rng.Float32() - 0.5
			t.T.Z += sim.rng.Float32() - 0.5
		})
		if err != nil {
			return err
		}
		err = sim.s.UpdateUniforms(o, func(u *model.ModelUniforms) {
			u.Health = max(u.Health-1, 0)
			u.DrawPos = model.Float4{X: float32(frame)}
		})
		if err != nil {
			return err
		}
		sim.res.Writes += 2
	}

	churn := int(sim.opts.Churn * float64(len(sim.live)))
	for range churn {
		if err := sim.despawn(sim.rng.Intn(len(sim.live))); err != nil {
			return err
		}
	}
	for range churn {
		if err := sim.spawn(); err != nil {
			return err
		}
	}

	if err := sim.draw(); err != nil {
		return err
	}

	rep, err := sim.s.Update(ctx)
	for _, r := range []struct {
		rec  int
		rng  int
		full bool
		skip bool
	}{
		{rep.Transforms.Records, rep.Transforms.Ranges, rep.Transforms.FullCopy, rep.Transforms.Skipped},
		{rep.Uniforms.Records, rep.Uniforms.Ranges, rep.Uniforms.FullCopy, rep.Uniforms.Skipped},
	} {
		sim.res.UploadedRecords += r.rec
		sim.res.UploadedRanges += r.rng
		if r.full {
			sim.res.FullCopies++
		}
		if r.skip {
			sim.res.SkippedCycles++
		}
	}
	if err != nil {
		// Skipped cycles are retried next frame.
		sim.res.LastError = err.Error()
		log.Warn("upload cycle failed", "frame", frame, "error", err)
	}
	printVerbose("frame %d: %d live, %d records uploaded\n", frame, len(sim.live), rep.Transforms.Records+rep.Uniforms.Records)
	return nil
}

// draw resolves offsets the way a renderer would before issuing draws.
func (sim *simulation) draw() error {
	for _, o := range sim.live {
		if sim.s.TransformOffset(o).Valid() && sim.s.UniformsOffset(o).Valid() {
			sim.res.Draws++
		}
	}
	for _, d := range sim.defs {
		// Definitions draw with the sentinel uniforms and hold no transforms.
		if sim.s.UniformsOffset(d).Valid() {
			return errors.AssertionFailedf("%s definition resolved a uniforms record", d.kind)
		}
	}
	return nil
}

func printSimResult(res SimResult) {
	st := res.Session

	printInfo("\nSimulation: %d objects, %d frames (session %s)\n", res.Options.Objects, res.Options.Frames, st.ID)
	printInfo("  Elapsed: %s\n\n", res.Elapsed.Round(time.Millisecond))

	printInfo("Workload:\n")
	printInfo("  Spawned: %d\n", res.Spawned)
	printInfo("  Despawned: %d\n", res.Despawned)
	printInfo("  Record writes: %d\n", res.Writes)
	printInfo("  Draws resolved: %d\n\n", res.Draws)

	for _, part := range []struct {
		name  string
		store store.Stats
		bytes int
	}{
		{"Transforms", st.Transforms, model.TransformSize},
		{"Uniforms", st.Uniforms, model.ModelUniformsSize},
	} {
		a := part.store.Alloc
		printInfo("%s:\n", part.name)
		printInfo("  High-water: %d records (%s)\n", part.store.Records, formatBytes(int64(part.store.Records*part.bytes)))
		printInfo("  Capacity: %d records, %d grows\n", part.store.Capacity, part.store.Grows)
		printInfo("  Allocations: %d (%d reused, %d tail absorbs, %d splits)\n", a.AllocCalls, a.Reused, a.TailAbsorbs, a.Splits)
		printInfo("  Frees: %d (%d coalesces)\n", a.FreeCalls, a.Coalesces)
		printInfo("  Holes: %d spans, %d records, largest %d, fragmentation %.1f%%\n\n",
			a.FreeSpans, a.FreeRecords, a.LargestHole, a.Fragmentation*100)
	}

	printInfo("Identity index:\n")
	printInfo("  Creates: %d, removes: %d, hits: %d\n\n", st.Objects.Creates, st.Objects.Removes, st.Objects.Hits)

	printInfo("Uploads:\n")
	printInfo("  Records: %d in %d ranges\n", res.UploadedRecords, res.UploadedRanges)
	printInfo("  Full copies: %d\n", res.FullCopies)
	printInfo("  Buffer resizes: %d transforms, %d uniforms\n", st.TransformsUpload.Resizes, st.UniformsUpload.Resizes)
	printInfo("  Skipped cycles: %d\n", res.SkippedCycles)
	if res.LastError != "" {
		printInfo("  Last error: %s\n", res.LastError)
	}
}
