package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ayusman/hasta/internal/capture"
	"github.com/ayusman/hasta/internal/cloud"
	"github.com/ayusman/hasta/internal/collision"
	"github.com/ayusman/hasta/internal/config"
	"github.com/ayusman/hasta/internal/grasp"
	"github.com/ayusman/hasta/internal/model"
	"github.com/ayusman/hasta/internal/present"
)

// Pipeline turns one RGB-D frame into a ranked, bounded set of grasps.
// Every stage is built and validated by NewPipeline, so a misconfigured
// pipeline fails before any frame is processed.
type Pipeline struct {
	cfg        config.Config
	model      model.ScoreModel
	filter     *cloud.SceneFilter
	sampler    *cloud.Sampler
	voxelizer  *cloud.Voxelizer
	decoder    *grasp.Decoder
	policy     collision.Policy
	presenter  *present.Presenter
	detectOpts collision.Options
}

// Result is the outcome of one pipeline run.
type Result struct {
	Payload  *present.Payload
	Filtered *cloud.Filtered // full scene cloud, kept for collision checks and visualization

	NumFiltered int
	NumSampled  int
	NumDecoded  int
	NumCollided int
	NumRanked   int
	Seed        uint64
	Elapsed     time.Duration
}

// NewPipeline validates cfg and constructs every stage. The model must
// already be loaded.
func NewPipeline(cfg config.Config, m model.ScoreModel) (*Pipeline, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: no score model", config.ErrInvalid)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	filter, err := cloud.NewSceneFilter(cfg.DepthBand)
	if err != nil {
		return nil, err
	}
	sampler, err := cloud.NewSampler(cfg.NumPoint)
	if err != nil {
		return nil, err
	}
	voxelizer, err := cloud.NewVoxelizer(cfg.VoxelSize)
	if err != nil {
		return nil, err
	}
	decoder, err := grasp.NewDecoder(cfg.Grasp)
	if err != nil {
		return nil, err
	}
	policy, err := collision.PolicyFor(cfg.CollisionThresh)
	if err != nil {
		return nil, err
	}
	presenter, err := present.New(cfg.TopK)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:       cfg,
		model:     m,
		filter:    filter,
		sampler:   sampler,
		voxelizer: voxelizer,
		decoder:   decoder,
		policy:    policy,
		presenter: presenter,
		detectOpts: collision.Options{
			ApproachDist: cfg.ApproachDist,
			Workers:      cfg.Workers,
		},
	}, nil
}

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() config.Config {
	return p.cfg
}

// Policy returns the collision policy in force.
func (p *Pipeline) Policy() collision.Policy {
	return p.policy
}

// Run processes one frame. The same frame and seed always produce the
// same result.
func (p *Pipeline) Run(ctx context.Context, frame *capture.Frame) (*Result, error) {
	start := time.Now()

	if err := frame.Validate(); err != nil {
		return nil, err
	}

	pc, err := cloud.Project(&frame.Depth, frame.Intrinsics, false)
	if err != nil {
		return nil, err
	}

	filtered, err := p.filter.Filter(pc, &frame.Color)
	if err != nil {
		return nil, err
	}

	rng := cloud.NewRand(p.cfg.RandomSeed)
	sampled, err := p.sampler.Sample(filtered, rng)
	if err != nil {
		return nil, err
	}

	batch := p.voxelizer.Voxelize(sampled)

	inferStart := time.Now()
	out, err := p.model.Infer(ctx, batch)
	if err != nil {
		return nil, err
	}
	inferElapsed := time.Since(inferStart)

	sets, err := p.decoder.Decode(out, batch)
	if err != nil {
		return nil, err
	}
	decoded := sets[0]

	res := &Result{
		Filtered:    filtered,
		NumFiltered: filtered.Len(),
		NumSampled:  sampled.Len(),
		NumDecoded:  len(decoded),
		Seed:        p.cfg.RandomSeed,
	}

	kept := decoded
	if p.policy.IsEnabled() && len(decoded) > 0 {
		detector, err := collision.NewDetector(filtered, p.cfg.VoxelSizeCD, p.detectOpts)
		if err != nil {
			return nil, err
		}
		mask, err := detector.Detect(ctx, decoded, p.policy)
		if err != nil {
			return nil, err
		}
		res.NumCollided = mask.Count()
		if kept, err = decoded.Filter(mask); err != nil {
			return nil, err
		}
	}

	ranked := grasp.PostFilter(grasp.Rank(kept), p.cfg.PostFilter)
	res.NumRanked = len(ranked)
	res.Payload = p.presenter.Present(ranked, filtered)
	res.Elapsed = time.Since(start)

	log.Printf("Pipeline: filtered=%d sampled=%d decoded=%d collided=%d ranked=%d kept=%d (infer %v, total %v)",
		res.NumFiltered, res.NumSampled, res.NumDecoded, res.NumCollided, res.NumRanked,
		len(res.Payload.Grasps), inferElapsed.Round(time.Millisecond), res.Elapsed.Round(time.Millisecond))

	return res, nil
}
