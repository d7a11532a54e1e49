package filtering

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/pawmatch/internal/imagehash"
	"github.com/spigell/pawmatch/internal/logger"
	"github.com/spigell/pawmatch/internal/matching"
)

type PhotoFilterConfig struct {
	Enabled     bool
	GridSize    int
	MaxDistance int
	Workers     int
}

type PhotoFilterDeps struct {
	Logger *zap.Logger
	// Cache is shared by every lookup of a run. Nil creates one per Apply.
	Cache   *imagehash.Cache
	Fetcher *imagehash.Fetcher
}

type photoFilter struct {
	enabled bool
	reason  string
	config  *PhotoFilterConfig
	deps    *PhotoFilterDeps
}

// NewPhotoSimilarity compares the photos of both reports and drops pairs
// whose hashes are too far apart. Pairs lacking a photo pass untouched.
func NewPhotoSimilarity(cfg *PhotoFilterConfig, deps *PhotoFilterDeps) Filter {
	enabled := cfg != nil && cfg.Enabled
	return &photoFilter{enabled: enabled, config: cfg, deps: deps}
}

func (f *photoFilter) Name() string { return "photo_similarity" }

func (f *photoFilter) Disable(reason string) {
	f.enabled = false
	f.reason = reason
}

func (f *photoFilter) IsEnabled() bool { return f.enabled }

func (f *photoFilter) Validate() error {
	if f.config == nil {
		return fmt.Errorf("photo configuration is required when photo filter is enabled")
	}
	if f.deps == nil {
		return fmt.Errorf("deps are not initialized: filter is not usable")
	}
	if f.config.MaxDistance < 0 {
		return fmt.Errorf("max distance must not be negative, got %d", f.config.MaxDistance)
	}
	return nil
}

func (f *photoFilter) Apply(ctx context.Context, c *matching.Candidates) (*matching.Candidates, Step, error) {
	initial := c.Len()
	log := logger.WithFields(f.deps.Logger)

	cache := f.deps.Cache
	if cache == nil {
		cache = imagehash.NewCache(f.deps.Fetcher, f.config.GridSize)
	}

	hashes, err := f.hashAll(ctx, cache, photoRefs(c))
	if err != nil {
		return c, Step{}, err
	}

	c.Retain(func(candidate *matching.Candidate) bool {
		lostRef := strings.TrimSpace(candidate.Lost.PhotoURL)
		foundRef := strings.TrimSpace(candidate.Found.PhotoURL)
		if lostRef == "" || foundRef == "" {
			return true
		}

		lost, found := hashes[lostRef], hashes[foundRef]
		photo := &matching.PhotoMatch{}
		candidate.Photo = photo

		if lost.err != nil || found.err != nil {
			photo.Error = errors.Join(lost.err, found.err).Error()
			return true
		}

		photo.LostHash = lost.hash.Hex()
		photo.FoundHash = found.hash.Hex()
		distance := imagehash.HammingDistance(lost.hash, found.hash)
		photo.Distance = &distance

		if distance > f.config.MaxDistance {
			logger.WithPair(log, candidate.Lost.ID, candidate.Found.ID).Debug("photos differ",
				zap.Int("distance", distance),
				zap.Int("max_distance", f.config.MaxDistance),
			)
			return false
		}
		return true
	})

	return c, stepOf(initial, c), nil
}

type hashResult struct {
	hash imagehash.Hash
	err  error
}

// hashAll loads every reference in parallel. Per-image failures are recorded,
// only cancellation aborts.
func (f *photoFilter) hashAll(ctx context.Context, cache *imagehash.Cache, refs []string) (map[string]hashResult, error) {
	log := logger.WithFields(f.deps.Logger)

	workers := f.config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var mu sync.Mutex
	results := make(map[string]hashResult, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, ref := range refs {
		g.Go(func() error {
			h, err := cache.Hash(gctx, ref)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn("photo could not be hashed. It will be skipped.",
					zap.String("photo", ref),
					zap.String("failure", failureKind(err)),
					zap.Error(err),
				)
			}

			mu.Lock()
			results[ref] = hashResult{hash: h, err: err}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// photoRefs lists distinct photos of pairs where both reports have one.
func photoRefs(c *matching.Candidates) []string {
	seen := make(map[string]struct{})
	var refs []string
	for _, candidate := range c.Items {
		lost := strings.TrimSpace(candidate.Lost.PhotoURL)
		found := strings.TrimSpace(candidate.Found.PhotoURL)
		if lost == "" || found == "" {
			continue
		}
		for _, ref := range []string{lost, found} {
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			refs = append(refs, ref)
		}
	}
	return refs
}

func failureKind(err error) string {
	var timeoutErr *imagehash.TimeoutError
	var decodeErr *imagehash.DecodeError
	switch {
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &decodeErr):
		return "decode"
	default:
		return "load"
	}
}

func (f *photoFilter) Status() Status {
	details := map[string]string{}
	if f.config != nil {
		details["max_distance"] = strconv.Itoa(f.config.MaxDistance)
		grid := f.config.GridSize
		if grid <= 0 {
			grid = imagehash.DefaultGridSize
		}
		details["grid_size"] = strconv.Itoa(grid)
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
