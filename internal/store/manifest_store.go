package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/thanos-io/objstore"

	"github.com/vidardb/vidardb/internal/logger"
	"github.com/vidardb/vidardb/internal/manifest"
	"github.com/vidardb/vidardb/internal/memlist"
)

// VersionSet is the durable manifest writer (memlist.ManifestWriter): it
// appends each generation's edits to a new, immutable object keyed by a
// monotonically increasing generation number, and retries on a
// conflicting write the same way the teacher's writeManifestSafely loop
// reloads and retries after internal.ErrAlreadyExists.
type VersionSet struct {
	mu           sync.Mutex
	bucket       objstore.Bucket
	manifestPath string
	generation   uint64
}

func NewVersionSet(bucket objstore.Bucket, manifestPath string) *VersionSet {
	return &VersionSet{bucket: bucket, manifestPath: manifestPath}
}

func (vs *VersionSet) genPath(gen uint64) string {
	return path.Join(vs.manifestPath, fmt.Sprintf("%020d.manifest", gen))
}

// LogAndApply implements memlist.ManifestWriter. It releases mu for the
// duration of the upload and reacquires it before returning, exactly the
// allowance spec §5 grants a manifest writer.
func (vs *VersionSet) LogAndApply(ctx context.Context, edits []memlist.ManifestEdit, mu memlist.Mutex) error {
	concrete := make([]manifest.Edit, 0, len(edits))
	for _, e := range edits {
		me, ok := e.(manifest.Edit)
		if !ok {
			return fmt.Errorf("%w: unexpected edit type %T", ErrManifestIO, e)
		}
		concrete = append(concrete, me)
	}
	payload := manifest.EncodeEdits(concrete)

	mu.Unlock()
	defer mu.Lock()

	for {
		vs.mu.Lock()
		gen := vs.generation + 1
		vs.mu.Unlock()

		p := vs.genPath(gen)
		exists, err := vs.bucket.Exists(ctx, p)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrManifestIO, err)
		}
		if exists {
			logger.Warn("conflicting manifest generation, retrying", "generation", gen)
			vs.advanceGeneration(ctx)
			continue
		}

		if err := vs.bucket.Upload(ctx, p, bytes.NewReader(payload)); err != nil {
			return fmt.Errorf("%w: %v", ErrManifestIO, err)
		}

		vs.mu.Lock()
		vs.generation = gen
		vs.mu.Unlock()
		return nil
	}
}

// advanceGeneration rescans the bucket for the highest existing
// generation, used to recover from a conflicting write the same way
// loadManifest refreshes state before writeManifest retries.
func (vs *VersionSet) advanceGeneration(ctx context.Context) {
	latest, err := vs.latestGeneration(ctx)
	if err != nil {
		logger.Warn("unable to rescan manifest generations", "error", err)
		return
	}
	vs.mu.Lock()
	if latest > vs.generation {
		vs.generation = latest
	}
	vs.mu.Unlock()
}

func (vs *VersionSet) latestGeneration(ctx context.Context) (uint64, error) {
	var gens []uint64
	err := vs.bucket.Iter(ctx, vs.manifestPath, func(name string) error {
		if !strings.HasSuffix(name, ".manifest") {
			return nil
		}
		base := path.Base(name)
		numStr := strings.TrimSuffix(base, ".manifest")
		n, err := strconv.ParseUint(numStr, 10, 64)
		if err == nil {
			gens = append(gens, n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(gens) == 0 {
		return 0, nil
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })
	return gens[len(gens)-1], nil
}

// LoadLatest reads every edit ever committed, oldest generation first,
// replaying them in manifest order — used by Open at startup to rebuild
// state, adapted from the teacher's MemtableFlusher.loadManifest.
func (vs *VersionSet) LoadLatest(ctx context.Context) ([]manifest.Edit, error) {
	var gens []uint64
	err := vs.bucket.Iter(ctx, vs.manifestPath, func(name string) error {
		if strings.HasSuffix(name, ".manifest") {
			base := path.Base(name)
			if n, parseErr := strconv.ParseUint(strings.TrimSuffix(base, ".manifest"), 10, 64); parseErr == nil {
				gens = append(gens, n)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestIO, err)
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })

	var all []manifest.Edit
	for _, gen := range gens {
		r, err := vs.bucket.Get(ctx, vs.genPath(gen))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrManifestIO, err)
		}
		buf, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrManifestIO, err)
		}
		edits, err := manifest.DecodeEdits(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrManifestIO, err)
		}
		all = append(all, edits...)
	}

	vs.mu.Lock()
	if len(gens) > 0 {
		vs.generation = gens[len(gens)-1]
	}
	vs.mu.Unlock()
	return all, nil
}

var _ memlist.ManifestWriter = (*VersionSet)(nil)
