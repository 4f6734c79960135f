package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sanonone/citefuse/pkg/affinity"
	"github.com/sanonone/citefuse/pkg/cluster"
	"github.com/sanonone/citefuse/pkg/container"
	"github.com/sanonone/citefuse/pkg/embed"
	"github.com/sanonone/citefuse/pkg/export"
	"github.com/sanonone/citefuse/pkg/fusion"
	"github.com/sanonone/citefuse/pkg/matrix"
)

// FusedName is the container key of the consensus affinity matrix.
const FusedName = "fused"

// Run executes the full pipeline and returns the populated container.
func Run(cfg Config) (*container.CellSet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Ingest all modalities and verify they describe the same cells.
	exprs := make([]*matrix.Expression, len(cfg.Modalities))
	for i, m := range cfg.Modalities {
		e, err := ReadExpressionCSV(m.Path)
		if err != nil {
			return nil, err
		}
		if i > 0 && !exprs[0].AlignedWith(e) {
			return nil, fmt.Errorf("pipeline: modality %q cell axis does not match %q",
				m.Name, cfg.Modalities[0].Name)
		}
		exprs[i] = e
		f, n := e.Dims()
		slog.Info("Loaded modality", "name", m.Name, "features", f, "cells", n)
	}

	cs, err := container.New(exprs[0].Cells())
	if err != nil {
		return nil, err
	}

	// Per-modality affinities.
	affs := make([]*matrix.Affinity, len(exprs))
	for i, m := range cfg.Modalities {
		if err := cs.AddAssay(m.Name, exprs[i], nil); err != nil {
			return nil, err
		}
		a, err := affinity.Build(exprs[i], affinity.Options{
			KNeighbors: cfg.KNeighbors,
			Sigma:      affinity.SigmaMode(cfg.SigmaMode),
			Metric:     affinity.Metric(m.Metric),
		})
		if err != nil {
			return nil, fmt.Errorf("pipeline: modality %q: %w", m.Name, err)
		}
		affs[i] = a
		if err := cs.SetAffinity(m.Name, a, map[string]any{
			"k_neighbors": cfg.KNeighbors, "sigma_mode": cfg.SigmaMode, "metric": m.Metric,
		}); err != nil {
			return nil, err
		}
	}

	// Fusion.
	res, err := fusion.Fuse(affs, fusion.Options{
		KNeighbors:  cfg.KNeighbors,
		MaxIter:     cfg.MaxIter,
		MixFraction: cfg.MixFraction,
		Tolerance:   cfg.Tolerance,
	})
	if err != nil {
		return nil, err
	}
	if res.Warning != nil {
		slog.Warn("Fusion did not converge", "detail", res.Warning.String())
	} else {
		slog.Info("Fusion complete", "iterations", res.Iterations, "converged", res.Converged)
	}
	if err := cs.SetAffinity(FusedName, res.Fused, map[string]any{
		"max_iter": cfg.MaxIter, "mix_fraction": cfg.MixFraction, "iterations": res.Iterations,
	}); err != nil {
		return nil, err
	}

	// Spectral clustering, with eigengap K selection when unset.
	k := cfg.K
	if k == 0 {
		maxK := cfg.MaxK
		if maxK < 3 {
			maxK = 15
		}
		_, spectrum, err := cluster.SpectralEmbedding(res.Fused, 2)
		if err != nil {
			return nil, err
		}
		k = spectrum.SuggestK(maxK)
		slog.Info("Selected cluster count from eigengap", "k", k)
	}
	assign, spectrum, err := cluster.Spectral(res.Fused, k, cluster.SpectralOptions{Seed: cfg.Seed})
	if err != nil {
		return nil, err
	}
	slog.Info("Spectral clustering complete", "k", assign.K, "zero_eigenvalues", spectrum.ZeroCount(1e-10))
	if err := cs.SetAssignment("spectral", assign, map[string]any{"k": k, "seed": cfg.Seed}); err != nil {
		return nil, err
	}
	for i, id := range assign.Cells {
		if err := cs.SetMeta(id, "spectral_cluster", strconv.Itoa(assign.Labels[i])); err != nil {
			return nil, err
		}
	}

	// Optional community clustering on the same fused matrix.
	if cfg.CommunityMethod != "" {
		var algo cluster.CommunityAlgorithm
		switch cfg.CommunityMethod {
		case "louvain":
			algo = cluster.Louvain{Resolution: cfg.LouvainResolution, Seed: cfg.Seed}
		case "components":
			algo = cluster.ConnectedComponents{}
		}
		ca, err := cluster.Community(res.Fused, algo, cfg.KNeighbors)
		if err != nil {
			return nil, err
		}
		slog.Info("Community clustering complete", "method", ca.Method, "communities", ca.K)
		if err := cs.SetAssignment(ca.Method, ca, map[string]any{"k_neighbors": cfg.KNeighbors}); err != nil {
			return nil, err
		}
	}

	// Optional embedding.
	if cfg.EmbedMethod != "" {
		dims := cfg.EmbedDims
		if dims == 0 {
			dims = 2
		}
		coords, err := embed.Embed(res.Fused, embed.Options{
			Method:     embed.Method(cfg.EmbedMethod),
			Dims:       dims,
			Seed:       cfg.Seed,
			Perplexity: cfg.Perplexity,
		})
		if err != nil {
			return nil, err
		}
		if err := cs.SetEmbedding(cfg.EmbedMethod, coords, map[string]any{"dims": dims, "seed": cfg.Seed}); err != nil {
			return nil, err
		}
		slog.Info("Embedding complete", "method", cfg.EmbedMethod, "dims", dims)
	}

	if cfg.OutDir != "" {
		if err := writeOutputs(cfg, cs); err != nil {
			return nil, err
		}
	}
	return cs, nil
}

// writeOutputs dumps labels, coordinates, and the fused matrix to OutDir.
func writeOutputs(cfg Config, cs *container.CellSet) error {
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("pipeline: create out_dir: %w", err)
	}

	if a, ok := cs.Assignment("spectral"); ok {
		if err := writeFile(filepath.Join(cfg.OutDir, "spectral_labels.csv"), func(f *os.File) error {
			return export.WriteLabelsCSV(f, a.Cells, a.Labels)
		}); err != nil {
			return err
		}
	}
	if cfg.CommunityMethod != "" {
		if a, ok := cs.Assignment(cfg.CommunityMethod); ok {
			if err := writeFile(filepath.Join(cfg.OutDir, cfg.CommunityMethod+"_labels.csv"), func(f *os.File) error {
				return export.WriteLabelsCSV(f, a.Cells, a.Labels)
			}); err != nil {
				return err
			}
		}
	}
	if cfg.EmbedMethod != "" {
		if coords, ok := cs.Embedding(cfg.EmbedMethod); ok {
			if err := writeFile(filepath.Join(cfg.OutDir, cfg.EmbedMethod+"_coords.csv"), func(f *os.File) error {
				return export.WriteCoordinatesCSV(f, cs.Cells(), coords)
			}); err != nil {
				return err
			}
		}
	}
	if fused, ok := cs.Affinity(FusedName); ok {
		if err := writeFile(filepath.Join(cfg.OutDir, "fused.kaf"), func(f *os.File) error {
			return export.WriteAffinityFrame(f, fused, cfg.CompactExport)
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
