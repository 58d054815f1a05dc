package tooling

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	compression "github.com/deploymenttheory/go-flash-composer/internal/common/compressionutil"
	"github.com/deploymenttheory/go-flash-composer/internal/common/cryptoutil"
	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
	"github.com/deploymenttheory/go-flash-composer/internal/common/fsutil"
	"github.com/deploymenttheory/go-flash-composer/internal/common/jsonutil"
	"github.com/deploymenttheory/go-flash-composer/internal/block"
	"github.com/deploymenttheory/go-flash-composer/internal/config"
	"github.com/deploymenttheory/go-flash-composer/internal/datasource"
	"github.com/deploymenttheory/go-flash-composer/internal/hexfile"
	"github.com/deploymenttheory/go-flash-composer/internal/layout"
	"github.com/deploymenttheory/go-flash-composer/internal/logger"
	"github.com/deploymenttheory/go-flash-composer/internal/report"
	"github.com/deploymenttheory/go-flash-composer/internal/value"
)

// BuildRequest describes one build run.
type BuildRequest struct {
	// Inputs are "BLOCK@FILE" selectors, or a bare FILE for every block in it.
	Inputs      []string
	Format      string // hex or srec
	RecordWidth int
	Strict      bool

	// Data source, at most one of JSON and HTTP.
	JSON     string
	HTTP     string
	Versions []string

	// Output is the combined image path. When empty and Split is off the
	// image is written to Stdout.
	Output    string
	OutputDir string
	// Split writes one image per block named <layout>_<block><ext>.
	Split    bool
	Compress string // "", gzip, bzip2 or xz
	Digest   string // "", sha256, sha512 or blake2b
	Manifest string
	// ExportJSON is the path of the used-values report.
	ExportJSON  string
	Parallelism int

	Stdout io.Writer
}

// RequestFromConfig seeds a request with the configured build defaults.
func RequestFromConfig(cfg config.AppConfig) BuildRequest {
	return BuildRequest{
		Format:      cfg.Build.Format,
		RecordWidth: cfg.Build.RecordWidth,
		Strict:      cfg.Build.Strict,
		JSON:        cfg.Data.JSON,
		HTTP:        cfg.Data.HTTP,
		Versions:    cfg.Data.Versions,
		OutputDir:   cfg.Build.OutputDir,
		Split:       cfg.Build.Split,
		Compress:    cfg.Build.Compress,
		Digest:      cfg.Build.Digest,
		Parallelism: cfg.Build.Parallelism,
	}
}

// BlockStats summarizes one built block.
type BlockStats struct {
	Name     string `json:"name"`
	File     string `json:"file"`
	Start    uint64 `json:"start"`
	Length   uint32 `json:"length"`
	Used     int    `json:"used"`
	CRC      uint64 `json:"crc,omitempty"`
	HasCRC   bool   `json:"has_crc"`
	CRCBytes int    `json:"crc_bytes,omitempty"`
}

// End is one past the last address of the block.
func (s BlockStats) End() uint64 {
	return s.Start + uint64(s.Length)
}

// Efficiency is the used share of the block in percent.
func (s BlockStats) Efficiency() float64 {
	if s.Length == 0 {
		return 0
	}
	return float64(s.Used) * 100 / float64(s.Length)
}

// Artifact is one written output file.
type Artifact struct {
	Path   string   `json:"path"`
	Size   int      `json:"size"`
	Digest string   `json:"digest,omitempty"`
	Blocks []string `json:"blocks"`
}

// BuildResult is returned by Build.
type BuildResult struct {
	Blocks    []BlockStats  `json:"blocks"`
	Artifacts []Artifact    `json:"artifacts"`
	Duration  time.Duration `json:"-"`
}

// TotalAllocated sums the lengths of every block.
func (r *BuildResult) TotalAllocated() uint64 {
	var n uint64
	for _, b := range r.Blocks {
		n += uint64(b.Length)
	}
	return n
}

// TotalUsed sums the used bytes of every block.
func (r *BuildResult) TotalUsed() uint64 {
	var n uint64
	for _, b := range r.Blocks {
		n += uint64(b.Used)
	}
	return n
}

// Efficiency is the used share of all blocks in percent.
func (r *BuildResult) Efficiency() float64 {
	total := r.TotalAllocated()
	if total == 0 {
		return 0
	}
	return float64(r.TotalUsed()) * 100 / float64(total)
}

type manifest struct {
	Tool      string     `json:"tool"`
	Version   string     `json:"version"`
	Format    string     `json:"format"`
	Artifacts []Artifact `json:"artifacts"`
}

// options is a validated BuildRequest.
type options struct {
	format   hexfile.Format
	compress compression.Algorithm
	hasher   cryptoutil.Hasher
}

func (req BuildRequest) validate() (options, error) {
	var opts options
	if len(req.Inputs) == 0 {
		return opts, fmt.Errorf("%w: no layout inputs", errs.ErrInvalidArgument)
	}

	format := req.Format
	if format == "" {
		format = "hex"
	}
	f, err := hexfile.ParseFormat(format)
	if err != nil {
		return opts, err
	}
	opts.format = f

	if req.RecordWidth < 1 || req.RecordWidth > hexfile.MaxRecordWidth {
		return opts, fmt.Errorf("%w: got %d", errs.ErrInvalidRecordWidth, req.RecordWidth)
	}

	if opts.compress, err = compression.ParseAlgorithm(req.Compress); err != nil {
		return opts, err
	}

	if req.Digest != "" {
		if opts.hasher, err = cryptoutil.NewHasher(cryptoutil.HashAlgorithm(req.Digest)); err != nil {
			return opts, err
		}
	}

	if req.Manifest != "" && req.Output == "" && !req.Split {
		return opts, fmt.Errorf("%w: a manifest needs an output file", errs.ErrInvalidArgument)
	}
	return opts, nil
}

// Build loads the selected blocks, builds them concurrently and writes the
// resulting images together with the optional report and manifest.
func Build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	started := time.Now()
	opts, err := req.validate()
	if err != nil {
		return nil, err
	}
	if err := req.expandPaths(); err != nil {
		return nil, err
	}

	defs, err := resolveInputs(req.Inputs)
	if err != nil {
		return nil, err
	}

	src, err := datasource.Open(ctx, datasource.Config{JSON: req.JSON, HTTP: req.HTTP, Versions: req.Versions})
	if err != nil {
		return nil, err
	}
	var resolver value.Resolver
	if src != nil {
		resolver = src
		logger.LogDebug("Data source opened", map[string]interface{}{
			"kind":     src.Kind(),
			"versions": strings.Join(req.Versions, "/"),
		})
	}

	var collector *report.Collector
	buildOpts := block.Options{
		Strict:      req.Strict,
		Versions:    req.Versions,
		Parallelism: req.Parallelism,
	}
	if req.ExportJSON != "" {
		collector = report.NewCollector()
		buildOpts.Sink = collector
	}

	blocks, err := block.BuildAll(ctx, defs, resolver, buildOpts)
	if err != nil {
		return nil, err
	}

	result := &BuildResult{}
	for _, b := range blocks {
		stats := BlockStats{
			Name:   b.Name,
			File:   b.File,
			Start:  b.Base(),
			Length: b.Header.Length,
			Used:   b.UsedBytes,
			CRC:    b.CRC,
			HasCRC: b.HasCRC,
		}
		if b.HasCRC {
			stats.CRCBytes = b.Header.CRC.Bytes()
		}
		result.Blocks = append(result.Blocks, stats)
	}

	if result.Artifacts, err = req.writeImages(blocks, opts); err != nil {
		return nil, err
	}

	if collector != nil {
		if err := collector.WriteFile(req.ExportJSON); err != nil {
			return nil, err
		}
		logger.LogInfo("Used values exported", map[string]interface{}{
			"path":    req.ExportJSON,
			"entries": len(collector.Entries()),
		})
	}

	if req.Manifest != "" {
		m := manifest{
			Tool:      config.AppName,
			Version:   Version,
			Format:    opts.format.String(),
			Artifacts: result.Artifacts,
		}
		if err := jsonutil.WriteJSONFile(req.Manifest, m); err != nil {
			return nil, err
		}
	}

	result.Duration = time.Since(started)
	logger.WithFields(map[string]interface{}{
		"blocks":    len(result.Blocks),
		"artifacts": len(result.Artifacts),
		"used":      result.TotalUsed(),
		"allocated": result.TotalAllocated(),
		"duration":  result.Duration.String(),
	}).Debug("Build finished")
	return result, nil
}

// expandPaths resolves a leading ~ in every output path.
func (req *BuildRequest) expandPaths() error {
	for _, p := range []*string{&req.Output, &req.OutputDir, &req.Manifest, &req.ExportJSON} {
		expanded, err := fsutil.ExpandTilde(*p)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", errs.ErrInvalidArgument, *p, err)
		}
		*p = expanded
	}
	return nil
}

// resolveInputs loads every referenced layout file once and returns the
// selected blocks in the order they were requested.
func resolveInputs(inputs []string) ([]layout.Block, error) {
	layouts := make(map[string]*layout.Config)
	var defs []layout.Block

	for _, input := range inputs {
		name, file, err := parseInput(input)
		if err != nil {
			return nil, err
		}

		cfg, ok := layouts[file]
		if !ok {
			if cfg, err = layout.Load(file); err != nil {
				return nil, err
			}
			layouts[file] = cfg
		}

		if name == "" {
			defs = append(defs, cfg.Blocks...)
			continue
		}
		def, err := cfg.Block(name)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	return defs, nil
}

func parseInput(input string) (name, file string, err error) {
	parts := strings.Split(input, "@")
	switch {
	case len(parts) == 1 && parts[0] != "":
		return "", parts[0], nil
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return parts[0], parts[1], nil
	}
	return "", "", fmt.Errorf("%w: expected BLOCK@FILE or FILE, got %q", errs.ErrInvalidArgument, input)
}

// writeImages serializes the blocks as one combined image, or one image per
// block when splitting.
func (req BuildRequest) writeImages(blocks []*block.Block, opts options) ([]Artifact, error) {
	type image struct {
		path   string
		blocks []*block.Block
	}

	var images []image
	if req.Split {
		for _, b := range blocks {
			stem := fsutil.GetFileNameWithoutExt(b.File) + "_" + b.Name
			images = append(images, image{
				path:   filepath.Join(req.OutputDir, stem+opts.format.Extension()),
				blocks: []*block.Block{b},
			})
		}
	} else {
		path := req.Output
		if path != "" && !filepath.IsAbs(path) && req.OutputDir != "" {
			path = filepath.Join(req.OutputDir, path)
		}
		images = append(images, image{path: path, blocks: blocks})
	}

	var artifacts []Artifact
	for _, img := range images {
		var buf bytes.Buffer
		if err := hexfile.Write(&buf, block.Segments(img.blocks), opts.format, req.RecordWidth); err != nil {
			return nil, err
		}
		data, err := compression.Compress(buf.Bytes(), opts.compress)
		if err != nil {
			return nil, err
		}

		if img.path == "" {
			out := req.Stdout
			if out == nil {
				out = os.Stdout
			}
			if _, err := out.Write(data); err != nil {
				return nil, fmt.Errorf("%w: %v", errs.ErrFileWriteError, err)
			}
			continue
		}

		path := img.path
		if ext := opts.compress.Extension(); ext != "" && !strings.HasSuffix(path, ext) {
			path += ext
		}
		if err := fsutil.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errs.ErrFileWriteError, path, err)
		}

		artifact := Artifact{Path: path, Size: len(data)}
		for _, b := range img.blocks {
			artifact.Blocks = append(artifact.Blocks, b.Name)
		}
		if opts.hasher != nil {
			digest, err := opts.hasher.Hash(data)
			if err != nil {
				return nil, err
			}
			artifact.Digest = cryptoutil.FormatDigest(opts.hasher.Algorithm(), digest)
		}
		artifacts = append(artifacts, artifact)

		logger.LogInfo("Image written", map[string]interface{}{
			"path":   path,
			"bytes":  len(data),
			"blocks": len(img.blocks),
			"format": opts.format.String(),
		})
	}
	return artifacts, nil
}
