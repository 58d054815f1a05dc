package tooling

import (
	"bytes"
	"fmt"

	compression "github.com/deploymenttheory/go-flash-composer/internal/common/compressionutil"
	"github.com/deploymenttheory/go-flash-composer/internal/common/cryptoutil"
	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
	"github.com/deploymenttheory/go-flash-composer/internal/common/fsutil"
	"github.com/deploymenttheory/go-flash-composer/internal/hexfile"
	"github.com/deploymenttheory/go-flash-composer/internal/logger"
)

// SegmentSummary is one contiguous address range of a decoded image.
type SegmentSummary struct {
	Address uint64 `json:"address"`
	Length  int    `json:"length"`
}

// VerifyResult describes a decoded image.
type VerifyResult struct {
	Path        string           `json:"path"`
	Format      string           `json:"format"`
	Compression string           `json:"compression,omitempty"`
	Digest      string           `json:"digest"`
	Segments    []SegmentSummary `json:"segments"`
	TotalBytes  int              `json:"total_bytes"`
}

// Verify decodes an image written by Build, checking every record checksum.
// A compressed image is detected by its extension. When expectDigest is set
// ("algo:hex" or bare sha256 hex) the file digest must match it.
func Verify(path, expectDigest string) (*VerifyResult, error) {
	raw, err := fsutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrFileReadError, path, err)
	}

	alg := compression.FromExtension(path)
	data, err := compression.Extract(raw, alg)
	if err != nil {
		return nil, err
	}

	format, err := hexfile.DetectFormat(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	segs, err := hexfile.Decode(bytes.NewReader(data), format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	want, algorithm := cryptoutil.ParseHashWithAlgorithm(expectDigest)
	if algorithm == "" {
		algorithm = cryptoutil.SHA256
	}
	hasher, err := cryptoutil.NewHasher(algorithm)
	if err != nil {
		return nil, err
	}
	digest, err := hasher.Hash(raw)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{
		Path:        path,
		Format:      format.String(),
		Compression: string(alg),
		Digest:      cryptoutil.FormatDigest(algorithm, digest),
	}
	for _, s := range segs {
		result.Segments = append(result.Segments, SegmentSummary{Address: s.Address, Length: len(s.Data)})
		result.TotalBytes += len(s.Data)
	}

	if expectDigest != "" {
		ok, err := hasher.Verify(raw, want)
		if err != nil {
			return nil, err
		}
		if !ok {
			return result, fmt.Errorf("%w: %s is %s", errs.ErrDigestMismatch, path, result.Digest)
		}
	}

	logger.LogDebug("Image verified", map[string]interface{}{
		"path":     path,
		"format":   result.Format,
		"segments": len(result.Segments),
		"bytes":    result.TotalBytes,
	})
	return result, nil
}
