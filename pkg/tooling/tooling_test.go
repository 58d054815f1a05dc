package tooling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	compression "github.com/deploymenttheory/go-flash-composer/internal/common/compressionutil"
	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
	"github.com/deploymenttheory/go-flash-composer/internal/config"
	"github.com/deploymenttheory/go-flash-composer/internal/hexfile"
)

const boardTOML = `
[settings]
endianness = "little"
[settings.crc]
polynomial = 0x04C11DB7
start = 0xFFFFFFFF
xor_out = 0xFFFFFFFF
ref_in = true
ref_out = true
area = "data"

[first.header]
start_address = 0x1000
length = 0x10
[first.header.crc]
location = "end_data"
[first.data]
id = { type = "u32", value = 0x04030201 }

[second.header]
start_address = 0x2000
length = 0x8
[second.data]
serial = { type = "u32", name = "Serial" }
`

const boardData = `{"Debug": {"Serial": null}, "Default": {"Serial": 287454020}}`

var (
	firstImage  = []byte{1, 2, 3, 4, 0xCD, 0xFB, 0x3C, 0xB6, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	secondImage = []byte{0x44, 0x33, 0x22, 0x11, 0xFF, 0xFF, 0xFF, 0xFF}
)

func writeBoard(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "board.toml")
	if err := os.WriteFile(path, []byte(boardTOML), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func baseRequest(inputs ...string) BuildRequest {
	return BuildRequest{
		Inputs:      inputs,
		Format:      "hex",
		RecordWidth: 16,
		JSON:        boardData,
		Versions:    []string{"Debug", "Default"},
	}
}

func decodeFile(t *testing.T, path string) []hexfile.Segment {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data, err := compression.Extract(raw, compression.FromExtension(path))
	if err != nil {
		t.Fatalf("Extract(%s) unexpected error: %v", path, err)
	}
	format, err := hexfile.DetectFormat(data)
	if err != nil {
		t.Fatal(err)
	}
	segs, err := hexfile.Decode(bytes.NewReader(data), format)
	if err != nil {
		t.Fatalf("Decode(%s) unexpected error: %v", path, err)
	}
	return segs
}

func TestBuildCombined(t *testing.T) {
	board := writeBoard(t)
	out := t.TempDir()

	req := baseRequest(board)
	req.OutputDir = out
	req.Output = "image.hex"
	req.Digest = "sha256"
	req.Manifest = filepath.Join(out, "manifest.json")
	req.ExportJSON = filepath.Join(out, "values.json")

	result, err := Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}

	if len(result.Blocks) != 2 {
		t.Fatalf("Build() returned %d blocks, want 2", len(result.Blocks))
	}
	first := result.Blocks[0]
	if first.Name != "first" || first.Start != 0x1000 || first.Used != 8 || !first.HasCRC || first.CRC != 0xB63CFBCD || first.CRCBytes != 4 {
		t.Errorf("first block stats = %+v", first)
	}
	if first.Efficiency() != 50 {
		t.Errorf("first.Efficiency() = %v, want 50", first.Efficiency())
	}
	if second := result.Blocks[1]; second.HasCRC || second.CRCBytes != 0 {
		t.Errorf("second block stats = %+v", second)
	}
	if result.TotalAllocated() != 24 || result.TotalUsed() != 12 {
		t.Errorf("totals = %d/%d, want 12/24", result.TotalUsed(), result.TotalAllocated())
	}

	if len(result.Artifacts) != 1 {
		t.Fatalf("Build() wrote %d artifacts, want 1", len(result.Artifacts))
	}
	art := result.Artifacts[0]
	if art.Path != filepath.Join(out, "image.hex") || !strings.HasPrefix(art.Digest, "sha256:") {
		t.Errorf("artifact = %+v", art)
	}

	segs := decodeFile(t, art.Path)
	if len(segs) != 2 || segs[0].Address != 0x1000 || segs[1].Address != 0x2000 {
		t.Fatalf("decoded segments = %+v", segs)
	}
	if !bytes.Equal(segs[0].Data, firstImage) || !bytes.Equal(segs[1].Data, secondImage) {
		t.Errorf("decoded data = % X / % X", segs[0].Data, segs[1].Data)
	}

	var m manifest
	raw, err := os.ReadFile(req.Manifest)
	if err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("manifest is not JSON: %v", err)
	}
	if m.Tool != config.AppName || m.Format != "hex" || len(m.Artifacts) != 1 || m.Artifacts[0].Digest != art.Digest {
		t.Errorf("manifest = %+v", m)
	}

	var values map[string]map[string]map[string]interface{}
	raw, err = os.ReadFile(req.ExportJSON)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if err := json.Unmarshal(raw, &values); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if got := values["board.toml"]["second"]["serial"]; got != float64(287454020) {
		t.Errorf("report serial = %v, want 287454020", got)
	}

	verified, err := Verify(art.Path, art.Digest)
	if err != nil {
		t.Fatalf("Verify() unexpected error: %v", err)
	}
	if verified.Format != "hex" || verified.TotalBytes != 24 || len(verified.Segments) != 2 {
		t.Errorf("Verify() = %+v", verified)
	}
}

func TestBuildSplitCompressed(t *testing.T) {
	board := writeBoard(t)
	out := t.TempDir()

	req := baseRequest(board)
	req.Format = "srec"
	req.OutputDir = out
	req.Split = true
	req.Compress = "xz"
	req.Digest = "blake2b"

	result, err := Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	if len(result.Artifacts) != 2 {
		t.Fatalf("Build() wrote %d artifacts, want 2", len(result.Artifacts))
	}

	want := map[string][]byte{
		filepath.Join(out, "board_first.s19.xz"):  firstImage,
		filepath.Join(out, "board_second.s19.xz"): secondImage,
	}
	for _, art := range result.Artifacts {
		data, ok := want[art.Path]
		if !ok {
			t.Errorf("unexpected artifact %s", art.Path)
			continue
		}
		segs := decodeFile(t, art.Path)
		if len(segs) != 1 || !bytes.Equal(segs[0].Data, data) {
			t.Errorf("%s decoded to %+v", art.Path, segs)
		}

		verified, err := Verify(art.Path, art.Digest)
		if err != nil {
			t.Fatalf("Verify(%s) unexpected error: %v", art.Path, err)
		}
		if verified.Format != "srec" || verified.Compression != "xz" {
			t.Errorf("Verify(%s) = %+v", art.Path, verified)
		}
	}
}

func TestBuildSelectedBlockToStdout(t *testing.T) {
	board := writeBoard(t)
	var stdout bytes.Buffer

	req := baseRequest("first@" + board)
	req.JSON = ""
	req.Stdout = &stdout

	result, err := Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	if len(result.Blocks) != 1 || len(result.Artifacts) != 0 {
		t.Errorf("Build() = %d blocks, %d artifacts; want 1, 0", len(result.Blocks), len(result.Artifacts))
	}

	want, err := hexfile.Serialize([]hexfile.Segment{{Address: 0x1000, Data: firstImage}}, hexfile.IntelHex, 16)
	if err != nil {
		t.Fatal(err)
	}
	if stdout.String() != want {
		t.Errorf("stdout =\n%s\nwant\n%s", stdout.String(), want)
	}
}

func TestBuildErrors(t *testing.T) {
	board := writeBoard(t)

	tests := []struct {
		name   string
		mutate func(*BuildRequest)
		want   error
	}{
		{"no inputs", func(r *BuildRequest) { r.Inputs = nil }, errs.ErrInvalidArgument},
		{"bad selector", func(r *BuildRequest) { r.Inputs = []string{"@" + board} }, errs.ErrInvalidArgument},
		{"too many separators", func(r *BuildRequest) { r.Inputs = []string{"a@b@" + board} }, errs.ErrInvalidArgument},
		{"unknown block", func(r *BuildRequest) { r.Inputs = []string{"third@" + board} }, errs.ErrBlockNotFound},
		{"unknown format", func(r *BuildRequest) { r.Format = "bin" }, errs.ErrInvalidArgument},
		{"record width", func(r *BuildRequest) { r.RecordWidth = 0 }, errs.ErrInvalidRecordWidth},
		{"compression", func(r *BuildRequest) { r.Compress = "zip" }, errs.ErrUnsupportedCompression},
		{"digest", func(r *BuildRequest) { r.Digest = "md5" }, errs.ErrInvalidArgument},
		{"manifest without output", func(r *BuildRequest) { r.Manifest = "m.json" }, errs.ErrInvalidArgument},
		{"no data source", func(r *BuildRequest) { r.JSON = "" }, errs.ErrNoDataSource},
		{"two data sources", func(r *BuildRequest) { r.HTTP = `{"request": {"url": "http://localhost"}}` }, errs.ErrDataSourceConfig},
		{"overlap", func(r *BuildRequest) { r.Inputs = []string{board, "first@" + board} }, errs.ErrBlockOverlap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest(board)
			req.Stdout = &bytes.Buffer{}
			tt.mutate(&req)
			if _, err := Build(context.Background(), req); !errors.Is(err, tt.want) {
				t.Errorf("Build() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestVerifyDigestMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.hex")
	if err := os.WriteFile(path, []byte(":0400000001020304F2\n:00000001FF\n"), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := Verify(path, "")
	if err != nil {
		t.Fatalf("Verify() unexpected error: %v", err)
	}
	if !strings.HasPrefix(result.Digest, "sha256:") || result.TotalBytes != 4 {
		t.Errorf("Verify() = %+v", result)
	}

	if _, err := Verify(path, "sha256:00"); !errors.Is(err, errs.ErrDigestMismatch) {
		t.Errorf("Verify() error = %v, want ErrDigestMismatch", err)
	}
	if _, err := Verify(filepath.Join(t.TempDir(), "missing.hex"), ""); !errors.Is(err, errs.ErrFileReadError) {
		t.Errorf("Verify(missing) error = %v, want ErrFileReadError", err)
	}
}

func TestRequestFromConfig(t *testing.T) {
	var cfg config.AppConfig
	cfg.Build.Format = "srec"
	cfg.Build.RecordWidth = 24
	cfg.Build.Digest = "blake2b"
	cfg.Data.Versions = []string{"A", "B"}

	req := RequestFromConfig(cfg)
	if req.Format != "srec" || req.RecordWidth != 24 || req.Digest != "blake2b" || len(req.Versions) != 2 {
		t.Errorf("RequestFromConfig() = %+v", req)
	}
}
