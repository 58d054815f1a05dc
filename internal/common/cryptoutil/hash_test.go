package cryptoutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	commonerrors "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
)

func TestHash(t *testing.T) {
	tests := []struct {
		algorithm HashAlgorithm
		want      string
	}{
		{SHA256, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{BLAKE2b, "bddd813c634239723171ef3fee98579b94964e3bb1cb3e427262c8c068d52319"},
	}
	for _, tt := range tests {
		t.Run(string(tt.algorithm), func(t *testing.T) {
			h, err := NewHasher(tt.algorithm)
			if err != nil {
				t.Fatalf("NewHasher() unexpected error: %v", err)
			}
			got, err := h.Hash([]byte("abc"))
			if err != nil {
				t.Fatalf("Hash() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Hash(abc) = %s, want %s", got, tt.want)
			}
			if ok, _ := h.Verify([]byte("abc"), tt.want); !ok {
				t.Error("Verify() = false for the matching digest")
			}
		})
	}
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.hex")
	if err := os.WriteFile(path, []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}
	h, _ := NewHasher(SHA256)
	got, err := h.HashFile(path)
	if err != nil || got != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("HashFile() = %s, %v", got, err)
	}
	if _, err := h.HashFile(path + ".missing"); !errors.Is(err, commonerrors.ErrFileNotFound) {
		t.Errorf("HashFile(missing) error = %v, want ErrFileNotFound", err)
	}
}

func TestNewHasherUnsupported(t *testing.T) {
	if _, err := NewHasher("md5"); !errors.Is(err, commonerrors.ErrInvalidArgument) {
		t.Errorf("NewHasher(md5) error = %v, want ErrInvalidArgument", err)
	}
}

func TestParseHashWithAlgorithm(t *testing.T) {
	tests := []struct {
		in       string
		wantHash string
		wantAlg  HashAlgorithm
	}{
		{"sha256:abcd", "abcd", SHA256},
		{"BLAKE2B:ef01", "ef01", BLAKE2b},
		{"abcd", "abcd", ""},
		{"crc:abcd", "crc:abcd", ""},
	}
	for _, tt := range tests {
		h, a := ParseHashWithAlgorithm(tt.in)
		if h != tt.wantHash || a != tt.wantAlg {
			t.Errorf("ParseHashWithAlgorithm(%q) = %q, %q", tt.in, h, a)
		}
	}
}
