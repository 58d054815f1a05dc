package cmd

import (
	"testing"

	"github.com/deploymenttheory/go-flash-composer/pkg/tooling"
)

func TestFormatCRC(t *testing.T) {
	tests := []struct {
		name  string
		stats tooling.BlockStats
		want  string
	}{
		{"no crc", tooling.BlockStats{}, "-"},
		{"crc8", tooling.BlockStats{HasCRC: true, CRC: 0x1D, CRCBytes: 1}, "0x1D"},
		{"crc8 leading zero", tooling.BlockStats{HasCRC: true, CRC: 0x07, CRCBytes: 1}, "0x07"},
		{"crc16", tooling.BlockStats{HasCRC: true, CRC: 0x29B1, CRCBytes: 2}, "0x29B1"},
		{"crc32", tooling.BlockStats{HasCRC: true, CRC: 0xCBF43926, CRCBytes: 4}, "0xCBF43926"},
		{"crc32 leading zeros", tooling.BlockStats{HasCRC: true, CRC: 0x1234, CRCBytes: 4}, "0x00001234"},
		{"crc64", tooling.BlockStats{HasCRC: true, CRC: 0x6C40DF5F0B497347, CRCBytes: 8}, "0x6C40DF5F0B497347"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatCRC(tt.stats); got != tt.want {
				t.Errorf("formatCRC() = %q, want %q", got, tt.want)
			}
		})
	}
}
