package hexfile

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
)

func TestSerialize(t *testing.T) {
	tests := []struct {
		name   string
		segs   []Segment
		format Format
		width  int
		want   string
	}{
		{
			name:   "intel hex single record",
			segs:   []Segment{{Address: 0, Data: []byte{1, 2, 3, 4}}},
			format: IntelHex,
			width:  16,
			want:   ":0400000001020304F2\n:00000001FF\n",
		},
		{
			name:   "intel hex extended linear address",
			segs:   []Segment{{Address: 0x10000, Data: []byte{0xAA}}},
			format: IntelHex,
			width:  16,
			want:   ":020000040001F9\n:01000000AA55\n:00000001FF\n",
		},
		{
			name:   "intel hex splits at 64 KiB page",
			segs:   []Segment{{Address: 0xFFFE, Data: []byte{1, 2, 3}}},
			format: IntelHex,
			width:  16,
			want:   ":02FFFE000102FE\n:020000040001F9\n:0100000003FC\n:00000001FF\n",
		},
		{
			name:   "s-record 16-bit",
			segs:   []Segment{{Address: 0, Data: []byte{1, 2, 3, 4}}},
			format: SRecord,
			width:  16,
			want:   "S0030000FC\nS107000001020304EE\nS5030001FB\nS9030000FC\n",
		},
		{
			name:   "s-record 24-bit",
			segs:   []Segment{{Address: 0x10000, Data: []byte{0xAA}}},
			format: SRecord,
			width:  16,
			want:   "S0030000FC\nS205010000AA4F\nS5030001FB\nS804000000FB\n",
		},
		{
			name:   "s-record 32-bit",
			segs:   []Segment{{Address: 0x08000000, Data: []byte{0xAA}}},
			format: SRecord,
			width:  16,
			want:   "S0030000FC\nS30608000000AA47\nS5030001FB\nS70500000000FA\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Serialize(tt.segs, tt.format, tt.width)
			if err != nil {
				t.Fatalf("Serialize() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Serialize() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestSerializeRecordWidth(t *testing.T) {
	seg := []Segment{{Address: 0, Data: bytes.Repeat([]byte{0xFF}, 10)}}

	for _, width := range []int{0, -1, MaxRecordWidth + 1} {
		if _, err := Serialize(seg, IntelHex, width); !errors.Is(err, errs.ErrInvalidRecordWidth) {
			t.Errorf("Serialize(width=%d) error = %v, want ErrInvalidRecordWidth", width, err)
		}
	}

	out, err := Serialize(seg, IntelHex, 4)
	if err != nil {
		t.Fatalf("Serialize() unexpected error: %v", err)
	}
	// 4 + 4 + 2 data records and EOF
	if lines := strings.Count(out, "\n"); lines != 4 {
		t.Errorf("Serialize() produced %d records, want 4", lines)
	}
}

func TestSerializeAddressTooLarge(t *testing.T) {
	seg := []Segment{{Address: 0xFFFFFFFF, Data: []byte{1, 2}}}
	for _, f := range []Format{IntelHex, SRecord} {
		if _, err := Serialize(seg, f, 16); !errors.Is(err, errs.ErrAddressTooLarge) {
			t.Errorf("Serialize(%s) error = %v, want ErrAddressTooLarge", f, err)
		}
	}
}

func TestSerializeSortsSegments(t *testing.T) {
	segs := []Segment{
		{Address: 0x20, Data: []byte{2}},
		{Address: 0x10, Data: []byte{1}},
	}
	out, err := Serialize(segs, IntelHex, 16)
	if err != nil {
		t.Fatalf("Serialize() unexpected error: %v", err)
	}
	if i, j := strings.Index(out, ":01001000"), strings.Index(out, ":01002000"); i < 0 || j < 0 || i > j {
		t.Errorf("Serialize() did not order segments by address:\n%s", out)
	}
}

func TestRoundTrip(t *testing.T) {
	data := make([]byte, 0x300)
	for i := range data {
		data[i] = byte(i * 7)
	}
	segs := []Segment{
		{Address: 0x0800FE00, Data: data},
		{Address: 0x08020000, Data: bytes.Repeat([]byte{0xFF}, 40)},
	}

	for _, f := range []Format{IntelHex, SRecord} {
		t.Run(f.String(), func(t *testing.T) {
			out, err := Serialize(segs, f, 32)
			if err != nil {
				t.Fatalf("Serialize() unexpected error: %v", err)
			}
			detected, err := DetectFormat([]byte(out))
			if err != nil || detected != f {
				t.Fatalf("DetectFormat() = %v, %v; want %v", detected, err, f)
			}
			got, err := Decode(strings.NewReader(out), f)
			if err != nil {
				t.Fatalf("Decode() unexpected error: %v", err)
			}
			if len(got) != len(segs) {
				t.Fatalf("Decode() returned %d segments, want %d", len(got), len(segs))
			}
			for i := range segs {
				if got[i].Address != segs[i].Address || !bytes.Equal(got[i].Data, segs[i].Data) {
					t.Errorf("segment %d = 0x%X (%d bytes), want 0x%X (%d bytes)",
						i, got[i].Address, len(got[i].Data), segs[i].Address, len(segs[i].Data))
				}
			}
		})
	}
}

func TestDecodeSRecordErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"bad checksum", "S107000001020304EF\n", errs.ErrChecksumFailed},
		{"byte count mismatch", "S108000001020304EE\n", errs.ErrInvalidRecord},
		{"not a record", ":00000001FF\n", errs.ErrInvalidRecord},
		{"bad hex", "S1070000010203ZZEE\n", errs.ErrInvalidRecord},
		{"unknown type", "S4030000FC\n", errs.ErrInvalidRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeSRecord(strings.NewReader(tt.input)); !errors.Is(err, tt.want) {
				t.Errorf("DecodeSRecord() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDetectFormat(t *testing.T) {
	if _, err := DetectFormat([]byte("\n  hello")); !errors.Is(err, errs.ErrUnsupportedFile) {
		t.Errorf("DetectFormat() error = %v, want ErrUnsupportedFile", err)
	}
}

func BenchmarkSerializeIntelHex(b *testing.B) {
	segs := []Segment{{Address: 0x08000000, Data: bytes.Repeat([]byte{0xA5}, 64*1024)}}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Serialize(segs, IntelHex, 32); err != nil {
			b.Fatal(err)
		}
	}
}
