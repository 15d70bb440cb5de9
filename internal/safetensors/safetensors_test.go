package safetensors

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
)

// writeRaw creates a safetensors file from an arbitrary header and data blob.
func writeRaw(t *testing.T, header map[string]any, data []byte) string {
	t.Helper()
	hdr, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(hdr)))
	blob := append(append(lenBuf[:], hdr...), data...)
	path := filepath.Join(t.TempDir(), "test.safetensors")
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestWriteReadRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "model.safetensors")

	in := []Tensor{
		{Name: "lm_head.weight", Shape: []int{2, 3}, Data: []float32{1, -2, 3, 0.5, 0, -0.25}},
		{Name: "lm_head.bias", Shape: []int{2}, Data: []float32{0.1, 0.2}},
	}
	meta := map[string]string{"format": "pt"}
	if err := Write(path, in, meta); err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if diff := cmp.Diff([]string{"lm_head.bias", "lm_head.weight"}, f.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(meta, f.Metadata); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}
	if f.DataStart%8 != 0 {
		t.Fatalf("data start %d is not 8-byte aligned", f.DataStart)
	}
	for _, want := range in {
		got, info, err := f.ReadTensorF32(want.Name)
		if err != nil {
			t.Fatalf("ReadTensorF32(%s): %v", want.Name, err)
		}
		if diff := cmp.Diff(want.Data, got); diff != "" {
			t.Errorf("%s data mismatch (-want +got):\n%s", want.Name, diff)
		}
		if diff := cmp.Diff(want.Shape, info.Shape); diff != "" {
			t.Errorf("%s shape mismatch (-want +got):\n%s", want.Name, diff)
		}
	}
}

func TestWriteIsDeterministic(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tensors := []Tensor{
		{Name: "b", Shape: []int{1}, Data: []float32{2}},
		{Name: "a", Shape: []int{1}, Data: []float32{1}},
	}
	p1, p2 := filepath.Join(dir, "1.safetensors"), filepath.Join(dir, "2.safetensors")
	if err := Write(p1, tensors, nil); err != nil {
		t.Fatal(err)
	}
	if err := Write(p2, []Tensor{tensors[1], tensors[0]}, nil); err != nil {
		t.Fatal(err)
	}
	a, _ := os.ReadFile(p1)
	b, _ := os.ReadFile(p2)
	if string(a) != string(b) {
		t.Fatal("files differ for the same tensor set")
	}
}

func TestWriteRejectsBadTensors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	tests := map[string][]Tensor{
		"shape mismatch": {{Name: "w", Shape: []int{2, 2}, Data: []float32{1}}},
		"duplicate":      {{Name: "w", Shape: []int{1}, Data: []float32{1}}, {Name: "w", Shape: []int{1}, Data: []float32{1}}},
		"empty name":     {{Name: "", Shape: []int{1}, Data: []float32{1}}},
		"metadata name":  {{Name: metadataKey, Shape: []int{1}, Data: []float32{1}}},
	}
	for name, tensors := range tests {
		if err := Write(filepath.Join(dir, "x.safetensors"), tensors, nil); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("failed writes left files behind: %v", entries)
	}
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	if _, err := Open(filepath.Join(t.TempDir(), "missing.safetensors")); err == nil {
		t.Error("expected error for missing file")
	}

	truncated := filepath.Join(t.TempDir(), "short.safetensors")
	if err := os.WriteFile(truncated, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(truncated); err == nil {
		t.Error("expected error for truncated file")
	}

	huge := filepath.Join(t.TempDir(), "huge.safetensors")
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], 1<<40)
	if err := os.WriteFile(huge, lenBuf[:], 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(huge); err == nil {
		t.Error("expected error for header longer than file")
	}

	outside := writeRaw(t, map[string]any{
		"w": tensorHeader{DType: "F32", Shape: []int{4}, DataOffsets: []int64{0, 16}},
	}, make([]byte, 8))
	if _, err := Open(outside); err == nil {
		t.Error("expected error for offsets past the end of data")
	}

	inverted := writeRaw(t, map[string]any{
		"w": tensorHeader{DType: "F32", Shape: []int{1}, DataOffsets: []int64{8, 4}},
	}, make([]byte, 8))
	if _, err := Open(inverted); err == nil {
		t.Error("expected error for inverted offsets")
	}
}

func TestReadTensorF32Widening(t *testing.T) {
	t.Parallel()

	data := make([]byte, 8)
	binary.LittleEndian.PutUint16(data[0:], 0x3F80) // bf16 1.0
	binary.LittleEndian.PutUint16(data[2:], 0xC000) // bf16 -2.0
	binary.LittleEndian.PutUint16(data[4:], 0x3C00) // f16 1.0
	binary.LittleEndian.PutUint16(data[6:], 0x3800) // f16 0.5
	path := writeRaw(t, map[string]any{
		"bf": tensorHeader{DType: "BF16", Shape: []int{2}, DataOffsets: []int64{0, 4}},
		"hf": tensorHeader{DType: "F16", Shape: []int{2}, DataOffsets: []int64{4, 8}},
	}, data)

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	bf, _, err := f.ReadTensorF32("bf")
	if err != nil {
		t.Fatal(err)
	}
	hf, _, err := f.ReadTensorF32("hf")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float32{1, -2}, bf); diff != "" {
		t.Errorf("bf16 mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{1, 0.5}, hf); diff != "" {
		t.Errorf("f16 mismatch (-want +got):\n%s", diff)
	}
}

func TestReadTensorF32Errors(t *testing.T) {
	t.Parallel()

	path := writeRaw(t, map[string]any{
		"i8":    tensorHeader{DType: "I8", Shape: []int{4}, DataOffsets: []int64{0, 4}},
		"short": tensorHeader{DType: "F32", Shape: []int{2}, DataOffsets: []int64{0, 4}},
	}, make([]byte, 4))
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, name := range []string{"i8", "short", "missing"} {
		if _, _, err := f.ReadTensorF32(name); err == nil {
			t.Errorf("ReadTensorF32(%s): expected error", name)
		}
	}
}

func TestFp16Specials(t *testing.T) {
	t.Parallel()

	if v := fp16ToFloat32(0x7C00); !math.IsInf(float64(v), 1) {
		t.Errorf("expected +Inf, got %v", v)
	}
	if v := fp16ToFloat32(0x0001); v <= 0 || v > 1e-7 {
		t.Errorf("expected smallest subnormal, got %v", v)
	}
	if v := fp16ToFloat32(0x8000); v != 0 || !math.Signbit(float64(v)) {
		t.Errorf("expected -0, got %v", v)
	}
}

func TestNumElements(t *testing.T) {
	t.Parallel()

	tests := []struct {
		shape   []int
		want    int
		wantErr bool
	}{
		{[]int{2, 3}, 6, false},
		{[]int{7}, 7, false},
		{nil, 0, true},
		{[]int{2, 0}, 0, true},
		{[]int{-1}, 0, true},
	}
	for _, tc := range tests {
		got, err := numElements(tc.shape)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("numElements(%v) = %d, %v", tc.shape, got, err)
		}
	}
}
