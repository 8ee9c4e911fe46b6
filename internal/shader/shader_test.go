package shader

import (
	"errors"
	"testing"
)

const computeWGSL = `
@group(0) @binding(32) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = data[id.x] * 2u;
}
`

func TestCompileWGSL(t *testing.T) {
	words, err := CompileWGSL(computeWGSL)
	if err != nil {
		t.Fatalf("CompileWGSL() error = %v", err)
	}
	if len(words) < 5 {
		t.Fatalf("CompileWGSL() returned %d words, want a header at least", len(words))
	}
	if words[0] != SPIRVMagic {
		t.Errorf("magic = %#x, want %#x", words[0], SPIRVMagic)
	}
}

func TestCompileWGSLError(t *testing.T) {
	if _, err := CompileWGSL("fn main( {"); err == nil {
		t.Error("CompileWGSL() of invalid source returned nil error")
	}
}

func TestWords(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		want    []uint32
		wantErr bool
	}{
		{"magic only", []byte{0x03, 0x02, 0x23, 0x07}, []uint32{SPIRVMagic}, false},
		{"two words", []byte{0x03, 0x02, 0x23, 0x07, 0x01, 0x00, 0x01, 0x00}, []uint32{SPIRVMagic, 0x00010001}, false},
		{"empty", nil, nil, true},
		{"unaligned", []byte{0x03, 0x02, 0x23}, nil, true},
		{"bad magic", []byte{0, 0, 0, 0}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Words(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSPIRV) {
					t.Errorf("Words() error = %v, want ErrInvalidSPIRV", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Words() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Words() len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Words()[%d] = %#x, want %#x", i, got[i], tt.want[i])
				}
			}
		})
	}
}
