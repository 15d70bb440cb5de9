package tensor

import (
	"fmt"

	"github.com/samcharles93/tunebench/internal/safetensors"
)

// LoadSafetensorsMat loads a 2D tensor as a matrix and checks it against the
// expected shape.
func LoadSafetensorsMat(st *safetensors.File, name string, rows, cols int) (Mat, error) {
	data, info, err := st.ReadTensorF32(name)
	if err != nil {
		return Mat{}, err
	}
	if len(info.Shape) != 2 {
		return Mat{}, fmt.Errorf("%s: expected 2D tensor, got shape %v", name, info.Shape)
	}
	if info.Shape[0] != rows || info.Shape[1] != cols {
		return Mat{}, fmt.Errorf("%s: shape %v, want [%d %d]", name, info.Shape, rows, cols)
	}
	return NewMatFromData(rows, cols, data), nil
}

// LoadSafetensorsVec loads a 1D tensor of length n.
func LoadSafetensorsVec(st *safetensors.File, name string, n int) ([]float32, error) {
	data, info, err := st.ReadTensorF32(name)
	if err != nil {
		return nil, err
	}
	if len(info.Shape) != 1 || info.Shape[0] != n {
		return nil, fmt.Errorf("%s: shape %v, want [%d]", name, info.Shape, n)
	}
	return data, nil
}

// MatTensor describes m for safetensors.Write.
func MatTensor(name string, m *Mat) safetensors.Tensor {
	return safetensors.Tensor{Name: name, Shape: m.Shape(), Data: m.Data[:m.R*m.C]}
}

// VecTensor describes v for safetensors.Write.
func VecTensor(name string, v []float32) safetensors.Tensor {
	return safetensors.Tensor{Name: name, Shape: []int{len(v)}, Data: v}
}
