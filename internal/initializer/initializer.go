// Package initializer fills float32 weight buffers with the distributions
// used for Keras-style initialization.
package initializer

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Uniform fills data with values from U(-limit, limit).
func Uniform(data []float32, limit float64, rng *rand.Rand) {
	for i := range data {
		data[i] = float32((rng.Float64()*2 - 1) * limit)
	}
}

// XavierUniform fills a [fanOut, fanIn] matrix with
// U(-sqrt(6/(fanIn+fanOut)), sqrt(6/(fanIn+fanOut))).
func XavierUniform(data []float32, fanIn, fanOut int, rng *rand.Rand) {
	Uniform(data, math.Sqrt(6.0/float64(fanIn+fanOut)), rng)
}

// Constant fills data with value.
func Constant(data []float32, value float32) {
	for i := range data {
		data[i] = value
	}
}

// Zeros fills data with zeros.
func Zeros(data []float32) {
	Constant(data, 0)
}

// Orthogonal fills a row-major [rows, cols] matrix with a (semi-)orthogonal
// matrix: orthonormal columns when rows >= cols, orthonormal rows otherwise.
//
// The matrix is the Q factor of the QR decomposition of a standard normal
// matrix, with columns sign-corrected by diag(R) so the distribution is
// uniform over orthogonal matrices.
func Orthogonal(data []float32, rows, cols int, rng *rand.Rand) {
	if rows*cols != len(data) {
		panic(fmt.Sprintf("initializer.Orthogonal: shape [%d, %d] needs %d values, got %d",
			rows, cols, rows*cols, len(data)))
	}

	transposed := rows < cols
	r, c := rows, cols
	if transposed {
		r, c = cols, rows
	}

	gauss := make([]float64, r*c)
	for i := range gauss {
		gauss[i] = rng.NormFloat64()
	}
	a := mat.NewDense(r, c, gauss)

	var qr mat.QR
	qr.Factorize(a)
	var q, upper mat.Dense
	qr.QTo(&q)
	qr.RTo(&upper)

	for j := 0; j < c; j++ {
		sign := 1.0
		if upper.At(j, j) < 0 {
			sign = -1.0
		}
		for i := 0; i < r; i++ {
			v := float32(sign * q.At(i, j))
			if transposed {
				data[j*cols+i] = v
			} else {
				data[i*cols+j] = v
			}
		}
	}
}
