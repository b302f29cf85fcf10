package fec

import "errors"

var errSingularMatrix = errors.New("fec: singular matrix during decode")

// generatorRow returns row `index` of the (k+m) x k systematic
// generator matrix: the identity for index < k (data rows), and a
// Cauchy row for index >= k (parity rows). The Cauchy part uses
// distinct sequences x_i = k+i and y_j = j, so
// coefficient(i, j) = 1 / (x_i XOR y_j) in GF(2^8).
func generatorRow(k, index int) []byte {
	row := make([]byte, k)
	if index < k {
		row[index] = 1
		return row
	}
	x := byte(index) // index = k+i, already in [k, k+m)
	for j := 0; j < k; j++ {
		row[j] = gfInv(x ^ byte(j))
	}
	return row
}

// invert computes the inverse of a k x k GF(2^8) matrix via Gauss-Jordan
// elimination on [M | I]. It returns errSingularMatrix if M has no
// inverse, which cannot happen for a correctly chosen subset of rows
// from an MDS generator matrix but is guarded against defensively.
func invert(m [][]byte) ([][]byte, error) {
	k := len(m)
	aug := make([][]byte, k)
	for i := range aug {
		aug[i] = make([]byte, 2*k)
		copy(aug[i], m[i])
		aug[i][k+i] = 1
	}

	for col := 0; col < k; col++ {
		pivot := -1
		for r := col; r < k; r++ {
			if aug[r][col] != 0 {
				pivot = r
				break
			}
		}
		if pivot == -1 {
			return nil, errSingularMatrix
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		if inv := gfInv(aug[col][col]); inv != 1 {
			for c := 0; c < 2*k; c++ {
				aug[col][c] = gfMul(aug[col][c], inv)
			}
		}

		for r := 0; r < k; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col]
			if factor == 0 {
				continue
			}
			for c := 0; c < 2*k; c++ {
				aug[r][c] ^= gfMul(factor, aug[col][c])
			}
		}
	}

	inv := make([][]byte, k)
	for i := range inv {
		inv[i] = append([]byte(nil), aug[i][k:2*k]...)
	}
	return inv, nil
}

// multiply computes M * B where M is k x k and B is k rows of equal
// length (one row per block body byte-position).
func multiply(m [][]byte, b [][]byte) [][]byte {
	k := len(m)
	bodySize := len(b[0])
	out := make([][]byte, k)
	for i := 0; i < k; i++ {
		row := make([]byte, bodySize)
		for j := 0; j < k; j++ {
			coeff := m[i][j]
			if coeff == 0 {
				continue
			}
			for bi := 0; bi < bodySize; bi++ {
				row[bi] ^= gfMul(coeff, b[j][bi])
			}
		}
		out[i] = row
	}
	return out
}
