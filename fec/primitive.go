package fec

import (
	"errors"
	"sync"
)

// ErrBadShape is returned when k/n are out of the documented bounds.
var ErrBadShape = errors.New("fec: invalid k/n shape")

// codingMatrix is the systematic (n x k) encoding matrix for a given
// (k, n): the first k rows are the identity (data passes through
// unmodified) and the remaining n-k rows are a Cauchy matrix built from
// n distinct nonzero GF(256) elements (n-k row values, k column values),
// which guarantees that every k x k
// submatrix of the full matrix is invertible (the MDS property erasure
// coding relies on).
type codingMatrix [][]byte

var (
	matrixCacheMu sync.RWMutex
	matrixCache   = map[[2]uint8]codingMatrix{}
)

// buildMatrix is called concurrently from the encoder worker goroutine
// and the decoder's ingress goroutine (and across independently
// constructed encoders/decoders sharing the process), so the cache is
// guarded rather than left to bare map access.
func buildMatrix(k, n uint8) codingMatrix {
	key := [2]uint8{k, n}

	matrixCacheMu.RLock()
	m, ok := matrixCache[key]
	matrixCacheMu.RUnlock()
	if ok {
		return m
	}

	matrixCacheMu.Lock()
	defer matrixCacheMu.Unlock()
	if m, ok := matrixCache[key]; ok {
		return m
	}

	m = make(codingMatrix, n)
	for i := uint8(0); i < k; i++ {
		row := make([]byte, k)
		row[i] = 1
		m[i] = row
	}

	// x-values identify parity rows, y-values identify data columns;
	// the two sets must be disjoint for the Cauchy construction to be
	// well-defined (x^y never zero). Use 1..n-k for x and n-k+1..n for y,
	// both well within GF(256)'s 255 nonzero elements for n<=32.
	for p := uint8(0); p < n-k; p++ {
		row := make([]byte, k)
		x := p + 1
		for c := uint8(0); c < k; c++ {
			y := n - k + c + 1
			row[c] = gfInv(x ^ y)
		}
		m[k+p] = row
	}

	matrixCache[key] = m
	return m
}

// Encode computes the n-k parity blocks for k equal-length data blocks,
// matching the original fec_encode(k, n, src[k], dst[n-k], mtu)
// primitive. Every slice in src and dst must have length mtu.
func Encode(k, n uint8, src [][]byte, dst [][]byte, mtu int) error {
	if k < 1 || k > 16 || n <= k || n > 32 {
		return ErrBadShape
	}
	if len(src) != int(k) || len(dst) != int(n-k) {
		return ErrBadShape
	}
	m := buildMatrix(k, n)
	for p := 0; p < int(n-k); p++ {
		row := m[int(k)+p]
		out := dst[p]
		for i := range out {
			out[i] = 0
		}
		for c := 0; c < int(k); c++ {
			gfMulAddBytes(out, src[c], row[c])
		}
	}
	return nil
}

// Decode reconstructs the missing data blocks given any k of the n
// blocks in a coding group. indices[i] is the original position
// (0..n-1) of src[i]; positions 0..k-1 are data blocks and k..n-1 are
// parity blocks. missing lists the data positions (0..k-1, strictly
// increasing) to reconstruct, writing results into the corresponding
// entries of dst in the same order as missing.
func Decode(k, n uint8, src [][]byte, dst [][]byte, indices []int, missing []int, mtu int) error {
	if k < 1 || k > 16 || n <= k || n > 32 {
		return ErrBadShape
	}
	if len(src) != int(k) || len(indices) != int(k) || len(dst) != len(missing) {
		return ErrBadShape
	}

	m := buildMatrix(k, n)
	sub := make([][]byte, k)
	for i, idx := range indices {
		sub[i] = m[idx]
	}

	inv, err := invertMatrix(sub, int(k))
	if err != nil {
		return err
	}

	for outIdx, pos := range missing {
		out := dst[outIdx]
		for i := range out {
			out[i] = 0
		}
		row := inv[pos]
		for c := 0; c < int(k); c++ {
			gfMulAddBytes(out, src[c], row[c])
		}
	}
	return nil
}

// invertMatrix inverts a k x k GF(256) matrix via Gauss-Jordan
// elimination with the augmented identity matrix.
func invertMatrix(a [][]byte, k int) ([][]byte, error) {
	work := make([][]byte, k)
	inv := make([][]byte, k)
	for i := 0; i < k; i++ {
		work[i] = append([]byte{}, a[i]...)
		inv[i] = make([]byte, k)
		inv[i][i] = 1
	}

	for col := 0; col < k; col++ {
		pivotRow := -1
		for r := col; r < k; r++ {
			if work[r][col] != 0 {
				pivotRow = r
				break
			}
		}
		if pivotRow == -1 {
			return nil, errors.New("fec: singular coding matrix (duplicate indices?)")
		}
		work[col], work[pivotRow] = work[pivotRow], work[col]
		inv[col], inv[pivotRow] = inv[pivotRow], inv[col]

		pivotInv := gfInv(work[col][col])
		scaleRow(work[col], pivotInv)
		scaleRow(inv[col], pivotInv)

		for r := 0; r < k; r++ {
			if r == col {
				continue
			}
			factor := work[r][col]
			if factor == 0 {
				continue
			}
			gfMulAddBytes(work[r], work[col], factor)
			gfMulAddBytes(inv[r], inv[col], factor)
		}
	}
	return inv, nil
}

func scaleRow(row []byte, factor byte) {
	for i, v := range row {
		row[i] = gfMul(v, factor)
	}
}
