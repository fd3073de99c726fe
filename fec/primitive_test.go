package fec

import (
	"bytes"
	"testing"
)

func randomBlocks(t *testing.T, k int, mtu int, seed byte) [][]byte {
	t.Helper()
	blocks := make([][]byte, k)
	x := seed
	for i := range blocks {
		b := make([]byte, mtu)
		for j := range b {
			x = x*197 + 1
			b[j] = x
		}
		blocks[i] = b
	}
	return blocks
}

func TestEncodeDecodeRecoversAnyKOfN(t *testing.T) {
	const k, n, mtu = 4, 6, 64
	data := randomBlocks(t, k, mtu, 7)

	parity := make([][]byte, n-k)
	for i := range parity {
		parity[i] = make([]byte, mtu)
	}
	if err := Encode(k, n, data, parity, mtu); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	all := append(append([][]byte{}, data...), parity...)

	// drop two data positions, recover using two parity blocks.
	src := [][]byte{all[2], all[3], all[4], all[5]}
	indices := []int{2, 3, 4, 5}
	missing := []int{0, 1}
	dst := make([][]byte, len(missing))
	for i := range dst {
		dst[i] = make([]byte, mtu)
	}
	if err := Decode(k, n, src, dst, indices, missing, mtu); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(dst[0], data[0]) {
		t.Errorf("recovered block 0 mismatch")
	}
	if !bytes.Equal(dst[1], data[1]) {
		t.Errorf("recovered block 1 mismatch")
	}
}

func TestEncodeDecodeAllParityCombinations(t *testing.T) {
	const k, n, mtu = 3, 5, 16
	data := randomBlocks(t, k, mtu, 42)
	parity := make([][]byte, n-k)
	for i := range parity {
		parity[i] = make([]byte, mtu)
	}
	if err := Encode(k, n, data, parity, mtu); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	all := append(append([][]byte{}, data...), parity...)

	// every choice of k out of n positions must reconstruct all data.
	var combos func(start int, chosen []int)
	var tryCombo func(chosen []int)
	tryCombo = func(chosen []int) {
		src := make([][]byte, k)
		for i, idx := range chosen {
			src[i] = all[idx]
		}
		var missing []int
		chosenSet := map[int]bool{}
		for _, c := range chosen {
			chosenSet[c] = true
		}
		for i := 0; i < k; i++ {
			if !chosenSet[i] {
				missing = append(missing, i)
			}
		}
		if len(missing) == 0 {
			return
		}
		dst := make([][]byte, len(missing))
		for i := range dst {
			dst[i] = make([]byte, mtu)
		}
		if err := Decode(k, n, src, dst, chosen, missing, mtu); err != nil {
			t.Fatalf("Decode(chosen=%v): %v", chosen, err)
		}
		for i, pos := range missing {
			if !bytes.Equal(dst[i], data[pos]) {
				t.Fatalf("Decode(chosen=%v) block %d mismatch", chosen, pos)
			}
		}
	}
	combos = func(start int, chosen []int) {
		if len(chosen) == k {
			tryCombo(append([]int{}, chosen...))
			return
		}
		for i := start; i < n; i++ {
			combos(i+1, append(chosen, i))
		}
	}
	combos(0, nil)
}

func TestDecodeDuplicateIndicesSingular(t *testing.T) {
	const k, n, mtu = 2, 3, 8
	src := [][]byte{make([]byte, mtu), make([]byte, mtu)}
	dst := [][]byte{make([]byte, mtu)}
	err := Decode(k, n, src, dst, []int{0, 0}, []int{1}, mtu)
	if err == nil {
		t.Fatal("expected error for duplicate indices")
	}
}
