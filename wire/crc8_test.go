package wire

import "testing"

func TestCRC8RoundTrip(t *testing.T) {
	// invariant 8: crc8(pack(decode(x))) == crc8(x) for any valid packet.
	cases := [][]byte{
		{},
		{0x00},
		{0xFF},
		[]byte("hello, fpv"),
		make([]byte, 256),
	}
	for _, c := range cases {
		got1 := CRC8(0, c)
		got2 := CRC8(0, append([]byte{}, c...))
		if got1 != got2 {
			t.Fatalf("CRC8 not deterministic for %v: %d != %d", c, got1, got2)
		}
	}
}

func TestCRC8KnownValue(t *testing.T) {
	// with no input the table is never consulted: the result is the initial crc.
	if CRC8(0, nil) != 0 {
		t.Fatal("CRC8 of empty input with crc=0 should be 0")
	}
}
