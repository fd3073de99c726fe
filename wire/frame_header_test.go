package wire

import "testing"

func TestFrameHeaderRoundTrip(t *testing.T) {
	cases := []FrameHeader{
		{BlockIndex: 0, PacketIndex: 0, Size: 0},
		{BlockIndex: 1<<24 - 1, PacketIndex: 31, Size: 1500},
		{BlockIndex: 12345, PacketIndex: 7, Size: 1024},
	}
	for _, h := range cases {
		buf := make([]byte, FrameHeaderSize)
		PutFrameHeader(buf, h)
		got := GetFrameHeader(buf)
		if got != h {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, h)
		}
	}
}

func TestBlockIndexDistanceWraps(t *testing.T) {
	cases := []struct {
		a, b uint32
		want int32
	}{
		{a: 5, b: 10, want: 5},
		{a: 10, b: 5, want: -5},
		{a: 1<<24 - 2, b: 2, want: 4}, // wraps forward past 2^24
		{a: 2, b: 1<<24 - 2, want: -4},
	}
	for _, c := range cases {
		got := BlockIndexDistance(c.a, c.b)
		if got != c.want {
			t.Errorf("BlockIndexDistance(%d,%d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
