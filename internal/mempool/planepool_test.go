package mempool

import "testing"

func TestGetByteLengthAndZeroing(t *testing.T) {
	buf := GetByte(100)
	if len(buf) != 100 {
		t.Fatalf("expected len 100, got %d", len(buf))
	}
	for i := range buf {
		buf[i] = 0xAB
	}
	PutByte(buf)

	again := GetByte(100)
	for i, v := range again {
		if v != 0 {
			t.Fatalf("reused buffer not zeroed at %d: %d", i, v)
		}
	}
	PutByte(again)
}

func TestGetBoolZeroing(t *testing.T) {
	buf := GetBool(5000)
	if len(buf) != 5000 {
		t.Fatalf("expected len 5000, got %d", len(buf))
	}
	for i := range buf {
		buf[i] = true
	}
	PutBool(buf)

	again := GetBool(5000)
	for i, v := range again {
		if v {
			t.Fatalf("reused buffer not cleared at %d", i)
		}
	}
	PutBool(again)
}

func TestPutNilIsSafe(t *testing.T) {
	PutByte(nil)
	PutBool(nil)
}

func TestSizeClassRounding(t *testing.T) {
	cases := []struct{ n, want int }{
		{1, 1024},
		{1024, 1024},
		{1025, 2048},
		{4096, 4096},
		{5000, 5120},
	}
	for _, c := range cases {
		if got := sizeClass(c.n); got != c.want {
			t.Errorf("sizeClass(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}
