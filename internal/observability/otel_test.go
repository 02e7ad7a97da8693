package observability

import "testing"

func TestOtelConfigRatio(t *testing.T) {
	cases := map[float64]float64{0: defaultSampleRatio, -1: defaultSampleRatio, 0.5: 0.5, 3: 1}
	for in, want := range cases {
		if got := (OtelConfig{SampleRatio: in}).Ratio(); got != want {
			t.Fatalf("Ratio(%v): want=%v got=%v", in, want, got)
		}
	}
}

func TestParseHeaders(t *testing.T) {
	h := ParseHeaders("authorization=Bearer x, bad, =v, k=")
	if len(h) != 1 || h["authorization"] != "Bearer x" {
		t.Fatalf("headers: %v", h)
	}
	if ParseHeaders(" , ") != nil {
		t.Fatalf("expected nil for an empty list")
	}
}
