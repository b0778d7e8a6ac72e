package dowownet

import "testing"

func TestDatumRoundTrip(t *testing.T) {
	d := NewDatum("answer", NewI32(42))
	wire := d.Encode()
	got, n := decodeDatum(wire)
	if n != uint32(len(wire)) {
		t.Fatalf("consumed %d, want %d", n, len(wire))
	}
	if got.Name != d.Name || !got.Value.Equal(d.Value) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, d)
	}
}

func TestDatumValid(t *testing.T) {
	if !NewDatum("x", NewI32(1)).Valid() {
		t.Fatalf("expected named datum to be valid")
	}
	if NewDatum("", NewI32(1)).Valid() {
		t.Fatalf("expected empty-name datum to be invalid")
	}
}

func TestDatumDecodeTotalOnMalformedInput(t *testing.T) {
	cases := [][]byte{
		nil,
		{1, 0, 0, 0, 0, 0},             // too short
		{6, 0, 0, 0, 200, 0},           // name_len claims 200 bytes, total says 6
	}
	for i, data := range cases {
		if _, n := decodeDatum(data); n != 0 {
			t.Fatalf("case %d: expected decode failure, consumed %d", i, n)
		}
	}
}
