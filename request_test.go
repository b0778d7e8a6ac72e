package dowownet

import "testing"

func TestRequestRoundTrip(t *testing.T) {
	r := NewRequest("greet", NewDatum("name", NewStr("world")), NewDatum("count", NewU32(3)))
	r.ID = 42
	wire := r.encode()
	got, n := decodeRequest(wire)
	if n != uint32(len(wire)) {
		t.Fatalf("consumed %d, want %d", n, len(wire))
	}
	if got.ID != r.ID || got.Name != r.Name || len(got.Args) != len(r.Args) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, r)
	}
	for i := range r.Args {
		if got.Args[i].Name != r.Args[i].Name || !got.Args[i].Value.Equal(r.Args[i].Value) {
			t.Fatalf("arg %d mismatch: got %+v, want %+v", i, got.Args[i], r.Args[i])
		}
	}
}

func TestRequestEmptyArgsRoundTrip(t *testing.T) {
	r := NewRequest("ping")
	wire := r.encode()
	got, n := decodeRequest(wire)
	if n != uint32(len(wire)) || got.Name != "ping" || len(got.Args) != 0 {
		t.Fatalf("unexpected decode: got %+v, n=%d", got, n)
	}
}

func TestRequestArgSetAndGet(t *testing.T) {
	r := NewRequest("cfg")
	if _, ok := r.Arg("missing"); ok {
		t.Fatalf("expected no value for missing arg")
	}
	r.Set("timeout", NewU32(10))
	v, ok := r.Arg("timeout")
	if !ok || v.AsU32() != 10 {
		t.Fatalf("expected timeout=10, got ok=%v v=%+v", ok, v)
	}
	r.Set("timeout", NewU32(20))
	if len(r.Args) != 1 {
		t.Fatalf("Set on existing name should not append, have %d args", len(r.Args))
	}
	v, _ = r.Arg("timeout")
	if v.AsU32() != 20 {
		t.Fatalf("expected timeout=20 after overwrite, got %d", v.AsU32())
	}
}

func TestRequestLivelinessFiller(t *testing.T) {
	f := newLivelinessFiller()
	if !f.isLivelinessFiller() || f.ID != 0 || f.Name != "_" {
		t.Fatalf("unexpected filler: %+v", f)
	}
	if NewRequest("_").isLivelinessFiller() == false {
		t.Fatalf("request named _ should be recognized as a liveness filler")
	}
}

func TestRequestDecodeTotalOnMalformedInput(t *testing.T) {
	cases := [][]byte{
		nil,
		{1, 0, 0, 0},                            // shorter than the fixed header
		{5, 0, 0, 0, 0, 0, 0, 0, 0, 0},           // total below the protocol floor
		{10, 0, 0, 0, 0, 0, 0, 0, 200, 0},        // name_len overruns total
	}
	for i, data := range cases {
		if _, n := decodeRequest(data); n != 0 {
			t.Fatalf("case %d: expected decode failure, consumed %d", i, n)
		}
	}
}
