package codec

import "testing"

type sample struct {
	Name string
	Age  int
}

func TestJSONCodecRoundTrip(t *testing.T) {
	c := JSONCodec{}
	in := sample{Name: "alice", Age: 30}

	b, err := MarshalTyped(c, in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	out, err := UnmarshalTyped[sample](c, b)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestMsgpackCodecRoundTrip(t *testing.T) {
	c := MsgpackCodec{}
	in := sample{Name: "bob", Age: 42}

	b, err := MarshalTyped(c, in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	out, err := UnmarshalTyped[sample](c, b)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestCodecNames(t *testing.T) {
	if JSONCodec{}.Name() != "json" {
		t.Fatal("unexpected JSON codec name")
	}
	if MsgpackCodec{}.Name() != "msgpack" {
		t.Fatal("unexpected msgpack codec name")
	}
}
