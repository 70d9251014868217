package codec

import (
	"reflect"
	"testing"
)

type account struct {
	Owner   string
	Balance int
	Tags    map[string]string
	History []int
}

func TestCodecs(t *testing.T) {
	for _, name := range []string{"msgpack", "json"} {
		c, err := ByName(name)
		if err != nil {
			t.Fatalf("ByName(%s): %v", name, err)
		}
		if c.Name() != name {
			t.Fatalf("expected name %s, got %s", name, c.Name())
		}

		original := &account{Owner: "alice", Balance: 42, Tags: map[string]string{"tier": "gold"}, History: []int{1, 2}}
		copied, err := Copy(c, original)
		if err != nil {
			t.Fatalf("%s: copy failed: %v", name, err)
		}
		if copied == original {
			t.Fatalf("%s: copy returned the same pointer", name)
		}
		if !reflect.DeepEqual(copied, original) {
			t.Fatalf("%s: copy differs: %+v vs %+v", name, copied, original)
		}
		copied.History[0] = 100
		if original.History[0] != 1 {
			t.Fatalf("%s: copy shares memory with original", name)
		}

		encoded, err := EncodeAll(c, []int{5, -3, 10})
		if err != nil {
			t.Fatalf("%s: encode failed: %v", name, err)
		}
		decoded, err := DecodeAll[int](c, encoded)
		if err != nil {
			t.Fatalf("%s: decode failed: %v", name, err)
		}
		if !reflect.DeepEqual(decoded, []int{5, -3, 10}) {
			t.Fatalf("%s: unexpected entries %v", name, decoded)
		}
	}
}

func TestByNameUnknown(t *testing.T) {
	if _, err := ByName("xml"); err == nil {
		t.Fatal("expected error for unknown codec")
	}
	if c, err := ByName(""); err != nil || c.Name() != "msgpack" {
		t.Fatalf("expected msgpack as default, got %v %v", c, err)
	}
}

func TestDecodeInvalid(t *testing.T) {
	if _, err := Decode[int](NewJSON(), []byte("{not json")); err == nil {
		t.Fatal("expected error for invalid input")
	}
}
