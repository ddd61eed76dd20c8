package codec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type doc struct {
	ID   string `json:"id" msgpack:"id" cbor:"id"`
	Body string `json:"body" msgpack:"body" cbor:"body"`
}

func TestCodecsDecodeWhatTheyEncode(t *testing.T) {
	in := doc{ID: "d1", Body: strings.Repeat("lorem ", 50)}
	codecs := map[string]Codec[doc]{
		"json":    JSON[doc]{},
		"cbor":    MustCBOR[doc](CBOROptions{Deterministic: true}),
		"msgpack": Msgpack[doc]{},
		"zstd":    NewZstd[doc](JSON[doc]{}, zstd.SpeedFastest),
	}
	for name, c := range codecs {
		b, err := c.Encode(in)
		if err != nil {
			t.Fatalf("%s: encode: %v", name, err)
		}
		out, err := c.Decode(b)
		if err != nil {
			t.Fatalf("%s: decode: %v", name, err)
		}
		if out != in {
			t.Fatalf("%s: got %+v want %+v", name, out, in)
		}
	}
}

func TestZstdShrinksRepetitivePayload(t *testing.T) {
	in := doc{ID: "d", Body: strings.Repeat("abc", 1000)}
	plain, _ := SizeOf[doc](JSON[doc]{}, in)
	packed, err := SizeOf[doc](NewZstd[doc](JSON[doc]{}, 0), in)
	if err != nil {
		t.Fatal(err)
	}
	if packed >= plain {
		t.Fatalf("compressed size %d not below plain %d", packed, plain)
	}
}

func TestLimitRejectsOversized(t *testing.T) {
	c := Limit[[]byte]{Inner: Bytes{}, MaxDecode: 4}
	if _, err := c.Decode([]byte("12345")); err == nil {
		t.Fatalf("expected error for oversized payload")
	}
	got, err := c.Decode([]byte("1234"))
	if err != nil || !bytes.Equal(got, []byte("1234")) {
		t.Fatalf("got %q err=%v", got, err)
	}
}

func TestProtobufCodec(t *testing.T) {
	c := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	b, err := c.Encode(wrapperspb.String("hello"))
	if err != nil {
		t.Fatal(err)
	}
	m, err := c.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if m.GetValue() != "hello" {
		t.Fatalf("got %q", m.GetValue())
	}
}

func TestSizeOfUsesEncodedLength(t *testing.T) {
	n, err := SizeOf[string](String{}, "hello")
	if err != nil || n != 5 {
		t.Fatalf("SizeOf=%d err=%v", n, err)
	}
}
