package memory_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory"
)

func roundTrip(t *testing.T, md memory.Metadata) memory.Metadata {
	t.Helper()
	stored, err := memory.EncodeMetadata(md)
	require.NoError(t, err)
	return memory.DecodeMetadata(stored)
}

func TestCodec_SequenceRoundTrip(t *testing.T) {
	got := roundTrip(t, memory.Metadata{
		"tags": memory.MustValueOf([]string{"a", "b", "c"}),
	})

	items, ok := got["tags"].Seq()
	require.True(t, ok, "tags should decode as a sequence, got %s", got["tags"].Kind())
	require.Len(t, items, 3)
	for i, want := range []string{"a", "b", "c"} {
		s, ok := items[i].Str()
		assert.True(t, ok)
		assert.Equal(t, want, s)
	}
}

func TestCodec_MappingRoundTrip(t *testing.T) {
	got := roundTrip(t, memory.Metadata{
		"config": memory.MustValueOf(map[string]any{"nested": "value", "number": 123}),
	})

	m, ok := got["config"].Map()
	require.True(t, ok)
	nested, ok := m["nested"].Str()
	assert.True(t, ok)
	assert.Equal(t, "value", nested)
	n, ok := m["number"].Int()
	assert.True(t, ok)
	assert.Equal(t, int64(123), n)
}

func TestCodec_ScalarRoundTrip(t *testing.T) {
	md := memory.Metadata{
		"int":      memory.Int(-10),
		"float":    memory.Float(3.14),
		"whole":    memory.Float(1),
		"tiny":     memory.Float(1e-7),
		"huge":     memory.Float(1e21),
		"bool":     memory.Bool(true),
		"false":    memory.Bool(false),
		"null":     memory.Null(),
		"text":     memory.String("hello"),
		"mixed":    memory.Sequence(memory.Int(1), memory.Float(2.5), memory.Bool(false), memory.Null(), memory.String("x")),
		"empty":    memory.Sequence(),
		"emptyMap": memory.Mapping(nil),
	}

	got := roundTrip(t, md)
	assert.True(t, md.Equal(got), "round trip changed metadata: %v", got)
}

// Stored strings that read as literals come back as those literals.
func TestCodec_ScalarAmbiguity(t *testing.T) {
	got := roundTrip(t, memory.Metadata{
		"number_string": memory.String("42"),
		"text_string":   memory.String("hello"),
		"float_string":  memory.String("3.14"),
		"neg_string":    memory.String("-10"),
	})

	n, ok := got["number_string"].Int()
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	s, ok := got["text_string"].Str()
	assert.True(t, ok)
	assert.Equal(t, "hello", s)

	f, ok := got["float_string"].Float()
	assert.True(t, ok)
	assert.Equal(t, 3.14, f)

	neg, ok := got["neg_string"].Int()
	assert.True(t, ok)
	assert.Equal(t, int64(-10), neg)
}

func TestEncodeValue(t *testing.T) {
	tests := []struct {
		in   memory.Value
		want string
	}{
		{memory.String("hello"), "hello"},
		{memory.String(""), ""},
		{memory.Int(-10), "-10"},
		{memory.Float(1), "1.0"},
		{memory.Float(0.95), "0.95"},
		{memory.Float(-2.5), "-2.5"},
		{memory.Float(1e21), "1e+21"},
		{memory.Float(1e-7), "1e-07"},
		{memory.Bool(true), "True"},
		{memory.Bool(false), "False"},
		{memory.Null(), "None"},
		{memory.MustValueOf([]any{"a", 1}), `["a",1]`},
		{memory.MustValueOf(map[string]any{"z": 1, "a": "x"}), `{"a":"x","z":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := memory.EncodeValue(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeValue(t *testing.T) {
	tests := []struct {
		in   string
		want memory.Value
	}{
		{"42", memory.Int(42)},
		{"+5", memory.Int(5)},
		{"-0", memory.Int(0)},
		{"00", memory.Int(0)},
		{"3.14", memory.Float(3.14)},
		{".5", memory.Float(0.5)},
		{"-2.", memory.Float(-2)},
		{"1e+20", memory.Float(1e20)},
		{"2E3", memory.Float(2000)},
		{"True", memory.Bool(true)},
		{"False", memory.Bool(false)},
		{"None", memory.Null()},
		{"[1,2]", memory.Sequence(memory.Int(1), memory.Int(2))},
		{`{"a":true}`, memory.Mapping(map[string]memory.Value{"a": memory.Bool(true)})},

		// Not literals: kept as strings.
		{"hello", memory.String("hello")},
		{"02134", memory.String("02134")},
		{" 42", memory.String(" 42")},
		{"42 ", memory.String("42 ")},
		{"true", memory.String("true")},
		{"none", memory.String("none")},
		{"inf", memory.String("inf")},
		{"nan", memory.String("nan")},
		{"0x1F", memory.String("0x1F")},
		{"1_000", memory.String("1_000")},
		{"1e", memory.String("1e")},
		{".", memory.String(".")},
		{"-", memory.String("-")},
		{"", memory.String("")},
		{"[1, 2", memory.String("[1, 2")},
		{"{bad}", memory.String("{bad}")},
		{"[1] hello", memory.String("[1] hello")},
		{`{"a":1} and more`, memory.String(`{"a":1} and more`)},
		{"[1][2]", memory.String("[1][2]")},
		{"['a', 'b']", memory.String("['a', 'b']")},
		{"99999999999999999999", memory.String("99999999999999999999")},
		{"1e400", memory.String("1e400")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := memory.DecodeValue(tt.in)
			assert.True(t, tt.want.Equal(got), "DecodeValue(%q) = %s (%s), want %s (%s)",
				tt.in, got, got.Kind(), tt.want, tt.want.Kind())
		})
	}
}

func TestEncodeMetadata_NonFinite(t *testing.T) {
	_, err := memory.EncodeMetadata(memory.Metadata{"score": memory.Float(math.NaN())})
	require.ErrorIs(t, err, memory.ErrSerialization)
	assert.Contains(t, err.Error(), `"score"`)

	_, err = memory.EncodeMetadata(memory.Metadata{
		"nested": memory.Sequence(memory.Float(math.Inf(-1))),
	})
	assert.ErrorIs(t, err, memory.ErrSerialization)
}

func TestEncodeMetadata_InvalidUTF8(t *testing.T) {
	tests := map[string]memory.Metadata{
		"scalar":  {"k": memory.String("x\xffy")},
		"nested":  {"k": memory.Sequence(memory.String("caf\xe9"))},
		"map key": {"k": memory.Mapping(map[string]memory.Value{"\xff": memory.Int(1)})},
		"key":     {"\xfe": memory.Int(1)},
	}
	for name, md := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := memory.EncodeMetadata(md)
			assert.ErrorIs(t, err, memory.ErrSerialization)
		})
	}

	stored, err := memory.EncodeMetadata(memory.Metadata{"k": memory.String("café ☕")})
	require.NoError(t, err)
	assert.Equal(t, "café ☕", stored["k"])
}

func TestEncodeMetadata_Empty(t *testing.T) {
	stored, err := memory.EncodeMetadata(nil)
	require.NoError(t, err)
	assert.Empty(t, stored)

	assert.Empty(t, memory.DecodeMetadata(nil))
}
