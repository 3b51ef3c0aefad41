package roastlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLiteralScalars(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want any
	}{
		{name: "int", src: "42", want: int64(42)},
		{name: "negative int", src: "-3", want: int64(-3)},
		{name: "underscored int", src: "1_000", want: int64(1000)},
		{name: "float", src: "220.5", want: 220.5},
		{name: "exponent", src: "2.5e3", want: 2500.0},
		{name: "leading dot", src: ".5", want: 0.5},
		{name: "overflowing int", src: "99999999999999999999", want: 1e20},
		{name: "true", src: "True", want: true},
		{name: "false", src: "False", want: false},
		{name: "none", src: "None", want: nil},
		{name: "single quoted", src: `'Santos'`, want: "Santos"},
		{name: "double quoted", src: `"it's"`, want: "it's"},
		{name: "escapes", src: `'a\tb\nc\\d\'e'`, want: "a\tb\nc\\d'e"},
		{name: "hex escape", src: `'S\xe3o'`, want: "São"},
		{name: "unicode escape", src: `'caf\u00e9'`, want: "café"},
		{name: "octal escape", src: `'\101'`, want: "A"},
		{name: "escaped backslash keeps sequence", src: `'a\\nb'`, want: `a\nb`},
		{name: "unicode prefix", src: `u'caf\xe9'`, want: "café"},
		{name: "raw prefix", src: `r'\n'`, want: `\n`},
		{name: "adjacent literals", src: `'Fazenda ' "Boa" u' Vista'`, want: "Fazenda Boa Vista"},
		{name: "triple quoted", src: "'''first\nsecond'''", want: "first\nsecond"},
		{name: "utf8 passthrough", src: `'Guji – Ethiopia'`, want: "Guji – Ethiopia"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLiteral(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLiteralContainers(t *testing.T) {
	src := `{
		'title': 'Brazil',
		'timex': [0.0, 2.5, 5.0],
		'flavors': (7, 8,),
		'computed': {'CHARGE_ET': 220.5, 'TP_time': 95},
		'empty': [],
		1: 'numeric key',
	}`

	got, err := ParseLiteral(src)
	require.NoError(t, err)

	record, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Brazil", record["title"])
	assert.Equal(t, []any{0.0, 2.5, 5.0}, record["timex"])
	assert.Equal(t, []any{int64(7), int64(8)}, record["flavors"])
	assert.Equal(t, map[string]any{"CHARGE_ET": 220.5, "TP_time": int64(95)}, record["computed"])
	assert.Equal(t, []any{}, record["empty"])
	assert.Equal(t, "numeric key", record["1"])
}

func TestParseLiteralErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "empty", src: ""},
		{name: "missing value", src: "{'a': }"},
		{name: "missing colon", src: "{'a' 1}"},
		{name: "unterminated string", src: "'open"},
		{name: "newline in short string", src: "'a\nb'"},
		{name: "unclosed list", src: "[1, 2"},
		{name: "trailing garbage", src: "{'a': 1} extra"},
		{name: "bare name", src: "roast"},
		{name: "call expression", src: "dict(a=1)"},
		{name: "bad hex escape", src: `'\xzz'`},
		{name: "lone sign", src: "-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLiteral(tt.src)
			require.ErrorIs(t, err, ErrSyntax)
		})
	}
}

func TestParseLiteralReportsLine(t *testing.T) {
	_, err := ParseLiteral("{\n'a': 1,\n'b': ?}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}
