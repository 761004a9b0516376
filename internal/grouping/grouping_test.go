package grouping

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"PEPE", "pepe"},
		{"  Pepe  ", "pepe"},
		{"Pepe   The\tFrog", "pepe the frog"},
		{"$PEPE!", "pepe"},
		{"狗狗币", "狗狗币"},
		{"Doge 狗", "doge 狗"},
		{"🚀🚀", ""},
		{"", ""},
		{"Ünïcode", "ncode"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.input), "Normalize(%q)", tt.input)
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	in := "  Trump  Coin $$$ 2024 "
	first := Normalize(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Normalize(in))
	}
}

func TestKeys(t *testing.T) {
	tests := []struct {
		name   string
		symbol string
		title  string
		mode   Mode
		want   []string
	}{
		{"symbol only", "PEPE", "Pepe Coin", ModeSymbol, []string{"S:pepe"}},
		{"symbol missing", "", "Pepe Coin", ModeSymbol, nil},
		{"name only", "PEPE", "Pepe Coin", ModeName, []string{"N:pepe coin"}},
		{"name missing", "PEPE", "  ", ModeName, nil},
		{"both present", "PEPE", "Pepe Coin", ModeBoth, []string{"SN:pepe|pepe coin"}},
		{"both requires both", "PEPE", "", ModeBoth, nil},
		{"either emits two keys", "PEPE", "Pepe Coin", ModeEither, []string{"S:pepe", "N:pepe coin"}},
		{"either with one field", "", "Pepe Coin", ModeEither, []string{"N:pepe coin"}},
		{"either with nothing", "!!", "??", ModeEither, nil},
		{"unknown mode falls back to either", "A", "B", Mode("bogus"), []string{"S:a", "N:b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Keys(tt.symbol, tt.title, tt.mode))
		})
	}
}

func TestEitherKeysNeverCollide(t *testing.T) {
	// Symbol "abc" and name "abc" must produce distinct keys.
	keys := Keys("abc", "abc", ModeEither)
	assert.Len(t, keys, 2)
	assert.NotEqual(t, keys[0], keys[1])
}

func TestModeValid(t *testing.T) {
	for _, m := range []Mode{ModeSymbol, ModeName, ModeBoth, ModeEither} {
		assert.True(t, m.Valid(), m)
	}
	assert.False(t, Mode("").Valid())
	assert.False(t, Mode("symbol-only").Valid())
}
