package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Command
	}{
		{"insert", "insert a 1", Command{Verb: VerbInsert, Args: []string{"a", "1"}}},
		{"get", "get a", Command{Verb: VerbGet, Args: []string{"a"}}},
		{"update", "update a 2", Command{Verb: VerbUpdate, Args: []string{"a", "2"}}},
		{"delete", "delete a", Command{Verb: VerbDelete, Args: []string{"a"}}},
		{"exit", "exit", Command{Verb: VerbExit, Args: []string{}}},
		{"verb case folded", "  GeT   Key  ", Command{Verb: VerbGet, Args: []string{"Key"}}},
		{"value kept verbatim", "insert k v1,v2,v3", Command{Verb: VerbInsert, Args: []string{"k", "v1,v2,v3"}}},
		{"tabs", "insert\tk\tv", Command{Verb: VerbInsert, Args: []string{"k", "v"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.False(t, got.Empty())
		})
	}
}

func TestParseBlank(t *testing.T) {
	for _, line := range []string{"", " ", "\t"} {
		cmd, err := Parse(line)
		require.NoError(t, err)
		assert.True(t, cmd.Empty())
	}
}

func TestParseErrors(t *testing.T) {
	for _, line := range []string{
		"insert",
		"insert a",
		"insert a b c",
		"get",
		"get a b",
		"update a",
		"delete",
		"delete a b",
		"exit now",
		"put a b",
	} {
		t.Run(line, func(t *testing.T) {
			_, err := Parse(line)
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}
