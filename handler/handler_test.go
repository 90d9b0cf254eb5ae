package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunc(t *testing.T) {
	h := Func(func(ctx context.Context, raw []byte) ([]byte, error) {
		return append([]byte("decoded:"), raw...), nil
	})

	out, err := h.Decode(context.Background(), []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, []byte("decoded:payload"), out)
}

func TestNormalizeTypeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0x00b2d882", "0x00B2D882"},
		{"0X00B2D882", "0x00B2D882"},
		{"0x034AEECB", "0x034AEECB"},
		{"034aeecb", "0x034AEECB"},
		{"  0xaaaa  ", "0xAAAA"},
		{"thumbnail", "thumbnail"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTypeID(tt.in), "input %q", tt.in)
	}
}
