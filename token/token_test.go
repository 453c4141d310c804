package token

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_Generate(t *testing.T) {
	tg := NewGenerator()

	seen := make(map[string]struct{}, 10000)

	for i := 0; i < 10000; i++ {
		tk, err := tg.Generate()
		require.NoError(t, err)

		if _, ok := seen[tk]; ok {
			t.Fatalf("TestGenerator_Generate: duplicate token after %v tokens: %v", i, tk)
		}
		seen[tk] = struct{}{}

		assert.False(t, strings.ContainsAny(tk, "=+/"), "token contains padding or non url safe characters: %v", tk)

		raw, err := base64.RawURLEncoding.DecodeString(tk)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(raw), MinBytes)
	}
}

func TestNewGeneratorWithSize(t *testing.T) {
	tests := []struct {
		Size        int
		ExpectedErr error
		ExpectedLen int
	}{
		{Size: 24, ExpectedErr: nil, ExpectedLen: 32},
		{Size: 48, ExpectedErr: nil, ExpectedLen: 64},
		{Size: 16, ExpectedErr: ErrTooShort},
	}

	for _, test := range tests {
		tg, err := NewGeneratorWithSize(test.Size)
		assert.Equal(t, test.ExpectedErr, err)
		if err != nil {
			continue
		}

		tk, err := tg.Generate()
		require.NoError(t, err)
		assert.Len(t, tk, test.ExpectedLen)
	}
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("no entropy")
}

func TestGenerator_Generate_ReadFails(t *testing.T) {
	tg := &Generator{rand: failingReader{}, size: DefaultBytes}

	tk, err := tg.Generate()
	assert.Error(t, err)
	assert.Equal(t, "", tk)
}
