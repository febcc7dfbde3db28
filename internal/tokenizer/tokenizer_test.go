package tokenizer

import (
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runes tokenizes by code point.
type runes struct{}

func (runes) Encode(text string) ([]int, error) {
	var ids []int
	for _, r := range text {
		ids = append(ids, int(r))
	}
	return ids, nil
}

func (runes) Name() string { return "runes" }

func TestFolded(t *testing.T) {
	f, err := NewFolded(runes{}, 10, 4)
	require.NoError(t, err)

	ids, err := f.Encode("abcdef")
	require.NoError(t, err)
	for _, id := range ids {
		assert.GreaterOrEqual(t, id, 4)
		assert.Less(t, id, 10)
	}
	assert.Equal(t, 4+int('a')%6, ids[0])
	assert.Equal(t, 4, f.Fold(0))
	assert.Equal(t, 9, f.Fold(-1))
	assert.Equal(t, "runes/10", f.Name())
}

func TestFoldedRejectsSmallVocabulary(t *testing.T) {
	_, err := NewFolded(runes{}, 4, 4)
	assert.ErrorIs(t, err, ErrVocabulary)
	_, err = NewFolded(runes{}, 10, -1)
	assert.ErrorIs(t, err, ErrVocabulary)
}

// loadTikToken skips the test when the encoding cannot be downloaded.
func loadTikToken(t *testing.T, name string) *TikToken {
	t.Helper()
	tok, err := NewTikToken(name)
	var netErr net.Error
	if errors.As(err, &netErr) {
		t.Skipf("encoding %s unavailable offline: %v", name, err)
	}
	require.NoError(t, err)
	return tok
}

func TestTikToken(t *testing.T) {
	tok := loadTikToken(t, "cl100k_base")
	assert.Equal(t, "cl100k_base", tok.Name())

	text := "Hallo Welt, wie geht es?"
	ids, err := tok.Encode(text)
	require.NoError(t, err)
	assert.NotEmpty(t, ids)
	assert.Equal(t, text, tok.Decode(ids))

	f, err := NewFolded(tok, 64, 4)
	require.NoError(t, err)
	folded, err := f.Encode(strings.Repeat("x ", 10))
	require.NoError(t, err)
	assert.NotEmpty(t, folded)
}

func TestTikTokenUnknownEncoding(t *testing.T) {
	tok, err := NewTikToken("invalid_encoding_xyz")
	assert.Error(t, err)
	assert.Nil(t, tok)
}
