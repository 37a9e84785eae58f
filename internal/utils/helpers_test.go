package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureParentDir_Creates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "chatgw.db")
	require.NoError(t, EnsureParentDir(path))

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestEnsureParentDir_BareFilename(t *testing.T) {
	assert.NoError(t, EnsureParentDir("chatgw.db"))
}

func TestTruncateString_Short(t *testing.T) {
	assert.Equal(t, "hello", TruncateString("hello", 10, ""))
}

func TestTruncateString_Exact(t *testing.T) {
	assert.Equal(t, "hello", TruncateString("hello", 5, ""))
}

func TestTruncateString_Long(t *testing.T) {
	assert.Equal(t, "hello w...", TruncateString("hello world!", 10, ""))
}

func TestTruncateString_CustomSuffix(t *testing.T) {
	assert.Equal(t, "hello wor…", TruncateString("hello world!", 10, "…"))
}

func TestTruncateString_MultiByte(t *testing.T) {
	s := "xin chào các bạn"
	got := TruncateString(s, 8, "...")
	assert.Equal(t, "xin c...", got)

	got = TruncateString("你好世界你好世界", 5, "…")
	assert.Equal(t, "你好世界…", got)
	assert.Equal(t, 5, len([]rune(got)))
}

func TestTruncateString_NoLimit(t *testing.T) {
	assert.Equal(t, "anything", TruncateString("anything", 0, ""))
}
