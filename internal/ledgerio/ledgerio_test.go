package ledgerio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRows(t *testing.T) {
	input := "\ufeff\"链接\",标题\n\n  https://a.example  ,  a  \n , \n\"\"\"https://b.example\"\"\",b,note\n"

	rows, err := ParseRows(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"链接", "标题"},
		{"https://a.example", "a"},
		{"https://b.example", "b", "note"},
	}, rows)
}

func TestEncodeRowsQuotesEveryCell(t *testing.T) {
	got := EncodeRows([][]string{{"link", "label"}, {"https://a.example", `say "hi"`, ""}})
	assert.Equal(t, "\"link\",\"label\"\n\"https://a.example\",\"say \"\"hi\"\"\",\"\"", got)
}

func TestEncodeDecodeGBK(t *testing.T) {
	rows := [][]string{{"链接", "标题", "备注"}, {"https://a.example", "视频", "网络请求失败"}}

	data, err := Encode(rows, "gbk")
	require.NoError(t, err)
	assert.NotContains(t, string(data), "视频")

	decoded, err := Decode(data, "gbk")
	require.NoError(t, err)
	assert.Equal(t, rows, decoded)
}

func TestEncodeUnknownCharset(t *testing.T) {
	_, err := Encode([][]string{{"a"}}, "klingon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "klingon")
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "links.csv")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0600))

	require.NoError(t, WriteFileAtomic(path, []byte("new"), 0644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteFileAtomicMissingDirectory(t *testing.T) {
	err := WriteFileAtomic(filepath.Join(t.TempDir(), "absent", "links.csv"), []byte("x"), 0644)
	require.Error(t, err)
}
