package chunk

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReassembleRoundTrip(t *testing.T) {
	store := newTestStore(t)

	full := make([]byte, 300)
	for i := range full {
		full[i] = byte(i % 251)
	}

	// 乱序提交：分片到达顺序不应影响重组结果
	require.NoError(t, store.Put("upload-1", 200, 299, full[200:300]))
	require.NoError(t, store.Put("upload-1", 0, 99, full[0:100]))
	require.NoError(t, store.Put("upload-1", 100, 199, full[100:200]))

	merged, err := store.Reassemble("upload-1", 300)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(full, merged))

	// 重组完成后分片文件必须被删除
	descs, err := store.List("upload-1")
	require.NoError(t, err)
	assert.Empty(t, descs)
}

func TestReassembleMissingRangeZeroFilled(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put("upload-1", 0, 99, bytes.Repeat([]byte{0xAA}, 100)))
	require.NoError(t, store.Put("upload-1", 200, 299, bytes.Repeat([]byte{0xBB}, 100)))

	// 中段缺失不报错，缺口以零值填充
	merged, err := store.Reassemble("upload-1", 300)
	require.NoError(t, err)
	require.Len(t, merged, 300)

	assert.Equal(t, bytes.Repeat([]byte{0xAA}, 100), merged[0:100])
	assert.Equal(t, make([]byte, 100), merged[100:200])
	assert.Equal(t, bytes.Repeat([]byte{0xBB}, 100), merged[200:300])
}

func TestReassembleOutOfRangeChunk(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put("upload-1", 250, 349, make([]byte, 100)))

	_, err := store.Reassemble("upload-1", 300)
	assert.Error(t, err)
}

func TestReassembleNegativeTotal(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Reassemble("upload-1", -1)
	assert.Error(t, err)
}

func TestReassembleEmptyIdentifier(t *testing.T) {
	store := newTestStore(t)

	// 没有任何分片时返回全零缓冲区
	merged, err := store.Reassemble("nothing", 10)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 10), merged)
}
