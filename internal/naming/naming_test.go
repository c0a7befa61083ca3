package naming

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
	}{
		{"RANDOM", FormatRandom},
		{"random", FormatRandom},
		{"DATE", FormatDate},
		{"date", FormatDate},
		{"UUID", FormatUUID},
		{"uuid", FormatUUID},
		{"NAME", FormatName},
		{"Name", FormatName},
		{"", FormatRandom},
		{"bogus", FormatRandom},
		{"  uuid  ", FormatUUID},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseFormat(tt.input), "input=%q", tt.input)
	}
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "RANDOM", FormatRandom.String())
	assert.Equal(t, "DATE", FormatDate.String())
	assert.Equal(t, "UUID", FormatUUID.String())
	assert.Equal(t, "NAME", FormatName.String())
}

func TestGenerateRandom(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-zA-Z0-9]{12}$`)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		name := Generate(FormatRandom, "photo.png", 12, "")
		require.Regexp(t, pattern, name)
		seen[name] = true
	}
	// 50 次生成理应几乎不重复
	assert.Greater(t, len(seen), 45)
}

func TestGenerateDate(t *testing.T) {
	layout := "2006-01-02_15-04-05"
	name := Generate(FormatDate, "photo.png", 8, layout)
	require.NotEmpty(t, name)

	parsed, err := time.Parse(layout, name)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), parsed, time.Minute)
}

func TestGenerateUUID(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

	first := Generate(FormatUUID, "photo.png", 8, "")
	second := Generate(FormatUUID, "photo.png", 8, "")
	require.Regexp(t, pattern, first)
	require.Regexp(t, pattern, second)
	// 每次调用必须生成全新的 UUID
	assert.NotEqual(t, first, second)
}

func TestGenerateName(t *testing.T) {
	tests := []struct {
		original string
		want     string
	}{
		{"photo.png", "photo"},
		{"a.b.c", "a.b"},
		{"archive", "archive"},
		{".bashrc", ".bashrc"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Generate(FormatName, tt.original, 8, ""), "original=%q", tt.original)
	}
}

func TestGenerateNeverEmpty(t *testing.T) {
	for _, f := range []Format{FormatRandom, FormatDate, FormatUUID, FormatName} {
		assert.NotEmpty(t, Generate(f, "", 8, ""), "format=%s", f)
	}
}
