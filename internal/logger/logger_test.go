package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "json")

	Info("should not appear")
	Warn("should appear")

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "should appear")
}

func TestJSONFormatIncludesFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json")

	Info("installed extension", ExtensionID("royalroad"), Version("1.2.0"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "installed extension", entry["msg"])
	assert.Equal(t, "royalroad", entry[KeyExtensionID])
	assert.Equal(t, "1.2.0", entry[KeyVersion])
}

func TestContextFieldsAreInjected(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json")

	lc := NewLogContext("install").WithExtension("royalroad").WithSource("registry")
	ctx := WithContext(context.Background(), lc)

	InfoCtx(ctx, "resolved source")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "install", entry[KeyOperation])
	assert.Equal(t, "royalroad", entry[KeyExtensionID])
	assert.Equal(t, "registry", entry[KeySourceID])
}

func TestFromContextReturnsNilWithoutValue(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	assert.Nil(t, FromContext(nil))
}

func TestLogContextClone(t *testing.T) {
	lc := NewLogContext("fetch_novel")
	clone := lc.WithExtension("novelfull")

	assert.Equal(t, "fetch_novel", clone.Operation)
	assert.Equal(t, "novelfull", clone.ExtensionID)
	assert.Empty(t, lc.ExtensionID, "original context must not be mutated")
}

func TestTextFormatDoesNotPanic(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "DEBUG", "text")

	Debug("plain text line", Operation("cache_lookup"))

	assert.True(t, strings.Contains(buf.String(), "plain text line"))
}
