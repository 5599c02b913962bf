package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceMetaHasCapability(t *testing.T) {
	meta := SourceMeta{Capabilities: []string{"simple_search"}}
	assert.True(t, meta.HasCapability("simple_search"))
	assert.False(t, meta.HasCapability("export_epub"))
}

func TestExtensionErrorFormatsLocationWhenPresent(t *testing.T) {
	err := &ExtensionError{Message: "chapter missing", Location: "fetch_chapter"}
	assert.Equal(t, "chapter missing (fetch_chapter)", err.Error())

	bare := &ExtensionError{Message: "network blip"}
	assert.Equal(t, "network blip", bare.Error())
}
