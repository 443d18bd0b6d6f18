package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectInAppBrowserEmptyUserAgent(t *testing.T) {
	t.Parallel()
	redirect, marker := DetectInAppBrowser("")
	assert.False(t, redirect)
	assert.Empty(t, marker)
}

func TestDetectInAppBrowser(t *testing.T) {
	t.Parallel()

	redirect, marker := DetectInAppBrowser(
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Instagram 300.0.0.0")
	assert.True(t, redirect)
	assert.Equal(t, "Instagram", marker)

	redirect, _ = DetectInAppBrowser(
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 Chrome/120.0 Safari/537.36")
	assert.False(t, redirect)
}
