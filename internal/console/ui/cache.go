package ui

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// renderCache memoizes the styled box for one validator section. At 10
// frames per second most frames repeat the previous content verbatim;
// hashing the plain content and reusing the styled render skips the
// border/padding layout work on every unchanged frame.
type renderCache struct {
	lastHash uint64
	cached   string
}

// cacheKey includes the viewport width so a resize invalidates the entry.
func (c *renderCache) cacheKey(content string, width int) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%d|%s", width, content))
}

// lookup returns the cached styled render when content and width are
// unchanged since the last frame.
func (c *renderCache) lookup(content string, width int) (string, bool) {
	h64 := c.cacheKey(content, width)
	if h64 == c.lastHash && c.cached != "" {
		return c.cached, true
	}
	c.lastHash = h64
	return "", false
}

// store records the styled render for the key set by the last lookup miss.
func (c *renderCache) store(rendered string) {
	c.cached = rendered
}
