// Package m3u parses extended M3U playlists into channel records.
//
// The parser is deliberately lenient: anything that does not look like a
// complete entry block is skipped, never reported, unless ParseStrict is used.
package m3u

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultCategory is assigned to entries with neither #EXTGRP nor group-title.
const DefaultCategory = "Uncategorized"

// Attribute names the rest of the module cares about.
const (
	AttrTVGID      = "tvg-id"
	AttrTVGLogo    = "tvg-logo"
	AttrGroupTitle = "group-title"
)

// Attrs holds EXTINF attributes in the order they appeared on the line.
type Attrs = orderedmap.OrderedMap[string, string]

// NewAttrs returns an empty attribute map.
func NewAttrs() *Attrs {
	return orderedmap.New[string, string]()
}

// Channel is one playlist entry.
type Channel struct {
	Name       string
	SequenceID int    // EXTINF duration; -1 for live streams
	Category   string // #EXTGRP, else group-title, else DefaultCategory
	URL        string
	Attributes *Attrs
	Option     string // raw #EXTVLCOPT payload, re-emitted verbatim
}

// Attr returns the attribute value for key, or "" when absent.
func (c *Channel) Attr(key string) string {
	if c.Attributes == nil {
		return ""
	}
	v, _ := c.Attributes.Get(key)
	return v
}

// SetAttr sets key to value, keeping the key's original position if present.
func (c *Channel) SetAttr(key, value string) {
	if c.Attributes == nil {
		c.Attributes = NewAttrs()
	}
	c.Attributes.Set(key, value)
}

func resolveCategory(group string, attrs *Attrs) string {
	if group != "" {
		return group
	}
	if v, ok := attrs.Get(AttrGroupTitle); ok && v != "" {
		return v
	}
	return DefaultCategory
}
