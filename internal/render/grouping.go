package render

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/snapetech/iptvconstructor/internal/m3u"
)

type members = orderedmap.OrderedMap[string, *m3u.Channel]

// Grouping buckets channels by category. Categories keep first-seen order;
// inside a category channels are keyed by name, so a repeated name keeps its
// first position and holds the last record added under it.
type Grouping struct {
	m *orderedmap.OrderedMap[string, *members]
}

func NewGrouping() *Grouping {
	return &Grouping{m: orderedmap.New[string, *members]()}
}

// Group builds a Grouping over channels. The grouping points into the slice,
// so later category changes are visible to the caller.
func Group(channels []m3u.Channel) *Grouping {
	g := NewGrouping()
	for i := range channels {
		g.Add(&channels[i])
	}
	return g
}

// Add inserts ch under its category, replacing any channel with the same name.
func (g *Grouping) Add(ch *m3u.Channel) {
	cat := ch.Category
	if cat == "" {
		cat = m3u.DefaultCategory
	}
	ms, ok := g.m.Get(cat)
	if !ok {
		ms = orderedmap.New[string, *m3u.Channel]()
		g.m.Set(cat, ms)
	}
	ms.Set(ch.Name, ch)
}

// Categories lists category names in grouping order.
func (g *Grouping) Categories() []string {
	out := make([]string, 0, g.m.Len())
	for p := g.m.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Key)
	}
	return out
}

// Members returns the channels of category in grouping order.
func (g *Grouping) Members(category string) []*m3u.Channel {
	ms, ok := g.m.Get(category)
	if !ok {
		return nil
	}
	out := make([]*m3u.Channel, 0, ms.Len())
	for p := ms.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value)
	}
	return out
}

// Len is the number of channels across all categories.
func (g *Grouping) Len() int {
	n := 0
	for p := g.m.Oldest(); p != nil; p = p.Next() {
		n += p.Value.Len()
	}
	return n
}
