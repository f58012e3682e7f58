// Package render writes channel records back out as a category-grouped
// playlist, optionally dropping or relocating entries whose streams are dead.
package render

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/snapetech/iptvconstructor/internal/m3u"
	"github.com/snapetech/iptvconstructor/internal/metrics"
	"github.com/snapetech/iptvconstructor/internal/probe"
)

// DefaultRelocatedCategory collects dead entries when DropDead is false.
const DefaultRelocatedCategory = "stopped working"

// Options controls Render. The zero value emits every channel with all of
// its attributes and probes nothing. Every entry carries a group-title set
// to its output category, whether or not the input had one. Double quotes
// in attribute values are written as single quotes.
type Options struct {
	// RequiredAttributes, when set, limits each entry to these attributes
	// (in this order, empty values skipped) plus a synthesized group-title.
	RequiredAttributes []string
	// ExemptCategories are never probed. A category is exempt when either
	// its input name or its renamed name is listed.
	ExemptCategories []string
	// CategoryRenames maps input category names to output names. Renaming
	// also rewrites the record's Category.
	CategoryRenames map[string]string
	// DropDead omits unreachable entries; false moves them into
	// RelocatedCategory instead. nil means true.
	DropDead *bool
	// Checker probes non-exempt entries; nil disables liveness checking.
	Checker     probe.Reacher
	Concurrency int
	// Deadline caps total probing time. Probes still pending when it
	// expires count as unreachable.
	Deadline          time.Duration
	RelocatedCategory string
}

func (o Options) dropDead() bool {
	return o.DropDead == nil || *o.DropDead
}

func (o Options) relocatedCategory() string {
	if o.RelocatedCategory != "" {
		return o.RelocatedCategory
	}
	return DefaultRelocatedCategory
}

func (o Options) rename(category string) string {
	if to, ok := o.CategoryRenames[category]; ok && to != "" {
		return to
	}
	return category
}

// Stats counts what Render did with each grouped channel.
type Stats struct {
	Kept       int
	Dropped    int
	Relocated  int
	Categories int
}

// SummaryString returns a one-line summary for logs.
func (s Stats) SummaryString() string {
	return fmt.Sprintf("kept=%d dropped=%d relocated=%d categories=%d",
		s.Kept, s.Dropped, s.Relocated, s.Categories)
}

// Render groups channels by category and writes the playlist to w.
//
// Categories are written in first-seen order, each between begin and end
// banner comments, and w receives each category as soon as its probes are
// resolved. Relocated entries follow in a final block of their own.
func Render(ctx context.Context, w io.Writer, channels []m3u.Channel, opts Options) (Stats, error) {
	var st Stats
	bw := bufio.NewWriter(w)
	bw.WriteString("#EXTM3U\n")

	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}
	exempt := make(map[string]bool, len(opts.ExemptCategories))
	for _, c := range opts.ExemptCategories {
		exempt[c] = true
	}
	pool := &probe.Pool{Reacher: opts.Checker, Concurrency: opts.Concurrency}
	var relocated []*m3u.Channel

	g := Group(channels)
	for _, cat := range g.Categories() {
		ms := g.Members(cat)
		if len(ms) == 0 {
			continue
		}
		out := opts.rename(cat)
		alive := make([]bool, len(ms))
		if opts.Checker != nil && !exempt[cat] && !exempt[out] {
			urls := make([]string, len(ms))
			for i, ch := range ms {
				urls[i] = ch.URL
			}
			alive = pool.CheckAll(ctx, urls)
		} else {
			for i := range alive {
				alive[i] = true
			}
		}

		kept := ms[:0:0]
		for i, ch := range ms {
			ch.Category = out
			switch {
			case alive[i]:
				kept = append(kept, ch)
				st.Kept++
				metrics.ChannelsTotal.WithLabelValues(metrics.FateKept).Inc()
			case opts.dropDead():
				log.Printf("drop %q (%s): stream unreachable", ch.Name, out)
				st.Dropped++
				metrics.ChannelsTotal.WithLabelValues(metrics.FateDropped).Inc()
			default:
				ch.Category = opts.relocatedCategory()
				relocated = append(relocated, ch)
			}
		}
		if len(kept) == 0 {
			continue
		}
		writeBlock(bw, out, kept, opts.RequiredAttributes)
		st.Categories++
		if err := bw.Flush(); err != nil {
			return st, fmt.Errorf("write playlist: %w", err)
		}
	}

	if len(relocated) > 0 {
		st.Relocated = len(relocated)
		metrics.ChannelsTotal.WithLabelValues(metrics.FateRelocated).Add(float64(len(relocated)))
		writeBlock(bw, opts.relocatedCategory(), relocated, opts.RequiredAttributes)
		st.Categories++
	}
	if err := bw.Flush(); err != nil {
		return st, fmt.Errorf("write playlist: %w", err)
	}
	return st, nil
}

// RenderFlat writes channels in input order without grouping or banners,
// skipping entries checker reports dead. A nil checker keeps everything.
func RenderFlat(ctx context.Context, w io.Writer, channels []m3u.Channel, checker probe.Reacher, concurrency int) (Stats, error) {
	var st Stats
	alive := make([]bool, len(channels))
	if checker != nil {
		urls := make([]string, len(channels))
		for i := range channels {
			urls[i] = channels[i].URL
		}
		alive = (&probe.Pool{Reacher: checker, Concurrency: concurrency}).CheckAll(ctx, urls)
	} else {
		for i := range alive {
			alive[i] = true
		}
	}

	bw := bufio.NewWriter(w)
	bw.WriteString("#EXTM3U\n")
	for i := range channels {
		if !alive[i] {
			st.Dropped++
			metrics.ChannelsTotal.WithLabelValues(metrics.FateDropped).Inc()
			continue
		}
		writeEntry(bw, &channels[i], nil)
		st.Kept++
		metrics.ChannelsTotal.WithLabelValues(metrics.FateKept).Inc()
	}
	if err := bw.Flush(); err != nil {
		return st, fmt.Errorf("write playlist: %w", err)
	}
	return st, nil
}

func writeBlock(w *bufio.Writer, category string, chs []*m3u.Channel, required []string) {
	w.WriteString("\n#" + category + " (begin)\n\n")
	for _, ch := range chs {
		writeEntry(w, ch, required)
	}
	w.WriteString("#" + category + " (end)\n")
}

// writeEntry writes one EXTINF block. group-title always carries the
// record's current Category so a re-parse lands in the same group.
func writeEntry(w *bufio.Writer, ch *m3u.Channel, required []string) {
	w.WriteString("#EXTINF:")
	w.WriteString(strconv.Itoa(ch.SequenceID))
	if len(required) == 0 {
		wroteGroup := false
		if ch.Attributes != nil {
			for p := ch.Attributes.Oldest(); p != nil; p = p.Next() {
				v := p.Value
				if p.Key == m3u.AttrGroupTitle {
					v = ch.Category
					wroteGroup = true
				}
				writeAttr(w, p.Key, v)
			}
		}
		if !wroteGroup {
			writeAttr(w, m3u.AttrGroupTitle, ch.Category)
		}
	} else {
		for _, key := range required {
			if key == m3u.AttrGroupTitle {
				continue
			}
			writeAttr(w, key, ch.Attr(key))
		}
		writeAttr(w, m3u.AttrGroupTitle, ch.Category)
	}
	w.WriteString("," + ch.Name + "\n")
	if ch.Option != "" {
		w.WriteString("#EXTVLCOPT:" + ch.Option + "\n")
	}
	w.WriteString(ch.URL + "\n\n")
}

func writeAttr(w *bufio.Writer, key, value string) {
	if value == "" {
		return
	}
	w.WriteString(" " + key + `="` + strings.ReplaceAll(value, `"`, "'") + `"`)
}
