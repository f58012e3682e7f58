package epglink

import (
	"fmt"
	"log"
	"strings"

	"github.com/snapetech/iptvconstructor/internal/m3u"
	"github.com/snapetech/iptvconstructor/internal/metrics"
)

// Row is the outcome for one channel.
type Row struct {
	Channel    string `json:"channel"`
	PreviousID string `json:"previous_tvg_id,omitempty"`
	MatchedAs  string `json:"matched_name"`
	ID         string `json:"tvg_id"`
	Score      int    `json:"score"`
	Applied    bool   `json:"applied"`
}

type Report struct {
	TotalChannels int   `json:"total_channels"`
	Applied       int   `json:"applied"`
	Changed       int   `json:"changed"`
	BelowMinScore int   `json:"below_min_score"`
	Rows          []Row `json:"rows"`
}

// Apply sets the tvg-id attribute of every channel to the identifier of its
// best table match. Matches scoring below minScore are left untouched; a
// minScore of 0 applies every match.
func Apply(channels []m3u.Channel, table *Table, minScore int) (Report, error) {
	rep := Report{TotalChannels: len(channels)}
	if len(channels) == 0 {
		return rep, nil
	}
	if table.Len() == 0 {
		return rep, ErrEmptyTable
	}
	idx := newIndex(table)
	rep.Rows = make([]Row, 0, len(channels))
	for i := range channels {
		ch := &channels[i]
		res := idx.best(ch.Name)
		row := Row{
			Channel:    ch.Name,
			PreviousID: ch.Attr(m3u.AttrTVGID),
			MatchedAs:  res.Name,
			ID:         res.ID,
			Score:      res.Score,
		}
		metrics.MatchScore.Observe(float64(res.Score))
		if res.Score < minScore {
			rep.BelowMinScore++
			rep.Rows = append(rep.Rows, row)
			continue
		}
		ch.SetAttr(m3u.AttrTVGID, res.ID)
		row.Applied = true
		rep.Applied++
		if row.PreviousID != res.ID {
			rep.Changed++
		}
		log.Printf("%s set to tvg-id: %s (matched %q, score %d)", ch.Name, res.ID, res.Name, res.Score)
		rep.Rows = append(rep.Rows, row)
	}
	return rep, nil
}

// Unapplied returns the rows that fell below the minimum score.
func (r Report) Unapplied() []Row {
	out := make([]Row, 0, r.BelowMinScore)
	for _, row := range r.Rows {
		if !row.Applied {
			out = append(out, row)
		}
	}
	return out
}

func (r Report) SummaryString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "EPG matches: %d/%d applied (%.1f%%), %d changed", r.Applied, r.TotalChannels, pct(r.Applied, r.TotalChannels), r.Changed)
	if r.BelowMinScore > 0 {
		fmt.Fprintf(&b, ", %d below min score", r.BelowMinScore)
	}
	return b.String()
}

func pct(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) * 100 / float64(b)
}
