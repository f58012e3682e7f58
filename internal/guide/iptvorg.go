package guide

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/snapetech/iptvconstructor/internal/epglink"
	"github.com/snapetech/iptvconstructor/internal/httpclient"
)

// DefaultIPTVOrgURL is the iptv-org community channel list. Its ids match
// the XMLTV guides published at https://iptv-org.github.io/epg/.
const DefaultIPTVOrgURL = "https://iptv-org.github.io/api/channels.json"

// iptvOrgChannel is one record from the iptv-org channels.json API.
type iptvOrgChannel struct {
	ID       string   `json:"id"`        // e.g. "cnn.us"
	Name     string   `json:"name"`      // e.g. "CNN"
	AltNames []string `json:"alt_names"` // alternative display names
	Country  string   `json:"country"`   // ISO 3166-1 alpha-2 upper-case, e.g. "US"
	IsNSFW   bool     `json:"is_nsfw"`
}

// IPTVOrg maps every name and alternative name of the iptv-org channel list
// to its channel id. Countries, when set, keeps only channels from those
// ISO codes; NSFW channels are skipped.
type IPTVOrg struct {
	URL       string
	Countries []string
	Client    *http.Client // nil: httpclient.Default()
}

func (o *IPTVOrg) Table(ctx context.Context) (*epglink.Table, error) {
	u := o.URL
	if u == "" {
		u = DefaultIPTVOrgURL
	}
	client := o.Client
	if client == nil {
		client = httpclient.Default()
	}
	body, err := httpclient.Fetch(ctx, client, u)
	if err != nil {
		return nil, fmt.Errorf("guide iptv-org: %w", err)
	}
	return ParseIPTVOrg(body, o.Countries)
}

// ParseIPTVOrg builds a table from a channels.json document.
func ParseIPTVOrg(data []byte, countries []string) (*epglink.Table, error) {
	var channels []iptvOrgChannel
	if err := json.Unmarshal(data, &channels); err != nil {
		return nil, fmt.Errorf("guide iptv-org: parse channels.json: %w", err)
	}
	keep := make(map[string]bool, len(countries))
	for _, c := range countries {
		keep[strings.ToUpper(strings.TrimSpace(c))] = true
	}
	t := epglink.NewTable()
	for _, ch := range channels {
		if ch.IsNSFW || ch.ID == "" {
			continue
		}
		if len(keep) > 0 && !keep[strings.ToUpper(ch.Country)] {
			continue
		}
		for _, name := range append([]string{ch.Name}, ch.AltNames...) {
			if name = strings.TrimSpace(name); name != "" {
				t.Set(name, ch.ID)
			}
		}
	}
	if t.Len() == 0 {
		return nil, ErrNoTable
	}
	return t, nil
}
