package guide

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/snapetech/iptvconstructor/internal/epglink"
	"github.com/snapetech/iptvconstructor/internal/httpclient"
)

// DefaultCatalogURL is the public EPG catalog scraped by default.
const DefaultCatalogURL = "https://epg.iptvx.one/"

// HTMLCatalog scrapes a catalog page laid out as one table row per guide
// channel: the second cell holds the EPG id and every link in the third cell
// is a display name for it.
type HTMLCatalog struct {
	URL    string
	Client *http.Client // nil: httpclient.Default()
}

func (c *HTMLCatalog) Table(ctx context.Context) (*epglink.Table, error) {
	u := c.URL
	if u == "" {
		u = DefaultCatalogURL
	}
	client := c.Client
	if client == nil {
		client = httpclient.Default()
	}
	body, err := httpclient.Fetch(ctx, client, u)
	if err != nil {
		return nil, fmt.Errorf("guide catalog: %w", err)
	}
	t, err := ParseCatalog(body)
	if err != nil {
		return nil, fmt.Errorf("guide catalog %s: %w", u, err)
	}
	return t, nil
}

// ParseCatalog extracts the table from a catalog page. Only the first tbody
// is read; rows without text or with fewer than three cells are skipped.
func ParseCatalog(page []byte) (*epglink.Table, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	tbody := findFirst(doc, atom.Tbody)
	if tbody == nil {
		return nil, ErrNoTable
	}
	t := epglink.NewTable()
	for tr := tbody.FirstChild; tr != nil; tr = tr.NextSibling {
		if !isElement(tr, atom.Tr) || strings.TrimSpace(textOf(tr)) == "" {
			continue
		}
		cells := children(tr, atom.Td)
		if len(cells) < 3 {
			continue
		}
		id := strings.TrimSpace(textOf(cells[1]))
		if id == "" {
			continue
		}
		for _, a := range findAll(cells[2], atom.A) {
			if name := strings.TrimSpace(textOf(a)); name != "" {
				t.Set(name, id)
			}
		}
	}
	if t.Len() == 0 {
		return nil, ErrNoTable
	}
	return t, nil
}

func isElement(n *html.Node, a atom.Atom) bool {
	return n.Type == html.ElementNode && n.DataAtom == a
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if isElement(n, a) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if isElement(n, a) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func children(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if isElement(c, a) {
			out = append(out, c)
		}
	}
	return out
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
