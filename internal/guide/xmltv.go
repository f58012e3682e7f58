package guide

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/snapetech/iptvconstructor/internal/epglink"
	"github.com/snapetech/iptvconstructor/internal/httpclient"
	"github.com/snapetech/iptvconstructor/internal/safeurl"
)

// XMLTV reads <channel id="..."><display-name>...</display-name></channel>
// entries from an XMLTV guide. Location is an http(s) URL or a file path.
// Every display name of a channel maps to its id.
type XMLTV struct {
	Location string
	Client   *http.Client // nil: httpclient.Default()
}

type xmltvChannel struct {
	ID       string   `xml:"id,attr"`
	Displays []string `xml:"display-name"`
}

func (x *XMLTV) Table(ctx context.Context) (*epglink.Table, error) {
	var (
		data []byte
		err  error
	)
	if safeurl.IsHTTPOrHTTPS(x.Location) {
		client := x.Client
		if client == nil {
			client = httpclient.Default()
		}
		data, err = httpclient.Fetch(ctx, client, x.Location)
	} else {
		data, err = os.ReadFile(x.Location)
	}
	if err != nil {
		return nil, fmt.Errorf("guide xmltv: %w", err)
	}
	return ParseXMLTV(data)
}

// ParseXMLTV builds a table from XMLTV channel elements. Programmes are
// skipped without being decoded.
func ParseXMLTV(data []byte) (*epglink.Table, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	t := epglink.NewTable()
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("guide xmltv: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "channel":
			var ch xmltvChannel
			if err := dec.DecodeElement(&ch, &se); err != nil {
				return nil, fmt.Errorf("guide xmltv: %w", err)
			}
			id := strings.TrimSpace(ch.ID)
			if id == "" {
				continue
			}
			for _, d := range ch.Displays {
				if name := strings.TrimSpace(d); name != "" {
					t.Set(name, id)
				}
			}
		case "programme":
			if err := dec.Skip(); err != nil {
				return nil, fmt.Errorf("guide xmltv: %w", err)
			}
		}
	}
	if t.Len() == 0 {
		return nil, ErrNoTable
	}
	return t, nil
}
