package edgar

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/deepstock/internal/sources"
)

// atomFeed is the subset of the browse-edgar getcurrent Atom feed we read
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title string `xml:"title"`
	Link  struct {
		Href string `xml:"href,attr"`
	} `xml:"link"`
	Summary string `xml:"summary"`
	Updated string `xml:"updated"`
	ID      string `xml:"id"`
}

var (
	// "4 - Su Lisa T (0001299130) (Reporting)"
	titlePattern     = regexp.MustCompile(`^\s*4/?A?\s*-\s*(.+?)\s*\((\d+)\)\s*\((Reporting|Issuer|Filer)\)`)
	accessionPattern = regexp.MustCompile(`(\d{10}-\d{2}-\d{6})`)
	filedPattern     = regexp.MustCompile(`Filed:\s*(?:</b>)?\s*(\d{4}-\d{2}-\d{2})`)
)

// filing pairs the Reporting and Issuer entries that share an accession number
type filing struct {
	Accession string
	Insider   string
	Company   string
	Link      string
	Filed     time.Time
}

// parseFeed decodes the Atom feed and groups entries into filings, newest first
func parseFeed(data []byte) ([]filing, error) {
	var feed atomFeed
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.CharsetReader = charsetReader
	if err := decoder.Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to parse EDGAR atom feed: %w", err)
	}

	byAccession := make(map[string]*filing)
	order := []string{}

	for _, entry := range feed.Entries {
		match := titlePattern.FindStringSubmatch(entry.Title)
		if match == nil {
			continue
		}

		accession := accessionPattern.FindString(entry.ID)
		if accession == "" {
			accession = accessionPattern.FindString(entry.Summary)
		}
		if accession == "" {
			accession = entry.Link.Href
		}

		f, ok := byAccession[accession]
		if !ok {
			f = &filing{Accession: accession}
			byAccession[accession] = f
			order = append(order, accession)
		}

		switch match[3] {
		case "Reporting":
			f.Insider = strings.TrimSpace(match[1])
		case "Issuer":
			f.Company = strings.TrimSpace(match[1])
		}

		if f.Link == "" {
			f.Link = strings.TrimSpace(entry.Link.Href)
		}
		if f.Filed.IsZero() {
			if m := filedPattern.FindStringSubmatch(entry.Summary); m != nil {
				f.Filed = sources.ParseDate(m[1])
			} else {
				f.Filed = sources.ParseDate(entry.Updated)
			}
		}
	}

	filings := make([]filing, 0, len(order))
	for _, accession := range order {
		filings = append(filings, *byAccession[accession])
	}
	sort.SliceStable(filings, func(i, j int) bool {
		return filings[i].Filed.After(filings[j].Filed)
	})
	return filings, nil
}

// charsetReader handles the ISO-8859-1 declaration EDGAR puts on its feeds
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(label) {
	case "iso-8859-1", "latin1", "latin-1", "us-ascii":
		return &latin1Reader{r: bufio.NewReader(input)}, nil
	case "utf-8", "utf8", "":
		return input, nil
	default:
		return nil, fmt.Errorf("unsupported feed charset %q", label)
	}
}

// latin1Reader maps each ISO-8859-1 byte to its UTF-8 encoding
type latin1Reader struct {
	r   *bufio.Reader
	buf []byte
}

func (l *latin1Reader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(l.buf) > 0 {
			c := copy(p[n:], l.buf)
			l.buf = l.buf[c:]
			n += c
			continue
		}
		b, err := l.r.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		if b < 0x80 {
			p[n] = b
			n++
			continue
		}
		l.buf = []byte(string(rune(b)))
	}
	return n, nil
}
