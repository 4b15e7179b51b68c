package feed

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"equiscore/internal/logging"

	"golang.org/x/net/html/charset"
)

// ErrNoFeed is returned when the document has no root element, as with an
// empty file or one caught before the provider wrote anything.
var ErrNoFeed = errors.New("feed: empty document")

// FlagLookup resolves a country code to a flag image URL.
type FlagLookup interface {
	Lookup(code string) string
}

// Wire shape of the provider document. Only the elements we map are declared;
// encoding/xml ignores the rest. The root element name is not checked.
type xmlDocument struct {
	Providers []xmlProvider `xml:"TResultsProvider"`
}

type xmlProvider struct {
	MID         string          `xml:"mId"`
	Identifier  string          `xml:"identifier"`
	OrgID       string          `xml:"orgId"`
	Name        string          `xml:"name"`
	StartTime   string          `xml:"startTime"`
	ClassNumber string          `xml:"classNumber"`
	Officials   []xmlOfficial   `xml:"Officials>o"`
	Competitors []xmlCompetitor `xml:"Competitors>o"`
}

type xmlOfficial struct {
	JudgeBy  string `xml:"judgeBy"`
	FullName string `xml:"fullName"`
}

type xmlCompetitor struct {
	ID             string      `xml:"id"`
	StartingNumber string      `xml:"startingNumber"`
	Rank           *string     `xml:"rank"`
	FullName       string      `xml:"fullName"`
	OrgName        string      `xml:"orgName"`
	Country        *string     `xml:"country"`
	Results        xmlNode `xml:"Results"`
	Gespanne       xmlNode `xml:"Gespanne"`
}

// xmlNode is a generic element. Result and horse items are o elements at
// any depth below their container, so they are walked rather than mapped.
type xmlNode struct {
	XMLName xml.Name
	Text    string    `xml:",chardata"`
	Nodes   []xmlNode `xml:",any"`
}

// items returns every descendant o element in document order.
func (n xmlNode) items() []xmlNode {
	var out []xmlNode
	for _, c := range n.Nodes {
		if c.XMLName.Local == "o" {
			out = append(out, c)
		}
		out = append(out, c.items()...)
	}
	return out
}

// optional returns the text of the first direct child called name, or nil
// if there is none.
func (n xmlNode) optional(name string) *string {
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Local == name {
			return &n.Nodes[i].Text
		}
	}
	return nil
}

func (n xmlNode) field(name string) string {
	if v := n.optional(name); v != nil {
		return text(*v)
	}
	return ""
}

// Parse decodes a results feed and maps it onto competitions. Competitors of
// every competition come back sorted by rank. A document without
// TResultsProvider elements yields an empty, non-nil slice. flags may be nil.
func Parse(r io.Reader, flags FlagLookup) ([]Competition, error) {
	var doc xmlDocument
	dec := xml.NewDecoder(r)
	// Scoring software on Windows often declares windows-1252 or ISO-8859-1.
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoFeed
		}
		return nil, fmt.Errorf("decode results feed: %w", err)
	}

	competitions := make([]Competition, 0, len(doc.Providers))
	for _, p := range doc.Providers {
		competitions = append(competitions, mapProvider(p, flags))
	}

	logging.FeedDebug("parsed %d competitions", len(competitions))
	return competitions, nil
}

// ParseFile opens path and parses it.
func ParseFile(path string, flags FlagLookup) ([]Competition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feed %s: %w", path, err)
	}
	defer f.Close()

	competitions, err := Parse(f, flags)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return competitions, nil
}

func mapProvider(p xmlProvider, flags FlagLookup) Competition {
	c := Competition{
		MID:         text(p.MID),
		Identifier:  text(p.Identifier),
		OrgID:       text(p.OrgID),
		Name:        text(p.Name),
		StartTime:   text(p.StartTime),
		ClassNumber: text(p.ClassNumber),
		Officials:   make([]Official, 0, len(p.Officials)),
		Competitors: make([]Competitor, 0, len(p.Competitors)),
	}

	for _, o := range p.Officials {
		c.Officials = append(c.Officials, Official{
			JudgeBy:  text(o.JudgeBy),
			FullName: text(o.FullName),
		})
	}

	for _, xc := range p.Competitors {
		c.Competitors = append(c.Competitors, mapCompetitor(xc, flags))
	}
	SortCompetitors(c.Competitors)

	return c
}

func mapCompetitor(xc xmlCompetitor, flags FlagLookup) Competitor {
	c := Competitor{
		ID:              text(xc.ID),
		StartingNumber:  text(xc.StartingNumber),
		Rank:            rankOrNA(xc.Rank),
		FullName:        text(xc.FullName),
		OrgName:         text(xc.OrgName),
		DressageResults: []DressageResult{},
		TotalResults:    []TotalResult{},
		Gespanne:        []Horse{},
	}

	if xc.Country != nil && flags != nil {
		c.FlagImage = flags.Lookup(text(*xc.Country))
	}

	for _, r := range xc.Results.items() {
		rawType := r.optional("resultItemType")
		if rawType == nil {
			continue
		}
		switch itemType := text(*rawType); itemType {
		case ResultDressage:
			c.DressageResults = append(c.DressageResults, DressageResult{
				ResultItemType: itemType,
				JudgeBy:        r.field("judgeBy"),
				Score:          r.field("score"),
				Procent:        r.field("procent"),
				Rank:           rankOrNA(r.optional("rank")),
			})
		case ResultDressageTotal:
			c.TotalResults = append(c.TotalResults, TotalResult{
				ResultItemType: itemType,
				Score:          r.field("score"),
				Procent:        r.field("procent"),
				PenaltyPoints:  r.field("penaltyPoints"),
			})
		}
	}

	for _, h := range xc.Gespanne.items() {
		c.Gespanne = append(c.Gespanne, Horse{
			HorseName: h.field("HorseName"),
			BornYear:  h.field("bornYear"),
			Sex:       h.field("sex"),
		})
	}

	return c
}

func text(s string) string {
	return strings.TrimSpace(s)
}

func rankOrNA(rank *string) string {
	if rank == nil {
		return RankNotAvailable
	}
	if r := text(*rank); r != "" {
		return r
	}
	return RankNotAvailable
}
