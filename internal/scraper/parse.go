package scraper

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"queuetrack-backend/internal/store"
)

// Column layout of the dashboard's rooms table.
const (
	colType = iota
	colDescription
	colLink1
	colLink2
	colApplicationDate
	colCapacity
	colPosition
	colDeleteLink
	colCount
)

// ParseDashboard extracts one ScrapedRoom per row of the rooms table on the
// dashboard page. The external room id is the numeric tail of the row's
// delete link.
func ParseDashboard(r io.Reader) ([]store.ScrapedRoom, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dashboard parse failed: %w", err)
	}

	section := findByID(doc, "rooms")
	if section == nil {
		return nil, fmt.Errorf("dashboard has no rooms section")
	}

	var rooms []store.ScrapedRoom
	for _, tr := range findAll(section, "tr") {
		tds := childElements(tr, "td")
		if len(tds) == 0 {
			continue // header row
		}
		room, err := parseRow(tds)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func parseRow(tds []*html.Node) (store.ScrapedRoom, error) {
	if len(tds) < colCount {
		return store.ScrapedRoom{}, fmt.Errorf("rooms table row has %d cells, want %d", len(tds), colCount)
	}

	capacity, err := strconv.Atoi(text(tds[colCapacity]))
	if err != nil {
		return store.ScrapedRoom{}, fmt.Errorf("bad capacity cell: %w", err)
	}
	pos, err := strconv.Atoi(text(tds[colPosition]))
	if err != nil {
		return store.ScrapedRoom{}, fmt.Errorf("bad position cell: %w", err)
	}

	link := findFirst(tds[colDeleteLink], "a")
	if link == nil {
		return store.ScrapedRoom{}, fmt.Errorf("rooms table row has no delete link")
	}
	href := attr(link, "href")
	extID, err := strconv.ParseInt(href[strings.LastIndex(href, "/")+1:], 10, 64)
	if err != nil {
		return store.ScrapedRoom{}, fmt.Errorf("bad room id in href %q: %w", href, err)
	}

	return store.ScrapedRoom{
		ExtID:       extID,
		Type:        text(tds[colType]),
		Description: text(tds[colDescription]),
		Capacity:    capacity,
		Position:    pos,
	}, nil
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode && attr(n, "id") == id {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
			return // rows do not nest
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func childElements(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			out = append(out, c)
		}
	}
	return out
}

// text returns the trimmed text content of a node.
func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
