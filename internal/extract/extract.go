// Package extract pulls listing records out of a rendered search results page.
package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Record is one listing card.
type Record struct {
	Title  string `json:"title"`
	Price  string `json:"price"`
	URL    string `json:"url"`
	Beds   string `json:"beds"`
	Baths  string `json:"baths"`
	Sqft   string `json:"sqft"`
	Source string `json:"source,omitempty"`
}

// Result is the outcome of one extraction.
type Result struct {
	Records []Record
	// Cards is the number of candidate cards found before filtering.
	Cards int
	// Selector is the card expression that matched, or "text" when the
	// keyword fallback was used.
	Selector string
}

// DefaultCardSelectors are tried in order; the first one with matches wins.
var DefaultCardSelectors = []string{
	`//*[@data-test="property-card"]`,
	`//*[contains(@data-test, "property")]`,
	`//*[contains(@class, "property-card")]`,
	`//*[contains(@class, "listing")]`,
	`//article`,
	`//*[@role="article"]`,
	`//div[contains(@class, "card")]`,
}

const fallbackSelector = "text"

var (
	priceRe     = regexp.MustCompile(`\$[0-9,]+`)
	bedsRe      = regexp.MustCompile(`(\d+)\s*bds`)
	bathsRe     = regexp.MustCompile(`(\d+)\s*ba`)
	sqftRe      = regexp.MustCompile(`([0-9,]+)\s*sqft`)
	titleTailRe = regexp.MustCompile(`^(.*?)(?:COMPASS|SPROUT|COLDWELL|REALTY|LLC|\$[0-9,]+).*$`)

	cardKeywords = []string{"$", "bds", "ba", "sqft", "bed", "bath"}
)

// Extractor turns page HTML into records.
type Extractor struct {
	selectors  []string
	maxRecords int
	logger     *zap.Logger
}

// New creates an extractor that returns at most maxRecords records; zero or
// less means no limit.
func New(maxRecords int, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		selectors:  DefaultCardSelectors,
		maxRecords: maxRecords,
		logger:     logger.Named("extract"),
	}
}

// WithSelectors returns a copy of e that tries selectors instead of the
// defaults.
func (e *Extractor) WithSelectors(selectors ...string) *Extractor {
	c := *e
	c.selectors = selectors
	return &c
}

// Extract parses doc and returns the listing records found on it. pageURL
// resolves relative links and is stamped on every record.
func (e *Extractor) Extract(doc, pageURL string) (Result, error) {
	root, err := htmlquery.Parse(strings.NewReader(doc))
	if err != nil {
		return Result{}, fmt.Errorf("extract: parse html: %w", err)
	}
	base, _ := url.Parse(pageURL)

	cards, selector, err := e.findCards(root)
	if err != nil {
		return Result{}, err
	}
	res := Result{Cards: len(cards), Selector: selector}
	if len(cards) == 0 {
		e.logger.Warn("No listing cards found.", zap.String("url", pageURL))
		return res, nil
	}

	for _, card := range cards {
		if e.maxRecords > 0 && len(res.Records) >= e.maxRecords {
			break
		}
		rec, ok := recordFrom(card, base)
		if !ok {
			continue
		}
		rec.Source = pageURL
		res.Records = append(res.Records, rec)
	}
	e.logger.Info("Extracted listings.",
		zap.String("url", pageURL),
		zap.String("selector", selector),
		zap.Int("cards", len(cards)),
		zap.Int("records", len(res.Records)),
	)
	return res, nil
}

func (e *Extractor) findCards(root *html.Node) ([]*html.Node, string, error) {
	for _, sel := range e.selectors {
		nodes, err := htmlquery.QueryAll(root, sel)
		if err != nil {
			return nil, "", fmt.Errorf("extract: bad card selector %q: %w", sel, err)
		}
		if len(nodes) > 0 {
			return nodes, sel, nil
		}
	}

	// Keyword fallback: innermost div or article blocks that look like a card.
	candidates, err := htmlquery.QueryAll(root, "//div | //article")
	if err != nil {
		return nil, "", fmt.Errorf("extract: fallback query: %w", err)
	}
	var cards []*html.Node
	for _, n := range candidates {
		if looksLikeCard(n) && !hasCardDescendant(n) {
			cards = append(cards, n)
		}
	}
	return cards, fallbackSelector, nil
}

func looksLikeCard(n *html.Node) bool {
	text := strings.ToLower(htmlquery.InnerText(n))
	for _, kw := range cardKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func hasCardDescendant(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "div" || c.Data == "article") && looksLikeCard(c) {
			return true
		}
		if hasCardDescendant(c) {
			return true
		}
	}
	return false
}

func recordFrom(card *html.Node, base *url.URL) (Record, bool) {
	text := htmlquery.SelectAttr(card, "aria-label")
	if text == "" {
		text = htmlquery.InnerText(card)
	}
	text = strings.Join(strings.Fields(text), " ")

	rec := Record{Title: cleanTitle(text)}
	rec.Price = priceRe.FindString(text)
	if m := bedsRe.FindStringSubmatch(text); m != nil {
		rec.Beds = m[1] + " bds"
	}
	if m := bathsRe.FindStringSubmatch(text); m != nil {
		rec.Baths = m[1] + " ba"
	}
	if m := sqftRe.FindStringSubmatch(text); m != nil {
		rec.Sqft = m[1] + " sqft"
	}
	if a := htmlquery.FindOne(card, ".//a[@href]"); a != nil {
		rec.URL = resolve(base, htmlquery.SelectAttr(a, "href"))
	}

	if rec.Title == "" || (rec.Price == "" && rec.Beds == "" && rec.Baths == "") {
		return Record{}, false
	}
	return rec, true
}

// cleanTitle drops brokerage names and the price that follow the address.
func cleanTitle(text string) string {
	if m := titleTailRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	return strings.TrimSpace(text)
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
