package extract

import (
	"strings"
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const searchPage = `<html><body>
<ul>
  <li><article data-test="property-card">
    <a href="/homedetails/123-main">123 Main St, Springfield, IL 62701</a>
    <span>COMPASS</span>
    <span>$450,000</span><span>3 bds</span><span>2 ba</span><span>1,800 sqft</span>
  </article></li>
  <li><article data-test="property-card" aria-label="9 Elm Ct, Shelbyville, IL $1,200,000 5 bds 4 ba 3,900 sqft">
    <a href="https://listings.example/elm">Elm</a>
  </article></li>
  <li><article data-test="property-card"><span>Sponsored</span></article></li>
</ul>
</body></html>`

func TestExtract_PrimarySelector(t *testing.T) {
	e := New(0, zaptest.NewLogger(t))
	res, err := e.Extract(searchPage, "https://listings.example/search?q=springfield")
	require.NoError(t, err)

	assert.Equal(t, DefaultCardSelectors[0], res.Selector)
	assert.Equal(t, 3, res.Cards)
	require.Len(t, res.Records, 2, "cards without price, beds or baths are skipped")

	first := res.Records[0]
	assert.Equal(t, "123 Main St, Springfield, IL 62701", first.Title)
	assert.Equal(t, "$450,000", first.Price)
	assert.Equal(t, "3 bds", first.Beds)
	assert.Equal(t, "2 ba", first.Baths)
	assert.Equal(t, "1,800 sqft", first.Sqft)
	assert.Equal(t, "https://listings.example/homedetails/123-main", first.URL)
	assert.Equal(t, "https://listings.example/search?q=springfield", first.Source)

	second := res.Records[1]
	assert.Equal(t, "9 Elm Ct, Shelbyville, IL", second.Title, "aria-label wins over inner text")
	assert.Equal(t, "$1,200,000", second.Price)
	assert.Equal(t, "5 bds", second.Beds)
	assert.Equal(t, "4 ba", second.Baths)
	assert.Equal(t, "3,900 sqft", second.Sqft)
	assert.Equal(t, "https://listings.example/elm", second.URL)
}

func TestExtract_MaxRecords(t *testing.T) {
	res, err := New(1, zaptest.NewLogger(t)).Extract(searchPage, "https://listings.example/")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "$450,000", res.Records[0].Price)
}

func TestExtract_LaterSelector(t *testing.T) {
	doc := `<div class="result-listing-tile"><a href="a">4 Oak Rd $300,000 2 bds 1 ba</a></div>`
	res, err := New(0, zaptest.NewLogger(t)).Extract(doc, "https://x.example/list/")
	require.NoError(t, err)
	assert.Equal(t, `//*[contains(@class, "listing")]`, res.Selector)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "4 Oak Rd", res.Records[0].Title)
	assert.Equal(t, "https://x.example/list/a", res.Records[0].URL)
}

func TestExtract_KeywordFallback(t *testing.T) {
	doc := `<html><body><div id="wrap">
		<div><div>7 Pine Way $210,000 2 bds 1 ba</div></div>
		<div>Footer links</div>
	</div></body></html>`
	res, err := New(0, zaptest.NewLogger(t)).Extract(doc, "https://x.example/")
	require.NoError(t, err)
	assert.Equal(t, "text", res.Selector)
	assert.Equal(t, 1, res.Cards, "only the innermost matching block counts")
	require.Len(t, res.Records, 1)
	assert.Equal(t, "7 Pine Way", res.Records[0].Title)
	assert.Empty(t, res.Records[0].URL)
}

func TestExtract_NoCards(t *testing.T) {
	res, err := New(0, zaptest.NewLogger(t)).Extract(`<html><body><p>Access denied</p></body></html>`, "https://x.example/")
	require.NoError(t, err)
	assert.Zero(t, res.Cards)
	assert.Empty(t, res.Records)
}

func TestExtract_BadSelector(t *testing.T) {
	e := New(0, zaptest.NewLogger(t)).WithSelectors("//*[")
	_, err := e.Extract(searchPage, "")
	assert.Error(t, err)
}

func TestDefaultCardSelectorsCompile(t *testing.T) {
	root, err := htmlquery.Parse(strings.NewReader("<html></html>"))
	require.NoError(t, err)
	for _, sel := range DefaultCardSelectors {
		_, err := htmlquery.QueryAll(root, sel)
		assert.NoError(t, err, sel)
	}
}

func TestCleanTitle(t *testing.T) {
	cases := map[string]string{
		"1 A St LLC Brokerage":        "1 A St",
		"2 B Ave REALTY ONE $100,000": "2 B Ave",
		"  3 C Blvd  ":                "3 C Blvd",
		"$99,000 2 bds":               "",
	}
	for in, want := range cases {
		assert.Equal(t, want, cleanTitle(in), in)
	}
}
