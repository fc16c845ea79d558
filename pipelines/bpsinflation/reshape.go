package bpsinflation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/voxrow/voxrow/internal/codec"
	"github.com/voxrow/voxrow/pkg/pipeline"
)

const (
	headerRow = 2
	monthRows = 12
)

var months = map[string]time.Month{
	"Januari":   time.January,
	"Februari":  time.February,
	"Maret":     time.March,
	"April":     time.April,
	"Mei":       time.May,
	"Juni":      time.June,
	"Juli":      time.July,
	"Agustus":   time.August,
	"September": time.September,
	"Oktober":   time.October,
	"November":  time.November,
	"Desember":  time.December,
}

// Record is one month of the inflation series. Inflation is nil where the
// table has no figure yet.
type Record struct {
	Date      codec.Date `json:"date"`
	Inflation *float64   `json:"inflation"`
}

// Datamart is the published document.
type Datamart struct {
	Title string   `json:"title"`
	Data  []Record `json:"data"`
}

// Reshape turns the raw BPS static-table response into a Datamart. It takes
// exactly one input: the decoded JSON captured in the datalake.
func Reshape(in ...pipeline.Data) (pipeline.Data, error) {
	if len(in) != 1 {
		return nil, &pipeline.ConfigurationError{Msg: fmt.Sprintf("reshape takes one input, got %d", len(in))}
	}
	titleHTML, tableHTML, err := fragments(in[0])
	if err != nil {
		return nil, &pipeline.CodecError{Op: "bps response", Err: err}
	}

	title, err := leadingText(titleHTML)
	if err != nil {
		return nil, &pipeline.CodecError{Op: "bps title", Err: err}
	}
	records, err := parseTable(html.UnescapeString(tableHTML))
	if err != nil {
		return nil, &pipeline.CodecError{Op: "bps table", Err: err}
	}
	return Datamart{Title: title, Data: records}, nil
}

func fragments(raw pipeline.Data) (title, table string, err error) {
	root, ok := raw.(map[string]any)
	if !ok {
		return "", "", fmt.Errorf("expected object, got %T", raw)
	}
	data, ok := root["data"].(map[string]any)
	if !ok {
		return "", "", errors.New(`missing "data" object`)
	}
	title, ok = data["title"].(string)
	if !ok {
		return "", "", errors.New(`missing "data.title" string`)
	}
	table, ok = data["table"].(string)
	if !ok {
		return "", "", errors.New(`missing "data.table" string`)
	}
	return title, table, nil
}

// leadingText returns the text that precedes the first child element of the
// fragment's first element, trimmed. A fragment without elements yields its
// whole text.
func leadingText(fragment string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", err
	}
	body := doc.Find("body")
	first := body.Children().First()
	if first.Length() == 0 {
		return strings.TrimSpace(body.Text()), nil
	}

	var sb strings.Builder
	for n := first.Get(0).FirstChild; n != nil && n.Type != html.ElementNode; n = n.NextSibling {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// parseTable reads the first table of the fragment. Row headerRow holds the
// years, the rows after it hold one month each with the month name in the
// first column.
func parseTable(fragment string) ([]Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, err
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, errors.New("no table element")
	}
	grid := expandGrid(table)
	if len(grid) <= headerRow {
		return nil, fmt.Errorf("table has %d rows, header expected at row %d", len(grid), headerRow)
	}

	type column struct {
		index int
		year  int
	}
	var years []column
	for i, cell := range grid[headerRow] {
		if i == 0 {
			continue
		}
		year, err := strconv.Atoi(strings.TrimSpace(cell))
		if err != nil {
			continue
		}
		years = append(years, column{index: i, year: year})
	}
	if len(years) == 0 {
		return nil, errors.New("no year columns in header row")
	}

	body := grid[headerRow+1:]
	if len(body) > monthRows {
		body = body[:monthRows]
	}
	rowMonths := make([]time.Month, len(body))
	for r, row := range body {
		name := ""
		if len(row) > 0 {
			name = strings.TrimSpace(row[0])
		}
		m, ok := months[name]
		if !ok {
			return nil, fmt.Errorf("unknown month %q in row %d", name, headerRow+1+r)
		}
		rowMonths[r] = m
	}

	records := make([]Record, 0, len(years)*len(body))
	for _, col := range years {
		for r, row := range body {
			var cell string
			if col.index < len(row) {
				cell = row[col.index]
			}
			records = append(records, Record{
				Date:      lastDayOfMonth(col.year, rowMonths[r]),
				Inflation: parseNumber(cell),
			})
		}
	}
	return records, nil
}

// expandGrid lays the table's rows out as a rectangular text grid, copying
// cells that span several rows or columns into every slot they cover.
func expandGrid(table *goquery.Selection) [][]string {
	var grid [][]string
	pending := map[[2]int]string{}

	table.Find("tr").Each(func(r int, tr *goquery.Selection) {
		var row []string
		col := 0
		fill := func() {
			for {
				v, ok := pending[[2]int{r, col}]
				if !ok {
					return
				}
				row = append(row, v)
				delete(pending, [2]int{r, col})
				col++
			}
		}
		tr.ChildrenFiltered("td, th").Each(func(_ int, cell *goquery.Selection) {
			fill()
			text := strings.TrimSpace(cell.Text())
			rowspan := spanAttr(cell, "rowspan")
			colspan := spanAttr(cell, "colspan")
			for c := 0; c < colspan; c++ {
				row = append(row, text)
				for dr := 1; dr < rowspan; dr++ {
					pending[[2]int{r + dr, col}] = text
				}
				col++
			}
		})
		fill()
		grid = append(grid, row)
	})
	return grid
}

func spanAttr(cell *goquery.Selection, name string) int {
	v, ok := cell.Attr(name)
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// parseNumber reads a figure written with a decimal comma and thousands dots.
// Anything that is not a number becomes nil.
func parseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "−", "-")
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func lastDayOfMonth(year int, month time.Month) codec.Date {
	return codec.Date{Time: time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)}
}
