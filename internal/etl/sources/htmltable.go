package sources

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"dynetl/internal/etl"
)

// ── HTML Table Source ───────────────────────────────────────
// Extracts every <table> of an HTML document. Headers come from <thead>, or
// from a first row made of <th> cells; rows whose width does not match the
// header fall back to col_<i> keys.

type htmlTableSource struct{}

func init() { etl.RegisterSource(&htmlTableSource{}) }

func (s *htmlTableSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:      "html_table",
		Label:     "HTML Tables",
		RecordTag: "html_table",
		ConfigFields: []etl.ConfigField{
			{Key: "filePath", Label: "File Path", Type: "file", Required: true, Help: "Absolute path to the HTML file"},
			{Key: "selector", Label: "Selector", Type: "string", Required: false, Default: "table", Help: "CSS selector for the tables to read"},
		},
	}
}

func (s *htmlTableSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	records, err := readHTMLFile(cfg)
	if err != nil {
		return nil, err
	}
	return inferSchema(records), nil
}

func (s *htmlTableSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	return streamRecords(ctx, func() ([]etl.Record, error) { return readHTMLFile(cfg) })
}

func readHTMLFile(cfg etl.SourceConfig) ([]etl.Record, error) {
	filePath := stringOpt(cfg, "filePath")
	if filePath == "" {
		return nil, fmt.Errorf("filePath is required")
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	selector := stringOpt(cfg, "selector")
	if selector == "" {
		selector = "table"
	}
	return parseHTMLTables(data, selector, filePath)
}

func parseHTMLTables(data []byte, selector, filePath string) ([]etl.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var records []etl.Record
	tableNo := 0
	doc.Find(selector).Each(func(_ int, table *goquery.Selection) {
		rows := ownRows(table)
		raw := tableHeaderLabels(table, rows)
		headers := make([]string, len(raw))
		for i, l := range raw {
			headers[i] = standardizeKey(l)
		}

		var extracted []map[string]any
		rows.Each(func(_ int, tr *goquery.Selection) {
			if tr.Parent().Is("thead") {
				return
			}
			if len(headers) > 0 && tr.ChildrenFiltered("th").Length() > 0 && tr.ChildrenFiltered("td").Length() == 0 {
				return
			}
			var cells []string
			tr.ChildrenFiltered("td, th").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, strings.TrimSpace(cell.Text()))
			})
			if len(cells) == 0 {
				return
			}
			row := make(map[string]any, len(cells))
			if len(headers) > 0 && len(cells) == len(headers) {
				for i, c := range cells {
					row[headers[i]] = inferScalar(c)
				}
			} else {
				for i, c := range cells {
					row["col_"+strconv.Itoa(i)] = inferScalar(c)
				}
			}
			extracted = append(extracted, row)
		})
		if len(extracted) == 0 {
			return
		}

		tableNo++
		prov := map[string]string{
			"file":     filePath,
			"table_id": "html_table_" + strconv.Itoa(tableNo),
			"headers":  strings.Join(raw, ","),
		}
		for i, row := range extracted {
			records = append(records, etl.Record{
				Data:       row,
				SourceType: "html_table",
				Provenance: withIndex(prov, "row_index", i),
			})
		}
	})
	return records, nil
}

// ownRows returns the rows belonging to table itself, not to nested tables.
func ownRows(table *goquery.Selection) *goquery.Selection {
	return table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.Closest("table").IsSelection(table)
	})
}

func tableHeaderLabels(table *goquery.Selection, rows *goquery.Selection) []string {
	var labels []string
	headerRow := table.ChildrenFiltered("thead").Find("tr").First()
	if headerRow.Length() > 0 {
		headerRow.ChildrenFiltered("th, td").Each(func(_ int, c *goquery.Selection) {
			labels = append(labels, strings.TrimSpace(c.Text()))
		})
		return labels
	}
	first := rows.First()
	if first.ChildrenFiltered("th").Length() > 0 && first.ChildrenFiltered("td").Length() == 0 {
		first.ChildrenFiltered("th").Each(func(_ int, c *goquery.Selection) {
			labels = append(labels, strings.TrimSpace(c.Text()))
		})
	}
	return labels
}
