package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/nguyenthenguyen/docx"

	"github.com/recallhq/recall/pkg/models"
)

// parseDOCX extracts paragraph and table text plus the core document
// properties from a Word document.
func (p *Parser) parseDOCX(ctx context.Context, name string, data []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ParseError{Path: name, Format: "docx", Err: err}
	}
	defer doc.Close()

	paragraphs, tables, err := extractDocxText(doc.Editable().GetContent())
	if err != nil {
		return nil, &ParseError{Path: name, Format: "docx", Err: err}
	}

	var sections []string
	if len(paragraphs) > 0 {
		sections = append(sections, strings.Join(paragraphs, "\n\n"))
	}
	for i, rows := range tables {
		var lines []string
		lines = append(lines, fmt.Sprintf("Table %d:", i+1))
		for _, row := range rows {
			lines = append(lines, strings.Join(row, " | "))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	meta := map[string]interface{}{
		"mime_type": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}
	title := p.readDocxCoreProperties(data, meta)

	return &Result{
		Content:      strings.Join(sections, "\n\n"),
		DocumentType: models.TypeDOCX,
		Title:        title,
		FileMetadata: meta,
	}, nil
}

// extractDocxText walks the WordprocessingML body and collects paragraph
// text and table cells. Paragraphs inside tables belong to their cell, not
// to the paragraph list.
func extractDocxText(xmlContent string) (paragraphs []string, tables [][][]string, err error) {
	decoder := xml.NewDecoder(strings.NewReader(xmlContent))

	var (
		tableDepth int
		inTextRun  bool
		para       strings.Builder
		cell       strings.Builder
		row        []string
		table      [][]string
	)

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("malformed document xml: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
				if tableDepth == 1 {
					table = nil
				}
			case "tr":
				if tableDepth > 0 {
					row = nil
				}
			case "tc":
				if tableDepth > 0 {
					cell.Reset()
				}
			case "p":
				if tableDepth == 0 {
					para.Reset()
				}
			case "t":
				inTextRun = true
			case "tab":
				writeDocxText(&para, &cell, tableDepth, "\t")
			case "br", "cr":
				writeDocxText(&para, &cell, tableDepth, "\n")
			}
		case xml.CharData:
			// Only <w:t> runs carry document text. Everything else is
			// markup whitespace or field plumbing.
			if inTextRun {
				writeDocxText(&para, &cell, tableDepth, string(t))
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inTextRun = false
			case "p":
				if tableDepth == 0 {
					if text := strings.TrimSpace(para.String()); text != "" {
						paragraphs = append(paragraphs, text)
					}
					para.Reset()
				} else {
					// Separate stacked paragraphs within one cell.
					cell.WriteString(" ")
				}
			case "tc":
				if tableDepth > 0 {
					row = append(row, strings.TrimSpace(cell.String()))
					cell.Reset()
				}
			case "tr":
				if tableDepth > 0 && len(row) > 0 {
					table = append(table, row)
					row = nil
				}
			case "tbl":
				tableDepth--
				if tableDepth == 0 && len(table) > 0 {
					tables = append(tables, table)
					table = nil
				}
			}
		}
	}
	return paragraphs, tables, nil
}

func writeDocxText(para, cell *strings.Builder, tableDepth int, text string) {
	if tableDepth > 0 {
		cell.WriteString(text)
	} else {
		para.WriteString(text)
	}
}

// docxCoreProperties mirrors docProps/core.xml. Field matching is by local
// name, so the dc:/cp:/dcterms: prefixes do not matter.
type docxCoreProperties struct {
	Title          string `xml:"title"`
	Subject        string `xml:"subject"`
	Creator        string `xml:"creator"`
	Keywords       string `xml:"keywords"`
	Description    string `xml:"description"`
	LastModifiedBy string `xml:"lastModifiedBy"`
	Created        string `xml:"created"`
	Modified       string `xml:"modified"`
}

// readDocxCoreProperties copies docProps/core.xml into meta and returns the
// document title. Archives without core properties are fine.
func (p *Parser) readDocxCoreProperties(data []byte, meta map[string]interface{}) string {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}

	var props docxCoreProperties
	found := false
	for _, file := range reader.File {
		if file.Name != "docProps/core.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			p.logger.Warn("failed to open docx core properties", "error", err)
			return ""
		}
		err = xml.NewDecoder(rc).Decode(&props)
		rc.Close()
		if err != nil {
			p.logger.Warn("failed to decode docx core properties", "error", err)
			return ""
		}
		found = true
		break
	}
	if !found {
		return ""
	}

	for metaKey, value := range map[string]string{
		"title":            props.Title,
		"subject":          props.Subject,
		"author":           props.Creator,
		"keywords":         props.Keywords,
		"description":      props.Description,
		"last_modified_by": props.LastModifiedBy,
	} {
		if v := strings.TrimSpace(value); v != "" {
			meta[metaKey] = v
		}
	}
	for metaKey, value := range map[string]string{
		"created_at":  props.Created,
		"modified_at": props.Modified,
	} {
		if v := strings.TrimSpace(value); v != "" {
			if ts, err := dateparse.ParseAny(v); err == nil {
				meta[metaKey] = ts.UTC().Format(time.RFC3339)
			}
		}
	}
	return strings.TrimSpace(props.Title)
}

// looksLikeDocx checks a zip archive for the WordprocessingML document part.
func looksLikeDocx(data []byte) bool {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, file := range reader.File {
		if file.Name == "word/document.xml" {
			return true
		}
	}
	return false
}
