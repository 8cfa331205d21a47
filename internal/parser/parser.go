package parser

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"agriguardian/internal/config"
	"agriguardian/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/xuri/excelize/v2"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

const (
	defaultChunkSize    = 200 // characters
	defaultChunkOverlap = 100 // characters
	defaultPageNumber   = 1
)

// Parser extracts text from a document and splits it into overlapping chunks.
type Parser struct {
	splitter textsplitter.TextSplitter
}

func NewParser(cfg *config.Config) *Parser {
	size, overlap := defaultChunkSize, defaultChunkOverlap
	if cfg != nil && cfg.RAG.ChunkSize > 0 {
		size, overlap = cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap
	}
	return &Parser{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
	}
}

// IsSupported reports whether the extension of filePath has an extractor.
func IsSupported(filePath string) bool {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf", ".docx", ".pptx", ".xlsx", ".ods", ".txt":
		return true
	}
	return false
}

// ParseFile extracts every page of filePath and chunks it. Each chunk carries a copy of
// meta plus its page number.
func (p *Parser) ParseFile(filePath string, meta map[string]string) ([]models.Chunk, error) {
	pages, err := ExtractPages(filePath)
	if err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	for _, page := range pages {
		segments, err := p.splitter.SplitText(page.Text)
		if err != nil {
			return nil, fmt.Errorf("split page %d: %w", page.Number, err)
		}
		for i, segment := range segments {
			segment = strings.TrimSpace(segment)
			if segment == "" {
				continue
			}
			chunks = append(chunks, models.Chunk{
				Content:    segment,
				PageNumber: page.Number,
				ChunkID:    i + 1,
				Metadata:   models.ChunkMetadata(meta, strconv.Itoa(page.Number)),
			})
		}
	}
	return chunks, nil
}

// ExtractPages returns the non-empty text pages of a document. Extractor panics on
// malformed input are returned as errors.
func ExtractPages(filePath string) (pages []models.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("extract %s: %v", filepath.Base(filePath), r)
		}
	}()

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		return parsePDF(filePath)
	case ".docx":
		return parseDOCX(filePath)
	case ".pptx":
		return parsePPTX(filePath)
	case ".xlsx":
		return parseXLSX(filePath)
	case ".ods":
		return parseODS(filePath)
	case ".txt":
		return parseText(filePath)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parsePDF(filePath string) ([]models.Page, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Get file size for reader initialization
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	var pages []models.Page
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		pages = append(pages, models.Page{Number: i, Text: pageText})
	}
	return pages, nil
}

func parseDOCX(filePath string) ([]models.Page, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var lines []string
	for _, line := range strings.Split(r.Editable().GetContent(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, nil
	}
	return []models.Page{{Number: defaultPageNumber, Text: strings.Join(lines, "\n")}}, nil
}

// parsePPTX numbers pages by slide file name, not archive order.
func parsePPTX(filePath string) ([]models.Page, error) {
	archive, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	var pages []models.Page
	for _, file := range archive.File {
		number, ok := slideNumber(file.Name)
		if !ok {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", number, err)
		}
		text, err := slideText(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", number, err)
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, models.Page{Number: number, Text: text})
		}
	}
	slices.SortFunc(pages, func(a, b models.Page) int { return a.Number - b.Number })
	return pages, nil
}

func slideNumber(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "ppt/slides/slide")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(rest, ".xml"))
	return n, err == nil
}

// slideText collects the runs of text (<a:t>) in a slide, one paragraph (<a:p>) per line.
func slideText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		text   strings.Builder
		inRun  bool
		hasRun bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			inRun = t.Name.Local == "t"
		case xml.EndElement:
			inRun = false
			if t.Name.Local == "p" && hasRun {
				text.WriteString("\n")
				hasRun = false
			}
		case xml.CharData:
			if inRun {
				text.Write(t)
				hasRun = true
			}
		}
	}
	return text.String(), nil
}

func parseXLSX(filePath string) ([]models.Page, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	var pages []models.Page
	for i, sheet := range f.Sheets {
		rows := make([][]string, 0, len(sheet.Rows))
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			rows = append(rows, cells)
		}
		if page, ok := sheetPage(i+1, sheet.Name, rows); ok {
			pages = append(pages, page)
		}
	}
	return pages, nil
}

func parseODS(filePath string) ([]models.Page, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []models.Page
	for i, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", name, err)
		}
		if page, ok := sheetPage(i+1, name, rows); ok {
			pages = append(pages, page)
		}
	}
	return pages, nil
}

// sheetPage renders one sheet as tab separated rows; sheets without content are dropped.
func sheetPage(number int, name string, rows [][]string) (models.Page, bool) {
	var text strings.Builder
	fmt.Fprintf(&text, "Sheet: %s\n", name)
	empty := true
	for _, row := range rows {
		line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
		if line == "" {
			continue
		}
		empty = false
		text.WriteString(line)
		text.WriteString("\n")
	}
	return models.Page{Number: number, Text: text.String()}, !empty
}

func parseText(filePath string) ([]models.Page, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	return []models.Page{{Number: defaultPageNumber, Text: string(data)}}, nil
}
