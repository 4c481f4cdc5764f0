package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/AlexandrLebegue/thesis-llm/internal/docgen"
	"github.com/AlexandrLebegue/thesis-llm/internal/models"
	"github.com/AlexandrLebegue/thesis-llm/internal/pdfquery"
)

const (
	docReaderChunkSizeDefault = 2000
	docReaderChunkSizeMin     = 500
	docReaderChunkSizeMax     = 4000
)

// ArtifactRecorder is notified after a generator tool writes a file, so the
// caller can keep bookkeeping rows. Listing never depends on it.
type ArtifactRecorder func(ctx context.Context, visitorID int64, path, mimeType string) error

// Toolbox builds the fixed tool set exposed to the agent. The set never
// varies per request; per-visitor scoping travels in the context.
type Toolbox struct {
	pdfQuery *pdfquery.Tool
	preamble string
	record   ArtifactRecorder
}

// NewToolbox wires the PDF query backend and the artifact recorder.
func NewToolbox(pdfQuery *pdfquery.Tool, analystPreamble string, record ArtifactRecorder) *Toolbox {
	return &Toolbox{pdfQuery: pdfQuery, preamble: analystPreamble, record: record}
}

// Tools returns the agent's tool chain: pdf_query, excel_generator,
// word_generator, document_reader.
func (tb *Toolbox) Tools() []tool.BaseTool {
	var tools []tool.BaseTool
	tools = append(tools, tb.initPDFQuery())
	tools = append(tools, tb.initExcelGenerator())
	tools = append(tools, tb.initWordGenerator())
	if dr := tb.initDocumentReader(); dr != nil {
		tools = append(tools, dr)
	}
	return tools
}

// resolveUpload maps a tool-supplied file name onto one of the uploads
// scoped into the context. Accepts the stored name, the name without its
// "uploaded_" prefix, or a bare path whose base matches.
func resolveUpload(ctx context.Context, name string) (*models.Upload, error) {
	uploads := UploadsFromContext(ctx)
	if len(uploads) == 0 {
		return nil, errors.New("no uploaded files available in this conversation")
	}
	want := filepath.Base(strings.TrimSpace(name))
	if want == "" || want == "." {
		return nil, errors.New("file_name is required")
	}
	for _, u := range uploads {
		if u.FileName == want || strings.TrimPrefix(u.FileName, "uploaded_") == want {
			return u, nil
		}
	}
	available := make([]string, 0, len(uploads))
	for _, u := range uploads {
		available = append(available, u.FileName)
	}
	return nil, fmt.Errorf("file %q not found; available files: %s", want, strings.Join(available, ", "))
}

// pdf_query

type pdfQueryParams struct {
	FileName string `json:"file_name"`
	Question string `json:"question"`
}

func (tb *Toolbox) initPDFQuery() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: "pdf_query",
		Desc: "Answer a natural-language question about one uploaded PDF document. " +
			"The whole document text is sent to the analysis model; ask precise questions.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"file_name": {
				Desc:     "Name of the uploaded PDF to query, as listed in the instructions.",
				Type:     schema.String,
				Required: true,
			},
			"question": {
				Desc:     "The question to answer from the document.",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, tb.runPDFQuery)
}

func (tb *Toolbox) runPDFQuery(ctx context.Context, params *pdfQueryParams) (string, error) {
	if params == nil || strings.TrimSpace(params.Question) == "" {
		return "", errors.New("question is required")
	}
	upload, err := resolveUpload(ctx, params.FileName)
	if err != nil {
		return "", err
	}
	// Query never fails with a Go error; failure modes come back as
	// user-facing strings that the agent can read and act on.
	return tb.pdfQuery.Query(ctx, upload.StoredPath, params.Question, tb.preamble), nil
}

// excel_generator

type excelGeneratorParams struct {
	FileName string         `json:"file_name"`
	Sheets   []docgen.Sheet `json:"sheets"`
}

func (tb *Toolbox) initExcelGenerator() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: "excel_generator",
		Desc: "Create an Excel (.xlsx) workbook from tabular data. Each sheet has a name, " +
			"optional headers, and rows of string cells. Returns the generated file name.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"file_name": {
				Desc:     "Base name for the workbook, without extension.",
				Type:     schema.String,
				Required: true,
			},
			"sheets": {
				Desc:     "Worksheets to create.",
				Type:     schema.Array,
				Required: true,
				ElemInfo: &schema.ParameterInfo{
					Type: schema.Object,
					SubParams: map[string]*schema.ParameterInfo{
						"name": {
							Desc: "Sheet name.",
							Type: schema.String,
						},
						"headers": {
							Desc:     "Optional header row.",
							Type:     schema.Array,
							ElemInfo: &schema.ParameterInfo{Type: schema.String},
						},
						"rows": {
							Desc:     "Data rows, each a list of cell strings.",
							Type:     schema.Array,
							Required: true,
							ElemInfo: &schema.ParameterInfo{
								Type:     schema.Array,
								ElemInfo: &schema.ParameterInfo{Type: schema.String},
							},
						},
					},
				},
			},
		}),
	}
	return utils.NewTool(info, tb.runExcelGenerator)
}

func (tb *Toolbox) runExcelGenerator(ctx context.Context, params *excelGeneratorParams) (string, error) {
	if params == nil || len(params.Sheets) == 0 {
		return "", errors.New("at least one sheet is required")
	}
	dir := ScratchDirFromContext(ctx)
	if dir == "" {
		return "", errors.New("no output directory available")
	}
	path, err := docgen.WriteExcel(dir, params.FileName, params.Sheets)
	if err != nil {
		return "", fmt.Errorf("generate workbook: %w", err)
	}
	tb.recordArtifact(ctx, path, models.MimeXLSX)
	return fmt.Sprintf("Excel file created: %s", filepath.Base(path)), nil
}

// word_generator

type wordGeneratorParams struct {
	FileName string         `json:"file_name"`
	Title    string         `json:"title,omitempty"`
	Blocks   []docgen.Block `json:"blocks"`
}

func (tb *Toolbox) initWordGenerator() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: "word_generator",
		Desc: "Create a Word (.docx) document from structured content blocks " +
			"(headings, paragraphs, bullet lists). Returns the generated file name.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"file_name": {
				Desc:     "Base name for the document, without extension.",
				Type:     schema.String,
				Required: true,
			},
			"title": {
				Desc: "Optional document title rendered above the content.",
				Type: schema.String,
			},
			"blocks": {
				Desc:     "Ordered content blocks.",
				Type:     schema.Array,
				Required: true,
				ElemInfo: &schema.ParameterInfo{
					Type: schema.Object,
					SubParams: map[string]*schema.ParameterInfo{
						"type": {
							Desc:     "One of: heading, paragraph, bullets.",
							Type:     schema.String,
							Required: true,
						},
						"text": {
							Desc: "Text for heading and paragraph blocks.",
							Type: schema.String,
						},
						"level": {
							Desc: "Heading level 1-3, default 1.",
							Type: schema.Integer,
						},
						"items": {
							Desc:     "List items for bullets blocks.",
							Type:     schema.Array,
							ElemInfo: &schema.ParameterInfo{Type: schema.String},
						},
					},
				},
			},
		}),
	}
	return utils.NewTool(info, tb.runWordGenerator)
}

func (tb *Toolbox) runWordGenerator(ctx context.Context, params *wordGeneratorParams) (string, error) {
	if params == nil || (params.Title == "" && len(params.Blocks) == 0) {
		return "", errors.New("document content is required")
	}
	dir := ScratchDirFromContext(ctx)
	if dir == "" {
		return "", errors.New("no output directory available")
	}
	path, err := docgen.WriteWord(dir, params.FileName, params.Title, params.Blocks)
	if err != nil {
		return "", fmt.Errorf("generate document: %w", err)
	}
	tb.recordArtifact(ctx, path, models.MimeDOCX)
	return fmt.Sprintf("Word file created: %s", filepath.Base(path)), nil
}

func (tb *Toolbox) recordArtifact(ctx context.Context, path, mimeType string) {
	if tb.record == nil {
		return
	}
	visitorID, ok := VisitorFromContext(ctx)
	if !ok {
		return
	}
	if err := tb.record(ctx, visitorID, path, mimeType); err != nil {
		log.Printf("record artifact %s: %v", filepath.Base(path), err)
	}
}

// document_reader

type documentReader struct {
	loader *file.FileLoader
}

type documentReaderParams struct {
	FileName   string `json:"file_name"`
	ChunkIndex int    `json:"chunk_index,omitempty"`
	ChunkSize  int    `json:"chunk_size,omitempty"`
}

func (tb *Toolbox) initDocumentReader() tool.InvokableTool {
	parserExt, err := parser.NewExtParser(context.Background(), &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		log.Printf("document reader disabled: %v", err)
		return nil
	}
	loader, err := file.NewFileLoader(context.Background(), &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      parserExt,
	})
	if err != nil {
		log.Printf("document reader disabled: %v", err)
		return nil
	}
	reader := &documentReader{loader: loader}
	info := &schema.ToolInfo{
		Name: "document_reader",
		Desc: "Read an uploaded text or markdown document in chunks. Use chunk_index and " +
			"chunk_size to page through long files. For PDFs prefer pdf_query.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"file_name": {
				Desc:     "Name of the uploaded file to read, as listed in the instructions.",
				Type:     schema.String,
				Required: true,
			},
			"chunk_index": {
				Desc: "Zero-based chunk index to read, default 0.",
				Type: schema.Integer,
			},
			"chunk_size": {
				Desc: "Characters per chunk (max 4000, default 2000).",
				Type: schema.Integer,
			},
		}),
	}
	return utils.NewTool(info, reader.run)
}

func (r *documentReader) run(ctx context.Context, params *documentReaderParams) (string, error) {
	if params == nil {
		return "", errors.New("file_name is required")
	}
	upload, err := resolveUpload(ctx, params.FileName)
	if err != nil {
		return "", err
	}

	docs, err := r.loader.Load(ctx, document.Source{URI: upload.StoredPath})
	if err != nil {
		return "", fmt.Errorf("load file: %w", err)
	}
	var builder strings.Builder
	for _, doc := range docs {
		content := strings.TrimSpace(doc.Content)
		if content == "" {
			continue
		}
		builder.WriteString(content)
		builder.WriteString("\n\n")
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", errors.New("file has no readable text content")
	}

	chunkSize := params.ChunkSize
	if chunkSize <= 0 || chunkSize > docReaderChunkSizeMax {
		chunkSize = docReaderChunkSizeDefault
	}
	if chunkSize < docReaderChunkSizeMin {
		chunkSize = docReaderChunkSizeMin
	}
	chunkIndex := params.ChunkIndex
	if chunkIndex < 0 {
		chunkIndex = 0
	}
	runes := []rune(text)
	totalChunks := (len(runes) + chunkSize - 1) / chunkSize
	if chunkIndex >= totalChunks {
		chunkIndex = totalChunks - 1
	}
	start := chunkIndex * chunkSize
	end := start + chunkSize
	if end > len(runes) {
		end = len(runes)
	}
	segment := string(runes[start:end])
	return fmt.Sprintf("File: %s\nChunk %d/%d\n\n%s", upload.FileName, chunkIndex+1, totalChunks, segment), nil
}
