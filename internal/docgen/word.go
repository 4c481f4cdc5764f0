package docgen

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Block is one content element of a generated Word document.
type Block struct {
	Type  string   `json:"type"` // "heading", "paragraph", or "bullets"
	Text  string   `json:"text,omitempty"`
	Level int      `json:"level,omitempty"`
	Items []string `json:"items,omitempty"`
}

// WriteWord creates a .docx document in dir and returns its path. The file
// is a minimal OOXML container: content types, package relationships, and
// word/document.xml.
func WriteWord(dir, fileName, title string, blocks []Block) (string, error) {
	if title == "" && len(blocks) == 0 {
		return "", fmt.Errorf("document content is required")
	}

	docXML, err := buildDocumentXML(title, blocks)
	if err != nil {
		return "", fmt.Errorf("build document.xml: %w", err)
	}

	// the visitor's scratch subdir may not exist yet on a no-upload turn
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, UniqueName(fileName, ".docx"))
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	defer out.Close()

	w := zip.NewWriter(out)
	parts := []struct {
		name string
		data string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", packageRelsXML},
		{"word/document.xml", docXML},
	}
	for _, part := range parts {
		f, err := w.Create(part.name)
		if err != nil {
			w.Close()
			return "", fmt.Errorf("create zip entry %s: %w", part.name, err)
		}
		if _, err := f.Write([]byte(part.data)); err != nil {
			w.Close()
			return "", fmt.Errorf("write zip entry %s: %w", part.name, err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize docx: %w", err)
	}
	return path, nil
}

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`

const packageRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`

func buildDocumentXML(title string, blocks []Block) (string, error) {
	var body strings.Builder
	if title != "" {
		writeParagraph(&body, title, "Title", false)
	}
	for _, block := range blocks {
		switch block.Type {
		case "heading":
			level := block.Level
			if level < 1 {
				level = 1
			}
			if level > 3 {
				level = 3
			}
			writeParagraph(&body, block.Text, fmt.Sprintf("Heading%d", level), false)
		case "bullets":
			for _, item := range block.Items {
				writeParagraph(&body, item, "", true)
			}
		case "paragraph", "":
			writeParagraph(&body, block.Text, "", false)
		default:
			return "", fmt.Errorf("unknown block type %q", block.Type)
		}
	}

	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`, nil
}

func writeParagraph(b *strings.Builder, text, style string, bullet bool) {
	b.WriteString("<w:p>")
	if style != "" || bullet {
		b.WriteString("<w:pPr>")
		if style != "" {
			fmt.Fprintf(b, `<w:pStyle w:val="%s"/>`, style)
		}
		if bullet {
			b.WriteString(`<w:numPr><w:ilvl w:val="0"/><w:numId w:val="1"/></w:numPr>`)
		}
		b.WriteString("</w:pPr>")
	}
	b.WriteString(`<w:r><w:t xml:space="preserve">`)
	b.WriteString(escapeXML(text))
	b.WriteString("</w:t></w:r></w:p>")
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
