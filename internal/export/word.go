package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	"RelayChat/internal/session"
)

const docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const docxRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

// WordExporter writes the transcript as a minimal docx: a zip archive holding
// one document part with a heading and one paragraph per message.
type WordExporter struct{}

func (e *WordExporter) FileExtension() string { return ".docx" }

func (e *WordExporter) Export(messages []session.Message, title string, path string) error {
	var doc strings.Builder
	doc.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	doc.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)

	writeParagraph(&doc, title, true)
	for _, msg := range messages {
		writeParagraph(&doc, fmt.Sprintf("%s: %s", capitalize(string(msg.Role)), msg.Content), false)
	}
	doc.WriteString(`</w:body></w:document>`)

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	parts := []struct {
		name string
		body string
	}{
		{"[Content_Types].xml", docxContentTypes},
		{"_rels/.rels", docxRels},
		{"word/document.xml", doc.String()},
	}
	for _, part := range parts {
		w, err := zw.Create(part.name)
		if err != nil {
			zw.Close()
			return fmt.Errorf("failed to write %s: %w", part.name, err)
		}
		if _, err := w.Write([]byte(part.body)); err != nil {
			zw.Close()
			return fmt.Errorf("failed to write %s: %w", part.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize document: %w", err)
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func writeParagraph(doc *strings.Builder, text string, heading bool) {
	doc.WriteString("<w:p>")
	if heading {
		doc.WriteString(`<w:pPr><w:pStyle w:val="Heading1"/></w:pPr>`)
	}
	doc.WriteString(`<w:r><w:t xml:space="preserve">`)
	var escaped bytes.Buffer
	xml.EscapeText(&escaped, []byte(text))
	doc.Write(escaped.Bytes())
	doc.WriteString(`</w:t></w:r></w:p>`)
}
