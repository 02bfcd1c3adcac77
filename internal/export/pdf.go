package export

import (
	"bytes"
	"fmt"
	"html/template"
	"os/exec"
	"time"

	"RelayChat/internal/session"
)

// transcriptTemplate is the HTML handed to wkhtmltopdf.
var transcriptTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
h1 { border-bottom: 1px solid #ccc; padding-bottom: 0.3em; }
.message { margin: 1em 0; }
.role { font-weight: bold; text-transform: capitalize; }
.meta { color: #888; font-size: 0.8em; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">Exported {{.Now}}</p>
{{range .Messages}}<div class="message"><span class="role">{{.Role}}:</span> {{.Content}}</div>
{{end}}</body>
</html>
`))

// PDFExporter renders the transcript to HTML and pipes it through the
// wkhtmltopdf binary, which must be installed on the host.
type PDFExporter struct{}

func (e *PDFExporter) FileExtension() string { return ".pdf" }

func (e *PDFExporter) Export(messages []session.Message, title string, path string) error {
	bin, err := exec.LookPath("wkhtmltopdf")
	if err != nil {
		return fmt.Errorf("%w: wkhtmltopdf", ErrToolNotFound)
	}

	var html bytes.Buffer
	data := struct {
		Title    string
		Now      string
		Messages []session.Message
	}{
		Title:    title,
		Now:      time.Now().Format("2006-01-02 15:04:05"),
		Messages: messages,
	}
	if err := transcriptTemplate.Execute(&html, data); err != nil {
		return fmt.Errorf("failed to render transcript: %w", err)
	}

	cmd := exec.Command(bin, "--encoding", "UTF-8", "--quiet", "-", path)
	cmd.Stdin = &html
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("wkhtmltopdf failed: %w: %s", err, stderr.String())
	}
	return nil
}
