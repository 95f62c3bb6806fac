package render

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Engine renders the embedded message templates. Names ending in .html.tmpl
// are executed with contextual HTML escaping, everything else as plain text.
type Engine struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

// New initialises an Engine by parsing all embedded templates.
func New() (*Engine, error) {
	html, err := htmltemplate.New("html").ParseFS(templatesFS, "templates/*.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	text, err := texttemplate.New("text").ParseFS(templatesFS, "templates/*.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	return &Engine{html: html, text: text}, nil
}

// Render executes the named template with the provided data and returns the rendered string.
func (e *Engine) Render(name string, data any) (string, error) {
	if e == nil || e.html == nil || e.text == nil {
		return "", fmt.Errorf("nil engine")
	}

	buf := bytes.NewBuffer(nil)
	var err error
	if strings.HasSuffix(name, ".html.tmpl") {
		err = e.html.ExecuteTemplate(buf, name, data)
	} else {
		err = e.text.ExecuteTemplate(buf, name, data)
	}
	if err != nil {
		return "", err
	}

	return buf.String(), nil
}
