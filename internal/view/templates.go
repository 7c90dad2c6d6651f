package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/odyssey-erp/userdesk/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// Notice is the transient notification banner.
type Notice struct {
	Kind      string
	Message   string
	ExpiresIn time.Duration
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Notice      *Notice
	CurrentPath string
	Data        any
}

// NewEngine parses the embedded templates.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		// initial is the avatar letter of a name.
		"initial": func(name string) string {
			r, _ := utf8.DecodeRuneInString(strings.TrimSpace(name))
			if r == utf8.RuneError {
				return "?"
			}
			return string(unicode.ToUpper(r))
		},
		"plural": func(n int, singular, plural string) string {
			if n == 1 {
				return singular
			}
			return plural
		},
		"millis": func(d time.Duration) int64 {
			return d.Milliseconds()
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates,
		"templates/layouts/*.html",
		"templates/partials/*.html",
		"templates/pages/*/*.html",
	)
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData and writes it with status. Nothing
// is written when execution fails, so the caller can still send an error page.
func (e *Engine) Render(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
