package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/rs/zerolog/hlog"
)

//go:embed templates/*.html
var templateFiles embed.FS

var pages = map[string][]string{
	"login":               {"login.html"},
	"register":            {"register.html"},
	"error":               {"error.html"},
	"publisher_dashboard": {"publisher_nav.html", "publisher_dashboard.html"},
	"edit_game":           {"publisher_nav.html", "edit_game.html"},
	"confirm_delete":      {"publisher_nav.html", "confirm_delete.html"},
	"user_dashboard":      {"user_nav.html", "user_dashboard.html"},
	"cart":                {"user_nav.html", "cart.html"},
	"confirm_checkout":    {"user_nav.html", "confirm_checkout.html"},
	"purchases":           {"user_nav.html", "purchases.html"},
	"profile_user":        {"user_nav.html", "profile.html"},
	"profile_publisher":   {"publisher_nav.html", "profile.html"},
}

var templateFuncs = template.FuncMap{
	"price": func(p float64) string { return fmt.Sprintf("%.2f", p) },
}

// Renderer turns page data into HTML responses.
type Renderer struct {
	templates map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template, len(pages))}
	for name, files := range pages {
		patterns := append([]string{"templates/layout.html"}, prefixed(files)...)
		tmpl, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFiles, patterns...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

func prefixed(files []string) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = "templates/" + f
	}
	return out
}

// Render executes the page into a buffer first so a template failure never
// leaves a half-written page behind.
func (rd *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	tmpl, ok := rd.templates[name]
	if !ok {
		rd.ServerError(w, r, fmt.Errorf("unknown template %q", name))
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		rd.ServerError(w, r, fmt.Errorf("failed to render %s: %w", name, err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("template", name).Msg("failed to write response")
	}
}

// ServerError logs err and answers with a generic 500 page.
func (rd *Renderer) ServerError(w http.ResponseWriter, r *http.Request, err error) {
	hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	rd.message(w, http.StatusInternalServerError, "Something went wrong")
}

func (rd *Renderer) Error(w http.ResponseWriter, status int) {
	rd.message(w, status, http.StatusText(status))
}

func (rd *Renderer) message(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	tmpl, ok := rd.templates["error"]
	if !ok || tmpl.ExecuteTemplate(w, "layout", struct{ Message string }{msg}) != nil {
		fmt.Fprintln(w, msg)
	}
}
