// Package view renders message bodies from templates stored in an fs.FS.
//
// Templates live under email/text/<name>.tmpl and email/html/<name>.tmpl,
// layouts under layouts/email/text/<name>.tmpl and
// layouts/email/html/<name>.tmpl. A theme overrides any of these by
// providing the same path below themes/<theme>/.
package view

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	ht "html/template"
	"io/fs"
	"path"
	"sort"
	"sync"
	tt "text/template"
)

// DefaultLayout is rendered as a pass-through when the FS does not provide it.
const DefaultLayout = "default"

// Request selects what to render.
type Request struct {
	Template string
	Layout   string
	Theme    string
	Text     bool
	HTML     bool
	Vars     map[string]any
	Helpers  []string
}

// Rendered holds the rendered bodies. A body is empty when it was not
// requested.
type Rendered struct {
	Text string
	HTML string
}

// Renderer renders templates from an fs.FS. Helpers are named function
// sets registered once and selected per request.
type Renderer struct {
	fsys fs.FS

	mu      sync.RWMutex
	helpers map[string]map[string]any
}

// New creates a Renderer reading templates from fsys.
func New(fsys fs.FS) *Renderer {
	return &Renderer{
		fsys:    fsys,
		helpers: make(map[string]map[string]any),
	}
}

// RegisterHelper registers a named set of template functions.
func (r *Renderer) RegisterHelper(name string, funcs map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.helpers[name] = funcs
}

// Helpers returns the registered helper names in sorted order.
func (r *Renderer) Helpers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.helpers))
	for name := range r.helpers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render renders the requested text and HTML bodies, each wrapped in the
// requested layout.
func (r *Renderer) Render(ctx context.Context, req Request) (Rendered, error) {
	if err := ctx.Err(); err != nil {
		return Rendered{}, err
	}
	if req.Template == "" {
		return Rendered{}, errors.New("no template specified")
	}

	funcs, err := r.funcs(req.Helpers)
	if err != nil {
		return Rendered{}, err
	}

	var out Rendered
	if req.Text {
		out.Text, err = r.render(req, "text", funcs)
		if err != nil {
			return Rendered{}, err
		}
	}
	if req.HTML {
		out.HTML, err = r.render(req, "html", funcs)
		if err != nil {
			return Rendered{}, err
		}
	}
	return out, nil
}

// funcs merges the selected helper sets. Later helpers win on name clashes.
func (r *Renderer) funcs(names []string) (map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	merged := make(map[string]any)
	for _, name := range names {
		set, ok := r.helpers[name]
		if !ok {
			return nil, fmt.Errorf("helper %q not found", name)
		}
		for k, fn := range set {
			merged[k] = fn
		}
	}
	return merged, nil
}

// render executes the template of one kind ("text" or "html") and then
// the layout around it.
func (r *Renderer) render(req Request, kind string, funcs map[string]any) (string, error) {
	src, err := r.read(req.Theme, path.Join("email", kind, req.Template+".tmpl"))
	if err != nil {
		return "", fmt.Errorf("failed to load %s template %q: %w", kind, req.Template, err)
	}
	content, err := execute(kind, req.Template, src, funcs, req.Vars)
	if err != nil {
		return "", err
	}

	if req.Layout == "" {
		return content, nil
	}
	layout, err := r.read(req.Theme, path.Join("layouts", "email", kind, req.Layout+".tmpl"))
	if errors.Is(err, fs.ErrNotExist) && req.Layout == DefaultLayout {
		return content, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load %s layout %q: %w", kind, req.Layout, err)
	}

	data := make(map[string]any, len(req.Vars)+1)
	for k, v := range req.Vars {
		data[k] = v
	}
	if kind == "html" {
		// already escaped by the inner template
		data["Content"] = ht.HTML(content)
	} else {
		data["Content"] = content
	}
	return execute(kind, req.Layout, layout, funcs, data)
}

// read returns the themed file when it exists, else the base one.
func (r *Renderer) read(theme, name string) (string, error) {
	if theme != "" {
		data, err := fs.ReadFile(r.fsys, path.Join("themes", theme, name))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	data, err := fs.ReadFile(r.fsys, name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func execute(kind, name, src string, funcs map[string]any, data any) (string, error) {
	var buf bytes.Buffer
	if kind == "html" {
		tmpl, err := ht.New(name).Funcs(ht.FuncMap(funcs)).Parse(src)
		if err != nil {
			return "", fmt.Errorf("failed to parse html template %q: %w", name, err)
		}
		if err := tmpl.Execute(&buf, data); err != nil {
			return "", fmt.Errorf("failed to execute html template %q: %w", name, err)
		}
		return buf.String(), nil
	}

	tmpl, err := tt.New(name).Funcs(tt.FuncMap(funcs)).Parse(src)
	if err != nil {
		return "", fmt.Errorf("failed to parse text template %q: %w", name, err)
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute text template %q: %w", name, err)
	}
	return buf.String(), nil
}
