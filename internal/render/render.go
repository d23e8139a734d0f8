// Package render executes the HTML mail templates. Templates are embedded
// into the binary and may be overridden file by file from a directory.
package render

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/valyala/bytebufferpool"
)

//go:embed templates/mail/*.html
var embedFS embed.FS

type Renderer struct {
	dir      string
	vars     map[string]interface{}
	embedded *template.Template
}

// Render executes the template name (with or without the .html suffix) with
// the global vars overlaid by vars.
func (r *Renderer) Render(name string, vars map[string]interface{}) (string, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	merged := make(map[string]interface{}, len(r.vars)+len(vars))
	for k, v := range r.vars {
		merged[k] = v
	}
	for k, v := range vars {
		merged[k] = v
	}
	if !strings.HasSuffix(name, ".html") {
		name += ".html"
	}

	if r.dir != "" {
		path := filepath.Join(r.dir, name)
		if err := renderFile(buf, path, name, merged); err == nil {
			return buf.String(), nil
		} else if !os.IsNotExist(err) {
			slog.Warn("Render template override failed, using embedded", "path", path, "error", err)
		}
		buf.Reset()
	}

	if err := r.embedded.ExecuteTemplate(buf, name, merged); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderFile(buf *bytebufferpool.ByteBuffer, path, name string, vars map[string]interface{}) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	t, err := template.New(name).Parse(string(contents))
	if err != nil {
		return err
	}
	return t.ExecuteTemplate(buf, name, vars)
}

// parseEmbedded names each template by its path below templates/, e.g.
// "mail/lockout-alert.html".
func parseEmbedded() (*template.Template, error) {
	t := template.New("")
	err := fs.WalkDir(embedFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), ".html") {
			return err
		}
		content, err := embedFS.ReadFile(path)
		if err != nil {
			return err
		}
		_, err = t.New(strings.TrimPrefix(path, "templates/")).Parse(string(content))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("parse embedded templates: %w", err)
	}
	return t, nil
}

// New returns a Renderer. dir is optional, when set it must be a directory.
func New(vars map[string]interface{}, dir string) (*Renderer, error) {
	if dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("template directory does not exist: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("template path is not a directory: %s", dir)
		}
	}
	embedded, err := parseEmbedded()
	if err != nil {
		return nil, err
	}
	return &Renderer{
		dir:      dir,
		vars:     vars,
		embedded: embedded,
	}, nil
}
