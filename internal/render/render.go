package render

import (
	"html/template"

	"github.com/gin-gonic/gin"
)

// Renderer is the boundary to whatever produces HTML. The core hands
// over a template name and a bag of values and never looks back.
type Renderer interface {
	Render(c *gin.Context, status int, name string, data map[string]any)
}

// TemplateRenderer renders html/template files from a directory.
type TemplateRenderer struct {
	templates *template.Template
}

func NewTemplateRenderer(glob string) (*TemplateRenderer, error) {
	t, err := template.ParseGlob(glob)
	if err != nil {
		return nil, err
	}
	return &TemplateRenderer{templates: t}, nil
}

func (r *TemplateRenderer) Render(c *gin.Context, status int, name string, data map[string]any) {
	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := r.templates.ExecuteTemplate(c.Writer, name, data); err != nil {
		c.String(500, "template error")
	}
}
