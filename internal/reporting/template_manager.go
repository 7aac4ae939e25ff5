package reporting

import (
	"fmt"
	"sync"
	"text/template"
)

// TemplateManager holds the parsed report templates by name. Formatters
// resolve templates at render time so callers can override the built-ins.
type TemplateManager struct {
	templates map[string]*template.Template
	mu        sync.RWMutex
}

func NewTemplateManager() *TemplateManager {
	return &TemplateManager{
		templates: make(map[string]*template.Template),
	}
}

func (tm *TemplateManager) Register(name, tpl string, funcs template.FuncMap) error {
	t := template.New(name)
	if funcs != nil {
		t = t.Funcs(funcs)
	}
	parsed, err := t.Parse(tpl)
	if err != nil {
		return fmt.Errorf("parse template %q: %w", name, err)
	}

	tm.mu.Lock()
	tm.templates[name] = parsed
	tm.mu.Unlock()
	return nil
}

func (tm *TemplateManager) Get(name string) (*template.Template, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	t, ok := tm.templates[name]
	return t, ok
}

func (tm *TemplateManager) MustGet(name string) *template.Template {
	if t, ok := tm.Get(name); ok {
		return t
	}
	panic("template not found: " + name)
}
