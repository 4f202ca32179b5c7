package analysis

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
)

//go:embed prompts/*.tmpl
var embeddedPrompts embed.FS

// promptSet loads templates from an override directory when present and
// from the embedded defaults otherwise. Parsed templates are cached.
type promptSet struct {
	dir string

	mu        sync.RWMutex
	templates map[string]*template.Template
}

func newPromptSet(dir string) *promptSet {
	return &promptSet{
		dir:       strings.TrimSpace(dir),
		templates: make(map[string]*template.Template),
	}
}

func (p *promptSet) render(fileName string, data any) (string, error) {
	tmpl, err := p.load(fileName)
	if err != nil {
		return "", err
	}

	buffer := bytes.NewBuffer(nil)
	if err := tmpl.Execute(buffer, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", fileName, err)
	}
	return buffer.String(), nil
}

func (p *promptSet) load(fileName string) (*template.Template, error) {
	p.mu.RLock()
	if tmpl, ok := p.templates[fileName]; ok {
		p.mu.RUnlock()
		return tmpl, nil
	}
	p.mu.RUnlock()

	content, err := p.read(fileName)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New(fileName).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", fileName, err)
	}

	p.mu.Lock()
	p.templates[fileName] = tmpl
	p.mu.Unlock()
	return tmpl, nil
}

func (p *promptSet) read(fileName string) ([]byte, error) {
	if p.dir != "" {
		absolute := filepath.Join(p.dir, fileName)
		content, err := os.ReadFile(absolute)
		if err == nil {
			return content, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read prompt template %s: %w", absolute, err)
		}
	}

	content, err := embeddedPrompts.ReadFile("prompts/" + fileName)
	if err != nil {
		return nil, fmt.Errorf("read embedded prompt %s: %w", fileName, err)
	}
	return content, nil
}
