package i18n

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"astro-referrals/internal/domain"
)

//go:embed locales
var LocalesFS embed.FS

// DefaultLang is the catalog used when no locale is configured.
const DefaultLang = "en"

type copyEntry struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

type compiled struct {
	title *template.Template
	body  *template.Template
}

// Catalog holds the compiled notification copy of one language.
type Catalog struct {
	lang    string
	entries map[string]compiled
}

// NewCatalog reads locales/<lang>.yaml from fsys.
func NewCatalog(fsys fs.FS, lang string) (*Catalog, error) {
	filePath := path.Join("locales", lang+".yaml")
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read copy file %s: %w", filePath, err)
	}
	c, err := newCatalogFromBytes(data)
	if err != nil {
		return nil, err
	}
	c.lang = lang
	return c, nil
}

func newCatalogFromBytes(data []byte) (*Catalog, error) {
	var raw map[string]copyEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse copy file: %w", err)
	}
	c := &Catalog{entries: make(map[string]compiled, len(raw))}
	for key, e := range raw {
		title, err := template.New(key + ".title").Option("missingkey=error").Parse(e.Title)
		if err != nil {
			return nil, fmt.Errorf("copy %s title: %w", key, err)
		}
		body, err := template.New(key + ".body").Option("missingkey=error").Parse(e.Body)
		if err != nil {
			return nil, fmt.Errorf("copy %s body: %w", key, err)
		}
		c.entries[key] = compiled{title: title, body: body}
	}
	return c, nil
}

func (c *Catalog) Lang() string { return c.lang }

// Render executes the title and body of key with data. An unknown key
// yields domain.ErrUnknownTemplate.
func (c *Catalog) Render(key string, data any) (title, body string, err error) {
	e, ok := c.entries[key]
	if !ok {
		return "", "", domain.ErrUnknownTemplate
	}
	var tb, bb bytes.Buffer
	if err := e.title.Execute(&tb, data); err != nil {
		return "", "", err
	}
	if err := e.body.Execute(&bb, data); err != nil {
		return "", "", err
	}
	return tb.String(), bb.String(), nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded English catalog. It panics if the embedded
// file is broken, which only a bad build can cause.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := NewCatalog(LocalesFS, DefaultLang)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}
