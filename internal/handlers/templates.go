package handlers

import (
	"fmt"
	"html/template"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// TemplateCache holds parsed templates
type TemplateCache struct {
	cache map[string]*template.Template
	mu    sync.RWMutex
	funcs template.FuncMap
}

func NewTemplateCache() *TemplateCache {
	return &TemplateCache{
		cache: make(map[string]*template.Template),
		funcs: template.FuncMap{
			"money":   formatMoney,
			"fmtDate": formatDate,
		},
	}
}

// Load parses every HTML file in dir. Each file is a standalone page.
func (tc *TemplateCache) Load(dir string) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(dir, "*.html"))
	if err != nil {
		return err
	}
	for _, file := range files {
		name := filepath.Base(file)
		tmpl, err := template.New(name).Funcs(tc.funcs).ParseFiles(file)
		if err != nil {
			slog.Error("Failed to parse template", "file", file, "error", err)
			return err
		}
		tc.cache[name] = tmpl
		slog.Debug("Cached template", "name", name)
	}
	return nil
}

func (tc *TemplateCache) Get(name string) *template.Template {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.cache[name]
}

// formatMoney renders float prices and decimal totals as dollars.
func formatMoney(v any) string {
	switch n := v.(type) {
	case decimal.Decimal:
		return "$" + n.StringFixed(2)
	case float64:
		return "$" + decimal.NewFromFloat(n).StringFixed(2)
	case int:
		return "$" + decimal.NewFromInt(int64(n)).StringFixed(2)
	}
	return fmt.Sprint(v)
}

// formatDate renders a millisecond timestamp as a calendar date.
func formatDate(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("Jan 2, 2006")
}
