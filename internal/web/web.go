// Package web holds the server-rendered pages.
package web

import (
	"embed"
	"fmt"
	"html/template"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.html
var files embed.FS

// Funcs are available to every page.
var Funcs = template.FuncMap{
	"money": Money,
	"title": Title,
}

// Templates parses every page. Each page is addressed by its file name, e.g. "login.html".
func Templates() (*template.Template, error) {
	return template.New("").Funcs(Funcs).ParseFS(files, "templates/*.html")
}

// Money formats an amount with exactly two decimals.
func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Title capitalises a status or role for display ("pending" -> "Pending").
func Title(v interface{}) string {
	return cases.Title(language.English).String(fmt.Sprint(v))
}
