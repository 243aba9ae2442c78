package notes

import (
	"html/template"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// contentPolicy strips scripts, handlers and unsafe URLs from rendered notes.
var contentPolicy = bluemonday.UGCPolicy()

// RenderMarkdown renders note content to sanitized HTML safe to embed in a page.
func RenderMarkdown(content string) template.HTML {
	// A fresh parser per call: gomarkdown parsers are not reusable.
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(content))

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank,
	})
	unsafe := markdown.Render(doc, renderer)

	return template.HTML(contentPolicy.SanitizeBytes(unsafe))
}
