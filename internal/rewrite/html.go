package rewrite

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

type attrKind int

const (
	attrURL attrKind = iota
	attrSrcset
)

// attrRule maps an element selector to the attribute holding a reference.
type attrRule struct {
	selector string
	attr     string
	kind     attrKind
}

// attrRules is the catalogue of element/attribute pairs carrying references.
var attrRules = []attrRule{
	{selector: "a[href]", attr: "href"},
	{selector: "link[href]", attr: "href"},
	{selector: "script[src]", attr: "src"},
	{selector: "img[src]", attr: "src"},
	{selector: "img[srcset]", attr: "srcset", kind: attrSrcset},
	{selector: "source[src]", attr: "src"},
	{selector: "source[srcset]", attr: "srcset", kind: attrSrcset},
	{selector: "video[src]", attr: "src"},
	{selector: "video[poster]", attr: "poster"},
	{selector: "audio[src]", attr: "src"},
	{selector: "iframe[src]", attr: "src"},
	{selector: "embed[src]", attr: "src"},
	{selector: "object[data]", attr: "data"},
	{selector: "form[action]", attr: "action"},
	{selector: "[data-src]", attr: "data-src"},
	{selector: "[data-srcset]", attr: "data-srcset", kind: attrSrcset},
	{selector: "[poster]", attr: "poster"},
	{selector: "[background]", attr: "background"},
}

// metaRefreshPattern parses "N; url=..." meta refresh content values.
var metaRefreshPattern = regexp.MustCompile(`(?i)^\s*(\d+)\s*;\s*url\s*=\s*(.*?)\s*$`)

// RewriteHTML rewrites every embedded reference in an HTML document so it
// routes back through the proxy, overwrites the title, and (when enabled)
// injects the compatibility shim into <head>. base is the document's URL; a
// <base href> element overrides it for the rest of the pass. Unparseable
// input is returned as-is.
func (r *Rewriter) RewriteHTML(htmlText string, base *url.URL) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return htmlText
	}

	// <base href> wins over the document URL for all later resolution.
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if parsed, err := url.Parse(strings.TrimSpace(href)); err == nil {
			if base != nil {
				base = base.ResolveReference(parsed)
			} else {
				base = parsed
			}
		}
	}

	for _, rule := range attrRules {
		doc.Find(rule.selector).Each(func(_ int, sel *goquery.Selection) {
			val, ok := sel.Attr(rule.attr)
			if !ok || val == "" {
				return
			}
			switch rule.kind {
			case attrSrcset:
				sel.SetAttr(rule.attr, r.RewriteSrcset(val, base))
			default:
				sel.SetAttr(rule.attr, r.RewriteURL(val, base))
			}
		})
	}

	doc.Find("[style]").Each(func(_ int, sel *goquery.Selection) {
		if style, ok := sel.Attr("style"); ok && style != "" {
			sel.SetAttr("style", r.RewriteCSS(style, base))
		}
	})

	// <style> bodies are raw text; mutate the text nodes directly so CSS
	// containing <, > or & survives serialization untouched.
	doc.Find("style").Each(func(_ int, sel *goquery.Selection) {
		for _, n := range sel.Nodes {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode && c.Data != "" {
					c.Data = r.RewriteCSS(c.Data, base)
				}
			}
		}
	})

	doc.Find(`meta[http-equiv]`).Each(func(_ int, sel *goquery.Selection) {
		equiv, _ := sel.Attr("http-equiv")
		if !strings.EqualFold(equiv, "refresh") {
			return
		}
		content, _ := sel.Attr("content")
		m := metaRefreshPattern.FindStringSubmatch(content)
		if m == nil {
			return
		}
		ref := strings.Trim(m[2], `'"`)
		sel.SetAttr("content", m[1]+"; url="+r.RewriteURL(ref, base))
	})

	doc.Find("title").SetText(TitleMarker)

	if r.injectShim {
		doc.Find("head").First().PrependHtml(r.shimScript())
	}

	out, err := doc.Html()
	if err != nil {
		return htmlText
	}
	return out
}
