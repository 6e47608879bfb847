package feed

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Parser turns fetched HTML into plain text for prompts.
type Parser struct {
	htmlTagRegex   *regexp.Regexp
	skipBlockRegex *regexp.Regexp
	titleRegex     *regexp.Regexp
	maxChars       int
}

func NewParser() *Parser {
	return &Parser{
		htmlTagRegex:   regexp.MustCompile(`<[^>]*>`),
		skipBlockRegex: regexp.MustCompile(`(?is)<(script|style|noscript|svg|head)[^>]*>.*?</(script|style|noscript|svg|head)>`),
		titleRegex:     regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`),
		maxChars:       6000,
	}
}

// CleanHTML removes HTML tags and normalizes whitespace
func (p *Parser) CleanHTML(input string) string {
	// Remove HTML tags
	cleaned := p.htmlTagRegex.ReplaceAllString(input, " ")
	// Unescape HTML entities
	cleaned = html.UnescapeString(cleaned)
	// Normalize whitespace
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	return strings.TrimSpace(cleaned)
}

// Page is the readable part of a fetched document.
type Page struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// ExtractPage pulls the title and the visible text out of an HTML document,
// cutting the text at a word boundary once it exceeds the parser's limit.
func (p *Parser) ExtractPage(doc string) Page {
	var page Page
	if m := p.titleRegex.FindStringSubmatch(doc); m != nil {
		page.Title = p.CleanHTML(m[1])
	}
	body := p.skipBlockRegex.ReplaceAllString(doc, " ")
	page.Text = truncateWords(p.CleanHTML(body), p.maxChars)
	return page
}

func truncateWords(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	end := limit
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	cut := s[:end]
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}
