package crawler

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// htmxAttributes are the attributes used by HTMX-style frontends to declare
// AJAX endpoints on arbitrary elements, paired with the HTTP method each
// attribute implies. The target application drives most of its UI through
// these, so they are a primary source of crawlable URLs.
var htmxAttributes = []struct {
	attr   string
	method string
}{
	{"hx-get", "GET"},
	{"hx-post", "POST"},
	{"hx-put", "PUT"},
	{"hx-delete", "DELETE"},
	{"hx-patch", "PATCH"},
}

// Parser extracts information from HTML content.
// It identifies links, form actions, endpoint hints, and CSRF tokens.
//
// Design decision: We use golang.org/x/net/html rather than regex because:
//  1. It correctly handles malformed HTML common on the web
//  2. Provides a proper DOM-like structure
//  3. More maintainable than complex regex patterns
type Parser struct {
	// baseURL is the URL of the page being parsed, used for resolving
	// relative URLs.
	baseURL *url.URL
}

// ParseResult contains all information extracted from an HTML page.
//
// Design decision: A single parsing pass collects everything; callers
// choose what to use.
type ParseResult struct {
	// Title is the page title from the <title> tag.
	Title string

	// Links contains all discovered URLs after resolution.
	Links []string

	// InternalLinks are links on the same host as the base URL.
	InternalLinks []string

	// ExternalLinks are links to other hosts.
	ExternalLinks []string

	// Forms contains information about HTML forms.
	Forms []FormInfo

	// Endpoints are URLs declared via hx-* attributes, with the HTTP
	// method each attribute implies.
	Endpoints []EndpointRef

	// CSRFToken is the anti-forgery token found in a csrf-token meta tag
	// or a hidden csrf_token input. Empty if the page has neither.
	CSRFToken string

	// MetaTags contains meta tag name/content pairs.
	MetaTags map[string]string
}

// EndpointRef is an endpoint declared in page markup.
type EndpointRef struct {
	// URL is the resolved endpoint URL.
	URL string

	// Method is the HTTP method implied by the declaring attribute.
	Method string
}

// FormInfo contains information about an HTML form.
type FormInfo struct {
	// Action is the resolved form action URL.
	Action string

	// Method is the HTTP method (GET, POST).
	Method string

	// Fields contains form field names and types.
	Fields []FormField
}

// FormField represents a form input field.
type FormField struct {
	// Name is the field name attribute.
	Name string

	// Type is the input type (text, password, hidden, etc.).
	Type string

	// Value is the default value if present.
	Value string
}

// NewParser creates a new HTML parser with the given base URL.
// The base URL is used to resolve relative links.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse parses HTML content and extracts all relevant information.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{
		Links:         make([]string, 0),
		InternalLinks: make([]string, 0),
		ExternalLinks: make([]string, 0),
		Forms:         make([]FormInfo, 0),
		Endpoints:     make([]EndpointRef, 0),
		MetaTags:      make(map[string]string),
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			p.processElement(n, result)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return result, nil
}

// processElement handles HTML element nodes.
func (p *Parser) processElement(n *html.Node, result *ParseResult) {
	switch n.Data {
	case "title":
		if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			result.Title = strings.TrimSpace(n.FirstChild.Data)
		}

	case "a":
		if href := getAttr(n, "href"); href != "" {
			if resolved := p.resolveURL(href); resolved != "" {
				p.addLink(resolved, result)
			}
		}

	case "form":
		form := FormInfo{
			Action: p.resolveURL(getAttr(n, "action")),
			Method: strings.ToUpper(getAttr(n, "method")),
			Fields: make([]FormField, 0),
		}
		if form.Method == "" {
			form.Method = "GET"
		}
		p.extractFormFields(n, &form)
		result.Forms = append(result.Forms, form)
		// A form action is a crawlable URL like any anchor.
		if form.Action != "" {
			p.addLink(form.Action, result)
		}

	case "meta":
		name := getAttr(n, "name")
		content := getAttr(n, "content")
		if name != "" && content != "" {
			result.MetaTags[name] = content
			if name == "csrf-token" && result.CSRFToken == "" {
				result.CSRFToken = content
			}
		}

	case "input":
		if getAttr(n, "name") == "csrf_token" && result.CSRFToken == "" {
			result.CSRFToken = getAttr(n, "value")
		}
	}

	// Any element may carry an hx-* endpoint attribute.
	for _, hx := range htmxAttributes {
		if endpoint := getAttr(n, hx.attr); endpoint != "" {
			if resolved := p.resolveURL(endpoint); resolved != "" {
				result.Endpoints = append(result.Endpoints, EndpointRef{URL: resolved, Method: hx.method})
				p.addLink(resolved, result)
			}
		}
	}
}

// addLink records a resolved URL and classifies it as internal or external.
func (p *Parser) addLink(link string, result *ParseResult) {
	result.Links = append(result.Links, link)

	u, err := url.Parse(link)
	if err != nil {
		return
	}
	if strings.EqualFold(u.Host, p.baseURL.Host) {
		result.InternalLinks = append(result.InternalLinks, link)
	} else {
		result.ExternalLinks = append(result.ExternalLinks, link)
	}
}

// extractFormFields recursively extracts form fields from a form element.
func (p *Parser) extractFormFields(n *html.Node, form *FormInfo) {
	if n.Type == html.ElementNode && (n.Data == "input" || n.Data == "select" || n.Data == "textarea") {
		field := FormField{
			Name:  getAttr(n, "name"),
			Type:  getAttr(n, "type"),
			Value: getAttr(n, "value"),
		}
		if field.Type == "" {
			switch n.Data {
			case "textarea":
				field.Type = "textarea"
			case "select":
				field.Type = "select"
			default:
				field.Type = "text"
			}
		}
		if field.Name != "" {
			form.Fields = append(form.Fields, field)
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.extractFormFields(c, form)
	}
}

// resolveURL resolves a relative URL against the base URL.
// Non-crawlable schemes and bare fragments resolve to "".
func (p *Parser) resolveURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:") ||
		href == "#" {
		return ""
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}

	return p.baseURL.ResolveReference(u).String()
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
