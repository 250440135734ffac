package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/crystaldolphin/toolsmith/internal/schema"
)

const (
	webUserAgent    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36"
	maxRedirects    = 5
	maxBodyBytes    = 2 << 20
	defaultMaxChars = 8000
)

// OpenWebsiteTool fetches a page and extracts its readable text.
type OpenWebsiteTool struct {
	maxChars   int
	httpClient *http.Client
}

// NewOpenWebsiteTool creates an OpenWebsiteTool. maxChars defaults to 8000.
func NewOpenWebsiteTool(maxChars int) *OpenWebsiteTool {
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	client := &http.Client{
		Timeout: 20 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &OpenWebsiteTool{maxChars: maxChars, httpClient: client}
}

func (t *OpenWebsiteTool) Name() string { return "open_website" }
func (t *OpenWebsiteTool) Description() string {
	return "Open a web page and return its title and readable text."
}
func (t *OpenWebsiteTool) Params() []schema.Param {
	return []schema.Param{{
		Name:        "url",
		Type:        schema.TypeString,
		Required:    true,
		Description: "http or https URL to open",
	}}
}

func (t *OpenWebsiteTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	rawURL, _ := args["url"].(string)
	rawURL = strings.TrimSpace(rawURL)
	if rawURL != "" && !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := validateURL(rawURL)
	if err != nil {
		return "", fmt.Errorf("url validation failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %s: status %d", u, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", u, err)
	}

	ctype := resp.Header.Get("Content-Type")
	var title, text string
	switch {
	case strings.Contains(ctype, "application/json"):
		var v any
		if json.Unmarshal(body, &v) == nil {
			formatted, _ := json.MarshalIndent(v, "", "  ")
			text = string(formatted)
		} else {
			text = string(body)
		}
	case strings.Contains(ctype, "text/html") || isHTMLPrefix(body):
		article, err := readability.FromReader(bytes.NewReader(body), resp.Request.URL)
		if err == nil {
			title = article.Title
			text = htmlToText(article.Content)
		} else {
			text = stripHTMLTags(string(body))
		}
	default:
		text = string(body)
	}

	truncated := false
	if r := []rune(text); len(r) > t.maxChars {
		text = string(r[:t.maxChars])
		truncated = true
	}

	var sb strings.Builder
	if title != "" {
		sb.WriteString("# " + title + "\n\n")
	}
	sb.WriteString(text)
	if truncated {
		sb.WriteString("\n\n[truncated]")
	}
	return sb.String(), nil
}

// validateURL checks that rawURL is http(s) with a host.
func validateURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("only http/https allowed, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing domain in URL")
	}
	return u, nil
}

func isHTMLPrefix(b []byte) bool {
	prefix := strings.ToLower(strings.TrimSpace(string(b[:min(256, len(b))])))
	return strings.HasPrefix(prefix, "<!doctype") || strings.HasPrefix(prefix, "<html")
}

var (
	reScript    = regexp.MustCompile(`(?is)<script[\s\S]*?</script>`)
	reStyle     = regexp.MustCompile(`(?is)<style[\s\S]*?</style>`)
	reTags      = regexp.MustCompile(`<[^>]+>`)
	reSpaces    = regexp.MustCompile(`[ \t]+`)
	reNewlines  = regexp.MustCompile(`\n{3,}`)
	reHeadings  = regexp.MustCompile(`(?is)<h([1-6])[^>]*>([\s\S]*?)</h[1-6]>`)
	reListItems = regexp.MustCompile(`(?is)<li[^>]*>([\s\S]*?)</li>`)
	reBlockEnd  = regexp.MustCompile(`(?is)</(p|div|section|article)>`)
	reLineBreak = regexp.MustCompile(`(?is)<(br|hr)\s*/?>`)
)

func stripHTMLTags(text string) string {
	text = reScript.ReplaceAllString(text, "")
	text = reStyle.ReplaceAllString(text, "")
	text = reTags.ReplaceAllString(text, "")
	text = reSpaces.ReplaceAllString(text, " ")
	text = reNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// htmlToText keeps headings, list items and paragraph breaks.
func htmlToText(htmlText string) string {
	text := reHeadings.ReplaceAllStringFunc(htmlText, func(m string) string {
		parts := reHeadings.FindStringSubmatch(m)
		level := int(parts[1][0] - '0')
		return fmt.Sprintf("\n%s %s\n", strings.Repeat("#", level), stripHTMLTags(parts[2]))
	})
	text = reListItems.ReplaceAllStringFunc(text, func(m string) string {
		parts := reListItems.FindStringSubmatch(m)
		return "\n- " + stripHTMLTags(parts[1])
	})
	text = reBlockEnd.ReplaceAllString(text, "\n\n")
	text = reLineBreak.ReplaceAllString(text, "\n")
	return stripHTMLTags(text)
}
