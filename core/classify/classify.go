// Package classify maps a link onto a retrieval strategy.
// Known portal shapes are described as patterns in a table; a new portal is
// a new table entry, not a new branch in the pipeline.
package classify

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/gaurav-prasanna/editalpipe/core"
)

// fileExtensions are path suffixes that point straight at a document.
var fileExtensions = map[string]bool{
	".pdf": true, ".zip": true, ".rar": true, ".7z": true,
}

// Pattern matches a URL and yields a classification.
type Pattern struct {
	Name  string
	Match func(u *url.URL) (core.Classification, bool)
}

var (
	// PNCP-<cnpj>-<seq>-<number>-<year>
	pncpFourPart = regexp.MustCompile(`PNCP-(\d+)-(\d+)-(\d+)-(\d+)`)
	// /app/editais/<cnpj>/<year>/<number>
	pncpEditalPath = regexp.MustCompile(`^/app/editais/(\d+)/(\d{4})/(\d+)/?$`)
	// /pncp-api/v1/orgaos/<cnpj>/compras/<year>/<number>/arquivos/<n>
	pncpFilePath = regexp.MustCompile(`^/pncp-api/v1/orgaos/\d+/compras/\d+/\d+/arquivos/\d+/?$`)
)

// PNCPFileURL builds the PNCP API link of the first document of a purchase.
func PNCPFileURL(cnpj, year, number string) string {
	return fmt.Sprintf("https://pncp.gov.br/pncp-api/v1/orgaos/%s/compras/%s/%s/arquivos/1", cnpj, year, number)
}

// DefaultPatterns is the ordered table of known portal shapes.
// The first match wins.
var DefaultPatterns = []Pattern{
	{
		Name: "pncp-api-file",
		Match: func(u *url.URL) (core.Classification, bool) {
			if hostIs(u, "pncp.gov.br") && pncpFilePath.MatchString(u.Path) {
				return core.Classification{Strategy: core.StrategyDirectFile}, true
			}
			return core.Classification{}, false
		},
	},
	{
		Name: "pncp-edital-page",
		Match: func(u *url.URL) (core.Classification, bool) {
			if !hostIs(u, "pncp.gov.br") {
				return core.Classification{}, false
			}
			m := pncpEditalPath.FindStringSubmatch(u.Path)
			if m == nil {
				return core.Classification{}, false
			}
			return core.Classification{
				Strategy: core.StrategyNeedsResolution,
				Resolved: PNCPFileURL(m[1], m[2], m[3]),
			}, true
		},
	},
	{
		Name: "alertalicitacao",
		Match: func(u *url.URL) (core.Classification, bool) {
			if !hostIs(u, "alertalicitacao.com.br") {
				return core.Classification{}, false
			}
			c := core.Classification{Strategy: core.StrategyNeedsResolution}
			// The PNCP id may sit in the path, the query or the fragment.
			if m := pncpFourPart.FindStringSubmatch(u.Path + "?" + u.RawQuery + "#" + u.Fragment); m != nil {
				c.Resolved = PNCPFileURL(m[1], m[4], m[3])
			}
			return c, true
		},
	},
	{
		Name: "portal-compras-publicas",
		Match: func(u *url.URL) (core.Classification, bool) {
			if hostIs(u, "portaldecompraspublicas.com.br") && !hasFileExtension(u) {
				return core.Classification{Strategy: core.StrategyDynamicPortal}, true
			}
			return core.Classification{}, false
		},
	},
	{
		Name: "comprasnet",
		Match: func(u *url.URL) (core.Classification, bool) {
			if strings.Contains(u.Hostname(), "comprasnet") || hostIs(u, "compras.gov.br") {
				return core.Classification{Strategy: core.StrategyDynamicPortal}, true
			}
			return core.Classification{}, false
		},
	},
	{
		Name: "file-extension",
		Match: func(u *url.URL) (core.Classification, bool) {
			if hasFileExtension(u) {
				return core.Classification{Strategy: core.StrategyDirectFile}, true
			}
			return core.Classification{}, false
		},
	},
}

// PatternClassifier classifies links against an ordered pattern table.
type PatternClassifier struct {
	patterns []Pattern
}

// New creates a PatternClassifier. With no patterns, DefaultPatterns is used.
func New(patterns ...Pattern) *PatternClassifier {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	return &PatternClassifier{patterns: patterns}
}

// Classify returns the strategy for link. Unknown shapes default to the
// dynamic portal strategy, which can also handle plain downloads.
func (c *PatternClassifier) Classify(link string) (core.Classification, error) {
	u, err := Parse(link)
	if err != nil {
		return core.Classification{}, err
	}
	for _, p := range c.patterns {
		if cl, ok := p.Match(u); ok {
			cl.Pattern = p.Name
			return cl, nil
		}
	}
	return core.Classification{Strategy: core.StrategyDynamicPortal, Pattern: "default"}, nil
}

// Parse validates link as an absolute http(s) URL.
func Parse(link string) (*url.URL, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return nil, core.NewError(core.ClassificationError, core.ReasonMissingLink, nil)
	}
	u, err := url.Parse(link)
	if err != nil {
		return nil, core.NewError(core.ClassificationError, core.ReasonMalformedURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, core.NewError(core.ClassificationError, core.ReasonMalformedURL,
			fmt.Errorf("%q must be an absolute http(s) URL", link))
	}
	return u, nil
}

// IsFileLink reports whether rawURL ends in a known document extension.
func IsFileLink(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return hasFileExtension(u)
}

func hasFileExtension(u *url.URL) bool {
	return fileExtensions[strings.ToLower(path.Ext(u.Path))]
}

// hostIs matches domain and any of its subdomains.
func hostIs(u *url.URL, domain string) bool {
	host := strings.ToLower(u.Hostname())
	return host == domain || strings.HasSuffix(host, "."+domain)
}
