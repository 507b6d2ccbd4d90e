package tunnelurl

import (
	"fmt"
	"regexp"
)

// DefaultPattern matches a quick-tunnel address: https:// followed by the
// ephemeral subdomain and the trycloudflare.com suffix.
const DefaultPattern = `https://[a-zA-Z0-9-]+\.trycloudflare\.com`

// TunnelURL is a public tunnel address as printed by the tunnel process.
type TunnelURL string

func (u TunnelURL) String() string { return string(u) }

// Extractor finds tunnel URLs in single lines of output. It holds only the
// compiled pattern and is safe for concurrent use.
type Extractor struct {
	re *regexp.Regexp
}

var defaultExtractor = &Extractor{re: regexp.MustCompile(DefaultPattern)}

// Default returns the extractor for DefaultPattern.
func Default() *Extractor { return defaultExtractor }

// NewExtractor compiles pattern. An empty pattern means DefaultPattern.
func NewExtractor(pattern string) (*Extractor, error) {
	if pattern == "" {
		return defaultExtractor, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid url pattern %q: %w", pattern, err)
	}
	return &Extractor{re: re}, nil
}

// Extract returns the first match in line, if any.
func (e *Extractor) Extract(line string) (TunnelURL, bool) {
	m := e.re.FindString(line)
	if m == "" {
		return "", false
	}
	return TunnelURL(m), true
}

// Pattern returns the source of the compiled pattern.
func (e *Extractor) Pattern() string { return e.re.String() }

// Extract runs the default extractor on line.
func Extract(line string) (TunnelURL, bool) { return defaultExtractor.Extract(line) }
