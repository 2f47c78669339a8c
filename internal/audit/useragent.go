package audit

import (
	"strings"

	"github.com/mssola/useragent"
)

// Client is the parsed form of a User-Agent header.
type Client struct {
	Browser  string
	OS       string
	IsMobile bool
}

// ParseUserAgent extracts browser, OS and form factor. An empty header
// yields the zero Client.
func ParseUserAgent(header string) Client {
	header = strings.TrimSpace(header)
	if header == "" {
		return Client{}
	}
	ua := useragent.New(header)
	name, version := ua.Browser()
	browser := strings.TrimSpace(name + " " + version)
	return Client{
		Browser:  browser,
		OS:       ua.OS(),
		IsMobile: ua.Mobile(),
	}
}
