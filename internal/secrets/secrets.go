// Package secrets loads the operator-provided OAuth2 client credentials
// file. The file is Google's client secrets JSON: a top-level "web" (or
// "installed") object with client_id and client_secret. Read-only to this
// program; malformed content is a hard error because no grant can proceed
// without valid application credentials.
package secrets

import (
	"encoding/json"
	"fmt"
	"os"
)

// Client holds the application-level OAuth2 identity. These values never
// expire and are never written back.
type Client struct {
	ID     string `json:"client_id"`
	Secret string `json:"client_secret"`
}

// file mirrors the on-disk layout. Google issues "web" for web application
// credentials and "installed" for desktop credentials; accept either.
type file struct {
	Web       *Client `json:"web"`
	Installed *Client `json:"installed"`
}

// Load reads and validates a client secrets file.
func Load(path string) (*Client, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("secrets: reading %s: %w", path, err)
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("secrets: decoding %s: %w", path, err)
	}

	c := f.Web
	if c == nil {
		c = f.Installed
	}

	if c == nil {
		return nil, fmt.Errorf("secrets: %s has neither \"web\" nor \"installed\" section", path)
	}

	if c.ID == "" || c.Secret == "" {
		return nil, fmt.Errorf("secrets: %s missing client_id or client_secret", path)
	}

	return c, nil
}
