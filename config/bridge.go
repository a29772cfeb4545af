package config

import (
	"fmt"
	"net/url"
)

// Bridge configures the websocket event publisher. It is disabled when URL
// is empty.
type Bridge struct {
	URL          string `hcl:"url,optional"`
	InstanceName string `hcl:"instance_name,optional"`
}

func (b *Bridge) Enabled() bool {
	return b.URL != ""
}

func (b *Bridge) Defaults() {
	if b.URL != "" && b.InstanceName == "" {
		b.InstanceName = "devcrew"
	}
}

func (b *Bridge) Validate() error {
	if !b.Enabled() {
		return nil
	}
	u, err := url.Parse(b.URL)
	if err != nil {
		return fmt.Errorf("invalid url '%s': %w", b.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("url must use ws:// or wss://, got '%s'", b.URL)
	}
	return nil
}
