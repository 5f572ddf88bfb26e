package gate

import "strings"

type Config struct {
	ProxyEnabled bool
	WSProxyURL   string
}

func (c Config) withDefaults() Config {
	out := c
	out.WSProxyURL = strings.TrimSpace(out.WSProxyURL)
	return out
}
