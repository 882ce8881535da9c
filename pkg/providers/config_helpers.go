package providers

import "strings"

// ConfigString returns the trimmed string value for key from provider.Config or a fallback.
func ConfigString(cfg Provider, key, fallback string) string {
	if cfg.Config != nil {
		if raw, ok := cfg.Config[key]; ok {
			if val, ok := raw.(string); ok {
				if trimmed := strings.TrimSpace(val); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return fallback
}

const (
	ConfigUserAgentKey      = "user_agent"
	ConfigAcceptKey         = "accept"
	ConfigAcceptLanguageKey = "accept_language"
	ConfigRefererKey        = "referer"
	ConfigRequestedWithKey  = "requested_with"
)

var headerKeys = []struct{ key, header string }{
	{ConfigUserAgentKey, "User-Agent"},
	{ConfigAcceptKey, "Accept"},
	{ConfigAcceptLanguageKey, "Accept-Language"},
	{ConfigRefererKey, "Referer"},
	{ConfigRequestedWithKey, "X-Requested-With"},
}

// Headers builds the headers sent on every request to the publisher (skips empty values).
func Headers(cfg Provider) map[string]string {
	headers := make(map[string]string, len(headerKeys))
	for _, hk := range headerKeys {
		if v := ConfigString(cfg, hk.key, ""); v != "" {
			headers[hk.header] = v
		}
	}
	return headers
}
