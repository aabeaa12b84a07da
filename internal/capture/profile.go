package capture

// Profile is the identity a session presents to the exchange.
type Profile struct {
	UserAgent string
	Headers   map[string]string
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultProfile mimics a desktop Chrome XHR coming from referer.
func DefaultProfile(referer string) Profile {
	return Profile{
		UserAgent: defaultUserAgent,
		Headers: map[string]string{
			"Accept":          "application/json, text/plain, */*",
			"Accept-Language": "en-US,en;q=0.9",
			"Accept-Encoding": "gzip, deflate, br",
			"Connection":      "keep-alive",
			"Referer":         referer,
			"Sec-Fetch-Dest":  "empty",
			"Sec-Fetch-Mode":  "cors",
			"Sec-Fetch-Site":  "same-origin",
		},
	}
}
