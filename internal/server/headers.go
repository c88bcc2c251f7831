package server

import "net/http"

// setNoLeakHeaders keeps a response carrying flow parameters out of caches
// and out of the Referer of the next navigation.
func setNoLeakHeaders(h http.Header) {
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
	h.Set("Referrer-Policy", "no-referrer")
}
