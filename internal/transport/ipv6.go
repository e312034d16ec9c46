package transport

import "strings"

// bracketHost wraps an IPv6 literal host in brackets, as required before
// it can appear in the host position of an ssh-like command line (§4.1).
// IPv4 addresses, hostnames, and already-bracketed hosts pass through
// unchanged.
func bracketHost(host string) string {
	if host == "" {
		return host
	}
	if strings.HasPrefix(host, "[") {
		return host
	}
	if strings.Count(host, ":") >= 2 {
		return "[" + host + "]"
	}
	return host
}
