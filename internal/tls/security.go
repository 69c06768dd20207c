package tls

import (
	"crypto/tls"
	"fmt"
	"strings"
)

// cipherSuiteIDs maps configuration names to crypto/tls cipher suite IDs.
// TLS 1.3 suites are negotiated automatically by Go and are not listed.
var cipherSuiteIDs = map[string]uint16{
	"TLS_RSA_WITH_RC4_128_SHA":                      tls.TLS_RSA_WITH_RC4_128_SHA,
	"TLS_RSA_WITH_3DES_EDE_CBC_SHA":                 tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA,
	"TLS_RSA_WITH_AES_128_CBC_SHA":                  tls.TLS_RSA_WITH_AES_128_CBC_SHA,
	"TLS_RSA_WITH_AES_256_CBC_SHA":                  tls.TLS_RSA_WITH_AES_256_CBC_SHA,
	"TLS_RSA_WITH_AES_128_CBC_SHA256":               tls.TLS_RSA_WITH_AES_128_CBC_SHA256,
	"TLS_RSA_WITH_AES_128_GCM_SHA256":               tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
	"TLS_RSA_WITH_AES_256_GCM_SHA384":               tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_ECDSA_WITH_RC4_128_SHA":              tls.TLS_ECDHE_ECDSA_WITH_RC4_128_SHA,
	"TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA":          tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA,
	"TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA":          tls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA,
	"TLS_ECDHE_RSA_WITH_RC4_128_SHA":                tls.TLS_ECDHE_RSA_WITH_RC4_128_SHA,
	"TLS_ECDHE_RSA_WITH_3DES_EDE_CBC_SHA":           tls.TLS_ECDHE_RSA_WITH_3DES_EDE_CBC_SHA,
	"TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA":            tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
	"TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA":            tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
	"TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256":       tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256,
	"TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256":         tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256,
	"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256":         tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256":       tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384":         tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384":       tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256":   tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	"TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256": tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
}

// insecureCipherReasons names cipher suites that must never be configured.
var insecureCipherReasons = map[uint16]string{
	tls.TLS_RSA_WITH_RC4_128_SHA:         "RC4 is cryptographically broken",
	tls.TLS_ECDHE_RSA_WITH_RC4_128_SHA:   "RC4 is cryptographically broken",
	tls.TLS_ECDHE_ECDSA_WITH_RC4_128_SHA: "RC4 is cryptographically broken",

	tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA:       "3DES is weak and deprecated",
	tls.TLS_ECDHE_RSA_WITH_3DES_EDE_CBC_SHA: "3DES is weak and deprecated",
}

// SecureCipherSuites returns the recommended TLS 1.2 suites ordered by
// preference (strongest first).
func SecureCipherSuites() []uint16 {
	return []uint16{
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	}
}

// parseCipherNames maps configured cipher names to suite IDs, rejecting
// unknown and insecure names.
func parseCipherNames(names []string) ([]uint16, error) {
	if len(names) == 0 {
		return nil, nil
	}

	var invalid []string
	var insecure []string
	suites := make([]uint16, 0, len(names))

	for _, name := range names {
		name = strings.TrimSpace(name)
		id, ok := cipherSuiteIDs[name]
		if !ok {
			invalid = append(invalid, name)
			continue
		}
		if reason, bad := insecureCipherReasons[id]; bad {
			insecure = append(insecure, fmt.Sprintf("%s: %s", name, reason))
			continue
		}
		suites = append(suites, id)
	}

	if len(invalid) > 0 {
		return nil, NewTLSError(ErrorTypeCipherSuite, "invalid cipher suites specified").
			WithContext("ciphers", strings.Join(invalid, ", ")).
			WithSuggestion("Use only supported TLS cipher suite names").
			WithSuggestion("Consider modern ECDHE suites with AES-GCM or ChaCha20-Poly1305")
	}
	if len(insecure) > 0 {
		return nil, NewTLSError(ErrorTypeCipherSuite, "insecure cipher suites detected").
			WithContext("ciphers", strings.Join(insecure, "; ")).
			WithSuggestion("Remove RC4 and 3DES suites from the cipher list").
			WithSuggestion("Use cipher suites with forward secrecy (ECDHE)")
	}
	return suites, nil
}

// getCipherSuiteName returns the name of a cipher suite
func getCipherSuiteName(suite uint16) string {
	for name, id := range cipherSuiteIDs {
		if id == suite {
			return name
		}
	}
	return fmt.Sprintf("unknown(0x%04x)", suite)
}

// parseVersionName converts a version string to a crypto/tls version constant.
func parseVersionName(name string) (uint16, error) {
	switch strings.TrimSpace(name) {
	case "1.0":
		return tls.VersionTLS10, nil
	case "1.1":
		return tls.VersionTLS11, nil
	case "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, NewTLSError(ErrorTypeVersion, fmt.Sprintf("unsupported TLS version %q", name)).
			WithContext("version", name).
			WithSuggestion("Use a valid TLS version: 1.0, 1.1, 1.2, or 1.3")
	}
}
