package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"

	"github.com/polisai/tlsgate/pkg/tlspolicy"
)

// Well-known option keys. Everything else in a resolved option list is
// ignored here: unrecognized keys belong to other engines the caller may
// target, and rejecting them would break the passthrough contract.
const (
	OptionCertFile   = "certfile"
	OptionKeyFile    = "keyfile"
	OptionCACertFile = "cacertfile"
	OptionVerify     = "verify"
	OptionSNI        = "server_name_indication"
	OptionVersions   = "versions"
	OptionCiphers    = "ciphers"
)

// Materialize translates a resolved, ordered option list into a
// *tls.Config. Duplicate keys follow the list's first-occurrence rule
// because lookups go through Options.Get. A minimum of TLS 1.2 is applied
// when the options do not constrain versions.
func Materialize(opts tlspolicy.Options) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	certFile, hasCert := opts.GetString(OptionCertFile)
	keyFile, hasKey := opts.GetString(OptionKeyFile)
	switch {
	case hasCert && hasKey:
		certificate, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, NewCertificateLoadError(certFile, keyFile, err)
		}
		cfg.Certificates = []tls.Certificate{certificate}
	case hasCert:
		return nil, NewOptionMissingError(OptionKeyFile, OptionCertFile)
	case hasKey:
		return nil, NewOptionMissingError(OptionCertFile, OptionKeyFile)
	}

	if caFile, ok := opts.GetString(OptionCACertFile); ok {
		pool, err := loadCertPool(caFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}

	if err := applyVerify(cfg, opts); err != nil {
		return nil, err
	}

	if serverName, ok := opts.GetString(OptionSNI); ok {
		cfg.ServerName = serverName
	}

	if err := applyVersions(cfg, opts); err != nil {
		return nil, err
	}

	if err := applyCiphers(cfg, opts); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyVerify(cfg *tls.Config, opts tlspolicy.Options) error {
	value, ok := opts.Get(OptionVerify)
	if !ok {
		return nil
	}
	mode, isString := value.(string)
	if !isString {
		return NewOptionInvalidError(OptionVerify, value, "verification mode must be a string")
	}
	switch mode {
	case "verify_peer":
		// crypto/tls verifies peers by default.
	case "verify_none":
		cfg.InsecureSkipVerify = true
	default:
		return NewOptionInvalidError(OptionVerify, mode, "unknown verification mode").
			WithSuggestion("Use verify_peer or verify_none")
	}
	return nil
}

func applyVersions(cfg *tls.Config, opts tlspolicy.Options) error {
	value, ok := opts.Get(OptionVersions)
	if !ok {
		return nil
	}

	names, err := stringList(OptionVersions, value)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return NewOptionInvalidError(OptionVersions, value, "versions list must not be empty")
	}

	var minVersion, maxVersion uint16
	for _, name := range names {
		version, err := parseVersionName(name)
		if err != nil {
			return err
		}
		if minVersion == 0 || version < minVersion {
			minVersion = version
		}
		if version > maxVersion {
			maxVersion = version
		}
	}

	cfg.MinVersion = minVersion
	cfg.MaxVersion = maxVersion
	return nil
}

func applyCiphers(cfg *tls.Config, opts tlspolicy.Options) error {
	value, ok := opts.Get(OptionCiphers)
	if !ok {
		return nil
	}

	names, err := stringList(OptionCiphers, value)
	if err != nil {
		return err
	}

	suites, err := parseCipherNames(names)
	if err != nil {
		return err
	}
	cfg.CipherSuites = suites
	return nil
}

// stringList coerces YAML-decoded option values ([]any or []string) into a
// string slice.
func stringList(key string, value any) ([]string, error) {
	switch typed := value.(type) {
	case []string:
		return typed, nil
	case []any:
		names := make([]string, 0, len(typed))
		for _, entry := range typed {
			text, ok := entry.(string)
			if !ok {
				return nil, NewOptionInvalidError(key, entry, fmt.Sprintf("entries must be strings, got %T", entry))
			}
			names = append(names, text)
		}
		return names, nil
	default:
		return nil, NewOptionInvalidError(key, value, "value must be a list of strings")
	}
}

func loadCertPool(path string) (*x509.CertPool, error) {
	cleanPath := filepath.Clean(path)

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, NewFileAccessError(cleanPath, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, NewTLSError(ErrorTypeCertificateLoad, fmt.Sprintf("no certificates found in %s", cleanPath)).
			WithContext("file_path", cleanPath).
			WithSuggestion("Ensure the CA bundle is in PEM format")
	}
	return pool, nil
}
