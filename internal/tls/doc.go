// Package tls translates resolved connection-policy options into crypto/tls
// configurations. It owns the well-known option vocabulary (certificates,
// verification mode, cipher list, protocol versions, SNI) and ignores keys
// it does not recognize. It never performs handshakes or socket I/O.
package tls
