// Package policy evaluates Rego audit rules against resolved connection
// decisions. It sits above the resolver: resolution decides how a
// connection may be secured, the gate decides whether that outcome is
// acceptable for the deployment.
package policy
