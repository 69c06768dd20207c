// Package tlspolicy decides, per connection attempt, whether TLS is
// disabled, required, or optional, and assembles the ordered option set
// handed to the TLS engine. The resolver holds no state between calls;
// the only side effect of a resolution is invoking the configured
// option provider.
package tlspolicy
