package tlspolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsGetFirstOccurrenceWins(t *testing.T) {
	opts := Options{
		Opt("verify", "verify_peer"),
		Opt("certfile", "/etc/ssl/a.pem"),
		Opt("verify", "verify_none"),
	}

	value, ok := opts.Get("verify")
	require.True(t, ok)
	assert.Equal(t, "verify_peer", value)

	_, ok = opts.Get("keyfile")
	assert.False(t, ok)
}

func TestOptionsGetString(t *testing.T) {
	opts := Options{
		Opt("certfile", "/etc/ssl/a.pem"),
		Opt("depth", 3),
	}

	text, ok := opts.GetString("certfile")
	require.True(t, ok)
	assert.Equal(t, "/etc/ssl/a.pem", text)

	// Present but not a string.
	_, ok = opts.GetString("depth")
	assert.False(t, ok)
}

func TestOptionsMergePreservesOrderAndDuplicates(t *testing.T) {
	extra := Options{Opt("verify", "verify_peer"), Opt("sni", "db.internal")}
	base := Options{Opt("verify", "verify_none"), Opt("certfile", "/a.pem")}

	merged := extra.Merge(base)

	require.Len(t, merged, 4)
	assert.Equal(t, Options{
		Opt("verify", "verify_peer"),
		Opt("sni", "db.internal"),
		Opt("verify", "verify_none"),
		Opt("certfile", "/a.pem"),
	}, merged)

	// Extra entry governs the lookup, base duplicate is retained.
	value, ok := merged.Get("verify")
	require.True(t, ok)
	assert.Equal(t, "verify_peer", value)
}

func TestOptionsMergeEmpty(t *testing.T) {
	assert.Nil(t, Options(nil).Merge(nil))

	base := Options{Opt("certfile", "/a.pem")}
	merged := Options(nil).Merge(base)
	assert.Equal(t, base, merged)
}

func TestOptionsCloneIsIndependent(t *testing.T) {
	orig := Options{Opt("certfile", "/a.pem"), Opt("keyfile", "/a.key")}
	clone := orig.Clone()
	clone[0] = Opt("certfile", "/b.pem")

	value, _ := orig.Get("certfile")
	assert.Equal(t, "/a.pem", value)
}
