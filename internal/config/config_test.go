package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseGeneralAndServerSections(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
[general]
log_file = /var/log/vsx.log
user = vsx

[server]
address = 0.0.0.0
port = 5144

[server]
address = 0.0.0.0
certificate = /etc/vsx/cert.pem
private_key = /etc/vsx/key.pem
`))
	require.NoError(t, err)
	require.Equal(t, "/var/log/vsx.log", cfg.LogFile)
	require.Equal(t, "vsx", cfg.User)
	require.Len(t, cfg.Servers, 2)
	require.Equal(t, 5144, cfg.Servers[0].Port)
	require.False(t, cfg.Servers[0].TLS())
	require.True(t, cfg.Servers[1].TLS())
	require.Equal(t, 5145, cfg.Servers[1].Port)
}

func TestParseRejectsCertWithoutKey(t *testing.T) {
	_, err := Parse(strings.NewReader(`
[server]
certificate = /etc/vsx/cert.pem
`))
	require.Error(t, err)
}

func TestParseRejectsUnknownSection(t *testing.T) {
	_, err := Parse(strings.NewReader("[bogus]\nfoo = bar\n"))
	require.Error(t, err)
}

func TestParseRejectsKeyOutsideSection(t *testing.T) {
	_, err := Parse(strings.NewReader("foo = bar\n"))
	require.Error(t, err)
}
