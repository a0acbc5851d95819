package ssh

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuote(t *testing.T) {
	tests := map[string]string{
		"list":          "list",
		"--output=json": "--output=json",
		"":              "''",
		"two words":     "'two words'",
		"it's":          `'it'\''s'`,
		"$(rm -rf)":     "'$(rm -rf)'",
	}
	for in, want := range tests {
		assert.Equal(t, want, Quote(in), in)
	}
}

func TestPortleaseCommand(t *testing.T) {
	assert.Equal(t, "portlease list", PortleaseCommand("", "list"))
	assert.Equal(t, "cd ~ && portlease check 8080", PortleaseCommand("~", "check", "8080"))
	assert.Equal(t, "cd ~/'my apps' && portlease list", PortleaseCommand("~/my apps", "list"))
	assert.Equal(t, "cd /srv/app && portlease system --output json",
		PortleaseCommand("/srv/app", "system", "--output", "json"))
}

func TestHostPort(t *testing.T) {
	assert.Equal(t, "example.com:22", hostPort("example.com"))
	assert.Equal(t, "example.com:2222", hostPort("example.com:2222"))
	assert.Equal(t, "[::1]:22", hostPort("::1"))
}
