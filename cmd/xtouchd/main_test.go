package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpenBackendRejectsUnknown(t *testing.T) {
	_, _, err := openBackend("serial")
	assert.ErrorContains(t, err, "unknown backend")
}

func TestConfigPathPrefersFlag(t *testing.T) {
	assert.Equal(t, "/tmp/x.toml", configPath("/tmp/x.toml"))
}
