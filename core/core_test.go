// These tests verify that the core utilities work properly.
package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Tests that Version is a non-empty version string.
func TestVersion(t *testing.T) {
	assert.NotEmpty(t, Version)
}

// Tests that Uptime returns a positive time duration.
func TestUptime(t *testing.T) {
	time.Sleep(10 * time.Millisecond)
	assert.Greater(t, Uptime(), 0.0, "Uptime is non-positive.")
}
