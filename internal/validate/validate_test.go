package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPv4(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"10.0.0.5", true},
		{"192.168.1.255", true},
		{"0.0.0.0", true},
		{"999.1.1.1", false},
		{"10.0.0", false},
		{"", false},
		{"::1", false},
		{"::ffff:10.0.0.1", false},
		{"10.0.0.1; rm -rf /", false},
		{"host.local", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, IPv4(tt.in))
		})
	}
}

func TestPort(t *testing.T) {
	assert.True(t, Port(1))
	assert.True(t, Port(65535))
	assert.False(t, Port(0))
	assert.False(t, Port(65536))
	assert.False(t, Port(-22))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "printer-2nd_floor.lan", Sanitize("printer-2nd_floor.lan"))
	assert.Equal(t, "Bobs iPhone", Sanitize("Bob's iPhone"))
	assert.Equal(t, "x DROP TABLE devices--", Sanitize("x'; DROP TABLE devices;--"))
	assert.Equal(t, "", Sanitize("<>\"'"))
}
