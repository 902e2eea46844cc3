// Package capture reads frames off a network interface and reduces each one
// to the header fields the traffic sampler counts.
package capture

import (
	"context"
	"errors"
	"strings"

	"netmonitor/internal/models"
)

var (
	// ErrPermission is returned when the capture backend lacks raw socket access.
	ErrPermission = errors.New("capture: permission denied (run with elevated privileges)")
	// ErrClosed is returned when the capture stream ends without cancellation.
	ErrClosed = errors.New("capture: stream closed")
	// ErrNoDevice is returned when no capture interface could be selected.
	ErrNoDevice = errors.New("capture: no suitable interface")
)

// Source streams decoded frames to emit until ctx is cancelled, in which
// case it returns nil, or until the backend fails.
type Source interface {
	Run(ctx context.Context, emit func(models.PacketData)) error
}

// IsPermissionError reports whether err came from missing privileges.
// libpcap and tshark only surface this as text.
func IsPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermission) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission") ||
		strings.Contains(msg, "operation not permitted") ||
		strings.Contains(msg, "you don't have permission")
}
