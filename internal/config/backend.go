package config

import (
	"fmt"
	"strings"
)

const (
	BackendNative = "native"
	BackendONNX   = "onnx"
)

// NormalizeBackend maps user input to a canonical backend name. Empty input
// selects the native backend.
func NormalizeBackend(raw string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(raw))
	if backend == "" {
		backend = BackendNative
	}

	switch backend {
	case BackendNative, BackendONNX:
		return backend, nil
	case "native-safetensors", "safetensors":
		return BackendNative, nil
	case "native-onnx":
		return BackendONNX, nil
	default:
		return "", fmt.Errorf("invalid backend %q (expected %s|%s)", raw, BackendNative, BackendONNX)
	}
}
