// Package stores keeps client-side copies of universes and rooms, mirroring
// server responses together with loading and error flags.
package stores

import (
	"errors"

	"github.com/raine/kanda-client/internal/kanda"
)

// errorMessage returns the server's "error" field, or def.
func errorMessage(err error, def string) string {
	var apiErr *kanda.APIError
	if errors.As(err, &apiErr) {
		if msg, ok := apiErr.DataMap()["error"].(string); ok && msg != "" {
			return msg
		}
	}
	return def
}
