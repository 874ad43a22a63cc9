//go:build !cgo

package graph

import (
	apperrors "catalog-graph/backend/pkg/errors"
)

func openKuzuBackend(string, []Option) (Store, error) {
	return nil, apperrors.NewConfigValidationFailed("STORE_BACKEND", "kuzu backend needs a cgo build")
}
