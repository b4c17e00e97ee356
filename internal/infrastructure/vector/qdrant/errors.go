package qdrant

import (
	"errors"
	"fmt"
	"net/http"
)

type statusError struct {
	code   int
	status string
	detail string
}

func (e *statusError) Error() string {
	if e.detail != "" {
		return fmt.Sprintf("qdrant status %s: %s", e.status, e.detail)
	}
	return fmt.Sprintf("qdrant status %s", e.status)
}

func asStatusError(err error, target **statusError) bool {
	return errors.As(err, target)
}

func isCollectionMissing(err error) bool {
	var status *statusError
	if !errors.As(err, &status) {
		return false
	}
	return status.code == http.StatusNotFound
}
