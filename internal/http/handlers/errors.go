package handlers

import "errors"

var errInvalidID = errors.New("id must be a non-nil uuid")
