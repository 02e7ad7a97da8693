package pointers

import "github.com/google/uuid"

// UUID returns nil for uuid.Nil so optional FK columns stay NULL.
func UUID(v uuid.UUID) *uuid.UUID {
	if v == uuid.Nil {
		return nil
	}
	return &v
}
