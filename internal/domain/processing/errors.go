package processing

import "errors"

var ErrArtifactImmutable = errors.New("processing artifacts are immutable")
