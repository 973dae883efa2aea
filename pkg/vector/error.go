package vector

import "errors"

// ErrEmbedding indicates an embedding could not be generated.
var ErrEmbedding = errors.New("embedding generation failed")

// ErrDimensionMismatch indicates a vector's length differs from the index's
// configured dimensionality.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")
