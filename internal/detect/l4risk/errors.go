package l4risk

import "errors"

// ErrLandmarkCountMismatch is returned when a sample's landmark count does
// not match its declared detector family; the sample is rejected outright
// (spec.md §3 invariant).
var ErrLandmarkCountMismatch = errors.New("l4risk: landmark count does not match detector family")

// ErrOutOfOrder is returned when a sample's timestamp is older than the
// newest-seen sample for that subject by more than the configured
// tolerance; the sample is dropped rather than fused.
var ErrOutOfOrder = errors.New("l4risk: sample out of order beyond tolerance")
