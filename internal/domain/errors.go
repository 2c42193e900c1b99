package domain

import "errors"

// ErrConfiguration marks fatal misconfiguration: the run must abort before
// producing partial output. Distinct from per-record validation problems,
// which are skipped and logged without stopping the batch.
var ErrConfiguration = errors.New("configuration error")
