package registry

import (
	"signalserver/internal/registry/postprocessor"
	"signalserver/internal/registry/processor"
)

// Signal is the complete specification for computing one named quantity:
// where to get input prices, how to combine them, and what to do to the
// combined result afterward.
type Signal struct {
	SourceQueries  []SourceQuery
	Processor      processor.Processor
	PostProcessors []postprocessor.PostProcessor
}
