package registry

import (
	"encoding/json"
	"fmt"

	"signalserver/internal/registry/postprocessor"
	"signalserver/internal/registry/processor"
)

// signalDTO is the wire shape of one signal definition. Processor and
// post-processors carry an explicit Type tag since JSON has no notion of a
// Go interface — this is the serialization half of spec.md §8's round-trip
// property ("Serialization of Registry followed by deserialization and
// re-validation yields an equal Valid registry").
type signalDTO struct {
	SourceQueries  []SourceQuery      `json:"source_queries"`
	Processor      processorDTO       `json:"processor"`
	PostProcessors []postProcessorDTO `json:"post_processors,omitempty"`
}

type processorDTO struct {
	Type                    string            `json:"type"`
	MinSourceCount          uint32            `json:"min_source_count,omitempty"`
	SourceWeights           map[string]uint32 `json:"source_weights,omitempty"`
	MinimumCumulativeWeight uint32            `json:"minimum_cumulative_weight,omitempty"`
}

type postProcessorDTO struct {
	Type string `json:"type"`
}

// Encode serializes a validated Registry to JSON.
func Encode(r *Registry) ([]byte, error) {
	dto := make(map[string]signalDTO, r.Len())
	r.Range(func(id string, s Signal) bool {
		dto[id] = signalToDTO(s)
		return true
	})
	return json.Marshal(dto)
}

// Decode parses JSON produced by Encode into a Builder. The caller must call
// Validate on the result before treating it as installable — Decode performs
// no graph validation itself.
func Decode(data []byte) (*Builder, error) {
	var dto map[string]signalDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("registry: decode: %w", err)
	}

	b := New()
	for id, sd := range dto {
		s, err := signalFromDTO(sd)
		if err != nil {
			return nil, fmt.Errorf("registry: decode signal %q: %w", id, err)
		}
		b.Add(id, s)
	}
	return b, nil
}

func signalToDTO(s Signal) signalDTO {
	sd := signalDTO{SourceQueries: s.SourceQueries}

	switch p := s.Processor.(type) {
	case processor.Median:
		sd.Processor = processorDTO{Type: "median", MinSourceCount: p.MinSourceCount}
	case processor.WeightedMedian:
		sd.Processor = processorDTO{
			Type:                    "weighted_median",
			SourceWeights:           p.SourceWeights,
			MinimumCumulativeWeight: p.MinimumCumulativeWeight,
		}
	}

	for _, pp := range s.PostProcessors {
		switch pp.(type) {
		case postprocessor.TickConvertor:
			sd.PostProcessors = append(sd.PostProcessors, postProcessorDTO{Type: "tick_convertor"})
		}
	}
	return sd
}

func signalFromDTO(sd signalDTO) (Signal, error) {
	s := Signal{SourceQueries: sd.SourceQueries}

	switch sd.Processor.Type {
	case "median":
		s.Processor = processor.Median{MinSourceCount: sd.Processor.MinSourceCount}
	case "weighted_median":
		s.Processor = processor.WeightedMedian{
			SourceWeights:           sd.Processor.SourceWeights,
			MinimumCumulativeWeight: sd.Processor.MinimumCumulativeWeight,
		}
	default:
		return Signal{}, fmt.Errorf("unknown processor type %q", sd.Processor.Type)
	}

	for _, ppd := range sd.PostProcessors {
		switch ppd.Type {
		case "tick_convertor":
			s.PostProcessors = append(s.PostProcessors, postprocessor.TickConvertor{})
		default:
			return Signal{}, fmt.Errorf("unknown post-processor type %q", ppd.Type)
		}
	}
	return s, nil
}
