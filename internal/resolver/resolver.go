// Package resolver implements the Signal Resolver (spec.md §4.4): a pure,
// stateless function that turns a set of requested signal ids into a vector
// of PriceState by iterative, memoized graph evaluation.
//
// Grounded on
// original_source/bothan-core/src/manager/crypto_asset_info/price/tasks.rs,
// translated to Go with the same queue/cache/requeue-to-front algorithm.
package resolver

import (
	"signalserver/internal/registry"
	"signalserver/internal/registry/processor"
	"signalserver/internal/types"
)

// Worker is the read-through capability the resolver needs from a source's
// live data: look up the current AssetState for one of that source's query
// ids. It is satisfied by store.WorkerStore.
type Worker interface {
	GetAsset(queryID string) (types.AssetState, error)
}

// OperationRecord captures one route fold step for observability.
type OperationRecord struct {
	SignalID   string
	Op         registry.RouteOp
	RoutePrice types.Price
}

// SourceRecord captures one source query's contribution to a signal.
type SourceRecord struct {
	SourceID   string
	QueryID    string
	Price      types.Price
	Operations []OperationRecord
	FinalValue *types.Price // nil if the route fold failed to produce a value
}

// ProcessRecord captures the result of running a processor or post-processor.
type ProcessRecord struct {
	Name   string
	Result *types.Price
	Err    error
}

// Record is the per-signal computation trace appended during resolution, for
// observability only — it never influences resolver logic (spec.md §4.4).
type Record struct {
	SignalID           string
	Sources            []SourceRecord
	ProcessResult      *ProcessRecord
	PostProcessResults []ProcessRecord
}

// Resolve computes one PriceState per requested id, in the same order, given
// the current registry and worker snapshots. stalecutoff is the earliest
// unix-second timestamp an Available source value may carry to be used.
// Records is optional (may be nil) and is only ever appended to.
func Resolve(
	requestedIDs []string,
	workers map[string]Worker,
	reg *registry.Registry,
	staleCutoff int64,
	records *[]Record,
) []types.PriceState {
	cache := newPriceCache()

	queue := make([]string, len(requestedIDs))
	copy(queue, requestedIDs)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if cache.has(id) {
			continue
		}

		signal, ok := reg.Get(id)
		if !ok {
			cache.set(id, types.PriceStateUnsupported())
			continue
		}

		record := Record{SignalID: id}
		sourceValues, missing := computeSourceResults(signal, workers, cache, staleCutoff, &record)
		if len(missing) > 0 {
			// Prerequisites must resolve before this signal can be
			// re-attempted: push them, then this signal, back onto the
			// front of the queue so they are expanded first. Nothing is
			// cached for id on this pass.
			front := append(append([]string{}, missing...), id)
			queue = append(front, queue...)
			continue
		}

		price, procErr := signal.Processor.Process(sourceValues)
		record.ProcessResult = &ProcessRecord{Name: signal.Processor.Name(), Err: procErr}
		if procErr == nil {
			p := price
			record.ProcessResult.Result = &p
		}
		if procErr != nil {
			if records != nil {
				*records = append(*records, record)
			}
			cache.set(id, types.PriceStateUnavailable())
			continue
		}

		result, ppErr := runPostProcessors(signal, price, records, &record)
		if records != nil {
			*records = append(*records, record)
		}
		if ppErr != nil {
			cache.set(id, types.PriceStateUnavailable())
			continue
		}

		cache.set(id, types.PriceStateAvailable(result))
	}

	out := make([]types.PriceState, len(requestedIDs))
	for i, id := range requestedIDs {
		out[i] = cache.get(id)
	}
	return out
}

// computeSourceResults evaluates every source query of signal, returning the
// (source_id, price) pairs that yielded a value. If any route fold is
// blocked on a signal not yet in the cache, those signal ids are returned in
// missing and sourceValues/the record must be discarded for this pass.
func computeSourceResults(
	signal registry.Signal,
	workers map[string]Worker,
	cache *priceCache,
	staleCutoff int64,
	record *Record,
) (values []processor.SourceValue, missing []string) {
	sourceRecords := make([]SourceRecord, 0, len(signal.SourceQueries))

	for _, sq := range signal.SourceQueries {
		worker, ok := workers[sq.SourceID]
		if !ok {
			continue
		}

		state, err := worker.GetAsset(sq.QueryID)
		if err != nil {
			continue
		}
		if state.Kind != types.AssetAvailable {
			continue
		}
		if state.Asset.Timestamp < staleCutoff {
			continue
		}

		sr := SourceRecord{SourceID: sq.SourceID, QueryID: sq.QueryID, Price: state.Asset.Price}

		accumulator := state.Asset.Price
		var localMissing []string
		abandoned := false
		for _, route := range sq.Routes {
			routePrice, ok := cache.getAvailable(route.SignalID)
			if !ok {
				if cache.has(route.SignalID) {
					// Cached but not Available (Unavailable/Unsupported):
					// abandon this source query, it yields no value.
					abandoned = true
					break
				}
				localMissing = append(localMissing, route.SignalID)
				continue
			}

			next, opErr := route.Op.Execute(accumulator, routePrice)
			if opErr != nil {
				abandoned = true
				break
			}
			accumulator = next
			sr.Operations = append(sr.Operations, OperationRecord{
				SignalID:   route.SignalID,
				Op:         route.Op,
				RoutePrice: routePrice,
			})
		}

		if len(localMissing) > 0 {
			missing = append(missing, localMissing...)
			continue
		}
		if abandoned {
			continue
		}

		fv := accumulator
		sr.FinalValue = &fv
		sourceRecords = append(sourceRecords, sr)
		values = append(values, processor.SourceValue{SourceID: sq.SourceID, Price: accumulator})
	}

	if len(missing) > 0 {
		return nil, dedupe(missing)
	}

	record.Sources = sourceRecords
	return values, nil
}

func runPostProcessors(signal registry.Signal, input types.Price, records *[]Record, record *Record) (types.Price, error) {
	result := input
	for _, pp := range signal.PostProcessors {
		out, err := pp.PostProcess(result)
		pr := ProcessRecord{Name: pp.Name(), Err: err}
		if err == nil {
			o := out
			pr.Result = &o
		}
		record.PostProcessResults = append(record.PostProcessResults, pr)
		if err != nil {
			return types.Price{}, err
		}
		result = out
	}
	return result, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
