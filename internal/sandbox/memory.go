package sandbox

import (
	"context"
	"runtime/metrics"
	"time"
)

const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

// memoryPollInterval is how often the heap guard samples.
const memoryPollInterval = 10 * time.Millisecond

func heapBytes() uint64 {
	sample := []metrics.Sample{{Name: heapObjectsMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return sample[0].Value.Uint64()
}

// watchMemory trips cancel with a MemoryLimitError once the heap has grown
// more than limitMB past its baseline. The heap is shared by the whole
// process, so growth is only charged while active reports this invocation
// as the sole one running; otherwise the baseline follows the heap. Host
// allocations outside any invocation still count, which is why the guard
// is off unless configured. It returns when ctx is done.
func watchMemory(ctx context.Context, limitMB int64, interval time.Duration, active func() int64, cancel context.CancelCauseFunc) {
	if limitMB <= 0 {
		return
	}
	limit := uint64(limitMB) << 20
	baseline := heapBytes()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := heapBytes()
			if active() > 1 {
				baseline = current
				continue
			}
			if current > baseline && current-baseline > limit {
				cancel(&MemoryLimitError{LimitMB: limitMB})
				return
			}
		}
	}
}
