package aggregator

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/golang/snappy"
	"github.com/spaolacci/murmur3"
)

// snappyDecodeBufPool provides reusable destination buffers for decoding
// shuffle blocks.
var snappyDecodeBufPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 0, 4096)
		return &b
	},
}

// reducerFor routes a group key to one of n reducers.
func reducerFor(key GroupKey, n int) int {
	return int(murmur3.Sum32([]byte(key)) % uint32(n))
}

// shuffleOutput is the set of encoded blocks bound for each reducer.
type shuffleOutput struct {
	blocks [][][]byte // blocks[reducer] in map-task order
	bytes  int64
}

// shuffle partitions each map task's partials by reducer and encodes every
// non-empty bucket as snappy-compressed JSON. Buckets are encoded in key
// order so the byte count is deterministic.
func shuffle(mapOutputs []map[GroupKey]*GroupedPartial, reducers int) (*shuffleOutput, error) {
	out := &shuffleOutput{blocks: make([][][]byte, reducers)}

	for task, groups := range mapOutputs {
		buckets := make([][]*GroupedPartial, reducers)
		for _, gp := range groups {
			r := reducerFor(gp.Key, reducers)
			buckets[r] = append(buckets[r], gp)
		}
		for r, bucket := range buckets {
			if len(bucket) == 0 {
				continue
			}
			sort.Slice(bucket, func(i, j int) bool { return bucket[i].Key < bucket[j].Key })
			block, err := encodeBlock(bucket)
			if err != nil {
				return nil, fmt.Errorf("aggregator: encode map task %d block for reducer %d: %w", task, r, err)
			}
			out.blocks[r] = append(out.blocks[r], block)
			out.bytes += int64(len(block))
		}
	}

	return out, nil
}

func encodeBlock(groups []*GroupedPartial) ([]byte, error) {
	raw, err := json.Marshal(groups)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

func decodeBlock(block []byte) (map[GroupKey]*GroupedPartial, error) {
	bufPtr := snappyDecodeBufPool.Get().(*[]byte)
	defer snappyDecodeBufPool.Put(bufPtr)

	raw, err := snappy.Decode((*bufPtr)[:cap(*bufPtr)], block)
	if err != nil {
		return nil, fmt.Errorf("snappy decode: %w", err)
	}
	*bufPtr = raw[:0]

	var groups []*GroupedPartial
	if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}

	out := make(map[GroupKey]*GroupedPartial, len(groups))
	for _, gp := range groups {
		out[gp.Key] = gp
	}
	return out, nil
}
