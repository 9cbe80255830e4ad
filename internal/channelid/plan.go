// Package channelid computes the binary layout of the identifier that
// routes a record through the overlay, and provides the hashing
// primitive used to canonicalize args_to_receive shapes into a stable key
// before a monotonic in_record_uid is assigned to them.
package channelid

import (
	"math/bits"

	"github.com/minio/highwayhash"
)

// Plan is the chosen binary layout of a channel id.
type Plan struct {
	// BitsPerSubID is the width, in bits, of the per-hop sub-channel
	// index; one extra bit beyond the fan-in requirement is reserved as
	// the pre/post marker on leaf-level records.
	BitsPerSubID int
	// NumWords is how many 64-bit words the channel id occupies.
	NumWords int
	// MaxFanIn and Depth are the inputs the plan was derived from, kept
	// for diagnostics and for the receival generator's channel-id plan
	// XML.
	MaxFanIn int
	Depth    int
}

// Compute derives a Plan from the layer graph's maximum fan-in and depth,
// so that bits_per_sub_id = ceil(log2(F)) + 1, num_words =
// ceil((D+1)*bits_per_sub_id / 64).
func Compute(maxFanIn, depth int) Plan {
	if maxFanIn < 1 {
		maxFanIn = 1
	}
	bitsForFanIn := bits.Len(uint(maxFanIn - 1))
	if maxFanIn == 1 {
		bitsForFanIn = 0
	}
	bitsPerSubID := bitsForFanIn + 1
	totalBits := (depth + 1) * bitsPerSubID
	numWords := (totalBits + 63) / 64
	if numWords < 1 {
		numWords = 1
	}
	return Plan{
		BitsPerSubID: bitsPerSubID,
		NumWords:     numWords,
		MaxFanIn:     maxFanIn,
		Depth:        depth,
	}
}

// Sufficient checks property P7: 2^bits_per_sub_id >= max_fan_in + 1 and
// bits_per_sub_id * (depth+1) <= 64 * num_words.
func (p Plan) Sufficient() bool {
	capacity := 1 << uint(p.BitsPerSubID)
	if capacity < p.MaxFanIn+1 {
		return false
	}
	return p.BitsPerSubID*(p.Depth+1) <= 64*p.NumWords
}

var hashKey = []byte("weaver-channel-id-plan-key-00000")

// ShapeHash canonicalizes a set of input keys (an args_to_receive or
// used_args shape) into a 64-bit identity hash. Two shapes with the same
// hash are considered identical for the purpose of sharing an
// in_record_uid: shape matters, not identity.
func ShapeHash(keys []string) (uint64, error) {
	h, err := highwayhash.New64(hashKey)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if _, err := h.Write([]byte(k)); err != nil {
			return 0, err
		}
		if _, err := h.Write([]byte{0}); err != nil {
			return 0, err
		}
	}
	return h.Sum64(), nil
}
