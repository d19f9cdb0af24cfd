// Package motion extrapolates foreign avatar transforms between sparse
// network samples (§4.I "Foreign-player motion").
package motion

// Wrap parameters for the embedded temporal stamp on movement-compressed
// position samples (§5 "per foreign peer" ordering guarantee:
// "an embedded temporal stamp wrapping at 2^n ticks, with a forward
// threshold of 25% of the wrap").
//
// The source text leaves n unspecified (§9 open question). 10 bits
// (1024-tick wrap) is chosen here: movement-compressed samples carry a
// single-byte-ish stamp in the source project's wire format, and 10 bits
// comfortably covers several seconds of ticks at typical frame rates
// before wrapping, while keeping the threshold comparison cheap. See
// DESIGN.md.
const (
	WrapBits         = 10
	WrapSize         = 1 << WrapBits
	wrapMask         = WrapSize - 1
	ForwardThreshold = WrapSize / 4 // 25% of the wrap
)

// IsNewer reports whether incoming is ahead of last on the wrapping
// timestamp, using a bounded forward-distance test: if the wrapped
// difference is nonzero and within ForwardThreshold ticks forward, the
// sample is newer; larger differences are treated as a stale sample that
// arrived after the stamp wrapped around, and are discarded.
func IsNewer(last, incoming uint32) bool {
	diff := (incoming - last) & wrapMask
	return diff != 0 && diff <= ForwardThreshold
}
