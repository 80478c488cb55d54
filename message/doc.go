// Package message defines the wire schema exchanged between L1 sensor
// nodes and the L2 fusion tier.
//
// Two envelopes cross the bus: Inbound (L1 to L2) and Outbound (L2 to L1).
// Each envelope carries exactly one payload case; the case is expressed as
// a set of optional pointer fields of which exactly one must be non-nil,
// mirroring a protobuf oneof in JSON. Decode validates this on the way in,
// Encode on the way out, so the rest of the system never sees an ambiguous
// message.
//
// Payload ids, sender identity and millisecond timestamps ride on the
// envelope itself and are opaque to the bus.
package message
