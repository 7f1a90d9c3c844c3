// Package value defines the structured values held by the state cache and
// carried in session messages.
//
// Values form a closed set: Null, String, Int, Float, Bool, Array and Object.
// Decode turns wire JSON into Values (integral numbers become Int), and
// Marshal writes canonical JSON:
//   - object keys sorted by UTF-16 code units (RFC 8785)
//   - strings NFC normalized, no HTML escaping
//   - no whitespace
//
// Canonical output makes outbound message batches byte-comparable, which the
// golden trace tests in internal/harness rely on.
package value
