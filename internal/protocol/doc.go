// Package protocol defines the messages exchanged with session clients.
//
// Every message is a JSON object whose nd_type field names its kind. Inbound
// messages decode into one of a closed set of Go types; kinds this server
// does not know decode into Unknown so the dispatcher can reject them
// explicitly. Outbound messages render through the canonical encoder, so a
// given message always produces the same bytes.
package protocol
