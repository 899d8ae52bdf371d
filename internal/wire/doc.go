// Package wire owns the protocol-neutral frame contract.
//
// Ownership boundary:
// - Protocol identity (closed variant set)
// - Frame value type and payload segment handling
// - Format codec interface implemented by each protocol package
package wire
