// Package protocol owns the LCSF wire contract shared by the stack.
//
// Ownership boundary:
// - error kind taxonomy and sentinel errors
// - reserved protocol identifiers
// - wire transcoder (wire), descriptor validator (schema), error protocol
//   (errproto) and dispatch core (core) live in subpackages
package protocol
