// Package protocol owns the realm wire contract.
//
// Ownership boundary:
// - operation and entity component value types
// - opcode assignments and the operation -> opcode mapping
// - codec error taxonomy shared by frame and payload decoding
package protocol
