package protocol

// ErrorProtocolID is the protocol id reserved for the built-in error protocol.
const ErrorProtocolID uint16 = 0
