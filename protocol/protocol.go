// Package protocol implements the framed serial link between the host tool
// and the PWM driver firmware.
//
// A frame is: length, sequence, payload, CRC16 (big endian), sync byte 0x7E.
// The length counts the whole frame. A frame with an empty payload is an ACK.
// Payloads are a sequence of commands, each a VLQ command ID followed by its
// VLQ encoded arguments.
package protocol

// Version of the link protocol
const Version = "0.1.0"

const (
	HeaderSize  = 2 // length + sequence
	TrailerSize = 3 // CRC16 + sync
	LengthMin   = HeaderSize + TrailerSize
	LengthMax   = 64
	PayloadMax  = LengthMax - LengthMin

	positionLen = 0
	positionSeq = 1
	trailerCRC  = 3
	trailerSync = 1

	SyncByte = 0x7E

	// SeqDest is carried in the high nibble of every sequence byte
	SeqDest = 0x10
	SeqMask = 0x0F
)

// NextSeq returns the sequence byte following seq
func NextSeq(seq uint8) uint8 {
	return ((seq + 1) & SeqMask) | SeqDest
}
