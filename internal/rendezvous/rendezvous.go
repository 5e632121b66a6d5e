// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package rendezvous models the one-shot handoff of a data path between a
// recipient and the sender it has just claimed, and the bounded channels
// that carry relayed bytes once the handoff completes.
package rendezvous

// DataQueueCapacity bounds the in-flight relay buffer. It is small on
// purpose: large enough to overlap a socket read with a socket write, small
// enough that a slow recipient stalls the sender's read loop instead of
// letting the relay become an unbounded memory store.
const DataQueueCapacity = 16

// MessageKind discriminates the variant carried by a RelayMessage.
type MessageKind int

const (
	MsgData MessageKind = iota
	MsgFinished
	MsgError
)

// RelayMessage is the unit of exchange on the data queue between a
// SenderSession's relay pump and a RecipientSession's pump loop.
type RelayMessage struct {
	Kind MessageKind
	Data []byte // valid when Kind == MsgData
	Err  string // valid when Kind == MsgError
}

// Data wraps a binary payload relayed verbatim from the sender.
func Data(b []byte) RelayMessage { return RelayMessage{Kind: MsgData, Data: b} }

// Finished signals a clean end of stream.
func Finished() RelayMessage { return RelayMessage{Kind: MsgFinished} }

// Error signals a fatal condition the recipient should be told about.
func Error(msg string) RelayMessage { return RelayMessage{Kind: MsgError, Err: msg} }

// Link is published by a claiming recipient into the sender's one-shot
// channel. It hands the sender everything it needs to relay bytes to this
// specific recipient: the producer half of the bounded data queue, the
// consumer half of a one-slot cancel signal, and the offset the recipient
// wants the sender to resume from (0 on first attach).
type Link struct {
	DataTx       chan<- RelayMessage
	CancelRx     <-chan struct{}
	ResumeOffset uint64
}

// NewQueue allocates the bounded data queue and cancel signal for a single
// claim. The recipient keeps dataRx/cancelTx; the sender-facing halves are
// folded into a Link by the caller.
func NewQueue() (dataTx chan RelayMessage, dataRx <-chan RelayMessage, cancelTx chan struct{}, cancelRx <-chan struct{}) {
	dc := make(chan RelayMessage, DataQueueCapacity)
	cc := make(chan struct{}, 1)
	return dc, dc, cc, cc
}
