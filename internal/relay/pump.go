// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package relay

import (
	"encoding/json"

	"github.com/gorilla/websocket"

	"github.com/dropvault/dropvault/internal/rendezvous"
	"github.com/dropvault/dropvault/internal/wsproto"
)

// pumpOutcome is why the bidirectional relay pump (spec.md §4.4) returned.
type pumpOutcome int

const (
	pumpFinished       pumpOutcome = iota // sender sent "done"; recipient was told
	pumpSenderGone                        // sender socket failed or closed
	pumpRecipientGone                     // recipient cancelled (disconnect, slow-consumer drop)
)

// runRelayPump drains the sender's inbound frames onto dataTx until the
// sender signals done, the sender's socket fails, or the recipient cancels.
// It owns dataTx: the channel is always closed on return, which is itself
// the "producer dropped" signal a recipient's pump observes as a sender
// disconnect when no Finished was ever sent.
//
// Backpressure is structural: a send on dataTx blocks while the queue is
// full, which blocks this function's read of the next sender frame, which
// blocks the underlying socket read — a slow recipient throttles the sender
// without either side ever touching a buffer beyond DataQueueCapacity.
func runRelayPump(events <-chan wsproto.Inbound, dataTx chan<- rendezvous.RelayMessage, cancelRx <-chan struct{}) pumpOutcome {
	defer close(dataTx)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return pumpSenderGone
			}
			if ev.Err != nil {
				trySend(dataTx, rendezvous.Error("sender disconnected"))
				return pumpSenderGone
			}
			switch ev.Type {
			case websocket.BinaryMessage:
				select {
				case dataTx <- rendezvous.Data(ev.Data):
				case <-cancelRx:
					return pumpRecipientGone
				}
			case websocket.TextMessage:
				var msg wsproto.DoneRequest
				if json.Unmarshal(ev.Data, &msg) == nil && msg.Type == wsproto.TypeDone {
					select {
					case dataTx <- rendezvous.Finished():
					case <-cancelRx:
						return pumpRecipientGone
					}
					return pumpFinished
				}
				// Any other text frame is not part of the relaying phase's
				// vocabulary; ignore it rather than tearing down the stream.
			}
		case <-cancelRx:
			return pumpRecipientGone
		}
	}
}

// trySend is a best-effort, non-blocking enqueue: used only for the final
// error notice on a sender-socket failure, where blocking would mean
// waiting on a queue nobody may ever drain again.
func trySend(ch chan<- rendezvous.RelayMessage, msg rendezvous.RelayMessage) {
	select {
	case ch <- msg:
	default:
	}
}

// trySignal is the non-blocking counterpart used to fire a one-slot cancel
// channel at most once without the sender ever blocking on it.
func trySignal(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
