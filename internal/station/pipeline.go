package station

import (
	"context"
	"encoding/json"
	"time"

	"github.com/evfleet/station-simulator/internal/metrics"
	"github.com/evfleet/station-simulator/internal/ocpp"
)

// Send is the station's public outbound API. It
// is safe to call from any goroutine: the admission check, validation,
// cache insertion, and transport write all run serially on the station's
// own actor via Enqueue, while this call blocks on a private result
// channel. That split is what keeps the actor from ever blocking on its own
// future response.
func (s *Station) Send(ctx context.Context, action ocpp.Action, payload interface{}, opts sendOptions) (json.RawMessage, error) {
	resultCh := make(chan requestOutcome, 1)
	transmitted := make(chan struct{})
	messageId := ocpp.NewMessageId()
	start := time.Now()

	s.Enqueue(func(st *Station) {
		st.doSend(messageId, action, payload, opts, resultCh, transmitted)
	})

	timeout := s.runtime.PerSendTimeout
	var timer *time.Timer
	var timeoutCh <-chan time.Time

	for {
		select {
		case out := <-resultCh:
			metrics.RequestLatencySeconds.WithLabelValues(string(action)).Observe(time.Since(start).Seconds())
			return out.response, out.err
		case <-transmitted:
			// The per-send timeout is only armed once
			// the frame was actually written to an open transport. A frame
			// that doSend instead buffered (transport down, or buffered
			// after a write failure) leaves the cache entry pending
			// indefinitely; it resolves on a later flush's
			// response or on station stop, not on this timer.
			transmitted = nil
			if timeout > 0 {
				timer = time.NewTimer(timeout)
				defer timer.Stop()
				timeoutCh = timer.C
			}
		case <-timeoutCh:
			s.Enqueue(func(st *Station) {
				if entry := st.cache.take(messageId); entry != nil {
					entry.resultCh <- requestOutcome{err: ocpp.NewOCPPError(ocpp.ErrorGenericError, "request timed out", action)}
				}
			})
			return nil, ocpp.NewOCPPError(ocpp.ErrorGenericError, "request timed out", action)
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.stopped:
			return nil, errStationStopped
		}
	}
}

// doSend runs on the actor goroutine: it applies the admission law, schema
// validation, MessageId caching, and the transport write (or, on a down
// transport or write failure, buffering) of one outbound Call. It closes
// transmitted exactly once, and only after a successful write to an open
// transport, so Send's per-call timeout is never armed against a frame
// that's actually sitting in the buffer awaiting a reconnect.
//
// A synchronous write
// failure is treated exactly like a down transport: the frame is buffered
// and the cache entry is left pending rather than immediately failed, so a
// later reconnect can still deliver it and resolve the original caller.
func (s *Station) doSend(messageId string, action ocpp.Action, payload interface{}, opts sendOptions, resultCh chan requestOutcome, transmitted chan struct{}) {
	if !admit(s.state, action, false, opts) {
		resultCh <- requestOutcome{err: ocpp.NewOCPPError(ocpp.ErrorSecurityError, "action not admitted in state "+s.state.String(), action)}
		return
	}

	if err := s.validator.ValidateRequest(action, payload); err != nil {
		resultCh <- requestOutcome{err: err}
		return
	}

	frame, err := ocpp.EncodeCall(messageId, action, payload)
	if err != nil {
		resultCh <- requestOutcome{err: err}
		return
	}

	if _, err := s.cache.insert(messageId, action, payload, resultCh); err != nil {
		resultCh <- requestOutcome{err: err}
		return
	}

	if !s.transport.IsOpen() {
		if opts.skipBufferingOnError || s.Template.SkipBufferingOnError {
			s.cache.remove(messageId)
			resultCh <- requestOutcome{err: ocpp.NewOCPPError(ocpp.ErrorGenericError, "transport is not open", action)}
			return
		}
		s.buffer.push(frame)
		return
	}

	if err := s.transport.Send(frame); err != nil {
		s.log.ErrorWithErr(err, "transport write failed")
		if opts.skipBufferingOnError || s.Template.SkipBufferingOnError {
			s.cache.remove(messageId)
			resultCh <- requestOutcome{err: err}
			return
		}
		s.buffer.push(frame)
		return
	}

	s.messagesSent++
	metrics.MessagesSentTotal.WithLabelValues(string(action)).Inc()
	close(transmitted)
}

// resolveResponse is called by the dispatcher when a CallResult/CallError
// arrives for a Call this station sent.
func (s *Station) resolveResponse(messageId string, response json.RawMessage, callErr error) {
	entry := s.cache.take(messageId)
	if entry == nil {
		s.log.Warnf("response for unknown messageId %s", messageId)
		return
	}
	if callErr != nil {
		metrics.CallErrorsTotal.WithLabelValues("inbound", string(errorCodeOf(callErr))).Inc()
	}
	entry.resultCh <- requestOutcome{response: response, err: callErr}
}

func errorCodeOf(err error) ocpp.ErrorType {
	if oe, ok := err.(*ocpp.OCPPError); ok {
		return oe.Code
	}
	return ocpp.ErrorGenericError
}
