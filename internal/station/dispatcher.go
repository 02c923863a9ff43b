package station

import (
	"encoding/json"

	"github.com/evfleet/station-simulator/internal/metrics"
	"github.com/evfleet/station-simulator/internal/ocpp"
)

// commandHandler processes one inbound Call payload and returns the
// CallResult payload to send back, or an error to send as a CallError.
type commandHandler func(s *Station, raw json.RawMessage) (interface{}, error)

// handlers is the inbound-command dispatch table, populated in
// handlers.go's init.
var handlers = map[ocpp.Action]commandHandler{}

func registerHandler(action ocpp.Action, h commandHandler) {
	handlers[action] = h
}

// dispatchInbound decodes one inbound wire frame and routes it: a Call goes
// to its handler (or a NotImplemented CallError if none is registered),
// a CallResult/CallError resolves the matching pending
// request.
func (s *Station) dispatchInbound(data []byte) {
	frame, err := ocpp.Decode(data)
	if err != nil {
		s.log.ErrorWithErr(err, "malformed inbound frame")
		if frame != nil && frame.Type == ocpp.Call && frame.MessageId != "" {
			s.sendCallError(frame.MessageId, ocpp.ErrorProtocolError, err.Error())
		}
		return
	}

	switch frame.Type {
	case ocpp.Call:
		metrics.MessagesReceivedTotal.WithLabelValues(string(frame.Action)).Inc()
		s.dispatchCall(frame)
	case ocpp.CallResult:
		metrics.MessagesReceivedTotal.WithLabelValues("CallResult").Inc()
		s.resolveResponse(frame.MessageId, frame.Payload, nil)
	case ocpp.CallError:
		metrics.MessagesReceivedTotal.WithLabelValues("CallError").Inc()
		oe := ocpp.NewOCPPError(frame.ErrorCode, frame.ErrorDescription, "")
		s.resolveResponse(frame.MessageId, nil, oe)
	}
}

func (s *Station) dispatchCall(frame *ocpp.Frame) {
	handler, ok := handlers[frame.Action]
	if !ok {
		s.sendCallError(frame.MessageId, ocpp.ErrorNotImplemented, "no handler for action "+string(frame.Action))
		return
	}

	response, err := handler(s, frame.Payload)
	if err != nil {
		if oe, ok := err.(*ocpp.OCPPError); ok {
			s.sendCallError(frame.MessageId, oe.Code, oe.Description)
			return
		}
		s.sendCallError(frame.MessageId, ocpp.ErrorInternalError, err.Error())
		return
	}

	if err := s.validator.ValidateResponse(frame.Action, response); err != nil {
		s.log.ErrorWithErr(err, "outbound response failed self-validation")
	}

	out, err := ocpp.EncodeCallResult(frame.MessageId, response)
	if err != nil {
		s.log.ErrorWithErr(err, "failed to encode call result")
		return
	}
	s.writeFrame(out)
}

func (s *Station) sendCallError(messageId string, code ocpp.ErrorType, description string) {
	out, err := ocpp.EncodeCallError(messageId, code, description, nil)
	if err != nil {
		s.log.ErrorWithErr(err, "failed to encode call error")
		return
	}
	s.writeFrame(out)
	metrics.CallErrorsTotal.WithLabelValues("outbound", string(code)).Inc()
}

// writeFrame sends a response frame (CallResult/CallError), which the
// admission law always allows regardless of registration state. If the
// transport is down, the response is dropped: the peer will see no answer
// to its Call and is responsible for retrying.
func (s *Station) writeFrame(data []byte) {
	if !s.transport.IsOpen() {
		return
	}
	if err := s.transport.Send(data); err != nil {
		s.log.ErrorWithErr(err, "failed to write response frame")
		return
	}
	s.messagesSent++
}
