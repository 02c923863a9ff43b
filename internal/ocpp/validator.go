package ocpp

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator validates Call/CallResult payloads against the struct-tag
// schemas in messages.go and translates violations to wire ErrorTypes per
// OCPP wire error types. The station engine treats it as an
// injectable collaborator (the Validate interface below) so
// ocppStrictCompliance=false can swap in a validator that always succeeds.
type Validate interface {
	ValidateRequest(action Action, payload interface{}) error
	ValidateResponse(action Action, payload interface{}) error
}

// SchemaValidator is the struct-tag backed Validate implementation.
type SchemaValidator struct {
	validate *validator.Validate
}

// NewSchemaValidator builds a SchemaValidator over the struct tags in
// messages.go; no custom validation tags are registered.
func NewSchemaValidator() *SchemaValidator {
	v := validator.New()
	return &SchemaValidator{validate: v}
}

// ValidateRequest validates an outbound or inbound Call payload.
func (s *SchemaValidator) ValidateRequest(action Action, payload interface{}) error {
	return s.validateStruct(action, payload)
}

// ValidateResponse validates a CallResult payload.
func (s *SchemaValidator) ValidateResponse(action Action, payload interface{}) error {
	return s.validateStruct(action, payload)
}

func (s *SchemaValidator) validateStruct(action Action, payload interface{}) error {
	if payload == nil {
		return nil
	}
	err := s.validate.Struct(payload)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(fieldErrs) == 0 {
		return &OCPPError{Code: ErrorFormatViolation, Description: err.Error(), Command: action}
	}

	// Only the first violation is translated onto the wire.
	first := fieldErrs[0]
	return &OCPPError{
		Code:        translateTag(first.Tag()),
		Description: fmt.Sprintf("field %q failed validation %q", first.Field(), first.Tag()),
		Command:     action,
	}
}

// translateTag maps a go-playground/validator tag to the OCPP ErrorType per
// the OCPP-J error taxonomy:
//
//	type                                         -> TYPE_CONSTRAINT_VIOLATION
//	required|required_if|required_with|dependencies -> OCCURRENCE_CONSTRAINT_VIOLATION
//	pattern|format|oneof|max|min|len|eq|ne       -> PROPERTY_CONSTRAINT_VIOLATION
//	anything else                                -> FORMAT_VIOLATION
func translateTag(tag string) ErrorType {
	switch tag {
	case "type":
		return ErrorTypeConstraintViolation
	case "required", "required_if", "required_with", "dependencies":
		return ErrorOccurrenceConstraintViolation
	case "pattern", "format", "oneof", "max", "min", "len", "eq", "ne":
		// These are the struct-tag stand-ins for OCPP's declared value
		// ranges and enumerations: property constraints, not formats.
		return ErrorPropertyConstraintViolation
	default:
		return ErrorFormatViolation
	}
}

// AlwaysValid is the Validate used when ocppStrictCompliance=false: every
// payload is admitted.
type AlwaysValid struct{}

func (AlwaysValid) ValidateRequest(Action, interface{}) error  { return nil }
func (AlwaysValid) ValidateResponse(Action, interface{}) error { return nil }
