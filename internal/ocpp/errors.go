package ocpp

import "fmt"

// ErrorType is one of the OCPP 1.6-J wire error codes.
type ErrorType string

const (
	ErrorNotImplemented                ErrorType = "NotImplemented"
	ErrorNotSupported                  ErrorType = "NotSupported"
	ErrorInternalError                 ErrorType = "InternalError"
	ErrorProtocolError                 ErrorType = "ProtocolError"
	ErrorSecurityError                 ErrorType = "SecurityError"
	ErrorFormationViolation            ErrorType = "FormationViolation"
	ErrorFormatViolation               ErrorType = "FormatViolation"
	ErrorPropertyConstraintViolation   ErrorType = "PropertyConstraintViolation"
	ErrorOccurrenceConstraintViolation ErrorType = "OccurrenceConstraintViolation"
	ErrorTypeConstraintViolation       ErrorType = "TypeConstraintViolation"
	ErrorGenericError                 ErrorType = "GenericError"
)

// OCPPError is the error a Call may fail with, whether raised locally (a
// validation/admission failure) or received from the peer as a CallError.
type OCPPError struct {
	Code        ErrorType
	Description string
	Command     Action
	Details     interface{}
}

func (e *OCPPError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Command, e.Description, e.Code)
	}
	return fmt.Sprintf("%s (%s)", e.Description, e.Code)
}

// NewOCPPError builds an OCPPError for the given wire code.
func NewOCPPError(code ErrorType, description string, command Action) *OCPPError {
	return &OCPPError{Code: code, Description: description, Command: command}
}

// IsOCPPError reports whether err is an *OCPPError with code. err is not
// unwrapped: an *OCPPError wrapped inside another error does not match.
func IsOCPPError(err error, code ErrorType) bool {
	oe, ok := err.(*OCPPError)
	return ok && oe.Code == code
}
