package constant

import "fmt"

// Error carries a business error code alongside the message.
type Error interface {
	error
	Code() int
	Message() string
	WithData(data interface{}) Error
}

type CustomError struct {
	code    int
	message string
	data    interface{}
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("code: %d, message: %s", e.code, e.message)
}

func (e *CustomError) Code() int {
	return e.code
}

func (e *CustomError) Message() string {
	return e.message
}

func (e *CustomError) WithData(data interface{}) Error {
	e.data = data
	return e
}

// NewError creates an error from the registered code table.
func NewError(code int) Error {
	if msg, exists := ErrorMessages[code]; exists {
		return &CustomError{code: code, message: msg}
	}
	return &CustomError{code: code, message: "unknown error"}
}

// GetErrorMessage returns the registered message for a code.
func GetErrorMessage(code int) (string, bool) {
	msg, exists := ErrorMessages[code]
	return msg, exists
}

// CodeOf unwraps the business code from an error, or CodeSystemError.
func CodeOf(err error) int {
	if be, ok := err.(Error); ok {
		return be.Code()
	}
	return CodeSystemError
}
