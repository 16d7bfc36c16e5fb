package common

import (
	"errors"
)

type Request interface{}

type Response interface {
	IsSuccess() bool
	GetError() error
	SetError(e error)
}

type ResponseBase struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (rb *ResponseBase) IsSuccess() bool {
	return rb.Success
}

// ResponseError is an error reported by the server in a response body, as
// opposed to a transport failure.
type ResponseError struct {
	Message string
}

func (e *ResponseError) Error() string {
	return e.Message
}

func IsResponseError(err error) bool {
	re := new(ResponseError)
	return errors.As(err, &re)
}

func (rb *ResponseBase) GetError() error {
	if rb.IsSuccess() {
		return nil
	}
	return &ResponseError{Message: rb.Error}
}

func (rb *ResponseBase) SetError(e error) {
	if e != nil {
		rb.Success = false
		rb.Error = e.Error()
	} else {
		rb.Success = true
	}
}
