package engine

import (
	"encoding/json"

	"codeberg.org/mutker/capturectl/internal/errors"
)

// ProtocolVersion is shared between the shell and the engine.
const ProtocolVersion = "2"

// Request is the envelope sent over the line-delimited JSON transport.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ResponseError is the error payload of failed responses.
type ResponseError struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// Response is the reply envelope. OK discriminates success from failure.
type Response struct {
	ID     string         `json:"id"`
	OK     bool           `json:"ok"`
	Result any            `json:"result,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

func decodeRequest(line []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Request{}, errors.New().Wrap(errors.ErrInvalidRequest, err)
	}
	return req, nil
}

func success(id string, result any) Response {
	return Response{ID: id, OK: true, Result: result}
}

func failure(id string, code errors.ErrorCode, message string) Response {
	return Response{ID: id, OK: false, Error: &ResponseError{Code: code, Message: message}}
}

// failureFrom maps a coded domain error onto the wire.
func failureFrom(id string, err error) Response {
	return failure(id, errors.CodeOf(err), err.Error())
}
