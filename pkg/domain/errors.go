package domain

import (
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrPasteNotFound      = NewErr("PASTE_NOT_FOUND", "paste not found", http.StatusNotFound)
	ErrInvalidRequest     = NewErr("INVALID_REQUEST", "invalid request", http.StatusBadRequest)
	ErrInternalServer     = NewErr("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
	ErrIDGenerationFailed = NewErr("ID_GENERATION_FAILED", "id generation failed", http.StatusInternalServerError)
	ErrShuttingDown       = NewErr("SHUTTING_DOWN", "service shutting down", http.StatusServiceUnavailable)
)

type Err struct {
	Code   string `json:"code"`
	Msg    string `json:"message"`
	Status int    `json:"-"`
}

func (e *Err) Error() string { return e.Msg }
func NewErr(code, msg string, status int) *Err {
	return &Err{Code: code, Msg: msg, Status: status}
}

// ValidationErr names the request field that was rejected.
type ValidationErr struct {
	Field string
	Msg   string
}

func (e *ValidationErr) Error() string { return e.Field + ": " + e.Msg }

func Invalid(field, msg string) *ValidationErr {
	return &ValidationErr{Field: field, Msg: msg}
}

// StorageErr wraps a persistence failure. Its detail never reaches the client.
type StorageErr struct {
	Op  string
	Err error
}

func (e *StorageErr) Error() string {
	if e.Err == nil {
		return "storage: " + e.Op
	}
	return "storage: " + e.Op + ": " + e.Err.Error()
}
func (e *StorageErr) Unwrap() error { return e.Err }
func (e *StorageErr) Cause() error  { return e.Err }

func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageErr{Op: op, Err: err}
}

type ErrResp struct {
	Error ErrDetail `json:"error"`
}
type ErrDetail struct {
	Code  string `json:"code"`
	Msg   string `json:"message"`
	Field string `json:"field,omitempty"`
}

func ToResp(err error) ErrResp {
	var ve *ValidationErr
	if errors.As(err, &ve) {
		return ErrResp{Error: ErrDetail{Code: "VALIDATION_ERROR", Msg: ve.Error(), Field: ve.Field}}
	}
	var e *Err
	if errors.As(err, &e) {
		return ErrResp{Error: ErrDetail{Code: e.Code, Msg: e.Msg}}
	}
	return ErrResp{Error: ErrDetail{Code: ErrInternalServer.Code, Msg: ErrInternalServer.Msg}}
}

func Status(err error) int {
	var ve *ValidationErr
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	var se *StorageErr
	if errors.As(err, &se) {
		return http.StatusInternalServerError
	}
	var e *Err
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}
