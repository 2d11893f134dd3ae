package service

import (
	"errors"

	"connectrpc.com/connect"

	"github.com/mmynk/ubupresent/internal/errs"
)

// connectError maps a registry error to a Connect error. Only the detail is sent to
// the caller; wrapped store errors stay in the logs.
func connectError(err error) *connect.Error {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr
	}
	return connect.NewError(CodeOf(errs.KindOf(err)), errors.New(errs.DetailOf(err)))
}

// CodeOf returns the Connect code for an error kind.
func CodeOf(kind errs.Kind) connect.Code {
	switch kind {
	case errs.KindValidation:
		return connect.CodeInvalidArgument
	case errs.KindNotFound:
		return connect.CodeNotFound
	case errs.KindAuth:
		return connect.CodeUnauthenticated
	case errs.KindPersistence:
		return connect.CodeUnavailable
	default:
		return connect.CodeInternal
	}
}
