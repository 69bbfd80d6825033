package grpcserver

import (
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"scalex/domain/errs"
	"scalex/domain/orderbook"
	"scalex/service"
)

const errorDomain = "scalex"

// toStatus maps core errors to gRPC statuses. The error code and its
// fields travel as an ErrorInfo detail.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := codeFor(err)
	st := status.New(code, err.Error())
	if reason := errs.CodeOf(err); reason != "" {
		if withInfo, derr := st.WithDetails(&errdetails.ErrorInfo{
			Reason:   reason,
			Domain:   errorDomain,
			Metadata: errs.Details(err),
		}); derr == nil {
			st = withInfo
		}
	}
	return st.Err()
}

func codeFor(err error) codes.Code {
	if errors.Is(err, service.ErrPoolNotFound) || errors.Is(err, orderbook.ErrOrderNotFound) {
		return codes.NotFound
	}
	if errors.Is(err, service.ErrDuplicatePool) {
		return codes.AlreadyExists
	}
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return codes.InvalidArgument
	case errs.KindState, errs.KindSolvency:
		return codes.FailedPrecondition
	case errs.KindMarket:
		return codes.Aborted
	case errs.KindAuthorization:
		return codes.PermissionDenied
	default:
		return codes.Internal
	}
}

func invalid(field string, err error) error {
	return status.Errorf(codes.InvalidArgument, "%s: %v", field, err)
}
