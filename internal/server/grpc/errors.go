package grpcserver

import (
	"context"
	"errors"

	"github.com/rzbill/eventbus/pkg/errmodel"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// toStatus maps a service error onto a gRPC status. The errmodel category
// and code travel as a Struct detail so clients can rebuild the error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	ce := errmodel.From(err)
	code := codes.Internal
	switch ce.Category {
	case errmodel.CategoryValidation:
		code = codes.InvalidArgument
	case errmodel.CategoryStorage:
		code = codes.Unavailable
	}
	st := status.New(code, ce.Message)
	detail, derr := structpb.NewStruct(map[string]any{"category": ce.Category, "code": ce.Code})
	if derr != nil {
		return st.Err()
	}
	if withDetail, werr := st.WithDetails(detail); werr == nil {
		st = withDetail
	}
	return st.Err()
}

// FromStatus rebuilds an errmodel error from a status produced by toStatus.
// Errors without a detail are returned unchanged.
func FromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok || st == nil {
		return err
	}
	for _, d := range st.Details() {
		s, ok := d.(*structpb.Struct)
		if !ok {
			continue
		}
		m := s.AsMap()
		category, _ := m["category"].(string)
		code, _ := m["code"].(string)
		if category == "" || code == "" {
			continue
		}
		return errmodel.New(category, code, st.Message(), nil)
	}
	return err
}

func invalidRequest(err error) error {
	return toStatus(errmodel.Validation("invalid_request", "invalid request envelope: "+err.Error(), nil))
}
