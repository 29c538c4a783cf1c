package grpcserver

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "eventbus.v1.EventBus"

// Method names exposed by the EventBus service.
const (
	MethodHealth        = "Health"
	MethodPublish       = "Publish"
	MethodChannels      = "Channels"
	MethodEvents        = "Events"
	MethodPoll          = "Poll"
	MethodCommit        = "Commit"
	MethodResetConsumer = "ResetConsumer"
	MethodOffset        = "Offset"
	MethodOverview      = "Overview"
	MethodReset         = "Reset"
)

// FullMethod returns the invoke path for a method, e.g. /eventbus.v1.EventBus/Poll.
func FullMethod(name string) string { return "/" + ServiceName + "/" + name }

// EventBusServer is implemented by the gRPC adapter. Requests and responses
// are Struct envelopes with the same JSON shapes as the HTTP API.
type EventBusServer interface {
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Publish(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Channels(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Events(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Poll(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Commit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResetConsumer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Offset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Overview(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reset(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryFunc func(EventBusServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(EventBusServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(EventBusServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes eventbus.v1.EventBus for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EventBusServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(MethodHealth, EventBusServer.Health),
		unaryHandler(MethodPublish, EventBusServer.Publish),
		unaryHandler(MethodChannels, EventBusServer.Channels),
		unaryHandler(MethodEvents, EventBusServer.Events),
		unaryHandler(MethodPoll, EventBusServer.Poll),
		unaryHandler(MethodCommit, EventBusServer.Commit),
		unaryHandler(MethodResetConsumer, EventBusServer.ResetConsumer),
		unaryHandler(MethodOffset, EventBusServer.Offset),
		unaryHandler(MethodOverview, EventBusServer.Overview),
		unaryHandler(MethodReset, EventBusServer.Reset),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "eventbus/v1/eventbus.proto",
}

// Encode converts any JSON-marshalable value into a Struct envelope.
func Encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Decode fills dst from a Struct envelope. A nil envelope leaves dst untouched.
// The round trip goes through encoding/json so embedded payloads come out
// compact and stable.
func Decode(s *structpb.Struct, dst any) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
