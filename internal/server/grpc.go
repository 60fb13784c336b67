package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/ocr-enricher/internal/common"
	"github.com/joseph-ayodele/ocr-enricher/internal/services/jobs"
)

// JobServiceName is the fully-qualified gRPC service name.
const JobServiceName = "ocrjobs.v1.JobService"

// Messages are google.protobuf.Struct so the service needs no generated code.
// Submit takes {document_b64, strategy, cache_enabled, prompt, model, fingerprint, source}.
type JobServiceServer interface {
	Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetProgress(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetResult(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	WatchProgress(req *structpb.Struct, stream grpc.ServerStream) error
}

// GRPCServer implements JobServiceServer over the jobs service.
type GRPCServer struct {
	jobs   JobService
	opts   Options
	logger *slog.Logger
}

func NewGRPCServer(svc JobService, opts Options, logger *slog.Logger) *GRPCServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCServer{jobs: svc, opts: opts, logger: logger}
}

func RegisterJobServiceServer(s grpc.ServiceRegistrar, srv JobServiceServer) {
	s.RegisterService(&jobServiceDesc, srv)
}

func (s *GRPCServer) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	doc, err := base64.StdEncoding.DecodeString(f["document_b64"].GetStringValue())
	if err != nil {
		return nil, common.InvalidArgumentErrorf("document_b64 is not valid base64: %v", err)
	}
	if int64(len(doc)) > s.opts.MaxUploadBytes && s.opts.MaxUploadBytes > 0 {
		return nil, status.Errorf(codes.ResourceExhausted, "document exceeds %d bytes", s.opts.MaxUploadBytes)
	}
	strategy := f["strategy"].GetStringValue()
	if strategy == "" {
		strategy = s.opts.DefaultStrategy
	}
	cacheEnabled := s.opts.DefaultCacheEnabled
	if v, ok := f["cache_enabled"]; ok {
		cacheEnabled = v.GetBoolValue()
	}

	job, err := s.jobs.Submit(ctx, jobs.SubmitRequest{
		Document:     doc,
		Strategy:     strategy,
		Fingerprint:  f["fingerprint"].GetStringValue(),
		CacheEnabled: cacheEnabled,
		Prompt:       f["prompt"].GetStringValue(),
		Model:        f["model"].GetStringValue(),
		Source:       f["source"].GetStringValue(),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(toJobResponse(job))
}

func (s *GRPCServer) GetProgress(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rep, err := s.jobs.Progress(ctx, jobID(req))
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(rep)
}

func (s *GRPCServer) GetResult(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := jobID(req)
	text, err := s.jobs.Result(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"id": id, "result": text})
}

func (s *GRPCServer) WatchProgress(req *structpb.Struct, stream grpc.ServerStream) error {
	ctx := stream.Context()
	reports, cancel, err := s.jobs.Watch(ctx, jobID(req))
	if err != nil {
		return toStatus(err)
	}
	defer cancel()
	for {
		select {
		case rep, ok := <-reports:
			if !ok {
				return nil
			}
			msg, err := toStruct(rep)
			if err != nil {
				return err
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func jobID(req *structpb.Struct) string {
	return req.GetFields()["id"].GetStringValue()
}

// toStatus keeps the error text and picks the code from the error chain.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(common.Code(err), err.Error())
}

// toStruct converts a JSON-tagged value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return structpb.NewStruct(m)
}

// UnaryLogger logs one line per unary call.
func UnaryLogger(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc.request",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}

func unaryHandler(call func(JobServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error), method string) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(JobServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + JobServiceName + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(JobServiceServer), ctx, req.(*structpb.Struct))
		})
	}
}

var jobServiceDesc = grpc.ServiceDesc{
	ServiceName: JobServiceName,
	HandlerType: (*JobServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: unaryHandler(JobServiceServer.Submit, "Submit")},
		{MethodName: "GetProgress", Handler: unaryHandler(JobServiceServer.GetProgress, "GetProgress")},
		{MethodName: "GetResult", Handler: unaryHandler(JobServiceServer.GetResult, "GetResult")},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchProgress",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(structpb.Struct)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(JobServiceServer).WatchProgress(in, stream)
			},
		},
	},
	Metadata: "ocrjobs/v1/jobs.proto",
}
