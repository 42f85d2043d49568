package grpc

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"bookvault/pkg/errors"
	"bookvault/pkg/logger"
)

const (
	// TraceIDMetadataKey is the metadata key for trace ID
	TraceIDMetadataKey = "x-trace-id"
)

// UnaryServerInterceptor creates a server interceptor for logging, tracing,
// panic recovery and error handling
func UnaryServerInterceptor(log *logger.Logger, timeout time.Duration) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		traceID := extractTraceID(ctx)
		if traceID == "" {
			traceID = uuid.New().String()
		}
		ctx = logger.WithTraceIDContext(ctx, traceID)
		_ = grpc.SetHeader(ctx, metadata.Pairs(TraceIDMetadataKey, traceID))

		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		resp, err := callUnary(ctx, log, req, handler)

		logFields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
		}

		if err != nil {
			// handlers return domain errors; the status is derived here once
			grpcErr := errors.GRPCStatus(err)
			st, _ := status.FromError(grpcErr)
			logFields = append(logFields, zap.String("grpc_code", st.Code().String()), zap.Error(err))

			if errors.Is(err, errors.CodeInternal) || !isAppError(err) {
				log.WithContext(ctx).Error("grpc request failed", logFields...)
			} else {
				log.WithContext(ctx).Warn("grpc request rejected", logFields...)
			}
			return nil, grpcErr
		}

		log.WithContext(ctx).Info("grpc request completed", logFields...)
		return resp, nil
	}
}

// StreamServerInterceptor creates a stream server interceptor
func StreamServerInterceptor(log *logger.Logger) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()

		traceID := extractTraceID(ss.Context())
		if traceID == "" {
			traceID = uuid.New().String()
		}
		ctx := logger.WithTraceIDContext(ss.Context(), traceID)

		err := callStream(ctx, log, srv, ss, handler)

		log.WithContext(ctx).Info("grpc stream completed",
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)

		return err
	}
}

// callUnary runs the handler and turns a panic into an internal error
func callUnary(ctx context.Context, log *logger.Logger, req interface{}, handler grpc.UnaryHandler) (resp interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(ctx, log, r)
		}
	}()
	return handler(ctx, req)
}

func callStream(ctx context.Context, log *logger.Logger, srv interface{}, ss grpc.ServerStream, handler grpc.StreamHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.GRPCStatus(recovered(ctx, log, r))
		}
	}()
	return handler(srv, ss)
}

func recovered(ctx context.Context, log *logger.Logger, r interface{}) error {
	log.WithContext(ctx).Error("panic recovered",
		zap.Any("panic", r),
		zap.String("stack", string(debug.Stack())),
	)
	return errors.NewInternal("an internal error occurred", fmt.Errorf("panic: %v", r))
}

func extractTraceID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}

	values := md.Get(TraceIDMetadataKey)
	if len(values) > 0 {
		return values[0]
	}
	return ""
}

func isAppError(err error) bool {
	var appErr *errors.AppError
	return errors.As(err, &appErr)
}
