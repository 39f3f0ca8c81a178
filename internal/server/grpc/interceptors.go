package grpcserver

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}

func logCall(log *zap.Logger, method string, err error, start time.Time, remote string) {
	log.Info("grpc",
		zap.String("method", method),
		zap.String("code", status.Code(err).String()),
		zap.Duration("dur", time.Since(start)),
		zap.String("peer", remote),
	)
}

// LoggingUnary returns a unary server interceptor for structured logging.
// Only call metadata is logged, never payloads.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		logCall(log, info.FullMethod, err, start, peerAddr(ctx))
		return resp, err
	}
}

// LoggingStream logs one line per stream when it ends (health Watch streams are long lived).
func LoggingStream(log *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		start := time.Now()
		err := next(srv, ss)
		logCall(log, info.FullMethod, err, start, peerAddr(ss.Context()))
		return err
	}
}

func recovered(log *zap.Logger, method string, r any) error {
	log.Error("panic",
		zap.Any("reason", r),
		zap.ByteString("stack", debug.Stack()),
		zap.String("method", method),
	)
	return status.Error(codes.Internal, "internal")
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = recovered(log, info.FullMethod, r)
			}
		}()
		return next(ctx, req)
	}
}

// RecoverStream is the streaming counterpart of RecoverUnary.
func RecoverStream(log *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = recovered(log, info.FullMethod, r)
			}
		}()
		return next(srv, ss)
	}
}
