package gateway

import (
	"context"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// metadataAuthorization is the gRPC metadata key for the bearer token.
const metadataAuthorization = "authorization"

// UnaryServerInterceptor returns a gRPC unary server interceptor that
// applies c to the incoming authorization metadata.
//
// Rejections become codes.Unauthenticated (401 outcomes) or codes.Internal
// (500 outcomes) carrying the body message. On forward the handler sees
// the internal token in place of the original authorization metadata and
// the tenant in its context.
func UnaryServerInterceptor(c *Controller) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		_ *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := authorizeGRPC(ctx, c)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming counterpart of
// [UnaryServerInterceptor].
func StreamServerInterceptor(c *Controller) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		_ *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := authorizeGRPC(ss.Context(), c)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

func authorizeGRPC(ctx context.Context, c *Controller) (context.Context, error) {
	md, _ := metadata.FromIncomingContext(ctx)

	var authorization string
	if values := md.Get(metadataAuthorization); len(values) > 0 {
		authorization = values[0]
	}

	out := c.Handle(ctx, authorization)
	if !out.Forward {
		code := codes.Unauthenticated
		if out.Status >= http.StatusInternalServerError {
			code = codes.Internal
		}
		return ctx, status.Error(code, out.Body.Message)
	}

	md = md.Copy()
	md.Set(metadataAuthorization, out.Authorization)
	ctx = metadata.NewIncomingContext(ctx, md)
	return ContextWithTenant(ctx, out.TenantID), nil
}

// wrappedServerStream overrides Context so stream handlers see the
// rewritten metadata.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
