package contract

import (
	"context"

	"okinoko_treasury/sdk"
)

type callerKey struct{}

// WithCaller attaches the verified caller identity to ctx. The host (API
// middleware, CLI) is responsible for authenticating it.
func WithCaller(ctx context.Context, caller sdk.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the identity attached by WithCaller.
func CallerFrom(ctx context.Context) (sdk.Address, bool) {
	caller, ok := ctx.Value(callerKey{}).(sdk.Address)
	if !ok || caller == "" {
		return "", false
	}
	return caller, true
}

// getSenderAddress returns the caller of the current operation.
func getSenderAddress(ctx context.Context) (sdk.Address, error) {
	caller, ok := CallerFrom(ctx)
	if !ok {
		return "", newError(KindInvalidPayload, "missing caller identity")
	}
	return caller, nil
}
