package context

import (
	stdcontext "context"
	"strings"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	actorKey
	clientIPKey
	userAgentKey
)

type actor struct {
	actorType string
	actorID   string
}

const (
	ActorTypeAPIKey = "api_key"
	ActorTypeSystem = "system"
)

func WithRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	return stdcontext.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithActor records who performs the current request.
func WithActor(ctx stdcontext.Context, actorType, actorID string) stdcontext.Context {
	return stdcontext.WithValue(ctx, actorKey, actor{
		actorType: strings.TrimSpace(actorType),
		actorID:   strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx stdcontext.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	a, ok := ctx.Value(actorKey).(actor)
	if !ok {
		return "", ""
	}
	return a.actorType, a.actorID
}

func WithClientIP(ctx stdcontext.Context, ip string) stdcontext.Context {
	return stdcontext.WithValue(ctx, clientIPKey, strings.TrimSpace(ip))
}

func ClientIPFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(clientIPKey).(string)
	return v
}

func WithUserAgent(ctx stdcontext.Context, ua string) stdcontext.Context {
	return stdcontext.WithValue(ctx, userAgentKey, strings.TrimSpace(ua))
}

func UserAgentFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(userAgentKey).(string)
	return v
}
