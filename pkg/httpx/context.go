package httpx

type ctxKey string

const (
	// CtxKeyService carries the authenticated calling-service name.
	CtxKeyService ctxKey = "service"
)
