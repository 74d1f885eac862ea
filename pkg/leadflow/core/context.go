package core

type ctxKey string

const (
	CtxKeyExecutorId ctxKey = ctxKey("executorId")
	CtxKeyRequestId  ctxKey = ctxKey("requestId")
)
