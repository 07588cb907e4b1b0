package observability

const (
	AttrServiceName    = "service.name"
	AttrServiceVersion = "service.version"
	AttrLimitKey       = "ratelimit.key"
	AttrLimitDecision  = "ratelimit.decision"
	AttrLimitRemaining = "ratelimit.remaining"
	AttrLLMModel       = "llm.model"
	AttrLLMTokensIn    = "llm.tokens.input"
	AttrLLMTokensOut   = "llm.tokens.output"
	AttrErrorType      = "error.type"
	AttrHTTPMethod     = "http.method"
	AttrHTTPPath       = "http.path"
	AttrHTTPStatusCode = "http.status_code"

	SpanLimitCheck = "ratelimit.check"
	SpanLLMRequest = "llm.request"
	SpanHTTPServe  = "http.request"

	DecisionAllowed   = "allowed"
	DecisionThrottled = "throttled"

	DefaultServiceName = "aiasgate"
)
