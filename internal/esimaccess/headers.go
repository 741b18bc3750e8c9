package esimaccess

// Authentication headers required on every upstream request.
const (
	HeaderAccessCode = "RT-AccessCode"
	HeaderTimestamp  = "RT-Timestamp"
	HeaderRequestID  = "RT-RequestID"
	HeaderSignature  = "RT-Signature"
)

// Upstream endpoint paths, relative to the configured base URL.
const (
	PathPackageList  = "/package/list"
	PathLocationList = "/location/list"
	PathOrder        = "/esim/order"
	PathQuery        = "/esim/query"
	PathCancel       = "/esim/cancel"
	PathSuspend      = "/esim/suspend"
	PathUnsuspend    = "/esim/unsuspend"
	PathRevoke       = "/esim/revoke"
	PathTopup        = "/esim/topup"
	PathUsageQuery   = "/esim/usage/query"
	PathBalanceQuery = "/balance/query"
)
