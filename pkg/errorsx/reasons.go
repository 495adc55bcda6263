package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonDecodeNoResponse ReasonCode = "decode_no_response"
	ReasonDecodeParse      ReasonCode = "decode_parse"

	ReasonTransportConnect ReasonCode = "transport_connect"
	ReasonTransportRead    ReasonCode = "transport_read"
	ReasonTransportClosed  ReasonCode = "transport_closed"

	ReasonAgentHTTP      ReasonCode = "agent_http"
	ReasonAgentRateLimit ReasonCode = "agent_rate_limit"
	ReasonAgentUnknown   ReasonCode = "agent_unknown"

	ReasonConfigInvalid ReasonCode = "config_invalid"
)
