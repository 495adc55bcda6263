package frames

const (
	MetaSessionID   = "session_id"
	MetaTraceID     = "trace_id"
	MetaSource      = "source"
	MetaToolName    = "tool_name"
	MetaAgent       = "agent"
	MetaAgentKey    = "agent_key"
	MetaAgentName   = "agent_name"
	MetaAgentStatus = "agent_status"
	MetaIntent      = "intent"
	MetaReason      = "reason"
	MetaAttempt     = "attempt"
	MetaCloseCode   = "close_code"
	MetaDelayMS     = "delay_ms"
	MetaTimestamp   = "timestamp"
)
