package protocol

// WebSocket event names pushed from server to client.
const (
	EventAgent     = "agent"
	EventChat      = "chat"
	EventHealth    = "health"
	EventHeartbeat = "heartbeat"
	EventPresence  = "presence"
	EventTick      = "tick"
	EventShutdown  = "shutdown"

	// Canvas artifacts produced by the render_canvas tool.
	EventCanvas = "canvas"

	// Pairing lifecycle (payload: channel, code, user_id, username).
	EventPairingRequested = "pairing.requested"
	EventPairingResolved  = "pairing.resolved"

	// Approval lifecycle (payload: id, agent, action, risk, status).
	EventApprovalRequested = "approval.requested"
	EventApprovalResolved  = "approval.resolved"

	// Delivery queue transitions (payload: id, channel, status, attempts).
	EventDelivery = "delivery"

	// Cache invalidation events (internal, not forwarded to WS clients).
	EventCacheInvalidate = "cache.invalidate"
)

// Agent event subtypes (in payload.type)
const (
	AgentEventRunStarted   = "run.started"
	AgentEventRunCompleted = "run.completed"
	AgentEventRunFailed    = "run.failed"
	AgentEventToolCall     = "tool.call"
	AgentEventToolResult   = "tool.result"
	AgentEventExtraction   = "extraction"
)

// Chat event subtypes (in payload.type)
const (
	ChatEventChunk    = "chunk"
	ChatEventMessage  = "message"
	ChatEventThinking = "thinking"
)
