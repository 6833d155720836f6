package protocol

// RPC method name constants accepted over the dashboard WebSocket.

const (
	// Chat
	MethodChatSend    = "chat.send"
	MethodChatHistory = "chat.history"

	// Listings
	MethodAgentsList = "agents.list"
	MethodSkillsList = "skills.list"

	// Costs and audit
	MethodCosts = "costs"
	MethodAudit = "audit"

	// Memory
	MethodMemorySearch = "memory.search"

	// Pairing
	MethodPairingPending = "pairing.pending"
	MethodPairingApprove = "pairing.approve"

	// Approvals
	MethodApprovalsList    = "approvals.list"
	MethodApprovalsApprove = "approvals.approve"
	MethodApprovalsDeny    = "approvals.deny"

	// System
	MethodConnect = "connect"
	MethodHealth  = "health"
	MethodStatus  = "status"
)
