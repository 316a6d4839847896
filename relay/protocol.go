// Package relay is the gateway itself: the WebSocket protocol state
// machine, session registry with pattern fan-out, the REST surface, and
// the handlers behind both.
package relay

import (
	"encoding/json"
	"time"
)

// Inbound frame types (closed set)
const (
	TypeAuth            = "auth"
	TypePing            = "ping"
	TypeJobSubmit       = "job:submit"
	TypeJobCancel       = "job:cancel"
	TypeChatSend        = "chat:send"
	TypeChatAbort       = "chat:abort"
	TypeSystemStatus    = "system:status"
	TypeSystemSubscribe = "system:subscribe"
	TypeCmdExecute      = "cmd:execute"
	TypeTraceStatus     = "trace:status"
	TypeTraceCancelTask = "trace:cancel-task"
)

// Outbound frame types
const (
	TypeAuthAck          = "auth-ack"
	TypePong             = "pong"
	TypeError            = "error"
	TypeStatusResponse   = "system:status-response"
	TypeSystemEvent      = "system:event"
	TypeJobSubmitted     = "job:submitted"
	TypeJobStatus        = "job:status"
	TypeJobComplete      = "job:complete"
	TypeChatDelta        = "chat:delta"
	TypeChatTool         = "chat:tool"
	TypeChatFinal        = "chat:final"
	TypeCmdResult        = "cmd:result"
	TypeTraceStatusResp  = "trace:status-response"
	TypeTraceCancelResp  = "trace:cancel-task-result"
	TypeTraceProgress    = "trace:progress"
)

// Error codes (closed set)
const (
	ErrCodeInvalidJSON        = "INVALID_JSON"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeNotAuthenticated   = "NOT_AUTHENTICATED"
	ErrCodeUnknownMessageType = "UNKNOWN_MESSAGE_TYPE"
	ErrCodeJobSubmitFailed    = "JOB_SUBMIT_FAILED"
	ErrCodeJobCancelFailed    = "JOB_CANCEL_FAILED"
	ErrCodeNoAPIKey           = "NO_API_KEY"
	ErrCodeChatError          = "CHAT_ERROR"
	ErrCodeChatTimeout        = "CHAT_TIMEOUT"
	ErrCodeTraceStatusFailed  = "TRACE_STATUS_FAILED"
	ErrCodeTaskCancelFailed   = "TASK_CANCEL_FAILED"
)

// InboundMessage is the decoded client frame. The wire payloads are
// open-ended maps; one struct with the union of recognized fields keeps
// decoding in one place, and the dispatch switch rejects unknown types.
type InboundMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`

	// auth
	APIKey     string `json:"apiKey,omitempty"`
	ClientID   string `json:"clientId,omitempty"`
	ClientType string `json:"clientType,omitempty"`

	// job:submit / job:cancel
	Instruction     string `json:"instruction,omitempty"`
	JobType         string `json:"jobType,omitempty"`
	Priority        int    `json:"priority,omitempty"`
	SecurityProfile string `json:"securityProfile,omitempty"`
	JobID           string `json:"jobId,omitempty"`

	// chat
	Content       string `json:"content,omitempty"`
	ThreadID      string `json:"threadId,omitempty"`
	ModelOverride string `json:"modelOverride,omitempty"`
	ThinkingLevel string `json:"thinkingLevel,omitempty"`

	// system:subscribe
	Events []string `json:"events,omitempty"`

	// cmd:execute
	Command string `json:"command,omitempty"`
	Args    string `json:"args,omitempty"`

	// trace:cancel-task
	TaskID string `json:"taskId,omitempty"`
}

// OutboundMessage is the generic server frame. Fields are omitted when
// empty, so one shape serves every outbound kind.
type OutboundMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`

	// auth-ack
	Success       *bool  `json:"success,omitempty"`
	SessionToken  string `json:"sessionToken,omitempty"`
	ServerVersion string `json:"serverVersion,omitempty"`

	// error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	ErrText string `json:"error,omitempty"`

	// pong
	Timestamp int64 `json:"timestamp,omitempty"`

	// job frames
	JobID  string `json:"jobId,omitempty"`
	Status string `json:"status,omitempty"`
	Result string `json:"result,omitempty"`

	// chat frames
	Delta   string          `json:"delta,omitempty"`
	Index   *int            `json:"index,omitempty"`
	Content string          `json:"content,omitempty"`
	Tool    json.RawMessage `json:"tool,omitempty"`

	// cmd:result
	Output string `json:"output,omitempty"`

	// system:event and status/trace payloads
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`

	CreatedAt string `json:"createdAt,omitempty"`
}

// errorFrame builds a protocol error frame
func errorFrame(code, message, requestID string) OutboundMessage {
	return OutboundMessage{
		Type:      TypeError,
		Code:      code,
		Message:   message,
		RequestID: requestID,
	}
}

// pongFrame answers a ping
func pongFrame() OutboundMessage {
	return OutboundMessage{Type: TypePong, Timestamp: time.Now().UnixMilli()}
}

func boolPtr(b bool) *bool { return &b }
func intPtr(n int) *int    { return &n }
