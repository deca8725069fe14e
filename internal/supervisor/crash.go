package supervisor

import (
	"encoding/json"
	"fmt"

	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/process"
	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/session"
)

// crashError synthesizes the `-32603` JSON-RPC error the spec requires when
// a child exits unexpectedly while a request is outstanding: message names
// "terminated unexpectedly" plus the human-readable exit translation, and
// data.method names the crashed request.
func crashError(pending *session.PendingRequest, result process.ExitResult) ([]byte, error) {
	data, err := json.Marshal(struct {
		Method string `json:"method"`
	}{Method: pending.Method})
	if err != nil {
		return nil, err
	}

	msg := struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Error   struct {
			Code    int             `json:"code"`
			Message string          `json:"message"`
			Data    json.RawMessage `json:"data"`
		} `json:"error"`
	}{
		JSONRPC: "2.0",
		ID:      json.RawMessage(pending.ID),
	}
	msg.Error.Code = -32603
	msg.Error.Message = fmt.Sprintf("Child process terminated unexpectedly: %s", process.ExitDescription(result))
	msg.Error.Data = data

	encoded, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return append(encoded, '\n'), nil
}

// toolsListChangedNotification is sent to the client after every successful
// restart, unconditionally, per the resolved Open Question in DESIGN.md.
func toolsListChangedNotification() []byte {
	return []byte(`{"jsonrpc":"2.0","method":"notifications/tools/list_changed","params":{}}` + "\n")
}
