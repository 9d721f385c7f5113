// ABOUTME: Response and Attribute types returned by successful entry points
// ABOUTME: The action attribute marks which entry point produced the response

package whitelist

import "encoding/json"

// Action attribute values.
const (
	ActionInstantiate  = "instantiate"
	ActionUpdateAdmins = "update_admins"
	ActionFreeze       = "freeze"
	ActionExecute      = "execute"
)

// Attribute is a key/value pair attached to a response for event consumers.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Response is the result of a successful state-changing entry point.
type Response struct {
	// Messages are the opaque actions re-emitted by execute, in input order.
	Messages   []json.RawMessage `json:"messages,omitempty"`
	Attributes []Attribute       `json:"attributes"`
}

// NewResponse returns a response carrying action=<action>.
func NewResponse(action string) *Response {
	return &Response{
		Attributes: []Attribute{{Key: "action", Value: action}},
	}
}

// Action returns the value of the action attribute, or "".
func (r *Response) Action() string {
	for _, a := range r.Attributes {
		if a.Key == "action" {
			return a.Value
		}
	}
	return ""
}

// AdminList is the admin_list query result.
type AdminList struct {
	Admins  []string `json:"admins"`
	Mutable bool     `json:"mutable"`
}

// ContractInfo is the contract_info query result.
type ContractInfo struct {
	Contract string `json:"contract"`
	Version  string `json:"version"`
}
