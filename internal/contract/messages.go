// ABOUTME: Tagged-variant message types for instantiate, exec and query
// ABOUTME: Exactly one variant is set; JSON shape is {"<variant>": {...}}

package contract

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidMessage is returned for malformed or schema-violating messages.
var ErrInvalidMessage = errors.New("invalid message")

func invalidMessage(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
}

// Variant names.
const (
	KindFreeze       = "freeze"
	KindUpdateAdmins = "update_admins"
	KindExecute      = "execute"
	KindAdminList    = "admin_list"
	KindCanExecute   = "can_execute"
	KindContractInfo = "contract_info"
)

// InstantiateMsg creates the registry.
type InstantiateMsg struct {
	Admins  []string `json:"admins"`
	Mutable bool     `json:"mutable"`
}

// ExecMsg is a state-changing command. Exactly one field is set.
type ExecMsg struct {
	Freeze       *FreezeMsg       `json:"freeze,omitempty"`
	UpdateAdmins *UpdateAdminsMsg `json:"update_admins,omitempty"`
	Execute      *ExecuteMsg      `json:"execute,omitempty"`
}

// FreezeMsg has no fields.
type FreezeMsg struct{}

// UpdateAdminsMsg replaces the admin set.
type UpdateAdminsMsg struct {
	Admins []string `json:"admins"`
}

// ExecuteMsg carries opaque actions to forward.
type ExecuteMsg struct {
	Msgs []json.RawMessage `json:"msgs"`
}

// Kind returns the name of the set variant, or "" if none or several are set.
func (m *ExecMsg) Kind() string {
	kinds := make([]string, 0, 1)
	if m.Freeze != nil {
		kinds = append(kinds, KindFreeze)
	}
	if m.UpdateAdmins != nil {
		kinds = append(kinds, KindUpdateAdmins)
	}
	if m.Execute != nil {
		kinds = append(kinds, KindExecute)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// QueryMsg is a read-only request. Exactly one field is set.
type QueryMsg struct {
	AdminList    *AdminListQuery    `json:"admin_list,omitempty"`
	CanExecute   *CanExecuteQuery   `json:"can_execute,omitempty"`
	ContractInfo *ContractInfoQuery `json:"contract_info,omitempty"`
}

// AdminListQuery has no fields.
type AdminListQuery struct{}

// CanExecuteQuery asks whether Sender may execute Msg.
type CanExecuteQuery struct {
	Sender string          `json:"sender"`
	Msg    json.RawMessage `json:"msg"`
}

// ContractInfoQuery has no fields.
type ContractInfoQuery struct{}

// CanExecuteResponse answers a CanExecuteQuery.
type CanExecuteResponse struct {
	CanExecute bool `json:"can_execute"`
}

// Kind returns the name of the set variant, or "" if none or several are set.
func (m *QueryMsg) Kind() string {
	kinds := make([]string, 0, 1)
	if m.AdminList != nil {
		kinds = append(kinds, KindAdminList)
	}
	if m.CanExecute != nil {
		kinds = append(kinds, KindCanExecute)
	}
	if m.ContractInfo != nil {
		kinds = append(kinds, KindContractInfo)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// ParseInstantiateMsg validates raw against the instantiate schema and decodes it.
func ParseInstantiateMsg(raw []byte) (*InstantiateMsg, error) {
	if err := validate(SchemaInstantiate, raw); err != nil {
		return nil, err
	}
	var msg InstantiateMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, invalidMessage(err)
	}
	return &msg, nil
}

// ParseExecMsg validates raw against the exec schema and decodes it.
func ParseExecMsg(raw []byte) (*ExecMsg, error) {
	if err := validate(SchemaExec, raw); err != nil {
		return nil, err
	}
	var msg ExecMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, invalidMessage(err)
	}
	if msg.Kind() == "" {
		return nil, invalidMessage(errors.New("exactly one variant must be set"))
	}
	return &msg, nil
}

// ParseQueryMsg validates raw against the query schema and decodes it.
func ParseQueryMsg(raw []byte) (*QueryMsg, error) {
	if err := validate(SchemaQuery, raw); err != nil {
		return nil, err
	}
	var msg QueryMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, invalidMessage(err)
	}
	if msg.Kind() == "" {
		return nil, invalidMessage(errors.New("exactly one variant must be set"))
	}
	return &msg, nil
}
