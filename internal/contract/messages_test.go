package contract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExecMsg(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "freeze", raw: `{"freeze":{}}`, want: KindFreeze},
		{name: "update admins", raw: `{"update_admins":{"admins":["alice","bob"]}}`, want: KindUpdateAdmins},
		{name: "update admins empty", raw: `{"update_admins":{"admins":[]}}`, want: KindUpdateAdmins},
		{name: "execute", raw: `{"execute":{"msgs":[{"bank":{}},"x",3]}}`, want: KindExecute},
		{name: "two variants", raw: `{"freeze":{},"execute":{"msgs":[]}}`, wantErr: true},
		{name: "no variant", raw: `{}`, wantErr: true},
		{name: "unknown variant", raw: `{"unfreeze":{}}`, wantErr: true},
		{name: "extra field", raw: `{"freeze":{"now":true}}`, wantErr: true},
		{name: "admins not strings", raw: `{"update_admins":{"admins":[1]}}`, wantErr: true},
		{name: "missing msgs", raw: `{"execute":{}}`, wantErr: true},
		{name: "not json", raw: `freeze`, wantErr: true},
		{name: "not an object", raw: `["freeze"]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseExecMsg([]byte(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.Kind())
		})
	}
}

func TestParseExecMsg_PreservesActionBytes(t *testing.T) {
	msg, err := ParseExecMsg([]byte(`{"execute":{"msgs":[{"b": 1,  "a":2}]}}`))
	require.NoError(t, err)
	require.Len(t, msg.Execute.Msgs, 1)
	assert.Equal(t, `{"b": 1,  "a":2}`, string(msg.Execute.Msgs[0]))
}

func TestParseQueryMsg(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "admin list", raw: `{"admin_list":{}}`, want: KindAdminList},
		{name: "can execute", raw: `{"can_execute":{"sender":"alice","msg":{"any":1}}}`, want: KindCanExecute},
		{name: "contract info", raw: `{"contract_info":{}}`, want: KindContractInfo},
		{name: "can execute missing msg", raw: `{"can_execute":{"sender":"alice"}}`, wantErr: true},
		{name: "two variants", raw: `{"admin_list":{},"contract_info":{}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseQueryMsg([]byte(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.Kind())
		})
	}
}

func TestParseInstantiateMsg(t *testing.T) {
	msg, err := ParseInstantiateMsg([]byte(`{"admins":["alice","carl"],"mutable":false}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carl"}, msg.Admins)
	assert.False(t, msg.Mutable)

	_, err = ParseInstantiateMsg([]byte(`{"admins":["alice"]}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestExecMsg_MarshalShape(t *testing.T) {
	tests := []struct {
		msg  ExecMsg
		want string
	}{
		{ExecMsg{Freeze: &FreezeMsg{}}, `{"freeze":{}}`},
		{ExecMsg{UpdateAdmins: &UpdateAdminsMsg{Admins: []string{"alice"}}}, `{"update_admins":{"admins":["alice"]}}`},
		{ExecMsg{Execute: &ExecuteMsg{Msgs: []json.RawMessage{json.RawMessage(`{}`)}}}, `{"execute":{"msgs":[{}]}}`},
	}
	for _, tt := range tests {
		data, err := json.Marshal(tt.msg)
		require.NoError(t, err)
		assert.JSONEq(t, tt.want, string(data))
	}
}

func TestSchemaJSON(t *testing.T) {
	for _, name := range []string{SchemaInstantiate, SchemaExec, SchemaQuery} {
		data, err := SchemaJSON(name)
		require.NoError(t, err)
		assert.True(t, json.Valid(data), name)
	}
	_, err := SchemaJSON("nope")
	assert.Error(t, err)
}
