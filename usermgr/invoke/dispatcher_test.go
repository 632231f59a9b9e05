package invoke

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mulgadc/usermgr/usermgr/awserrors"
	"github.com/mulgadc/usermgr/usermgr/providers/cognito"
	"github.com/mulgadc/usermgr/usermgr/providers/cognito/cognitotest"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *cognitotest.UserPool) {
	t.Helper()

	pool := cognitotest.NewUserPool("client", "secret")
	b, err := cognito.NewWithClient(pool, cognito.Config{UserPoolID: "pool", ClientID: "client", ClientSecret: "secret"})
	require.NoError(t, err)

	d, err := NewDispatcher(b)
	require.NoError(t, err)
	return d, pool
}

func handle(t *testing.T, d *Dispatcher, req Request) *Response {
	t.Helper()

	data, err := Encode(req, "rid-"+req.Type())
	require.NoError(t, err)

	out, err := d.Handle(context.Background(), data)
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Equal(t, "rid-"+req.Type(), resp.RequestID)
	return &resp
}

func TestNewDispatcher_NilManager(t *testing.T) {
	_, err := NewDispatcher(nil)
	assert.ErrorIs(t, err, awserrors.ErrConfiguration)
}

func TestNewDispatcher_CoversRequestTypes(t *testing.T) {
	d, _ := newTestDispatcher(t)
	for _, typ := range RequestTypes {
		assert.Contains(t, d.handlers, typ)
	}
}

func TestHandle_Scenario(t *testing.T) {
	d, pool := newTestDispatcher(t)

	resp := handle(t, d, AddUserRequest{Username: "alice", Password: "P@ssw0rd!", Attrs: map[string]string{"email": "a@x.io"}})
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Sub)
	assert.NotEmpty(t, *resp.Sub)

	resp = handle(t, d, IsExistUserRequest{Username: "alice"})
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Exists)
	assert.True(t, *resp.Exists)

	resp = handle(t, d, UpdateUserRequest{Username: "alice", Attrs: map[string]string{"name": "Alice"}})
	require.Nil(t, resp.Error)
	attrs, _ := pool.UserAttributes("alice")
	assert.Equal(t, "Alice", attrs["name"])

	require.Nil(t, handle(t, d, SetPasswordRequest{Username: "alice", Password: "Temp-1", Permanent: false}).Error)
	assert.Equal(t, "FORCE_CHANGE_PASSWORD", pool.UserStatus("alice"))

	require.Nil(t, handle(t, d, AddGroupRequest{Groupname: "editors"}).Error)
	require.Nil(t, handle(t, d, AddUserToGroupRequest{Username: "alice", Groupname: "editors"}).Error)

	resp = handle(t, d, ListUsersRequest{Groupname: "editors"})
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Page)
	assert.Equal(t, []string{"alice"}, resp.Page.Usernames())

	require.Nil(t, handle(t, d, DeleteUserRequest{Username: "alice"}).Error)
	require.Nil(t, handle(t, d, DeleteGroupRequest{Groupname: "editors"}).Error)

	resp = handle(t, d, IsExistUserRequest{Username: "alice"})
	require.NotNil(t, resp.Exists)
	assert.False(t, *resp.Exists)
}

func TestHandle_UpstreamError(t *testing.T) {
	d, _ := newTestDispatcher(t)

	resp := handle(t, d, DeleteUserRequest{Username: "ghost"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, awserrors.ErrorUserNotFound, resp.Error.Code)
	assert.Equal(t, awserrors.ErrRemoteService.Error(), resp.Error.Kind)
	assert.NotEmpty(t, resp.Error.Message)
}

func TestHandle_DecodeErrors(t *testing.T) {
	d, _ := newTestDispatcher(t)

	out, err := d.Handle(context.Background(), []byte(`{"type":"rename_user","request_id":"r1"}`))
	require.NoError(t, err)
	var resp Response
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Equal(t, "r1", resp.RequestID)
	require.NotNil(t, resp.Error)
	assert.Equal(t, awserrors.ErrorUnknownRequestType, resp.Error.Code)

	out, err = d.Handle(context.Background(), []byte(`{"type":"add_user","username":"alice"}`))
	require.NoError(t, err)
	resp = Response{}
	require.NoError(t, json.Unmarshal(out, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, awserrors.ErrorValidation, resp.Error.Code)
}

func TestHandleLambda(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	resp, err := d.HandleLambda(ctx, json.RawMessage(`{"type":"add_group","groupname":"editors"}`))
	require.NoError(t, err)
	assert.Nil(t, resp.Error)

	resp, err = d.HandleLambda(ctx, json.RawMessage(`{"type":"add_group","groupname":"editors"}`))
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, awserrors.ErrorGroupExists, resp.Error.Code)

	_, err = d.HandleLambda(ctx, json.RawMessage(`{"type":"drop_table"}`))
	assert.ErrorIs(t, err, ErrUnknownRequestType)

	resp, err = d.HandleLambda(ctx, json.RawMessage(`{"type":"delete_group"}`))
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, awserrors.ErrorValidation, resp.Error.Code)
}

func TestExecute_PointerVariantRejected(t *testing.T) {
	d, _ := newTestDispatcher(t)

	resp := d.Execute(context.Background(), &DeleteUserRequest{Username: "alice"}, "r")
	require.NotNil(t, resp.Error)
	assert.Equal(t, "r", resp.RequestID)
}

func startTestNATSServer(t *testing.T) *server.Server {
	t.Helper()

	opts := &server.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}
	ns, err := server.NewServer(opts)
	require.NoError(t, err)

	go ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second), "NATS server failed to start")

	t.Cleanup(func() { ns.Shutdown() })
	return ns
}

func TestResponder_RoundTrip(t *testing.T) {
	ns := startTestNATSServer(t)
	d, _ := newTestDispatcher(t)

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	r := NewResponder(nc, d, "usermgr.test", "", 5*time.Second)
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	data, err := Encode(AddGroupRequest{Groupname: "editors"}, "r1")
	require.NoError(t, err)

	msg, err := nc.Request("usermgr.test", data, 2*time.Second)
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(msg.Data, &resp))
	assert.Equal(t, "r1", resp.RequestID)
	assert.Nil(t, resp.Error)

	require.NoError(t, r.Stop())
	require.NoError(t, r.Stop())
}
