package cmd

import (
	"testing"
	"time"

	"github.com/mulgadc/usermgr/usermgr/manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAttributes(t *testing.T) {
	assert.Equal(t, "", formatAttributes(nil))
	assert.Equal(t, "email=a@x.io,name=Alice", formatAttributes(map[string]string{
		"sub":   "0000",
		"name":  "Alice",
		"email": "a@x.io",
	}))
}

func TestUserTable(t *testing.T) {
	page := &manager.UserPage{Users: []manager.User{
		{Username: "alice", Sub: "s-1", Status: manager.StatusConfirmed, Enabled: true,
			CreatedAt: time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)},
		{Username: "bob", Status: manager.StatusForceChangePassword},
	}}

	data := userTable(page)
	require.Len(t, data, 3)
	assert.Equal(t, "USERNAME", data[0][0])
	assert.Equal(t, []string{"alice", "s-1", "CONFIRMED", "true", "2024-03-01 15:30", ""}, data[1])
	assert.Equal(t, "-", data[2][4])
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"user", "add"}, {"user", "update"}, {"user", "passwd"}, {"user", "delete"}, {"user", "exists"}, {"user", "list"},
		{"group", "add"}, {"group", "delete"}, {"group", "add-user"},
		{"serve", "nats"}, {"serve", "gateway"},
		{"lambda", "usermgr"}, {"lambda", "activity"}, {"lambda", "jwks"},
		{"admin", "init"},
	} {
		c, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], c.Name())
	}
}
