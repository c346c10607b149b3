package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNodeGeneratesIdentity(t *testing.T) {
	node, err := NewNode(NodeTypeMerchant, map[string]any{"name": "Netflix", "id": "spoofed"})
	require.NoError(t, err)

	assert.NotEmpty(t, node.ID)
	assert.NotEqual(t, "spoofed", node.ID)
	assert.Equal(t, NodeTypeMerchant, node.Type)
	assert.Equal(t, "Netflix", node.StringProperty("name"))
	assert.NotContains(t, node.Properties, PropID)
	assert.Equal(t, node.CreatedAt, node.UpdatedAt)
}

func TestNewNodeWithIDRejectsInvalidInput(t *testing.T) {
	_, err := NewNodeWithID("", NodeTypeUser, nil, time.Now())
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	_, err = NewNodeWithID("u-1", NodeType("Wallet"), nil, time.Now())
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestUpdatePropertiesProtectsIdentity(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	node, err := NewNodeWithID("u-1", NodeTypeUser, map[string]any{"email": "a@example.com"}, created)
	require.NoError(t, err)

	node.UpdateProperties(map[string]any{
		"email":     "b@example.com",
		"id":        "u-2",
		"createdAt": time.Now(),
		"type":      "Account",
	})

	assert.Equal(t, "u-1", node.ID)
	assert.Equal(t, NodeTypeUser, node.Type)
	assert.Equal(t, created, node.CreatedAt)
	assert.Equal(t, "b@example.com", node.StringProperty("email"))
	assert.True(t, node.UpdatedAt.After(created))

	previous := node.UpdatedAt
	node.UpdateProperties(map[string]any{"name": "Ana"})
	assert.True(t, node.UpdatedAt.After(previous), "updatedAt must advance on every mutation")
}

func TestCanConnectToIsAsymmetric(t *testing.T) {
	user := &Node{ID: "u", Type: NodeTypeUser}
	account := &Node{ID: "a", Type: NodeTypeAccount}

	assert.True(t, user.CanConnectTo(NodeTypeAccount))
	assert.False(t, account.CanConnectTo(NodeTypeUser))
	assert.True(t, account.CanConnectTo(NodeTypeTransaction))
	assert.False(t, (&Node{Type: NodeTypeTag}).CanConnectTo(NodeTypeUser))
}

func TestFloatProperty(t *testing.T) {
	node := &Node{Properties: map[string]any{"a": 1.5, "b": int64(2), "c": "x"}}

	v, ok := node.FloatProperty("a")
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)

	v, ok = node.FloatProperty("b")
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)

	_, ok = node.FloatProperty("c")
	assert.False(t, ok)
}
