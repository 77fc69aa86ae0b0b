package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateNodeID(t *testing.T) {
	assert.NoError(t, ValidateNodeID(""))
	assert.NoError(t, ValidateNodeID("doc-42"))
	assert.NoError(t, ValidateNodeID("a b"))

	assert.ErrorIs(t, ValidateNodeID(" doc"), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateNodeID("doc "), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateNodeID("doc\x00"), ErrInvalidArgument)
}

func TestValidateLink(t *testing.T) {
	assert.NoError(t, ValidateLink(Link{Kind: "href", Direction: DirectionOut, Tag: "a"}))

	assert.ErrorIs(t, ValidateLink(Link{Direction: DirectionOut, Tag: "a"}), ErrInvalidLink)
	assert.ErrorIs(t, ValidateLink(Link{Kind: "href", Direction: DirectionOut}), ErrInvalidLink)
	assert.ErrorIs(t, ValidateLink(Link{Kind: "href", Direction: "sideways", Tag: "a"}), ErrInvalidLink)
}

func TestValidateNode(t *testing.T) {
	assert.NoError(t, ValidateNode(&Node{Text: "hello"}))
	assert.ErrorIs(t, ValidateNode(nil), ErrInvalidArgument)

	bad := &Node{Text: "x", Links: []Link{{Kind: "", Direction: DirectionOut, Tag: "a"}}}
	assert.ErrorIs(t, ValidateNode(bad), ErrInvalidArgument)
}

func TestValidateLambda(t *testing.T) {
	assert.NoError(t, ValidateLambda(0))
	assert.NoError(t, ValidateLambda(0.5))
	assert.NoError(t, ValidateLambda(1))

	assert.ErrorIs(t, ValidateLambda(-0.1), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateLambda(1.1), ErrInvalidArgument)
}
