package types

import "fmt"

// ChatRole represents who authored a chat message
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// IsValid checks if the chat role is valid
func (r ChatRole) IsValid() bool {
	switch r {
	case ChatRoleUser, ChatRoleAssistant:
		return true
	default:
		return false
	}
}

// String returns the string representation of the chat role
func (r ChatRole) String() string {
	return string(r)
}

// ParseChatRole parses a string into a ChatRole
func ParseChatRole(s string) (ChatRole, error) {
	role := ChatRole(s)
	if !role.IsValid() {
		return "", fmt.Errorf("invalid chat role: %s", s)
	}
	return role, nil
}
