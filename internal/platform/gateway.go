// Package platform defines the capability set this engine consumes from the
// chat platform. The engine never talks to the platform API directly; all
// channel, container, ACL and message operations go through Gateway so the
// adapter can be swapped for a bridge client or a test double.
package platform

import (
	"context"
	"time"
)

// Permission names a channel capability grant.
type Permission string

const (
	PermView          Permission = "view"
	PermSend          Permission = "send"
	PermAttachFiles   Permission = "attach_files"
	PermReadHistory   Permission = "read_history"
	PermEmbedLinks    Permission = "embed_links"
	PermManageChannel Permission = "manage_channel"
)

// ACLTargetType distinguishes grant targets.
type ACLTargetType string

const (
	TargetMember   ACLTargetType = "member"
	TargetRole     ACLTargetType = "role"
	TargetEveryone ACLTargetType = "everyone"
)

// ACLEntry is a single viewer/role grant on a channel.
type ACLEntry struct {
	TargetID   string        `json:"target_id,omitempty"`
	TargetType ACLTargetType `json:"target_type"`
	Allow      []Permission  `json:"allow,omitempty"`
	Deny       []Permission  `json:"deny,omitempty"`
}

// Allows reports whether the entry grants the permission.
func (e ACLEntry) Allows(p Permission) bool {
	for _, perm := range e.Allow {
		if perm == p {
			return true
		}
	}
	return false
}

// Container groups related channels (one per ticket category).
type Container struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Channel is a single communication thread.
type Channel struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspace_id"`
	Name        string     `json:"name"`
	ParentID    string     `json:"parent_id"`
	ACL         []ACLEntry `json:"acl"`
}

// Attachment references an uploaded file on a message.
type Attachment struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

// Embed is a rich-content block on a message, summarized in transcripts.
type Embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// Message is a single channel message.
type Message struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	AuthorID    string       `json:"author_id"`
	AuthorName  string       `json:"author_name"`
	Bot         bool         `json:"bot"`
	Content     string       `json:"content"`
	Timestamp   time.Time    `json:"timestamp"`
	Embeds      []Embed      `json:"embeds,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// MessageRef identifies a sent message.
type MessageRef struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

// Role is a workspace role.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Member is a workspace member.
type Member struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	RoleIDs     []string `json:"role_ids"`
}

// FetchMessagesOptions pages message history backwards from Before.
type FetchMessagesOptions struct {
	Before string
	Limit  int
}

// Gateway is the consumed platform capability set. FetchChannel returns
// (nil, nil) for a channel that no longer exists; errors are reserved for
// transport failures.
type Gateway interface {
	CreateContainer(ctx context.Context, workspaceID, name string, acl []ACLEntry) (string, error)
	ListContainers(ctx context.Context, workspaceID string) ([]Container, error)
	CreateChannel(ctx context.Context, workspaceID, name, parentID string, acl []ACLEntry) (*Channel, error)
	FetchChannel(ctx context.Context, channelID string) (*Channel, error)
	MoveChannel(ctx context.Context, channelID, parentID string) error
	SetChannelACL(ctx context.Context, channelID string, entries []ACLEntry) error
	RenameChannel(ctx context.Context, channelID, name string) error
	DeleteChannel(ctx context.Context, channelID string) error
	SendMessage(ctx context.Context, channelID, content string) (*MessageRef, error)
	SendFile(ctx context.Context, channelID, fileName string, content []byte, message string) (*MessageRef, error)
	FetchMessages(ctx context.Context, channelID string, opts FetchMessagesOptions) ([]Message, error)
	FetchRole(ctx context.Context, workspaceID, roleID string) (*Role, error)
	FetchMember(ctx context.Context, workspaceID, memberID string) (*Member, error)
}

// MemberHasRole reports whether a member carries the given role id.
func MemberHasRole(m *Member, roleID string) bool {
	if m == nil || roleID == "" {
		return false
	}
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}
