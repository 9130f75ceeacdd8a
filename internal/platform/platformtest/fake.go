// Package platformtest provides an in-memory Gateway double for tests.
package platformtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/ticket-engine/internal/platform"
)

// FakeGateway is an in-memory platform.Gateway. Zero value is not usable;
// construct with NewFakeGateway.
type FakeGateway struct {
	mu         sync.Mutex
	seq        int
	now        time.Time
	containers map[string]*platform.Container
	channels   map[string]*platform.Channel
	messages   map[string][]platform.Message
	members    map[string]*platform.Member
	roles      map[string]*platform.Role

	// Failure and behavior knobs.
	FailCreateChannel   error
	FailCreateContainer error
	FailMoveChannel     error
	// MisparentNextChannel forces the next created channel to land under the
	// given parent instead of the requested one, mimicking the platform
	// ignoring the parent on create.
	MisparentNextChannel string

	DeletedChannels []string
	SentFiles       []SentFile
}

// SentFile records a SendFile call.
type SentFile struct {
	ChannelID string
	FileName  string
	Content   []byte
	Message   string
}

// NewFakeGateway builds an empty fake.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		now:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		containers: map[string]*platform.Container{},
		channels:   map[string]*platform.Channel{},
		messages:   map[string][]platform.Message{},
		members:    map[string]*platform.Member{},
		roles:      map[string]*platform.Role{},
	}
}

func (f *FakeGateway) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

// AddContainer seeds a container and returns its id.
func (f *FakeGateway) AddContainer(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID("cont")
	f.now = f.now.Add(time.Minute)
	f.containers[id] = &platform.Container{ID: id, Name: name, CreatedAt: f.now}
	return id
}

// AddMember seeds a workspace member.
func (f *FakeGateway) AddMember(id, displayName string, roleIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[id] = &platform.Member{ID: id, DisplayName: displayName, RoleIDs: roleIDs}
}

// AddMessage appends a message to a channel's history and returns its id.
func (f *FakeGateway) AddMessage(channelID string, msg platform.Message) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.ID == "" {
		msg.ID = f.nextID("msg")
	}
	msg.ChannelID = channelID
	if msg.Timestamp.IsZero() {
		f.now = f.now.Add(time.Second)
		msg.Timestamp = f.now
	}
	f.messages[channelID] = append(f.messages[channelID], msg)
	return msg.ID
}

// RemoveChannel simulates an external channel deletion.
func (f *FakeGateway) RemoveChannel(channelID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, channelID)
}

// Channel returns the stored channel for assertions.
func (f *FakeGateway) Channel(channelID string) *platform.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[channelID]
}

// ChannelMessages returns the full history for assertions.
func (f *FakeGateway) ChannelMessages(channelID string) []platform.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Message{}, f.messages[channelID]...)
}

func (f *FakeGateway) CreateContainer(ctx context.Context, workspaceID, name string, acl []platform.ACLEntry) (string, error) {
	if f.FailCreateContainer != nil {
		return "", f.FailCreateContainer
	}
	return f.AddContainer(name), nil
}

func (f *FakeGateway) ListContainers(ctx context.Context, workspaceID string) ([]platform.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]platform.Container, 0, len(f.containers))
	for _, c := range f.containers {
		out = append(out, *c)
	}
	// Intentionally unstable enumeration: reverse-id order. Callers that need
	// determinism must sort.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *FakeGateway) CreateChannel(ctx context.Context, workspaceID, name, parentID string, acl []platform.ACLEntry) (*platform.Channel, error) {
	if f.FailCreateChannel != nil {
		return nil, f.FailCreateChannel
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MisparentNextChannel != "" {
		parentID = f.MisparentNextChannel
		f.MisparentNextChannel = ""
	}
	id := f.nextID("chan")
	ch := &platform.Channel{ID: id, WorkspaceID: workspaceID, Name: name, ParentID: parentID, ACL: acl}
	f.channels[id] = ch
	copied := *ch
	return &copied, nil
}

func (f *FakeGateway) FetchChannel(ctx context.Context, channelID string) (*platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, nil
	}
	copied := *ch
	return &copied, nil
}

func (f *FakeGateway) MoveChannel(ctx context.Context, channelID, parentID string) error {
	if f.FailMoveChannel != nil {
		return f.FailMoveChannel
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return fmt.Errorf("channel %s not found", channelID)
	}
	ch.ParentID = parentID
	return nil
}

func (f *FakeGateway) SetChannelACL(ctx context.Context, channelID string, entries []platform.ACLEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return fmt.Errorf("channel %s not found", channelID)
	}
	ch.ACL = entries
	return nil
}

func (f *FakeGateway) RenameChannel(ctx context.Context, channelID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return fmt.Errorf("channel %s not found", channelID)
	}
	ch.Name = name
	return nil
}

func (f *FakeGateway) DeleteChannel(ctx context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, channelID)
	f.DeletedChannels = append(f.DeletedChannels, channelID)
	return nil
}

func (f *FakeGateway) SendMessage(ctx context.Context, channelID, content string) (*platform.MessageRef, error) {
	f.mu.Lock()
	if _, ok := f.channels[channelID]; !ok {
		f.mu.Unlock()
		return nil, fmt.Errorf("channel %s not found", channelID)
	}
	f.mu.Unlock()
	id := f.AddMessage(channelID, platform.Message{AuthorID: "bot", AuthorName: "ticket-bot", Bot: true, Content: content})
	return &platform.MessageRef{ID: id, ChannelID: channelID}, nil
}

func (f *FakeGateway) SendFile(ctx context.Context, channelID, fileName string, content []byte, message string) (*platform.MessageRef, error) {
	f.mu.Lock()
	f.SentFiles = append(f.SentFiles, SentFile{ChannelID: channelID, FileName: fileName, Content: append([]byte{}, content...), Message: message})
	f.mu.Unlock()
	id := f.AddMessage(channelID, platform.Message{AuthorID: "bot", Bot: true, Content: message})
	return &platform.MessageRef{ID: id, ChannelID: channelID}, nil
}

func (f *FakeGateway) FetchMessages(ctx context.Context, channelID string, opts platform.FetchMessagesOptions) ([]platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	history := f.messages[channelID]
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	// History is stored oldest-first; pages are served newest-first, the way
	// chat platforms page with a before-cursor.
	end := len(history)
	if opts.Before != "" {
		end = 0
		for i, msg := range history {
			if msg.ID == opts.Before {
				end = i
				break
			}
		}
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	page := make([]platform.Message, 0, end-start)
	for i := end - 1; i >= start; i-- {
		page = append(page, history[i])
	}
	return page, nil
}

func (f *FakeGateway) FetchRole(ctx context.Context, workspaceID, roleID string) (*platform.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[roleID]
	if !ok {
		return nil, nil
	}
	copied := *role
	return &copied, nil
}

func (f *FakeGateway) FetchMember(ctx context.Context, workspaceID, memberID string) (*platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	member, ok := f.members[memberID]
	if !ok {
		return nil, nil
	}
	copied := *member
	return &copied, nil
}

var _ platform.Gateway = (*FakeGateway)(nil)
