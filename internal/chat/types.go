// Package chat holds the client-resident conversation state for the portal
// messaging subsystem: the shared conversation/message types and the
// in-memory store that owns unread counts and read receipts.
package chat

import "time"

// Actor kinds. The portal has two kinds of messaging actors: authority
// administrators and member organizations.
const (
	ActorAdmin        = "admin"
	ActorOrganization = "organization"
)

// Conversation kinds. Conversations are always pairwise.
const (
	KindAdminToOrg = "admin_to_org"
	KindOrgToOrg   = "org_to_org"
)

// Message types.
const (
	TypeText  = "text"
	TypeFile  = "file"
	TypeImage = "image"
	TypeAudio = "audio"
)

// Attachment file types.
const (
	FileImage    = "image"
	FilePDF      = "pdf"
	FileAudio    = "audio"
	FileDocument = "document"
	FileExcel    = "excel"
	FileVideo    = "video"
)

// User identifies the local actor for the session.
type User struct {
	ID               string `json:"id"`
	DisplayName      string `json:"displayName"`
	Kind             string `json:"kind"` // admin | organization
	OrganizationCode string `json:"organizationCode,omitempty"`
	OrganizationID   string `json:"organizationId,omitempty"`
}

// Participant is one side of a pairwise conversation.
type Participant struct {
	ID               string `json:"id"`
	DisplayName      string `json:"displayName"`
	Kind             string `json:"kind"`
	OrganizationCode string `json:"organizationCode,omitempty"`
}

// Conversation is a pairwise thread between exactly two participants.
// LastMessageAt is the sort key for conversation-list ordering and always
// equals the CreatedAt of the most recently appended message, or the
// conversation creation time while the thread is empty.
type Conversation struct {
	ID            string         `json:"id"`
	Participants  [2]Participant `json:"participants"`
	Kind          string         `json:"kind"` // admin_to_org | org_to_org
	LastMessage   *Message       `json:"lastMessage,omitempty"`
	LastMessageAt time.Time      `json:"lastMessageAt"`
	UnreadCount   int            `json:"unreadCount"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Other returns the participant whose id differs from userID.
func (c *Conversation) Other(userID string) Participant {
	if c.Participants[0].ID == userID {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// HasParticipant checks whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.Participants[0].ID == userID || c.Participants[1].ID == userID
}

// Message is a single chat message. Content may be empty only when at
// least one attachment is present.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	SenderID       string       `json:"senderId"`
	SenderName     string       `json:"senderName"`
	SenderType     string       `json:"senderType"` // admin | organization
	SenderOrgCode  string       `json:"senderOrgCode,omitempty"`
	Content        string       `json:"content"`
	MessageType    string       `json:"messageType"` // text | file | image | audio
	Attachments    []Attachment `json:"attachments,omitempty"`
	ReadBy         []string     `json:"readBy"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// ReadByUser reports whether userID appears in the message's read set.
func (m *Message) ReadByUser(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Attachment is a file, image, or audio clip bound to a message. FileURL
// is resolved only after the send boundary persists the upload; before
// that only the raw bytes exist client-side.
type Attachment struct {
	ID         string    `json:"id"`
	FileName   string    `json:"fileName"`
	FileType   string    `json:"fileType"` // image | pdf | audio | document | excel | video
	FileURL    string    `json:"fileUrl"`
	FileSize   int64     `json:"fileSize"`
	UploadedAt time.Time `json:"uploadedAt"`
}
