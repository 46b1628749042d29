package email

import "github.com/ryandotelliott/dead-internet/internal/dynamo"

// Sort keys and attribute names for message store items.
const (
	SKMessage = "MSG"
	SKEntry   = "ENTRY"

	AttrMessageID = "messageId"
	AttrEntryID   = "entryId"
	AttrSenderID  = "senderId"
	AttrOwnerID   = "ownerId"
	AttrProfileID = "profileId"
	AttrReplyID   = "replyId"
	AttrThreadID  = "threadId"
	AttrSubject   = "subject"
	AttrBody      = "body"
	AttrFolder    = "folder"
	AttrRole      = "role"
	AttrRead      = "read"
	AttrCreatedAt = "createdAt"
)

// PK returns the partition key for this message.
func (m *Message) PK() string {
	return dynamo.PrefixMessage + m.ID
}

// SK returns the sort key for this message.
func (m *Message) SK() string {
	return SKMessage
}

// ThreadPK returns the partition key of the thread copy of this message.
func (m *Message) ThreadPK() string {
	return dynamo.PrefixThread + m.ThreadID
}

// ThreadSK returns the time-ordered sort key of the thread copy.
func (m *Message) ThreadSK() string {
	return dynamo.PrefixMessage + dynamo.SortTime(m.CreatedAt) + "#" + m.ID
}

// PK returns the partition key for this entry.
func (e *Entry) PK() string {
	return dynamo.PrefixEntry + e.ID
}

// SK returns the sort key for this entry.
func (e *Entry) SK() string {
	return SKEntry
}

// FolderIndexPK returns the gsi1 partition key listing an owner's folder.
func FolderIndexPK(ownerID string, folder Folder) string {
	return dynamo.PrefixOwner + ownerID + "#FOLDER#" + string(folder)
}

// ThreadIndexPK returns the gsi2 partition key listing an owner's thread.
func ThreadIndexPK(ownerID, threadID string) string {
	return dynamo.PrefixOwner + ownerID + "#" + dynamo.PrefixThread + threadID
}

// IndexSK returns the time-ordered index sort key of this entry.
func (e *Entry) IndexSK() string {
	return dynamo.SortTime(e.CreatedAt) + "#" + e.ID
}

// ParticipantSK returns the sort key of the participant item for this entry.
func (e *Entry) ParticipantSK() string {
	return dynamo.PrefixParticipant + e.ID
}

// SK returns the sort key for this marker, under the message partition.
func (r *ReplyMarker) SK() string {
	return dynamo.PrefixReply + r.ProfileID
}
