package types

import "time"

// Topic names the channel a message is published on.
type Topic string

const (
	TopicTreeUpdated   Topic = "main:collection-tree-updated"
	TopicProcessEnv    Topic = "main:process-env-update"
	TopicBrunoConfig   Topic = "main:bruno-config-update"
	TopicLoadingState  Topic = "main:collection-loading-state-updated"
	TopicHydrateUI     Topic = "main:hydrate-app-with-ui-state-snapshot"
	TopicCommandResult Topic = "main:command-result"
)

// UpdateKind tags a tree-update message.
type UpdateKind string

const (
	UpdateAddFile               UpdateKind = "addFile"
	UpdateChange                UpdateKind = "change"
	UpdateUnlink                UpdateKind = "unlink"
	UpdateAddDir                UpdateKind = "addDir"
	UpdateUnlinkDir             UpdateKind = "unlinkDir"
	UpdateAddEnvironmentFile    UpdateKind = "addEnvironmentFile"
	UpdateUnlinkEnvironmentFile UpdateKind = "unlinkEnvironmentFile"
)

// UpdateKinds lists every tree-update tag.
func UpdateKinds() []UpdateKind {
	return []UpdateKind{
		UpdateAddFile,
		UpdateChange,
		UpdateUnlink,
		UpdateAddDir,
		UpdateUnlinkDir,
		UpdateAddEnvironmentFile,
		UpdateUnlinkEnvironmentFile,
	}
}

// Message is the closed set of values published to the UI. The unexported
// marker keeps the set closed to this package.
type Message interface {
	Topic() Topic
	message()
}

// FileMeta identifies the file or directory a tree update is about.
type FileMeta struct {
	CollectionUID  string `json:"collectionUid"`
	Pathname       string `json:"pathname"`
	Name           string `json:"name"`
	UID            string `json:"uid,omitempty"`
	Seq            int    `json:"seq,omitempty"`
	CollectionRoot bool   `json:"collectionRoot,omitempty"`
	FolderRoot     bool   `json:"folderRoot,omitempty"`
}

// FileError is the error attached to a record whose parse failed.
type FileError struct {
	Message string `json:"message"`
}

// TreeUpdate is a tagged update of the collection tree. Data holds a
// *Request, *Root, *Environment or *EnvironmentRef depending on the file.
type TreeUpdate struct {
	Kind    UpdateKind `json:"kind"`
	Meta    FileMeta   `json:"meta"`
	Data    any        `json:"data,omitempty"`
	Partial bool       `json:"partial"`
	Loading bool       `json:"loading"`
	// Size is the file size in megabytes.
	Size  float64    `json:"size,omitempty"`
	Error *FileError `json:"error,omitempty"`
}

// Topic implements Message.
func (*TreeUpdate) Topic() Topic { return TopicTreeUpdated }
func (*TreeUpdate) message()     {}

// Request returns the request payload, or nil.
func (u *TreeUpdate) Request() *Request {
	r, _ := u.Data.(*Request)
	return r
}

// EnvironmentRef identifies a removed environment.
type EnvironmentRef struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

// ProcessEnvUpdate carries the parsed .env of a collection.
type ProcessEnvUpdate struct {
	CollectionUID       string            `json:"collectionUid"`
	ProcessEnvVariables map[string]string `json:"processEnvVariables"`
}

// Topic implements Message.
func (*ProcessEnvUpdate) Topic() Topic { return TopicProcessEnv }
func (*ProcessEnvUpdate) message()     {}

// BrunoConfigUpdate carries the parsed bruno.json of a collection.
type BrunoConfigUpdate struct {
	CollectionUID string       `json:"collectionUid"`
	BrunoConfig   *BrunoConfig `json:"brunoConfig"`
}

// Topic implements Message.
func (*BrunoConfigUpdate) Topic() Topic { return TopicBrunoConfig }
func (*BrunoConfigUpdate) message()     {}

// LoadingStateUpdate drives the collection loading indicator.
type LoadingStateUpdate struct {
	CollectionUID string `json:"collectionUid"`
	IsLoading     bool   `json:"isLoading"`
}

// Topic implements Message.
func (*LoadingStateUpdate) Topic() Topic { return TopicLoadingState }
func (*LoadingStateUpdate) message()     {}

// SnapshotHydration hands the persisted UI state of a collection to the UI
// once discovery completes. Snapshot is nil when none was stored.
type SnapshotHydration struct {
	CollectionUID string    `json:"collectionUid"`
	Snapshot      *Snapshot `json:"snapshot"`
}

// Topic implements Message.
func (*SnapshotHydration) Topic() Topic { return TopicHydrateUI }
func (*SnapshotHydration) message()     {}

// CommandResult answers a command sent by the UI.
type CommandResult struct {
	ID        string `json:"id,omitempty"`
	Command   string `json:"command"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// Topic implements Message.
func (*CommandResult) Topic() Topic { return TopicCommandResult }
func (*CommandResult) message()     {}

// Envelope is the wire form of a Message.
type Envelope struct {
	Topic     Topic     `json:"topic"`
	Payload   Message   `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEnvelope wraps a message for the wire.
func NewEnvelope(m Message) Envelope {
	return Envelope{Topic: m.Topic(), Payload: m, Timestamp: time.Now()}
}

// RequestRecord is the pipeline's view of a request file at one stage of
// loading.
type RequestRecord struct {
	UID      string
	Pathname string
	Name     string
	Type     string
	// Size is the file size in bytes.
	Size    int64
	Partial bool
	Loading bool
	Data    *Request
	Error   error
}

// TreeUpdate converts the record to a tree-update message.
func (r RequestRecord) TreeUpdate(kind UpdateKind, collectionUID string) *TreeUpdate {
	u := &TreeUpdate{
		Kind: kind,
		Meta: FileMeta{
			CollectionUID: collectionUID,
			Pathname:      r.Pathname,
			Name:          r.Name,
			UID:           r.UID,
		},
		Partial: r.Partial,
		Loading: r.Loading,
		Size:    SizeInMB(r.Size),
	}
	if r.Data != nil {
		u.Data = r.Data
	}
	if r.Error != nil {
		u.Error = &FileError{Message: r.Error.Error()}
	}
	return u
}

// SizeInMB converts a byte count to megabytes.
func SizeInMB(size int64) float64 {
	return float64(size) / (1024 * 1024)
}
