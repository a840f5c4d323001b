// Package api defines the wire protocol: JSON messages exchanged over
// a length-framed, mutually-authenticated TLS stream. Exactly one
// response per request, correlated by the client-chosen id; asynchronous
// subscription events share the stream and carry a subscription id
// instead of a request id.
package api

import "fmt"

// PathValue is one (path, value) pair of a changeset or query result.
type PathValue struct {
	Path  string `json:"path"`
	Value string `json:"value"`
}

// ClientRequest is a union: exactly one request field is set.
type ClientRequest struct {
	ID uint64 `json:"id"`

	Ping             *PingRequest             `json:"ping,omitempty"`
	CreateFile       *CreateFileRequest       `json:"create_file,omitempty"`
	CreateDirectory  *CreateDirectoryRequest  `json:"create_directory,omitempty"`
	CreateFormula    *CreateFormulaRequest    `json:"create_formula,omitempty"`
	RemoveNode       *RemoveNodeRequest       `json:"remove_node,omitempty"`
	ListDirectory    *ListDirectoryRequest    `json:"list_directory,omitempty"`
	GetFile          *GetFileRequest          `json:"get_file,omitempty"`
	GetMatchingFiles *GetMatchingFilesRequest `json:"get_matching_files,omitempty"`
	SetFile          *SetFileRequest          `json:"set_file,omitempty"`
	SetMatchingFiles *SetMatchingFilesRequest `json:"set_matching_files,omitempty"`
	Subscribe        *SubscribeRequest        `json:"subscribe,omitempty"`
	Unsubscribe      *UnsubscribeRequest      `json:"unsubscribe,omitempty"`
	Query            *QueryRequest            `json:"query,omitempty"`
}

// Op names the populated request field, for dispatch and logging.
func (r *ClientRequest) Op() string {
	switch {
	case r.Ping != nil:
		return "ping"
	case r.CreateFile != nil:
		return "create_file"
	case r.CreateDirectory != nil:
		return "create_directory"
	case r.CreateFormula != nil:
		return "create_formula"
	case r.RemoveNode != nil:
		return "remove_node"
	case r.ListDirectory != nil:
		return "list_directory"
	case r.GetFile != nil:
		return "get_file"
	case r.GetMatchingFiles != nil:
		return "get_matching_files"
	case r.SetFile != nil:
		return "set_file"
	case r.SetMatchingFiles != nil:
		return "set_matching_files"
	case r.Subscribe != nil:
		return "subscribe"
	case r.Unsubscribe != nil:
		return "unsubscribe"
	case r.Query != nil:
		return "query"
	}
	return "unknown"
}

type PingRequest struct {
	Data string `json:"data"`
}

type CreateFileRequest struct {
	ParentPath string `json:"parent_path"`
	Name       string `json:"name"`
	Value      string `json:"value"`
}

type CreateDirectoryRequest struct {
	ParentPath string `json:"parent_path"`
	Name       string `json:"name"`
}

type CreateFormulaRequest struct {
	ParentPath string `json:"parent_path"`
	Name       string `json:"name"`
	Source     string `json:"source"`
}

type RemoveNodeRequest struct {
	ParentPath string `json:"parent_path"`
	Name       string `json:"name"`
}

type ListDirectoryRequest struct {
	Path string `json:"path"`
}

type GetFileRequest struct {
	Path string `json:"path"`
}

type GetMatchingFilesRequest struct {
	Glob string `json:"glob"`
}

type SetFileRequest struct {
	Path  string `json:"path"`
	Value string `json:"value"`
}

type SetMatchingFilesRequest struct {
	Glob  string `json:"glob"`
	Value string `json:"value"`
}

type SubscribeRequest struct {
	Glob string `json:"glob"`
}

type UnsubscribeRequest struct {
	SubscriptionID uint64 `json:"subscription_id"`
}

type QueryRequest struct {
	Selector string `json:"selector"`
}

// ServerMessage is a union: a correlated response or a subscription
// event.
type ServerMessage struct {
	Response *ServerResponse    `json:"response,omitempty"`
	Event    *SubscriptionEvent `json:"event,omitempty"`
}

// ServerResponse carries the originating request id plus exactly one
// payload field.
type ServerResponse struct {
	ID uint64 `json:"id"`

	Error    *ErrorResponse     `json:"error,omitempty"`
	Pong     *PongResponse      `json:"pong,omitempty"`
	Ok       *OkResponse        `json:"ok,omitempty"`
	File     *FileResponse      `json:"file,omitempty"`
	Files    *FilesResponse     `json:"files,omitempty"`
	Children *ChildrenResponse  `json:"children,omitempty"`
	Sub      *SubscribeResponse `json:"sub,omitempty"`
	Nodes    *QueryResponse     `json:"nodes,omitempty"`
}

type PongResponse struct {
	Data string `json:"data"`
}

// OkResponse acknowledges a mutating request. Touched is the committed
// changeset: every path the query group changed, cascades included.
type OkResponse struct {
	Touched []PathValue `json:"touched,omitempty"`
}

type FileResponse struct {
	Value string `json:"value"`
}

type FilesResponse struct {
	Files []PathValue `json:"files,omitempty"`
}

type ChildrenResponse struct {
	Names []string `json:"names,omitempty"`
}

type SubscribeResponse struct {
	SubscriptionID uint64 `json:"subscription_id"`
}

// QueryNode is one node matched by an attribute-selector query.
type QueryNode struct {
	Path  string            `json:"path"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

type QueryResponse struct {
	Nodes []QueryNode `json:"nodes,omitempty"`
}

// SubscriptionEvent is the asynchronous push: all changes from one
// committed changeset that matched one subscription, batched into a
// single message.
type SubscriptionEvent struct {
	SubscriptionID uint64      `json:"subscription_id"`
	Changes        []PathValue `json:"changes"`
}

// Wire error names. ErrorResponse.Name is always one of these.
// Evaluation failures are not in this list: they travel as the
// #error(...) value sentinel, never as an ErrorResponse.
const (
	ErrNameNotFound           = "NotFound"
	ErrNameAlreadyExists      = "AlreadyExists"
	ErrNameReadOnly           = "ReadOnly"
	ErrNameNotEmpty           = "NotEmpty"
	ErrNameNotDirectory       = "NotDirectory"
	ErrNameNotFile            = "NotFile"
	ErrNameInvalidPath        = "InvalidPath"
	ErrNameInvalidGlob        = "InvalidGlob"
	ErrNameSyntaxError        = "SyntaxError"
	ErrNameCyclicDependency   = "CyclicDependency"
	ErrNameNoSuchSubscription = "NoSuchSubscription"
	ErrNameMalformedRequest   = "MalformedRequest"
	ErrNameInternal           = "InternalError"
)

type ErrorResponse struct {
	Name    string `json:"name"`
	Context string `json:"context"`
}

// RemoteError is how clients surface an ErrorResponse.
type RemoteError struct {
	Name    string
	Context string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Context)
}
