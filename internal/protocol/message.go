// Package protocol implements the FTPPlus wire format: newline-delimited JSON
// frames carrying one request or one response each.
package protocol

import "strings"

// Command is the closed set of operations a client can request.
type Command int

const (
	CommandList Command = iota + 1
	CommandUpload
	CommandDelete
	CommandDownload
	CommandDownloadAll
)

// Dialect is the wire vocabulary a peer speaks. A response is always written
// in the dialect of the request that produced it.
type Dialect int

const (
	Portuguese Dialect = iota
	English
)

func (d Dialect) String() string {
	if d == English {
		return "en"
	}
	return "pt"
}

type commandTokens struct {
	pt string
	en string
}

var tokens = map[Command]commandTokens{
	CommandList:        {"listar", "list"},
	CommandUpload:      {"enviar", "upload"},
	CommandDelete:      {"excluir", "delete"},
	CommandDownload:    {"baixar", "download"},
	CommandDownloadAll: {"baixartodos", "download_all"},
}

// ParseCommand maps a command token (case-insensitive, either dialect) to its
// Command and the dialect it belongs to.
func ParseCommand(token string) (Command, Dialect, bool) {
	t := strings.ToLower(strings.TrimSpace(token))
	for cmd, tk := range tokens {
		switch t {
		case tk.pt:
			return cmd, Portuguese, true
		case tk.en:
			return cmd, English, true
		}
	}
	return 0, Portuguese, false
}

// Token returns the wire token for c in dialect d.
func (c Command) Token(d Dialect) string {
	tk, ok := tokens[c]
	if !ok {
		return ""
	}
	if d == English {
		return tk.en
	}
	return tk.pt
}

func (c Command) String() string {
	if tk, ok := tokens[c]; ok {
		return tk.en
	}
	return "unknown"
}

// NeedsFileName reports whether c operates on a single named file.
func (c Command) NeedsFileName() bool {
	return c == CommandUpload || c == CommandDelete || c == CommandDownload
}

// Request is a decoded client request.
type Request struct {
	Command Command
	Dialect Dialect

	// FileName is set for Upload, Delete and Download only
	FileName string

	// Payload is the plaintext file body; set for Upload only
	Payload []byte

	// EnglishKeys records that the request was keyed with
	// command/filename/file_data rather than comando/arquivo/dados.
	EnglishKeys bool
}

// Status is the outcome of a request.
type Status int

const (
	StatusOK Status = iota
	StatusError
)

// Response is the server's answer to exactly one Request.
//
// At most one of Names, FileData and Files is meaningful, selected by
// Command: Names for List, FileData for Download, Files for DownloadAll.
type Response struct {
	Status  Status
	Message string
	Dialect Dialect

	// Command selects which data field is encoded. Zero for error responses.
	Command Command

	// EnglishKeys mirrors Request.EnglishKeys: a single file goes under
	// "file_data" and a bulk download under "files" even when Dialect is
	// Portuguese.
	EnglishKeys bool

	Names    []string
	FileData []byte
	Files    map[string][]byte
}

// OK reports whether the response carries StatusOK.
func (r *Response) OK() bool {
	return r.Status == StatusOK
}
