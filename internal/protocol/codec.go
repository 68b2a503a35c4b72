package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/marmos91/ftpplus/pkg/ftperr"
)

// Accepted request keys, in lookup order.
var (
	commandKeys  = []string{"command", "comando"}
	fileNameKeys = []string{"arquivo", "filename"}
	payloadKeys  = []string{"dados", "file_data"}
)

// Status tokens accepted by DecodeResponse.
var statusTokens = map[string]struct {
	status  Status
	dialect Dialect
}{
	"sucesso": {StatusOK, Portuguese},
	"erro":    {StatusError, Portuguese},
	"ok":      {StatusOK, English},
	"success": {StatusOK, English},
	"error":   {StatusError, English},
}

// DecodeRequest parses one request frame.
//
// Decoding is total: any input yields either a valid *Request or an
// *ftperr.Error of kind MalformedPayload (bad JSON, missing or mistyped
// field, bad base64) or UnknownCommand (unrecognized command token).
func DecodeRequest(frame []byte) (*Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return nil, ftperr.Wrap(ftperr.MalformedPayload, err, "request is not a JSON object")
	}

	token, ok, err := stringField(fields, commandKeys...)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ftperr.New(ftperr.MalformedPayload, "missing command")
	}

	cmd, dialect, known := ParseCommand(token)
	if !known {
		return nil, ftperr.New(ftperr.UnknownCommand, "unknown command %q", token)
	}

	req := &Request{Command: cmd, Dialect: dialect, EnglishKeys: usesEnglishKeys(fields)}

	if cmd.NeedsFileName() {
		name, ok, err := stringField(fields, fileNameKeys...)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ftperr.New(ftperr.MalformedPayload, "%s requires a file name", cmd)
		}
		req.FileName = name
	}

	if cmd == CommandUpload {
		encoded, ok, err := stringField(fields, payloadKeys...)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ftperr.New(ftperr.MalformedPayload, "upload requires file data")
		}
		payload, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, ftperr.Wrap(ftperr.MalformedPayload, err, "file data is not valid base64")
		}
		req.Payload = payload
	}

	return req, nil
}

// usesEnglishKeys reports which key vocabulary a request frame was written
// in. File keys decide when present; otherwise the command key does.
func usesEnglishKeys(fields map[string]json.RawMessage) bool {
	if _, ok := present(fields, "filename", "file_data"); ok {
		return true
	}
	if _, ok := present(fields, "arquivo", "dados"); ok {
		return false
	}
	_, ok := present(fields, "command")
	return ok
}

// SniffDialect reports the dialect of a request frame without validating it.
// Frames whose command token cannot be recognized are Portuguese.
func SniffDialect(frame []byte) Dialect {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return Portuguese
	}
	token, ok, err := stringField(fields, commandKeys...)
	if err != nil || !ok {
		return Portuguese
	}
	_, dialect, _ := ParseCommand(token)
	return dialect
}

type wireRequestPT struct {
	Command  string  `json:"comando"`
	FileName string  `json:"arquivo,omitempty"`
	Payload  *string `json:"dados,omitempty"`
}

type wireRequestEN struct {
	Command  string  `json:"command"`
	FileName string  `json:"filename,omitempty"`
	Payload  *string `json:"file_data,omitempty"`
}

// EncodeRequest serializes req using the keys of its dialect, or the English
// keys when req.EnglishKeys is set.
func EncodeRequest(req *Request) ([]byte, error) {
	token := req.Command.Token(req.Dialect)
	if token == "" {
		return nil, ftperr.New(ftperr.UnknownCommand, "cannot encode command %d", int(req.Command))
	}

	var fileName string
	if req.Command.NeedsFileName() {
		fileName = req.FileName
	}

	var payload *string
	if req.Command == CommandUpload {
		encoded := base64.StdEncoding.EncodeToString(req.Payload)
		payload = &encoded
	}

	var v any
	if req.Dialect == English || req.EnglishKeys {
		v = wireRequestEN{Command: token, FileName: fileName, Payload: payload}
	} else {
		v = wireRequestPT{Command: token, FileName: fileName, Payload: payload}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return data, nil
}

type wireResponsePT struct {
	Status   string          `json:"status"`
	Message  string          `json:"mensagem,omitempty"`
	Data     json.RawMessage `json:"dados,omitempty"`
	FileData json.RawMessage `json:"file_data,omitempty"`
	Files    json.RawMessage `json:"files,omitempty"`
}

type wireResponseEN struct {
	Status   string          `json:"status"`
	Message  string          `json:"message,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	FileData json.RawMessage `json:"file_data,omitempty"`
	Files    json.RawMessage `json:"files,omitempty"`
}

// EncodeResponse serializes resp in its dialect.
//
// Portuguese responses carry every payload under "dados". English responses
// use "data" for listings, "file_data" for a single file and "files" for a
// bulk download. A Portuguese response to an English-keyed request keeps
// "dados" for listings but uses "file_data" and "files" for file contents.
// Binary data is standard base64. An empty listing is encoded as [] rather
// than omitted.
func EncodeResponse(resp *Response) ([]byte, error) {
	var data json.RawMessage
	if resp.Status == StatusOK {
		var err error
		data, err = encodeData(resp)
		if err != nil {
			return nil, err
		}
	}

	var v any
	if resp.Dialect == English {
		w := wireResponseEN{Status: "ok", Message: resp.Message}
		if resp.Status != StatusOK {
			w.Status = "error"
		}
		switch resp.Command {
		case CommandDownload:
			w.FileData = data
		case CommandDownloadAll:
			w.Files = data
		default:
			w.Data = data
		}
		v = w
	} else {
		w := wireResponsePT{Status: "sucesso", Message: resp.Message}
		if resp.Status != StatusOK {
			w.Status = "erro"
		}
		switch {
		case resp.EnglishKeys && resp.Command == CommandDownload:
			w.FileData = data
		case resp.EnglishKeys && resp.Command == CommandDownloadAll:
			w.Files = data
		default:
			w.Data = data
		}
		v = w
	}

	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return out, nil
}

func encodeData(resp *Response) (json.RawMessage, error) {
	var v any
	switch resp.Command {
	case CommandList:
		names := resp.Names
		if names == nil {
			names = []string{}
		}
		v = names
	case CommandDownload:
		fileData := resp.FileData
		if fileData == nil {
			fileData = []byte{}
		}
		v = fileData
	case CommandDownloadAll:
		files := resp.Files
		if files == nil {
			files = map[string][]byte{}
		}
		v = files
	default:
		return nil, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", resp.Command, err)
	}
	return data, nil
}

// DecodeResponse parses one response frame in either dialect.
func DecodeResponse(frame []byte) (*Response, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return nil, ftperr.Wrap(ftperr.MalformedPayload, err, "response is not a JSON object")
	}

	token, ok, err := stringField(fields, "status")
	if err != nil {
		return nil, err
	}
	st, known := statusTokens[token]
	if !ok || !known {
		return nil, ftperr.New(ftperr.MalformedPayload, "invalid status %q", token)
	}

	resp := &Response{Status: st.status, Dialect: st.dialect}

	resp.Message, _, err = stringField(fields, "mensagem", "message")
	if err != nil {
		return nil, err
	}

	if raw, ok := present(fields, "file_data"); ok {
		if err := decodeInto(raw, &resp.FileData, "file_data"); err != nil {
			return nil, err
		}
		resp.Command = CommandDownload
	}
	if raw, ok := present(fields, "files"); ok {
		if err := decodeInto(raw, &resp.Files, "files"); err != nil {
			return nil, err
		}
		resp.Command = CommandDownloadAll
	}
	if raw, ok := present(fields, "dados", "data"); ok {
		if err := decodeGenericData(raw, resp); err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// decodeGenericData fills resp from a "dados"/"data" value whose shape
// (array, string or object) selects the command it answers.
func decodeGenericData(raw json.RawMessage, resp *Response) error {
	switch bytes.TrimSpace(raw)[0] {
	case '[':
		resp.Command = CommandList
		return decodeInto(raw, &resp.Names, "dados")
	case '"':
		resp.Command = CommandDownload
		return decodeInto(raw, &resp.FileData, "dados")
	case '{':
		resp.Command = CommandDownloadAll
		return decodeInto(raw, &resp.Files, "dados")
	default:
		return ftperr.New(ftperr.MalformedPayload, "unexpected data shape")
	}
}

func decodeInto(raw json.RawMessage, dst any, field string) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return ftperr.Wrap(ftperr.MalformedPayload, err, "invalid %s", field)
	}
	return nil
}

// present returns the first non-null value among keys.
func present(fields map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			continue
		}
		return trimmed, true
	}
	return nil, false
}

// stringField returns the first non-null value among keys as a string.
func stringField(fields map[string]json.RawMessage, keys ...string) (string, bool, error) {
	raw, ok := present(fields, keys...)
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false, ftperr.New(ftperr.MalformedPayload, "field %q must be a string", keys[0])
	}
	return s, true, nil
}
