// Package dispatch implements the FTPPlus command state machine.
//
// Each request moves through Decoding, Validating, Executing and Encoding and
// always produces exactly one response. Validation, scanner and storage
// failures become error responses in the dialect of the request; nothing in
// this package tears down a connection.
package dispatch

import (
	"context"
	"time"

	"github.com/marmos91/ftpplus/internal/logger"
	"github.com/marmos91/ftpplus/internal/protocol"
	"github.com/marmos91/ftpplus/pkg/ftperr"
	"github.com/marmos91/ftpplus/pkg/metrics"
	"github.com/marmos91/ftpplus/pkg/scanner"
	"github.com/marmos91/ftpplus/pkg/store"
	"github.com/marmos91/ftpplus/pkg/validation"
)

// Storage is the subset of *store.Engine the dispatcher drives.
type Storage interface {
	NamespaceFor(ctx context.Context, clientAddr string) (store.Namespace, error)
	List(ctx context.Context, ns store.Namespace) ([]string, error)
	Put(ctx context.Context, ns store.Namespace, name string, plaintext []byte) error
	Get(ctx context.Context, ns store.Namespace, name string) ([]byte, error)
	Delete(ctx context.Context, ns store.Namespace, name string) error
	GetAll(ctx context.Context, ns store.Namespace) (map[string][]byte, error)
}

// Dispatcher routes decoded requests to the validator, scanner and storage
// engine.
//
// Thread safety: safe for concurrent use; it holds no per-request state.
type Dispatcher struct {
	storage   Storage
	validator *validation.Validator
	scanner   scanner.Scanner
	metrics   metrics.ServerMetrics
}

// New creates a Dispatcher. A nil scanner is treated as scanner.Absent and
// nil metrics as the no-op implementation.
func New(storage Storage, validator *validation.Validator, sc scanner.Scanner, m metrics.ServerMetrics) *Dispatcher {
	if sc == nil {
		sc = scanner.Absent{}
	}
	return &Dispatcher{
		storage:   storage,
		validator: validator,
		scanner:   sc,
		metrics:   metrics.OrNoop(m),
	}
}

// HandleFrame decodes one request frame, executes it and returns the encoded
// response frame body (without delimiter). It never fails: decode errors
// become error responses.
func (d *Dispatcher) HandleFrame(ctx context.Context, clientAddr string, frame []byte) []byte {
	req, err := protocol.DecodeRequest(frame)
	if err != nil {
		dialect := protocol.SniffDialect(frame)
		logger.Debug("[%s] Rejected frame: %v", clientAddr, err)
		d.metrics.RecordRequest("invalid", metrics.StatusError, ftperr.KindOf(err).String(), 0)
		return Encode(ErrorResponse(dialect, err))
	}

	return Encode(d.Execute(ctx, clientAddr, req))
}

// Execute runs one decoded request against the client's namespace.
func (d *Dispatcher) Execute(ctx context.Context, clientAddr string, req *protocol.Request) *protocol.Response {
	start := time.Now()

	resp, err := d.execute(ctx, clientAddr, req)
	if err != nil {
		resp = ErrorResponse(req.Dialect, err)
		logResult(clientAddr, req, err)
		d.metrics.RecordRequest(req.Command.String(), metrics.StatusError, ftperr.KindOf(err).String(), time.Since(start))
		return resp
	}

	logger.Debug("[%s] %s %s ok", clientAddr, req.Command, req.FileName)
	d.metrics.RecordRequest(req.Command.String(), metrics.StatusOK, "", time.Since(start))
	return resp
}

func (d *Dispatcher) execute(ctx context.Context, clientAddr string, req *protocol.Request) (*protocol.Response, error) {
	ns, err := d.storage.NamespaceFor(ctx, clientAddr)
	if err != nil {
		return nil, err
	}

	switch req.Command {
	case protocol.CommandList:
		return d.list(ctx, ns, req)
	case protocol.CommandUpload:
		return d.upload(ctx, ns, req)
	case protocol.CommandDelete:
		return d.delete(ctx, ns, req)
	case protocol.CommandDownload:
		return d.download(ctx, ns, req)
	case protocol.CommandDownloadAll:
		return d.downloadAll(ctx, ns, req)
	default:
		return nil, ftperr.New(ftperr.UnknownCommand, "command %d", int(req.Command))
	}
}

func (d *Dispatcher) list(ctx context.Context, ns store.Namespace, req *protocol.Request) (*protocol.Response, error) {
	names, err := d.storage.List(ctx, ns)
	if err != nil {
		return nil, err
	}
	return okResponse(req, "", func(r *protocol.Response) { r.Names = names }), nil
}

func (d *Dispatcher) upload(ctx context.Context, ns store.Namespace, req *protocol.Request) (*protocol.Response, error) {
	if err := d.validator.Validate(req.FileName, req.Payload, true); err != nil {
		return nil, err
	}
	name := validation.BaseName(req.FileName)

	verdict := d.scanner.Scan(ctx, req.Payload)
	d.metrics.RecordScan(d.scanner.Name(), verdict.String())
	switch verdict {
	case scanner.Suspicious:
		return nil, ftperr.New(ftperr.MaliciousContent, "scanner %s flagged %s", d.scanner.Name(), name)
	case scanner.Unavailable:
		logger.Warn("No scanner available, storing %s unscanned", name)
	}

	if err := d.storage.Put(ctx, ns, name, req.Payload); err != nil {
		return nil, err
	}
	d.metrics.RecordBytes(metrics.DirectionIn, len(req.Payload))

	logger.Info("File %s received and stored (%d bytes)", name, len(req.Payload))
	return okResponse(req, successMessage(msgSaved, req.Dialect, name), nil), nil
}

func (d *Dispatcher) delete(ctx context.Context, ns store.Namespace, req *protocol.Request) (*protocol.Response, error) {
	if err := d.validator.Validate(req.FileName, nil, false); err != nil {
		return nil, err
	}
	name := validation.BaseName(req.FileName)

	if err := d.storage.Delete(ctx, ns, name); err != nil {
		return nil, err
	}

	logger.Info("File %s deleted", name)
	return okResponse(req, successMessage(msgDeleted, req.Dialect, name), nil), nil
}

func (d *Dispatcher) download(ctx context.Context, ns store.Namespace, req *protocol.Request) (*protocol.Response, error) {
	if err := d.validator.Validate(req.FileName, nil, false); err != nil {
		return nil, err
	}
	name := validation.BaseName(req.FileName)

	data, err := d.storage.Get(ctx, ns, name)
	if err != nil {
		return nil, err
	}
	d.metrics.RecordBytes(metrics.DirectionOut, len(data))

	return okResponse(req, successMessage(msgSent, req.Dialect, name), func(r *protocol.Response) { r.FileData = data }), nil
}

func (d *Dispatcher) downloadAll(ctx context.Context, ns store.Namespace, req *protocol.Request) (*protocol.Response, error) {
	files, err := d.storage.GetAll(ctx, ns)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, data := range files {
		total += len(data)
	}
	d.metrics.RecordBytes(metrics.DirectionOut, total)

	return okResponse(req, successMessage(msgSentAll, req.Dialect, ""), func(r *protocol.Response) { r.Files = files }), nil
}

func okResponse(req *protocol.Request, message string, fill func(*protocol.Response)) *protocol.Response {
	resp := &protocol.Response{
		Status:  protocol.StatusOK,
		Message: message,
		Dialect: req.Dialect,
		Command: req.Command,

		EnglishKeys: req.EnglishKeys,
	}
	if fill != nil {
		fill(resp)
	}
	return resp
}

// ErrorResponse builds the error response for err in dialect. The message is
// the user-facing text of err's kind; details stay in the server log.
func ErrorResponse(dialect protocol.Dialect, err error) *protocol.Response {
	return &protocol.Response{
		Status:  protocol.StatusError,
		Message: ftperr.Message(ftperr.KindOf(err), language(dialect)),
		Dialect: dialect,
	}
}

// Encode serializes resp, falling back to a Portuguese InternalError frame
// if resp cannot be encoded.
func Encode(resp *protocol.Response) []byte {
	out, err := protocol.EncodeResponse(resp)
	if err == nil {
		return out
	}

	logger.Error("Failed to encode response: %v", err)
	out, err = protocol.EncodeResponse(ErrorResponse(resp.Dialect, ftperr.Wrap(ftperr.InternalError, err, "encode")))
	if err != nil {
		return []byte(`{"status":"erro","mensagem":"Erro interno do servidor"}`)
	}
	return out
}

func language(d protocol.Dialect) ftperr.Language {
	if d == protocol.English {
		return ftperr.English
	}
	return ftperr.Portuguese
}

func logResult(clientAddr string, req *protocol.Request, err error) {
	switch ftperr.KindOf(err) {
	case ftperr.StorageIO, ftperr.InternalError:
		logger.Error("[%s] %s %s failed: %v", clientAddr, req.Command, req.FileName, err)
	case ftperr.MaliciousContent:
		logger.Warn("[%s] %s %s refused: %v", clientAddr, req.Command, req.FileName, err)
	default:
		logger.Info("[%s] %s %s refused: %v", clientAddr, req.Command, req.FileName, err)
	}
}
