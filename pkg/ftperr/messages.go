package ftperr

// Language selects the vocabulary of user-facing messages.
type Language int

const (
	Portuguese Language = iota
	English
)

type message struct {
	pt string
	en string
}

var messages = map[Kind]message{
	InternalError:     {"Erro interno do servidor", "Internal server error"},
	IncompleteMessage: {"Mensagem incompleta", "Incomplete message"},
	MalformedPayload:  {"Requisição malformada", "Malformed request"},
	InvalidName:       {"Nome de arquivo inválido", "Invalid file name"},
	DisallowedType:    {"Tipo de arquivo não permitido", "File type not allowed"},
	TooLarge:          {"Arquivo muito grande", "File too large"},
	MaliciousContent:  {"Arquivo suspeito ou vírus detectado", "Suspicious file or virus detected"},
	NotFound:          {"Arquivo não encontrado", "File not found"},
	TooMany:           {"Quantidade de arquivos excede o limite para download simultâneo", "Too many files for a bulk download"},
	UnknownCommand:    {"Comando não reconhecido", "Unknown command"},
	StorageIO:         {"Erro de armazenamento", "Storage error"},
	ConnectionFailed:  {"Não foi possível conectar", "Could not connect"},
}

// Message returns the user-facing message for kind in lang.
func Message(kind Kind, lang Language) string {
	m, ok := messages[kind]
	if !ok {
		m = messages[InternalError]
	}
	if lang == English {
		return m.en
	}
	return m.pt
}
