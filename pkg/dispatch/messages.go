package dispatch

import (
	"fmt"

	"github.com/marmos91/ftpplus/internal/protocol"
)

type successKey int

const (
	msgSaved successKey = iota
	msgDeleted
	msgSent
	msgSentAll
)

var successMessages = map[successKey][2]string{
	msgSaved:   {"Arquivo %s salvo com sucesso", "File %s saved"},
	msgDeleted: {"Arquivo %s excluído", "File %s deleted"},
	msgSent:    {"Arquivo %s enviado", "File %s sent"},
	msgSentAll: {"Arquivos enviados", "Files sent"},
}

func successMessage(key successKey, dialect protocol.Dialect, name string) string {
	format := successMessages[key][0]
	if dialect == protocol.English {
		format = successMessages[key][1]
	}
	if name == "" {
		return format
	}
	return fmt.Sprintf(format, name)
}
