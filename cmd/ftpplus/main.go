package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/ftpplus/internal/logger"
	"github.com/marmos91/ftpplus/internal/protocol"
	"github.com/marmos91/ftpplus/pkg/client"
	"github.com/marmos91/ftpplus/pkg/ftperr"
)

const welcome = `
╔════════════════════════════════════════╗
║          Bem-vindo ao FTPPlus!         ║
╠════════════════════════════════════════╣
║ • Seus arquivos são criptografados     ║
║ • Cada usuário tem sua pasta privada   ║
║ • Suporta arquivos até 100MB           ║
╚════════════════════════════════════════╝
`

func printHelp() {
	fmt.Print(`
FTPPlus - Cliente de Gerenciamento de Arquivos
──────────────────────────────────────────────

Uso:
  ftpplus [opções] [servidor[:porta]] "<comando> [arquivo]"

Comandos disponíveis:
  listar               - Lista arquivos no servidor
  enviar <arquivo>     - Envia arquivo para o servidor
  excluir <arquivo>    - Remove arquivo do servidor
  baixar <arquivo>     - Baixa arquivo do servidor
  baixartodos          - Baixa todos os arquivos enviados (se < 50 arquivos)

Os comandos em inglês (list, upload, delete, download, download_all)
também são aceitos e recebem respostas em inglês.

Exemplos:
  ftpplus 127.0.0.1 "listar"
  ftpplus 127.0.0.1 "enviar /home/user/foto.jpg"
  ftpplus "baixar foto.jpg"      (usa o último servidor)

Opções:
`)
	flag.PrintDefaults()
	fmt.Println()
}

func main() {
	os.Exit(run())
}

func run() int {
	downloadDir := flag.String("download-dir", client.DefaultDownloadDir, "Directory for downloaded files")
	verbose := flag.Bool("v", false, "Enable debug logging")
	flag.Usage = printHelp
	flag.Parse()

	logger.SetLevel("WARN")
	if *verbose {
		logger.SetLevel("DEBUG")
	}

	stateDir, err := os.Getwd()
	if err != nil {
		stateDir = "."
	}

	if firstRun(stateDir) {
		fmt.Print(welcome)
		printHelp()
		if flag.NArg() == 0 {
			return 1
		}
	}
	if flag.NArg() == 0 {
		printHelp()
		return 1
	}

	st, err := loadState(stateDir)
	if err != nil {
		logger.Warn("Ignoring client state: %v", err)
	}

	inv, err := parseArgs(flag.Args(), st.LastServer)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		fmt.Println(`Exemplo: ftpplus 127.0.0.1 "listar"`)
		return 1
	}

	if err := saveState(stateDir, state{LastServer: inv.server}); err != nil {
		logger.Debug("Could not save client state: %v", err)
	}

	c, err := client.New(client.Config{Address: inv.server, DownloadDir: *downloadDir})
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("\n🔄 Executando: %s\n", inv.command)

	res, err := c.Execute(ctx, inv.command, inv.fileName, "")
	if err != nil {
		kind := ftperr.KindOf(err)
		fmt.Printf("❌ Erro: %s\n", ftperr.Message(kind, ftperr.Portuguese))
		logger.Debug("%v", err)
		if kind == ftperr.UnknownCommand {
			printHelp()
		}
		return 1
	}

	render(res)
	if !res.OK {
		return 1
	}
	return 0
}

func render(res *client.Result) {
	fmt.Println("\n📡 Resposta do servidor:")
	fmt.Println("──────────────────────")

	if !res.OK {
		fmt.Printf("❌ Erro: %s\n", res.Message)
		return
	}

	switch res.Command {
	case protocol.CommandList:
		fmt.Println("\n📂 Arquivos disponíveis:")
		if len(res.Names) == 0 {
			fmt.Println("   📭 Nenhum arquivo encontrado")
		}
		for _, name := range res.Names {
			fmt.Printf("   📄 %s\n", name)
		}
	case protocol.CommandUpload:
		fmt.Printf("✅ %s (%s)\n", res.Message, humanize.IBytes(uint64(res.Bytes)))
	case protocol.CommandDelete:
		fmt.Printf("🗑️ %s\n", res.Message)
	case protocol.CommandDownload, protocol.CommandDownloadAll:
		fmt.Printf("✅ %s\n", res.Message)
		for _, path := range res.Saved {
			fmt.Printf("   📥 Arquivo salvo: %s\n", path)
		}
		fmt.Printf("   💾 Total: %s\n", humanize.IBytes(uint64(res.Bytes)))
	}
}
