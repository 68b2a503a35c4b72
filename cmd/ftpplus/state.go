package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/ftpplus/internal/protocol"
	"gopkg.in/yaml.v3"
)

const (
	firstRunFile = ".ftpplus_initialized"
	stateFile    = ".ftpplus_config.yaml"
)

// state is what the client remembers between runs.
type state struct {
	LastServer string `yaml:"last_server"`
}

func loadState(dir string) (state, error) {
	var st state
	data, err := os.ReadFile(filepath.Join(dir, stateFile))
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	if err := yaml.Unmarshal(data, &st); err != nil {
		return state{}, fmt.Errorf("parse %s: %w", stateFile, err)
	}
	return st, nil
}

func saveState(dir string, st state) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, stateFile), data, 0644)
}

// firstRun reports whether the marker is absent and creates it.
func firstRun(dir string) bool {
	path := filepath.Join(dir, firstRunFile)
	if _, err := os.Stat(path); err == nil {
		return false
	}
	_ = os.WriteFile(path, []byte("initialized\n"), 0644)
	return true
}

// invocation is a parsed command line.
type invocation struct {
	server   string
	command  string
	fileName string
}

// parseArgs accepts `[server] "<command> [file]"`, quoted or split across
// arguments. When only a command is given the server is lastServer.
func parseArgs(args []string, lastServer string) (invocation, error) {
	var inv invocation

	words := strings.Fields(strings.ReplaceAll(strings.Join(args, " "), `"`, ""))
	if len(words) == 0 {
		return inv, errors.New("argumentos insuficientes")
	}

	if _, _, isCommand := protocol.ParseCommand(words[0]); !isCommand && len(words) > 1 {
		inv.server = words[0]
		words = words[1:]
	} else {
		inv.server = lastServer
	}
	if inv.server == "" {
		return inv, errors.New("primeiro uso: informe o endereço do servidor")
	}

	inv.command = strings.ToLower(words[0])
	inv.fileName = strings.Join(words[1:], " ")
	return inv, nil
}
