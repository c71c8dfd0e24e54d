package config

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/mailingset/mailingset/universe"
)

// FileListProvider reads one file per list from a directory, filename
// = list name (identifier characters only), per spec §6. It satisfies
// universe.ListProvider; the core never touches the filesystem itself.
type FileListProvider struct {
	Dir string
}

var _ universe.ListProvider = FileListProvider{}

// Lists implements universe.ListProvider.
func (p FileListProvider) Lists() (map[string][]string, error) {
	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		return nil, fmt.Errorf("reading lists dir %s: %w", p.Dir, err)
	}

	lists := make(map[string][]string, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		lines, err := readNonBlankLines(filepath.Join(p.Dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading list file %s: %w", name, err)
		}
		lists[strings.ToLower(name)] = lines
	}
	return lists, nil
}

// FileSymbolProvider reads a "listname:SymbolText" file, per spec §6.
// It satisfies universe.SymbolProvider.
type FileSymbolProvider struct {
	Path string
}

var _ universe.SymbolProvider = FileSymbolProvider{}

// Symbols implements universe.SymbolProvider.
func (p FileSymbolProvider) Symbols() (map[string]string, error) {
	lines, err := readNonBlankLines(p.Path)
	if err != nil {
		return nil, fmt.Errorf("reading symbols file %s: %w", p.Path, err)
	}

	symbols := make(map[string]string, len(lines))
	for _, line := range lines {
		name, sym, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		symbols[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(sym)
	}
	return symbols, nil
}

func readNonBlankLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// ParseAcceptFrom parses the incoming.accept_from CIDR list of spec
// §6 into *net.IPNet values for smtpd.Config.
func ParseAcceptFrom(cidrs []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", c, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}
