package universe

import (
	"fmt"
	"regexp"
	"strings"
)

// addressRegex is deliberately permissive about the local part (it
// only needs to reject obviously malformed member lines; the strict
// grammar in package grammar governs the incoming envelope local
// part, not list membership files).
var addressRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+$`)

// displayAddrRegex matches `"Display Name" <addr>` and `Display Name <addr>`.
var displayAddrRegex = regexp.MustCompile(`^(?:"([^"]*)"|([^<]*?))\s*<([^<>]+)>$`)

// parseList classifies each non-blank, non-comment line of a list
// definition file into an address-with-name, bare-address, or
// list-reference member (spec §4.2).
func parseList(name string, lines []string) (*List, error) {
	l := &List{Name: name}
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if m := displayAddrRegex.FindStringSubmatch(line); m != nil {
			display := strings.TrimSpace(m[1])
			if display == "" {
				display = strings.TrimSpace(m[2])
			}
			addr := strings.ToLower(strings.TrimSpace(m[3]))
			if !addressRegex.MatchString(addr) {
				return nil, fmt.Errorf("line %d: bad address %q", i+1, addr)
			}
			l.Members = append(l.Members, Member{
				Kind:        MemberAddress,
				Address:     addr,
				DisplayName: display,
			})
			continue
		}

		if addressRegex.MatchString(line) {
			l.Members = append(l.Members, Member{
				Kind:    MemberAddress,
				Address: strings.ToLower(line),
			})
			continue
		}

		// Anything else is treated as a reference to another list by
		// name; unknown references surface as UnknownName at resolve
		// time (spec §4.3), not as a load-time error, so a list may be
		// defined after the lists that reference it.
		l.Members = append(l.Members, Member{
			Kind:     MemberListRef,
			ListName: strings.ToLower(line),
		})
	}
	return l, nil
}
