package netstate

import (
	"strconv"
	"strings"
	"unicode"
)

// portFromAddress extracts the port from the local address column. It handles
// numeric ("0.0.0.0:80", "*:80", "127.0.0.53%lo:53") and bracketed ("[::]:80")
// forms. Ports outside [1,65535] are rejected.
func portFromAddress(addr string) (int, bool) {
	i := strings.LastIndex(addr, ":")
	if i < 0 || i == len(addr)-1 {
		return 0, false
	}
	port, err := strconv.Atoi(addr[i+1:])
	if err != nil || port < 1 || port > 65535 {
		return 0, false
	}
	return port, true
}

// addFirst records b unless its port was already seen. IPv4 and IPv6 rows
// for the same port collapse to the first one.
func addFirst(bindings map[int]SocketBinding, b SocketBinding) {
	if _, ok := bindings[b.Port]; !ok {
		bindings[b.Port] = b
	}
}

func lines(output []byte) []string {
	return strings.Split(strings.ReplaceAll(string(output), "\r\n", "\n"), "\n")
}

// splitPIDName parses "<pid> <name...>" rows as printed by ps
func splitPIDName(line string) (int, string, bool) {
	line = strings.TrimSpace(line)
	i := strings.IndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return 0, "", false
	}
	pid, err := strconv.Atoi(line[:i])
	if err != nil || pid < 0 {
		return 0, "", false
	}
	name := strings.TrimSpace(line[i:])
	if name == "" {
		return 0, "", false
	}
	return pid, name, true
}
