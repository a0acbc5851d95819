package netstate

import (
	"path"
	"strconv"
	"strings"
)

// ParseLsof parses `lsof -nP -iTCP -iUDP` output:
//
//	COMMAND   PID USER FD  TYPE DEVICE  SIZE/OFF NODE NAME
//	node    41210 me   23u IPv6 0x1234  0t0      TCP  [::1]:3000 (LISTEN)
//	mDNSRes   301 me   8u  IPv4 0x5678  0t0      UDP  *:5353
func ParseLsof(output []byte) map[int]SocketBinding {
	bindings := make(map[int]SocketBinding)

	for _, line := range lines(output) {
		fields := strings.Fields(line)
		if len(fields) < 9 {
			continue
		}
		pid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}

		var b SocketBinding
		switch fields[7] {
		case "TCP":
			if len(fields) < 10 || fields[9] != "(LISTEN)" {
				continue
			}
			b = SocketBinding{Protocol: TCP, State: StateListen}
		case "UDP":
			b = SocketBinding{Protocol: UDP, State: StateBound}
		default:
			continue
		}

		local, _, _ := strings.Cut(fields[8], "->")
		port, ok := portFromAddress(local)
		if !ok {
			continue
		}
		b.Port = port
		b.PID = pid

		addFirst(bindings, b)
	}

	return bindings
}

// ParseDarwinPS parses `ps -axo pid=,comm=` output, where comm is a full path
func ParseDarwinPS(output []byte) map[int]string {
	names := make(map[int]string)
	for _, line := range lines(output) {
		if pid, name, ok := splitPIDName(line); ok {
			names[pid] = path.Base(name)
		}
	}
	return names
}
