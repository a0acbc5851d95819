package netstate

import (
	"regexp"
	"strconv"
	"strings"
)

var ssPID = regexp.MustCompile(`pid=(\d+)`)

// ParseSS parses `ss -H -tuanp` output:
//
//	tcp   LISTEN 0      4096   0.0.0.0:22   0.0.0.0:*   users:(("sshd",pid=812,fd=3))
//	udp   UNCONN 0      0      [::]:5353    [::]:*
func ParseSS(output []byte) map[int]SocketBinding {
	bindings := make(map[int]SocketBinding)

	for _, line := range lines(output) {
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}

		var b SocketBinding
		switch netid := strings.ToLower(fields[0]); {
		case strings.HasPrefix(netid, "tcp"):
			if fields[1] != StateListen {
				continue
			}
			b = SocketBinding{Protocol: TCP, State: StateListen}
		case strings.HasPrefix(netid, "udp"):
			b = SocketBinding{Protocol: UDP, State: StateBound}
		default:
			continue
		}

		port, ok := portFromAddress(fields[4])
		if !ok {
			continue
		}
		b.Port = port

		if len(fields) > 6 {
			if m := ssPID.FindStringSubmatch(strings.Join(fields[6:], " ")); m != nil {
				b.PID, _ = strconv.Atoi(m[1])
			}
		}

		addFirst(bindings, b)
	}

	return bindings
}

// ParsePS parses `ps -eo pid=,comm=` output
func ParsePS(output []byte) map[int]string {
	names := make(map[int]string)
	for _, line := range lines(output) {
		if pid, name, ok := splitPIDName(line); ok {
			names[pid] = name
		}
	}
	return names
}
