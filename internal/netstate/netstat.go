package netstate

import (
	"encoding/csv"
	"strconv"
	"strings"
)

// ParseNetstat parses Windows `netstat -ano` output:
//
//	Proto  Local Address          Foreign Address        State           PID
//	TCP    0.0.0.0:135            0.0.0.0:0              LISTENING       1052
//	TCP    [::]:135               [::]:0                 LISTENING       1052
//	UDP    0.0.0.0:123            *:*                                    1234
func ParseNetstat(output []byte) map[int]SocketBinding {
	bindings := make(map[int]SocketBinding)

	for _, line := range lines(output) {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		var b SocketBinding
		var pidField string
		switch strings.ToUpper(fields[0]) {
		case "TCP":
			if len(fields) < 5 || fields[3] != "LISTENING" {
				continue
			}
			b = SocketBinding{Protocol: TCP, State: StateListen}
			pidField = fields[4]
		case "UDP":
			b = SocketBinding{Protocol: UDP, State: StateBound}
			pidField = fields[len(fields)-1]
		default:
			continue
		}

		port, ok := portFromAddress(fields[1])
		if !ok {
			continue
		}
		b.Port = port
		b.PID, _ = strconv.Atoi(pidField)

		addFirst(bindings, b)
	}

	return bindings
}

// ParseTasklist parses `tasklist /fo csv /nh` output:
//
//	"svchost.exe","1052","Services","0","12,345 K"
func ParseTasklist(output []byte) map[int]string {
	names := make(map[int]string)
	for _, line := range lines(output) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		record, err := csv.NewReader(strings.NewReader(line)).Read()
		if err != nil || len(record) < 2 {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil || record[0] == "" {
			continue
		}
		names[pid] = record[0]
	}
	return names
}
