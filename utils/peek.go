package utils

import "fmt"

// AsciiSafe renders data as a string, replacing any byte outside the
// printable ASCII range with '.'. Used to produce a human-readable preview of
// a packet payload in receive/skip log lines without risking control
// characters corrupting terminal or log-file output.
func AsciiSafe(data []byte) string {
	out := make([]byte, len(data))
	for i, b := range data {
		if b >= 0x20 && b < 0x7f {
			out[i] = b
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}

// HexPeek renders up to max bytes of data as a space-separated hex string,
// appending "..." if data was truncated. Used alongside AsciiSafe to log a
// short peek of an unrecognized or rejected packet.
func HexPeek(data []byte, max int) string {
	if max < 0 {
		max = 0
	}

	n := len(data)
	truncated := n > max
	if truncated {
		n = max
	}

	out := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, []byte(fmt.Sprintf("%02x", data[i]))...)
	}

	if truncated {
		out = append(out, []byte("...")...)
	}

	return string(out)
}
