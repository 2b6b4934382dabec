package util

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Hex dump in u16 chunks, 32 bytes a row. Only used for poking at chunks by hand.
func HexDump(data []byte, limit int) string {
	if limit > len(data) || limit < 0 {
		limit = len(data)
	}

	const bytesPerRow = 32
	var b strings.Builder
	fmt.Fprintf(&b, "%d bytes (0x%04x), showing %d\n", len(data), len(data), limit)

	for i := 0; i < limit; i += bytesPerRow {
		fmt.Fprintf(&b, "+%04x | ", i)
		for j := 0; j < bytesPerRow && i+j < limit; j += 2 {
			if i+j+1 < limit {
				fmt.Fprintf(&b, "%04x ", binary.BigEndian.Uint16(data[i+j:i+j+2]))
			} else {
				fmt.Fprintf(&b, "%02x   ", data[i+j])
			}
			// Space every 8 bytes to keep your eyes from crossing
			if (j+2)%8 == 0 {
				b.WriteString(" ")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// splitmix64
func Hash(val uint64) uint64 {
	x := val + 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x =  x ^ (x >> 31)
	return x
}
