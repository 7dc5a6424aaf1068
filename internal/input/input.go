// Package input turns user supplied text into the destination list handed to the pipeline.
package input

import (
	"bufio"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Clean trims every address, drops blank entries and normalizes to NFC so the same
// address typed or pasted from a spreadsheet is sent identically. Order is preserved and
// duplicates are kept.
func Clean(addresses []string) []string {
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		a = strings.TrimSpace(norm.NFC.String(a))
		if a == "" {
			continue
		}
		out = append(out, a)
	}

	return out
}

// ParseText reads one address per line.
func ParseText(text string) []string {
	return Clean(strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n"))
}

// ReadLines is ParseText for a stream, used for text files and stdin.
func ReadLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return Clean(lines), nil
}
