package utils

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// PromptYesNo prompts the user for a yes/no response using stdin/stdout.
func PromptYesNo(prompt string) bool {
	return PromptYesNoWithReader(prompt, os.Stdin, os.Stdout)
}

// PromptYesNoWithReader prompts for yes/no with custom reader/writer for testing.
// End of input counts as "no".
func PromptYesNoWithReader(prompt string, reader io.Reader, writer io.Writer) bool {
	scanner := bufio.NewScanner(reader)

	for {
		_, _ = fmt.Fprintf(writer, "%s (y/n): ", prompt)
		if !scanner.Scan() {
			return false
		}

		input := strings.TrimSpace(strings.ToLower(scanner.Text()))

		switch input {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		// Invalid input, loop continues
	}
}

// ReadStringWithReader reads a trimmed line from a reader.
func ReadStringWithReader(reader io.Reader) (string, error) {
	scanner := bufio.NewScanner(reader)
	if !scanner.Scan() {
		return "", errors.New("no input")
	}

	return strings.TrimSpace(scanner.Text()), nil
}

// lineReader hands out at most one line per Read so that several scanners
// can take turns on the same input.
type lineReader struct {
	r io.Reader
}

// NewLineReader wraps r for use by successive prompts.
func NewLineReader(r io.Reader) io.Reader {
	return &lineReader{r: r}
}

func (l *lineReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		m, err := l.r.Read(p[n : n+1])
		n += m
		if m > 0 && p[n-1] == '\n' {
			return n, nil
		}
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
	}
	return n, nil
}
