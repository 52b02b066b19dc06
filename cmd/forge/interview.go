package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/forgehq/forge/internal/interview"
)

// stdioPrompter is a bufio.Reader-over-stdin prompt loop implementing
// interview.ConsolePrompter, so a Wait-Human node can block on a real
// terminal.
type stdioPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newStdioPrompter(in io.Reader, out io.Writer) stdioPrompter {
	return stdioPrompter{in: bufio.NewReader(in), out: out}
}

func (p stdioPrompter) Prompt(q interview.HumanQuestion) (string, error) {
	fmt.Fprintln(p.out, q.Prompt)
	for _, c := range q.Choices {
		fmt.Fprintf(p.out, "  [%s] %s\n", c.Key, c.Label)
	}
	fmt.Fprint(p.out, "> ")
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
