package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// consolePrompter asks questions on the terminal. It implements
// [sync.Prompter].
type consolePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newConsolePrompter(in io.Reader, out io.Writer) *consolePrompter {
	return &consolePrompter{in: bufio.NewReader(in), out: out}
}

func (p *consolePrompter) Confirm(prompt string) bool {
	fmt.Fprintf(p.out, "%s [y/N]: ", prompt)
	line, err := p.in.ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func (p *consolePrompter) Echo(msg string) {
	fmt.Fprintln(p.out, msg)
}

// SelectMatches lists the candidates and reads a selection: "a" keeps
// all, "n" (or empty) keeps none, otherwise a comma-separated list of
// 1-based indices.
func (p *consolePrompter) SelectMatches(token string, candidates []string) []int {
	fmt.Fprintf(p.out, "\nMultiple matches for %q:\n", token)
	for i, c := range candidates {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, c)
	}
	fmt.Fprint(p.out, "Keep which? [a=all, n=none, or e.g. 1,3]: ")

	line, err := p.in.ReadString('\n')
	if err != nil {
		return nil
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	switch answer {
	case "", "n", "none":
		return nil
	case "a", "all":
		all := make([]int, len(candidates))
		for i := range candidates {
			all[i] = i
		}
		return all
	}

	var picks []int
	for _, field := range strings.Split(answer, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil || n < 1 || n > len(candidates) {
			fmt.Fprintf(p.out, "  ignoring invalid choice %q\n", field)
			continue
		}
		picks = append(picks, n-1)
	}
	return picks
}

// batchPrompter answers without asking. Update runs use it so scheduled
// invocations never block on a terminal.
type batchPrompter struct {
	confirmAll bool
	out        io.Writer
}

func (p *batchPrompter) Confirm(string) bool { return p.confirmAll }

func (p *batchPrompter) Echo(msg string) {
	fmt.Fprintln(p.out, msg)
}

// SelectMatches keeps every candidate; the matcher's policy decides
// whether it is consulted at all.
func (p *batchPrompter) SelectMatches(_ string, candidates []string) []int {
	all := make([]int, len(candidates))
	for i := range candidates {
		all[i] = i
	}
	return all
}
