package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter 交互式输入，终端下验证码不回显
type Prompter struct {
	in     *bufio.Reader
	out    io.Writer
	fd     int
	isTerm bool
}

// New 基于标准输入输出
func New() *Prompter {
	fd := int(os.Stdin.Fd())
	return &Prompter{
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		fd:     fd,
		isTerm: term.IsTerminal(fd),
	}
}

// NewWithIO 非终端输入，用于管道和测试
func NewWithIO(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:  bufio.NewReader(in),
		out: out,
		fd:  -1,
	}
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Ask 读取一行非空输入
func (p *Prompter) Ask(label string) (string, error) {
	for {
		fmt.Fprintf(p.out, "%s: ", label)
		value, err := p.readLine()
		if err != nil {
			return "", err
		}
		if value == "" {
			fmt.Fprintf(p.out, "%s cannot be empty.\n", label)
			continue
		}
		return value, nil
	}
}

// Secret 读取验证码等敏感输入
func (p *Prompter) Secret(label string) (string, error) {
	for {
		fmt.Fprintf(p.out, "%s: ", label)

		var value string
		if p.isTerm {
			b, err := term.ReadPassword(p.fd)
			fmt.Fprintln(p.out)
			if err != nil {
				return "", err
			}
			value = strings.TrimSpace(string(b))
		} else {
			line, err := p.readLine()
			if err != nil {
				return "", err
			}
			value = line
		}

		if value == "" {
			fmt.Fprintf(p.out, "%s cannot be empty.\n", label)
			continue
		}
		return value, nil
	}
}

// Confirm 是/否确认，默认否
func (p *Prompter) Confirm(message string) bool {
	for {
		fmt.Fprintf(p.out, "%s [y/N]: ", message)
		line, err := p.readLine()
		if err != nil {
			return false
		}

		switch strings.ToLower(line) {
		case "y", "yes":
			return true
		case "n", "no", "":
			return false
		default:
			fmt.Fprintln(p.out, "Please enter 'y' or 'n'.")
		}
	}
}
