// Package main は users テーブルへ手動で登録するための bcrypt ハッシュを生成するツールです。
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/yourusername/session-login/internal/password"
)

// テストで差し替えるためのフック
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

func main() {
	cost := flag.Int("cost", 10, "bcrypt cost")
	flag.Parse()

	if err := run(os.Stdin, int(os.Stdin.Fd()), os.Stdout, os.Stderr, *cost); err != nil {
		fmt.Fprintln(os.Stderr, "hashpw:", err)
		os.Exit(1)
	}
}

func run(in io.Reader, fd int, out, prompt io.Writer, cost int) error {
	secret, err := readSecret(in, fd, prompt)
	if err != nil {
		return err
	}
	if secret == "" {
		return errors.New("empty password")
	}

	digest, err := password.NewHasher(cost).Hash(secret)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, digest)
	return err
}

// readSecret は端末ならエコーせずに、パイプなら 1 行読み込みます。
func readSecret(in io.Reader, fd int, prompt io.Writer) (string, error) {
	if isTerminal(fd) {
		fmt.Fprint(prompt, "Password: ")
		b, err := readPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
