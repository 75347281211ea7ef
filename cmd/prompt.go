package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lukemcguire/termcrawl/config"
)

// errInputClosed is returned when input ends before every answer was read.
var errInputClosed = errors.New("input closed before all settings were entered")

// promptSettings asks for the seed URL, terms, link depth and page limit.
// An empty answer keeps the current value.
func promptSettings(in io.Reader, out io.Writer, cfg *config.Config) error {
	scanner := bufio.NewScanner(in)
	ask := func(question, current string) (string, error) {
		if current != "" {
			printf(out, "%s [%s]: ", question, current)
		} else {
			printf(out, "%s: ", question)
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", fmt.Errorf("read answer: %w", err)
			}
			return "", errInputClosed
		}
		answer := strings.TrimSpace(scanner.Text())
		if answer == "" {
			return current, nil
		}
		return answer, nil
	}
	askInt := func(question string, current int) (int, error) {
		answer, err := ask(question, strconv.Itoa(current))
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(answer)
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not a number", strings.ToLower(question), answer)
		}
		return n, nil
	}

	seed, err := ask("Enter seed URL", cfg.SeedURL)
	if err != nil {
		return err
	}
	cfg.SeedURL = seed

	terms, err := ask("Enter terms, comma separated", strings.Join(cfg.Terms, ","))
	if err != nil {
		return err
	}
	cfg.Terms = config.ParseTerms([]string{terms})

	if cfg.Depth, err = askInt("Enter link depth", cfg.Depth); err != nil {
		return err
	}
	if cfg.MaxPages, err = askInt("Enter max visited pages limit", cfg.MaxPages); err != nil {
		return err
	}
	return nil
}
