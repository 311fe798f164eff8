package plugin

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/toolwarden/toolwarden/internal/capability"
)

// Calculator evaluates simple arithmetic expressions. It exists so the
// gate has a real safe-tier tool to exercise.
type Calculator struct{}

func (Calculator) ID() string               { return "calculator" }
func (Calculator) Name() string             { return "Calculator" }
func (Calculator) Description() string      { return "Evaluates basic arithmetic: a <op> b" }
func (Calculator) Declared() capability.Set { return capability.NewSet() }

// Execute parses "a <op> b" with op in + - * /.
func (Calculator) Execute(input string) (string, error) {
	fields := strings.Fields(input)
	if len(fields) != 3 {
		return "", fmt.Errorf("usage: <number> <+|-|*|/> <number>")
	}
	a, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return "", fmt.Errorf("bad operand %q", fields[0])
	}
	b, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return "", fmt.Errorf("bad operand %q", fields[2])
	}
	var v float64
	switch fields[1] {
	case "+":
		v = a + b
	case "-":
		v = a - b
	case "*":
		v = a * b
	case "/":
		if b == 0 {
			return "", fmt.Errorf("division by zero")
		}
		v = a / b
	default:
		return "", fmt.Errorf("unknown operator %q", fields[1])
	}
	return strconv.FormatFloat(v, 'g', -1, 64), nil
}

// DateTime reports the current time, optionally in a named zone.
type DateTime struct{}

func (DateTime) ID() string               { return "datetime" }
func (DateTime) Name() string             { return "Date & Time" }
func (DateTime) Description() string      { return "Reports current date/time; input is an optional IANA zone" }
func (DateTime) Declared() capability.Set { return capability.NewSet() }

func (DateTime) Execute(input string) (string, error) {
	loc := time.UTC
	if zone := strings.TrimSpace(input); zone != "" {
		l, err := time.LoadLocation(zone)
		if err != nil {
			return "", fmt.Errorf("unknown zone %q", zone)
		}
		loc = l
	}
	return time.Now().In(loc).Format(time.RFC1123), nil
}
