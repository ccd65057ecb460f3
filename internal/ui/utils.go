package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Devyash0601/WGAST-test/internal/temporal"
)

// Colors for consistent UI
const (
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorReset  = "\033[0m"
)

var (
	stdin  = bufio.NewReader(os.Stdin)
	stdout io.Writer = os.Stdout
)

// PrintWarning displays a warning message with consistent formatting
func PrintWarning(message string) {
	fmt.Fprintf(stdout, "%s\nWarning:%s\n", ColorYellow, ColorReset)
	fmt.Fprintf(stdout, "%s%s%s\n", ColorYellow, message, ColorReset)
}

// PrintError displays an error message with consistent formatting
func PrintError(message string) {
	fmt.Fprintf(stdout, "\n%sError: %s%s\n", ColorRed, message, ColorReset)
}

// PrintSuccess displays a success message with consistent formatting
func PrintSuccess(message string) {
	fmt.Fprintf(stdout, "\n%s%s%s\n", ColorGreen, message, ColorReset)
}

// PrintInfo displays an info message with consistent formatting
func PrintInfo(message string) {
	fmt.Fprintf(stdout, "%s%s%s", ColorBlue, message, ColorReset)
}

// ReadString reads a line from stdin with trimming. io.EOF is returned once input is exhausted.
func ReadString(prompt string) (string, error) {
	PrintInfo(prompt)
	input, err := stdin.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// ReadInt reads an integer from stdin with validation
func ReadInt(prompt string, min, max int) (int, error) {
	input, err := ReadString(prompt)
	if err != nil {
		return 0, err
	}

	value, err := strconv.Atoi(input)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", input)
	}

	if value < min || value > max {
		return 0, fmt.Errorf("value must be between %d and %d", min, max)
	}

	return value, nil
}

// ReadDate reads a date from stdin with validation
func ReadDate(prompt string) (time.Time, error) {
	input, err := ReadString(prompt)
	if err != nil {
		return time.Time{}, err
	}
	if input == "today" {
		return temporal.Day(time.Now()), nil
	}
	date, err := temporal.ParseDate(input)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format: %s. Please use YYYY-MM-DD", input)
	}
	return date, nil
}

// Confirm asks a yes/no question; anything but y or yes is a no.
func Confirm(prompt string) bool {
	input, err := ReadString(prompt + " [y/N]: ")
	if err != nil {
		return false
	}
	input = strings.ToLower(input)
	return input == "y" || input == "yes"
}
