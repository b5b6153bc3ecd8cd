package commands

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	red   = color.New(color.FgRed)
	green = color.New(color.FgGreen)
	cyan  = color.New(color.FgCyan)
	bold  = color.New(color.Bold)
)

// PrintError はエラーを赤字で出力する
func PrintError(w io.Writer, err error) {
	_, _ = red.Fprintf(w, "✗ %v\n", err)
}

func printSuccess(w io.Writer, format string, args ...any) {
	_, _ = green.Fprintf(w, "✓ "+format+"\n", args...)
}

func printInfo(w io.Writer, format string, args ...any) {
	_, _ = cyan.Fprintf(w, "ℹ "+format+"\n", args...)
}

func printHeader(w io.Writer, text string) {
	_, _ = bold.Fprintln(w, text)
}

func printKeyValue(w io.Writer, key string, value any) {
	_, _ = fmt.Fprintf(w, "  %-14s %v\n", key+":", value)
}
