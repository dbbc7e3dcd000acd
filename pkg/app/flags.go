package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/spf13/pflag"
)

const maskedValue = "******"

var sensitiveFlags = []string{"password", "secret", "access-key"}

// printFlags writes every non-global flag and its effective value as a table.
func printFlags(w io.Writer, fs *pflag.FlagSet) {
	if w == nil {
		return
	}
	fmt.Fprintln(w, flagTable(fs))
}

func flagTable(fs *pflag.FlagSet) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 80
	table.AddRow("FLAG", "VALUE")

	fs.VisitAll(func(f *pflag.Flag) {
		if !strings.Contains(f.Name, ".") {
			return
		}
		table.AddRow("--"+f.Name, flagValue(f))
	})
	return table
}

func flagValue(f *pflag.Flag) string {
	value := f.Value.String()
	if value == "" {
		return value
	}
	for _, s := range sensitiveFlags {
		if strings.Contains(f.Name, s) {
			return maskedValue
		}
	}
	return value
}
