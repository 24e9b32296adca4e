package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// pathFlags are left out of log directory names.
var pathFlags = map[string]bool{
	"data_dir":    true,
	"analyses":    true,
	"logdir_root": true,
}

// logDirName returns "<prog>-<YYYY-MM-DD_HHMMSS>-<k=v,...>" where the keys
// are the flags of fs sorted by name and abbreviated by abbreviate.
func logDirName(prog string, now time.Time, fs *flag.FlagSet) string {
	var pairs []string
	fs.VisitAll(func(f *flag.Flag) {
		if pathFlags[f.Name] {
			return
		}
		pairs = append(pairs, fmt.Sprintf("%s=%s", abbreviate(f.Name), f.Value.String()))
	})
	return fmt.Sprintf("%s-%s-%s", prog, now.Format("2006-01-02_150405"), strings.Join(pairs, ","))
}

// abbreviate keeps the first letter of every "_" separated word:
// batch_size becomes bs.
func abbreviate(name string) string {
	var b strings.Builder
	for _, word := range strings.Split(name, "_") {
		if word != "" {
			b.WriteString(word[:1])
		}
	}
	return b.String()
}

func writeArgs(path string, a *args) error {
	data, err := yaml.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode arguments: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
