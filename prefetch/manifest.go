package prefetch

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// ReadManifest parses a prefetch manifest file: one absolute path per line,
// blank lines and lines starting with '#' ignored.
func ReadManifest(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return parseManifest(f)
}

func parseManifest(r io.Reader) ([]string, error) {
	var paths []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	return paths, scanner.Err()
}
