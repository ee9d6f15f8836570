package editor

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// editorCmd returns the configured editor split into program and arguments,
// so values like "code --wait" work.
func editorCmd() []string {
	for _, key := range []string{"EDITOR", "VISUAL"} {
		if fields := strings.Fields(os.Getenv(key)); len(fields) > 0 {
			return fields
		}
	}
	return []string{"vi"}
}

func Open(path string) error {
	argv := editorCmd()
	cmd := exec.Command(argv[0], append(argv[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("editor %q: %w", strings.Join(argv, " "), err)
	}
	return nil
}

// Edit writes content to a temporary file named with pattern, opens it in
// the editor and returns what was saved. changed is false when the file was
// left as it was.
func Edit(content []byte, pattern string) (edited []byte, changed bool, err error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return nil, false, fmt.Errorf("creating temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(content); err != nil {
		f.Close()
		return nil, false, fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, false, fmt.Errorf("writing temp file: %w", err)
	}

	if err := Open(path); err != nil {
		return nil, false, err
	}

	edited, err = os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("reading edited file: %w", err)
	}
	return edited, string(edited) != string(content), nil
}
