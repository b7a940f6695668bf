package githubaction

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// SetOutput publishes a step output. On the runner this appends to the file
// named by GITHUB_OUTPUT using the heredoc-delimited format, which is safe
// for values containing newlines. Outside a runner (GITHUB_OUTPUT unset) the
// output is printed to stdout instead, so local runs stay inspectable.
func SetOutput(name, value string) error {
	path := os.Getenv("GITHUB_OUTPUT")
	if path == "" {
		fmt.Printf("output %s=%s\n", name, value)
		return nil
	}

	// A random delimiter prevents a crafted value from terminating the
	// heredoc early and injecting further outputs.
	delimiter := "gh_" + uuid.NewString()
	if strings.Contains(value, delimiter) {
		return fmt.Errorf("output %q contains its own delimiter", name)
	}
	return appendToFile(path, fmt.Sprintf("%s<<%s\n%s\n%s\n", name, delimiter, value, delimiter))
}

// Mask tells the runner to scrub the value from all subsequent log output.
// Empty values are skipped; masking the empty string would mangle every line.
func Mask(value string) {
	if value == "" {
		return
	}
	fmt.Printf("::add-mask::%s\n", value)
}

// Errorf emits an error annotation, shown prominently on the run page.
func Errorf(format string, args ...any) {
	fmt.Printf("::error::%s\n", fmt.Sprintf(format, args...))
}

// Summary appends markdown lines to the step summary when the runner
// provides one, and is a no-op otherwise.
func Summary(lines ...string) error {
	path := os.Getenv("GITHUB_STEP_SUMMARY")
	if path == "" {
		return nil
	}
	return appendToFile(path, strings.Join(lines, "\n")+"\n")
}

func appendToFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %q: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	if _, err = f.WriteString(content); err != nil {
		return fmt.Errorf("failed to write to %q: %w", path, err)
	}
	return nil
}
