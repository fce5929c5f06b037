package utils

import (
	"fmt"
	"regexp"
	"strings"
)

// Shell metacharacters that could be used for command injection
var dangerousCharacters = []string{
	";",    // Command separator
	"|",    // Pipe
	"&",    // Background/AND
	"$",    // Variable expansion
	"`",    // Command substitution
	"(",    // Subshell
	")",    // Subshell
	"<",    // Input redirection
	">",    // Output redirection
	"\n",   // Newline (command separator)
	"\r",   // Carriage return
	"*",    // Glob wildcard
	"?",    // Glob wildcard
	"[",    // Glob wildcard
	"]",    // Glob wildcard
	"'",    // String delimiter (can break out of quotes)
	"\"",   // String delimiter (can break out of quotes)
	"\\",   // Escape character
	"\t",   // Tab (can cause parsing issues)
	" ",    // Argument separator
	"\x00", // Null byte
}

var (
	// iqnPattern matches iSCSI qualified names
	// Example: iqn.1994-05.com.redhat:686358c930fe
	iqnPattern = regexp.MustCompile(`^iqn\.[0-9]{4}-[0-9]{2}\.[A-Za-z0-9.-]+(:[A-Za-z0-9._:-]+)?$`)

	// eui and naa forms are also legal iSCSI names
	euiPattern = regexp.MustCompile(`^(eui\.[0-9A-Fa-f]{16}|naa\.[0-9A-Fa-f]{16}([0-9A-Fa-f]{16})?)$`)

	// wwnPattern matches a 64-bit FC port name, optionally colon-free hex only
	wwnPattern = regexp.MustCompile(`^[0-9A-Fa-f]{16}$`)

	// cliArgPattern matches object names the array CLIs accept
	cliArgPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)
)

// ValidateIQN validates that an iSCSI initiator name is well formed and safe to pass to an array CLI
func ValidateIQN(iqn string) error {
	if iqn == "" {
		return fmt.Errorf("iqn cannot be empty")
	}
	if err := rejectDangerous("iqn", iqn); err != nil {
		return err
	}
	if !iqnPattern.MatchString(iqn) && !euiPattern.MatchString(iqn) {
		return fmt.Errorf("invalid iSCSI name: %s", iqn)
	}
	return nil
}

// ValidateWWN validates that an FC port name is 16 hex digits
func ValidateWWN(wwn string) error {
	if wwn == "" {
		return fmt.Errorf("wwn cannot be empty")
	}
	if !wwnPattern.MatchString(wwn) {
		return fmt.Errorf("invalid FC port name: %s (expected 16 hex digits)", wwn)
	}
	return nil
}

// ValidateCLIArgument validates a host or volume name before it is placed in an array command
// SECURITY: array CLIs run behind a login shell, so anything outside the allowlist is rejected
func ValidateCLIArgument(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	if err := rejectDangerous(field, value); err != nil {
		return err
	}
	if !cliArgPattern.MatchString(value) {
		return fmt.Errorf("%s contains unsupported characters: %q", field, value)
	}
	return nil
}

func rejectDangerous(field, value string) error {
	for _, char := range dangerousCharacters {
		if strings.Contains(value, char) {
			return fmt.Errorf("%s contains dangerous character %q", field, char)
		}
	}
	return nil
}
