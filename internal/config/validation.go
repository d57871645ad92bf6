package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrInvalidConfig is wrapped by schema failures.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError is one problem found in a configuration.
type ValidationError struct {
	Field   string
	Message string
	// Warning marks issues that do not stop the daemon from starting.
	Warning bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Warnings returns only warning-level entries.
func (e ValidationErrors) Warnings() ValidationErrors {
	var out ValidationErrors
	for _, err := range e {
		if err.Warning {
			out = append(out, err)
		}
	}
	return out
}

// Errors returns only error-level entries.
func (e ValidationErrors) Errors() ValidationErrors {
	var out ValidationErrors
	for _, err := range e {
		if !err.Warning {
			out = append(out, err)
		}
	}
	return out
}

// HasErrors reports whether any entry is an error.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// protocols lists the packet formats the daemon can decode.
var protocols = []string{"pdx"}

// ValidateConfig returns the error-level problems in c as ValidationErrors,
// or nil.
func ValidateConfig(c *Config) error {
	if errs := Lint(c).Errors(); len(errs) > 0 {
		return errs
	}
	return nil
}

// Lint returns every problem in c, warnings included.
func Lint(c *Config) ValidationErrors {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateTouch(&c.Touch)...)
	errs = append(errs, validatePlayers(c.Players)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateServer(&c.Server)...)
	errs = append(errs, validateJournal(&c.Journal)...)
	return errs
}

func validateTouch(t *TouchConfig) ValidationErrors {
	var errs ValidationErrors

	known := false
	for _, p := range protocols {
		if strings.EqualFold(t.Protocol, p) {
			known = true
		}
	}
	if !known {
		errs = append(errs, ValidationError{
			Field:   "touch.protocol",
			Message: fmt.Sprintf("unknown protocol %q (valid: %s)", t.Protocol, strings.Join(protocols, ", ")),
		})
	}

	switch t.Backend {
	case "usb", "hid":
	default:
		errs = append(errs, ValidationError{
			Field:   "touch.backend",
			Message: fmt.Sprintf("invalid backend %q (valid: usb, hid)", t.Backend),
		})
	}

	if t.Radius < 0 || t.Radius > 1440 {
		errs = append(errs, *RangeError("touch.radius", 0, 1440))
	}
	if t.TimeoutMs < 1 || t.TimeoutMs > 10000 {
		errs = append(errs, *RangeError("touch.timeout_ms", 1, 10000))
	}
	if t.ReadTimeoutMs < 1 || t.ReadTimeoutMs > 5000 {
		errs = append(errs, *RangeError("touch.read_timeout_ms", 1, 5000))
	}
	if t.HotPlug && t.ReconnectIntervalMs < 50 {
		errs = append(errs, ValidationError{
			Field:   "touch.reconnect_interval_ms",
			Message: "reconnect interval must be at least 50ms when hot_plug is enabled",
		})
	}
	if t.IONice < -20 || t.IONice > 19 {
		errs = append(errs, *RangeError("touch.io_nice", -20, 19))
	}
	if t.IONice < 0 {
		errs = append(errs, ValidationError{
			Field:   "touch.io_nice",
			Message: "negative niceness needs CAP_SYS_NICE and is ignored otherwise",
			Warning: true,
		})
	}

	if b := t.Bounds; b != nil {
		if b.MinX == b.MaxX {
			errs = append(errs, ValidationError{Field: "touch.bounds", Message: "min_x equals max_x"})
		}
		if b.MinY == b.MaxY {
			errs = append(errs, ValidationError{Field: "touch.bounds", Message: "min_y equals max_y"})
		}
	}

	return errs
}

func validatePlayers(players []PlayerConfig) ValidationErrors {
	var errs ValidationErrors

	if len(players) == 0 {
		errs = append(errs, *RequiredFieldError("players"))
	}
	if len(players) > 2 {
		errs = append(errs, ValidationError{
			Field:   "players",
			Message: fmt.Sprintf("at most 2 players are supported, got %d", len(players)),
		})
	}

	seen := make(map[int]bool)
	for i, p := range players {
		field := fmt.Sprintf("players[%d]", i)
		if p.Player < 1 || p.Player > 2 {
			errs = append(errs, *RangeError(field+".player", 1, 2))
			continue
		}
		if seen[p.Player] {
			errs = append(errs, ValidationError{
				Field:   field + ".player",
				Message: fmt.Sprintf("player %d configured twice", p.Player),
			})
		}
		seen[p.Player] = true

		if p.Serial != "" && p.LocationPath != "" {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "serial and location_path both set; serial takes priority",
				Warning: true,
			})
		}
	}

	if len(players) == 2 {
		a, b := players[0], players[1]
		if a.Serial == "" && a.LocationPath == "" && b.Serial == "" && b.LocationPath == "" {
			errs = append(errs, ValidationError{
				Field:   "players",
				Message: "two players without serial or location_path would open the same device",
			})
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output writes to a file",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size cannot be negative",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	return errs
}

func validateServer(s *ServerConfig) ValidationErrors {
	if !s.Enabled {
		return nil
	}
	var errs ValidationErrors

	if _, _, err := net.SplitHostPort(s.Listen); err != nil {
		errs = append(errs, ValidationError{
			Field:   "server.listen",
			Message: fmt.Sprintf("invalid listen address %q: %v", s.Listen, err),
		})
	}
	if s.PollHz < 1 || s.PollHz > 1000 {
		errs = append(errs, *RangeError("server.poll_hz", 1, 1000))
	}
	return errs
}

func validateJournal(j *JournalConfig) ValidationErrors {
	if !j.Enabled {
		return nil
	}
	var errs ValidationErrors

	if j.Path == "" {
		errs = append(errs, *RequiredFieldError("journal.path"))
	}
	if j.BatchSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "journal.batch_size",
			Message: "batch size must be at least 1",
		})
	}
	if j.FlushIntervalMs < 1 {
		errs = append(errs, ValidationError{
			Field:   "journal.flush_interval_ms",
			Message: "flush interval must be at least 1ms",
		})
	}
	return errs
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
