package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// ValidationError lists every schema violation of a configuration.
type ValidationError struct {
	Violations []Violation
}

// Violation is one schema violation.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// Validate checks cfg against the embedded schema.
func Validate(cfg Config) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := def.Unify(ctx.Encode(cfg.document()))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return toValidationError(err)
	}
	return nil
}

// document renders cfg as the plain data the schema describes.
func (c Config) document() map[string]any {
	server := map[string]any{
		"address":          c.Server.Address,
		"shutdown_timeout": c.Server.ShutdownTimeout.Std().Milliseconds(),
	}
	if c.Server.StaticFiles != "" {
		server["static_files"] = c.Server.StaticFiles
	}

	client := map[string]any{
		"base_url":   c.Client.BaseURL,
		"timeout":    c.Client.Timeout.Std().Milliseconds(),
		"pool_size":  c.Client.PoolSize,
		"rate_limit": c.Client.RateLimit,
		"rate_burst": c.Client.RateBurst,
		"use_cache": map[string]any{
			"unchanged": c.Client.UseCache.Unchanged.Std().Milliseconds(),
			"changed":   c.Client.UseCache.Changed.Std().Milliseconds(),
		},
	}
	if c.Client.UserAgent != "" {
		client["user_agent"] = c.Client.UserAgent
	}
	if c.Client.ProxyURL != "" {
		client["proxy_url"] = c.Client.ProxyURL
	}

	return map[string]any{
		"server": server,
		"client": client,
		"database": map[string]any{
			"path":            c.Database.Path,
			"busy_timeout":    c.Database.BusyTimeout.Std().Milliseconds(),
			"pool_timeout":    c.Database.PoolTimeout.Std().Milliseconds(),
			"max_connections": c.Database.MaxConnections,
		},
		"log": map[string]any{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
	}
}

// toValidationError flattens CUE errors into field/message pairs.
func toValidationError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Violations: []Violation{{Field: "config", Message: err.Error()}}}
	}

	out := &ValidationError{}
	seen := make(map[string]bool)
	for _, e := range errs {
		path := e.Path()
		if len(path) > 0 && path[0] == "#Config" {
			path = path[1:]
		}
		field := strings.Join(path, ".")
		if field == "" {
			field = "config"
		}
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		key := field + "\x00" + msg
		if seen[key] {
			continue
		}
		seen[key] = true
		out.Violations = append(out.Violations, Violation{Field: field, Message: msg})
	}
	return out
}
