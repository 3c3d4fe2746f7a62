package config

import "log/slog"

const redacted = "[hidden]"

// Password holds a secret that must never reach logs or error messages.
// Use Reveal when the plain value is actually needed.
type Password string

func (p Password) Reveal() string { return string(p) }

func (p Password) String() string   { return redacted }
func (p Password) GoString() string { return redacted }

func (p Password) LogValue() slog.Value { return slog.StringValue(redacted) }

func (p Password) MarshalText() ([]byte, error) { return []byte(redacted), nil }
