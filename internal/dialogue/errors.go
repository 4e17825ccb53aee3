package dialogue

import "fmt"

// ConfigError reports run configuration the pipeline cannot start with.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("config %s=%q: %s", e.Field, e.Value, e.Reason)
}

// InputIntegrityError reports a channel stream that breaks the recognizer
// contract (ordering or time bounds). It is never repaired locally.
type InputIntegrityError struct {
	Channel Channel
	Index   int
	Reason  string
}

func (e *InputIntegrityError) Error() string {
	return fmt.Sprintf("%s stream segment %d: %s", e.Channel, e.Index, e.Reason)
}
