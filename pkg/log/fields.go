package log

import "time"

// Field is a single structured logging attribute.
type Field struct {
	Key   string
	Value interface{}
}

// F constructs a Field from an arbitrary value.
func F(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Str constructs a string Field.
func Str(key, value string) Field { return Field{Key: key, Value: value} }

// Int constructs an int Field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 constructs an int64 Field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Bool constructs a bool Field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Dur constructs a duration Field rendered as a string.
func Dur(key string, value time.Duration) Field { return Field{Key: key, Value: value.String()} }

// Err constructs an error Field under the conventional "error" key.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Component constructs the conventional component tag Field.
func Component(name string) Field { return Field{Key: "component", Value: name} }
