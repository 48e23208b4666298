package runtime

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/risor-io/risor/object"
)

// makeDeclareFn creates a host function that passes each string argument to
// declare. Lists of strings are flattened.
//
// declare_unsafe("ptr::read", "ptr::write") → nil
// declare_unsafe(["ptr::read", "ptr::write"]) → nil
func makeDeclareFn(name string, declare func(string)) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) == 0 {
			return object.Errorf("%s: expected at least one path", name)
		}
		var paths []string
		for _, arg := range args {
			switch v := arg.(type) {
			case *object.String:
				paths = append(paths, v.Value())
			case *object.List:
				for _, item := range v.Value() {
					s, ok := item.(*object.String)
					if !ok {
						return object.Errorf("%s: list items must be strings, got %s", name, item.Type())
					}
					paths = append(paths, s.Value())
				}
			default:
				return object.Errorf("%s: path must be a string, got %s", name, arg.Type())
			}
		}
		for _, p := range paths {
			if p == "" {
				return object.Errorf("%s: empty path", name)
			}
			declare(p)
		}
		return object.Nil
	})
}

// logObject provides log.Debug/Info/Warn/Error methods for Risor scripts.
type logObject struct {
	logger hclog.Logger
}

func (l *logObject) Debug(msg string) {
	l.logger.Debug(msg)
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg)
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg)
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg)
}
