// Package goja is an ECMAScript interpreter whose rules can pull in
// libraries.
package goja

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/OverOrion/axosyslog/filterx"
	"github.com/OverOrion/axosyslog/interpreters/ecmascript"

	"github.com/dop251/goja"
)

// Interpreter compiles ECMAScript rules that can declare required
// libraries.  Evaluation is done by ecmascript.Interpreter with its
// extended properties enabled.
type Interpreter struct {

	// Testing is used to expose or hide some runtime
	// capabilities.
	Testing bool

	// Timeout bounds each evaluation.
	Timeout time.Duration

	// LibraryProvider is a pluggable library provider, which will
	// be used instead of DefaultLibraryProvider if not nil.
	LibraryProvider func(ctx context.Context, i *Interpreter, libraryName string) (string, error)
}

// NewInterpreter makes a new Interpreter.
func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

// CompileLibrary checks that a library compiles.
func (i *Interpreter) CompileLibrary(ctx context.Context, name, src string) (*goja.Program, error) {
	return goja.Compile(name, src, true)
}

// ProvideLibrary resolves the library name into a library.
func (i *Interpreter) ProvideLibrary(ctx context.Context, name string) (string, error) {
	if i.LibraryProvider != nil {
		return i.LibraryProvider(ctx, i, name)
	}
	return DefaultLibraryProvider(ctx, i, name)
}

var DefaultLibraryProvider = MakeFileLibraryProvider(".")

// MakeFileLibraryProvider makes a provider that supports (barely)
// names that are URLs with protocols of "file", "http", and "https".
// File names are relative to dir.  There currently is no additional
// control when using HTTP/HTTPS.
func MakeFileLibraryProvider(dir string) func(context.Context, *Interpreter, string) (string, error) {
	return func(ctx context.Context, i *Interpreter, name string) (string, error) {
		parts := strings.SplitN(name, "://", 2)
		if len(parts) != 2 {
			return "", fmt.Errorf("bad link '%s'", name)
		}
		switch parts[0] {
		case "file":
			filename := filepath.Clean(parts[1])
			if strings.HasPrefix(filename, "..") || filepath.IsAbs(filename) {
				return "", fmt.Errorf("library '%s' is outside %s", name, dir)
			}
			bs, err := os.ReadFile(filepath.Join(dir, filename))
			if err != nil {
				return "", err
			}
			return string(bs), nil
		case "http", "https":
			req, err := http.NewRequestWithContext(ctx, "GET", name, nil)
			if err != nil {
				return "", err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return "", err
			}
			defer resp.Body.Close()
			switch resp.StatusCode {
			case http.StatusOK:
				bs, err := io.ReadAll(resp.Body)
				if err != nil {
					return "", err
				}
				return string(bs), nil
			default:
				return "", fmt.Errorf("library fetch status %s %d",
					resp.Status, resp.StatusCode)
			}
		default:
			return "", fmt.Errorf("unknown protocol '%s'", parts[0])
		}
	}
}

func MakeMapLibraryProvider(srcs map[string]string) func(context.Context, *Interpreter, string) (string, error) {
	return func(ctx context.Context, i *Interpreter, name string) (string, error) {
		src, have := srcs[name]
		if !have {
			return "", fmt.Errorf("undefined library '%s'", name)
		}
		return src, nil
	}
}

// parseSource looks into the given map to try to find "requires" and
// "code" properties.
func parseSource(vv map[string]interface{}) (code string, libs []string, err error) {
	x := vv["code"]
	if s, is := x.(string); is {
		code = s
	} else {
		err = errors.New("bad Goja rule code")
		return
	}

	switch vv := vv["requires"].(type) {
	case nil:
	case string:
		libs = []string{vv}
	case []string:
		libs = vv
	case []interface{}:
		libs = make([]string, 0, len(vv))
		for _, x := range vv {
			s, is := x.(string)
			if !is {
				err = errors.New("bad library")
				return
			}
			libs = append(libs, s)
		}
	default:
		err = fmt.Errorf("bad requires (%T)", vv)
	}

	return
}

// AsSource accepts either a string or a map with "code" and
// "requires".
//
// The YAML parser https://github.com/go-yaml/yaml will return
// map[interface{}]interface{}, which is correct but inconvenient.
// Configurations are read with the fork at
// https://github.com/jsccast/yaml, which returns
// map[string]interface{}, but both are accepted.
func AsSource(src interface{}) (code string, libs []string, err error) {
	switch vv := src.(type) {
	case string:
		code = vv
		return
	case map[interface{}]interface{}:
		m := make(map[string]interface{})
		for k, v := range vv {
			str, ok := k.(string)
			if !ok {
				err = fmt.Errorf("bad src key (%T)", k)
				return
			}
			m[str] = v
		}
		return parseSource(m)
	case map[string]interface{}:
		return parseSource(vv)
	default:
		err = fmt.Errorf("bad Goja source (%T)", src)
		return
	}
}

// Compile resolves the rule's libraries and compiles the rule with
// the libraries' code in front of it.
//
// This method can block if the interpreter's library provider blocks
// in order to obtain external libraries.
func (i *Interpreter) Compile(ctx context.Context, src interface{}) (filterx.Expr, error) {
	code, libs, err := AsSource(src)
	if err != nil {
		return nil, err
	}

	var libsSrc string
	for _, lib := range libs {
		libSrc, err := i.ProvideLibrary(ctx, lib)
		if err != nil {
			return nil, err
		}
		if _, err := i.CompileLibrary(ctx, lib, libSrc); err != nil {
			return nil, fmt.Errorf("library %s: %w", lib, err)
		}
		libsSrc += libSrc + "\n"
	}

	es := &ecmascript.Interpreter{
		Test:     i.Testing,
		Extended: true,
		Timeout:  i.Timeout,
	}
	e, err := es.CompileCode("", code, libsSrc)
	if err != nil {
		return nil, err
	}
	return e, nil
}
