package sandbox

import (
	"encoding/json"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// NativeFunc is a host capability exposed to scripts through the libs
// namespace. Positional arguments and keyword arguments arrive already
// converted to plain Go values.
type NativeFunc func(args []any, kwargs map[string]any) (any, error)

// wrapNative exposes a host function as a script builtin
func wrapNative(name string, fn NativeFunc) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		goArgs := make([]any, 0, len(args))
		for _, a := range args {
			goArgs = append(goArgs, fromValue(thread, a))
		}
		goKwargs := make(map[string]any, len(kwargs))
		for _, kv := range kwargs {
			key, _ := starlark.AsString(kv[0])
			goKwargs[key] = fromValue(thread, kv[1])
		}
		out, err := fn(goArgs, goKwargs)
		if err != nil {
			return nil, err
		}
		return toValue(out)
	})
}

// toValue converts a plain Go value into its script representation.
// Values with no natural mapping fall back to their string form.
func toValue(v any) (starlark.Value, error) {
	switch x := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return x, nil
	case bool:
		return starlark.Bool(x), nil
	case string:
		return starlark.String(x), nil
	case int:
		return starlark.MakeInt(x), nil
	case int32:
		return starlark.MakeInt(int(x)), nil
	case int64:
		return starlark.MakeInt64(x), nil
	case uint64:
		return starlark.MakeUint64(x), nil
	case float32:
		return starlark.Float(float64(x)), nil
	case float64:
		return starlark.Float(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return starlark.MakeInt64(i), nil
		}
		if f, err := x.Float64(); err == nil {
			return starlark.Float(f), nil
		}
		return starlark.String(x.String()), nil
	case NativeFunc:
		return wrapNative("native", x), nil
	case []any:
		elems := make([]starlark.Value, 0, len(x))
		for _, item := range x {
			sv, err := toValue(item)
			if err != nil {
				return nil, err
			}
			elems = append(elems, sv)
		}
		return starlark.NewList(elems), nil
	case []string:
		elems := make([]starlark.Value, 0, len(x))
		for _, item := range x {
			elems = append(elems, starlark.String(item))
		}
		return starlark.NewList(elems), nil
	case map[string]any:
		dict := starlark.NewDict(len(x))
		for key, item := range x {
			sv, err := toValue(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(key), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return starlark.String(fmt.Sprint(v)), nil
	}
}

// fromValue converts a script value back into a plain Go value. Script
// callables become host closures so they can be invoked after the value
// leaves the interpreter, e.g. as a tool's execute function.
func fromValue(thread *starlark.Thread, v starlark.Value) any {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(x)
	case starlark.Int:
		if i, ok := x.Int64(); ok {
			return i
		}
		return x.String()
	case starlark.Float:
		return float64(x)
	case starlark.String:
		return string(x)
	case starlark.Tuple:
		out := make([]any, 0, len(x))
		for _, item := range x {
			out = append(out, fromValue(thread, item))
		}
		return out
	case *starlark.List:
		out := make([]any, 0, x.Len())
		for i := 0; i < x.Len(); i++ {
			out = append(out, fromValue(thread, x.Index(i)))
		}
		return out
	case *starlark.Set:
		out := make([]any, 0, x.Len())
		iter := x.Iterate()
		defer iter.Done()
		var item starlark.Value
		for iter.Next(&item) {
			out = append(out, fromValue(thread, item))
		}
		return out
	case *starlark.Dict:
		out := make(map[string]any, x.Len())
		for _, kv := range x.Items() {
			key, ok := starlark.AsString(kv[0])
			if !ok {
				key = fmt.Sprint(fromValue(thread, kv[0]))
			}
			out[key] = fromValue(thread, kv[1])
		}
		return out
	case *starlarkstruct.Struct:
		out := make(map[string]any)
		for _, name := range x.AttrNames() {
			attr, err := x.Attr(name)
			if err != nil {
				continue
			}
			out[name] = fromValue(thread, attr)
		}
		return out
	case starlark.Callable:
		return wrapCallable(thread, x)
	default:
		return v.String()
	}
}

// wrapCallable turns a script function into a host closure. The closure
// re-enters the interpreter on the owning thread, so it is only valid
// while that thread's invocation is still on the stack.
func wrapCallable(thread *starlark.Thread, fn starlark.Callable) func(map[string]any) (string, error) {
	return func(args map[string]any) (string, error) {
		argVal, err := toValue(args)
		if err != nil {
			return "", err
		}
		out, err := starlark.Call(thread, fn, starlark.Tuple{argVal}, nil)
		if err != nil {
			return "", err
		}
		result := fromValue(thread, out)
		switch r := result.(type) {
		case nil:
			return "", nil
		case string:
			return r, nil
		default:
			if encoded, err := json.Marshal(r); err == nil {
				return string(encoded), nil
			}
			return fmt.Sprint(r), nil
		}
	}
}
