package sandbox

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"sort"
	"strconv"
	"time"

	starjson "go.starlark.net/lib/json"
	starmath "go.starlark.net/lib/math"
	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// standardModules builds the importable module set. Everything outside
// this map is rejected at load time.
func standardModules() starlark.StringDict {
	return starlark.StringDict{
		"json":        starjson.Module,
		"math":        starmath.Module,
		"time":        startime.Module,
		"re":          regexModule(),
		"random":      randomModule(),
		"base64":      base64Module(),
		"hashlib":     hashlibModule(),
		"statistics":  statisticsModule(),
		"collections": collectionsModule(),
		"itertools":   itertoolsModule(),
		"functools":   functoolsModule(),
		"decimal":     decimalModule(),
		"datetime":    datetimeModule(),
	}
}

// AllowedModules lists the module names scripts may load
func AllowedModules() []string {
	mods := standardModules()
	names := make([]string, 0, len(mods))
	for name := range mods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newModule(name string, members starlark.StringDict) *starlarkstruct.Module {
	return &starlarkstruct.Module{Name: name, Members: members}
}

func regexModule() *starlarkstruct.Module {
	compilePattern := func(b *starlark.Builtin, pattern string) (*regexp.Regexp, error) {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid pattern: %v", b.Name(), err)
		}
		return re, nil
	}
	return newModule("re", starlark.StringDict{
		"search": starlark.NewBuiltin("search", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var pattern, s string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &pattern, &s); err != nil {
				return nil, err
			}
			re, err := compilePattern(b, pattern)
			if err != nil {
				return nil, err
			}
			m := re.FindString(s)
			if m == "" && !re.MatchString(s) {
				return starlark.None, nil
			}
			return starlark.String(m), nil
		}),
		"match": starlark.NewBuiltin("match", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var pattern, s string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &pattern, &s); err != nil {
				return nil, err
			}
			re, err := compilePattern(b, "^(?:"+pattern+")")
			if err != nil {
				return nil, err
			}
			loc := re.FindStringIndex(s)
			if loc == nil {
				return starlark.None, nil
			}
			return starlark.String(s[loc[0]:loc[1]]), nil
		}),
		"findall": starlark.NewBuiltin("findall", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var pattern, s string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &pattern, &s); err != nil {
				return nil, err
			}
			re, err := compilePattern(b, pattern)
			if err != nil {
				return nil, err
			}
			matches := re.FindAllString(s, -1)
			elems := make([]starlark.Value, 0, len(matches))
			for _, m := range matches {
				elems = append(elems, starlark.String(m))
			}
			return starlark.NewList(elems), nil
		}),
		"sub": starlark.NewBuiltin("sub", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var pattern, repl, s string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 3, &pattern, &repl, &s); err != nil {
				return nil, err
			}
			re, err := compilePattern(b, pattern)
			if err != nil {
				return nil, err
			}
			return starlark.String(re.ReplaceAllString(s, repl)), nil
		}),
	})
}

func randomModule() *starlarkstruct.Module {
	return newModule("random", starlark.StringDict{
		"random": starlark.NewBuiltin("random", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
				return nil, err
			}
			return starlark.Float(rand.Float64()), nil
		}),
		"randint": starlark.NewBuiltin("randint", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var lo, hi int
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &lo, &hi); err != nil {
				return nil, err
			}
			if hi < lo {
				return nil, fmt.Errorf("randint: empty range [%d, %d]", lo, hi)
			}
			return starlark.MakeInt(lo + rand.Intn(hi-lo+1)), nil
		}),
		"uniform": starlark.NewBuiltin("uniform", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var lo, hi float64
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &lo, &hi); err != nil {
				return nil, err
			}
			return starlark.Float(lo + rand.Float64()*(hi-lo)), nil
		}),
		"choice": starlark.NewBuiltin("choice", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var seq starlark.Indexable
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &seq); err != nil {
				return nil, err
			}
			if seq.Len() == 0 {
				return nil, fmt.Errorf("choice: empty sequence")
			}
			return seq.Index(rand.Intn(seq.Len())), nil
		}),
	})
}

func base64Module() *starlarkstruct.Module {
	return newModule("base64", starlark.StringDict{
		"b64encode": starlark.NewBuiltin("b64encode", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var s string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &s); err != nil {
				return nil, err
			}
			return starlark.String(base64.StdEncoding.EncodeToString([]byte(s))), nil
		}),
		"b64decode": starlark.NewBuiltin("b64decode", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var s string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &s); err != nil {
				return nil, err
			}
			decoded, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("b64decode: %v", err)
			}
			return starlark.String(decoded), nil
		}),
	})
}

func hashlibModule() *starlarkstruct.Module {
	digest := func(name string, sum func([]byte) string) *starlark.Builtin {
		return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var s string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &s); err != nil {
				return nil, err
			}
			return starlark.String(sum([]byte(s))), nil
		})
	}
	return newModule("hashlib", starlark.StringDict{
		"md5": digest("md5", func(data []byte) string {
			sum := md5.Sum(data)
			return hex.EncodeToString(sum[:])
		}),
		"sha1": digest("sha1", func(data []byte) string {
			sum := sha1.Sum(data)
			return hex.EncodeToString(sum[:])
		}),
		"sha256": digest("sha256", func(data []byte) string {
			sum := sha256.Sum256(data)
			return hex.EncodeToString(sum[:])
		}),
	})
}

func floatItems(b *starlark.Builtin, seq starlark.Iterable) ([]float64, error) {
	var out []float64
	iter := seq.Iterate()
	defer iter.Done()
	var item starlark.Value
	for iter.Next(&item) {
		f, ok := starlark.AsFloat(item)
		if !ok {
			return nil, fmt.Errorf("%s: non-numeric element %s", b.Name(), item.String())
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty sequence", b.Name())
	}
	return out, nil
}

func statisticsModule() *starlarkstruct.Module {
	numeric := func(name string, compute func([]float64) (float64, error)) *starlark.Builtin {
		return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var seq starlark.Iterable
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &seq); err != nil {
				return nil, err
			}
			values, err := floatItems(b, seq)
			if err != nil {
				return nil, err
			}
			result, err := compute(values)
			if err != nil {
				return nil, err
			}
			return starlark.Float(result), nil
		})
	}
	return newModule("statistics", starlark.StringDict{
		"mean": numeric("mean", func(values []float64) (float64, error) {
			var sum float64
			for _, v := range values {
				sum += v
			}
			return sum / float64(len(values)), nil
		}),
		"median": numeric("median", func(values []float64) (float64, error) {
			sorted := append([]float64(nil), values...)
			sort.Float64s(sorted)
			mid := len(sorted) / 2
			if len(sorted)%2 == 1 {
				return sorted[mid], nil
			}
			return (sorted[mid-1] + sorted[mid]) / 2, nil
		}),
		"stdev": numeric("stdev", func(values []float64) (float64, error) {
			if len(values) < 2 {
				return 0, fmt.Errorf("stdev: at least two values required")
			}
			var sum float64
			for _, v := range values {
				sum += v
			}
			mean := sum / float64(len(values))
			var sq float64
			for _, v := range values {
				sq += (v - mean) * (v - mean)
			}
			return math.Sqrt(sq / float64(len(values)-1)), nil
		}),
	})
}

func collectionsModule() *starlarkstruct.Module {
	return newModule("collections", starlark.StringDict{
		"Counter": starlark.NewBuiltin("Counter", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var seq starlark.Iterable
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &seq); err != nil {
				return nil, err
			}
			counts := starlark.NewDict(8)
			iter := seq.Iterate()
			defer iter.Done()
			var item starlark.Value
			for iter.Next(&item) {
				prev, found, err := counts.Get(item)
				if err != nil {
					return nil, err
				}
				n := 1
				if found {
					if i, ok := prev.(starlark.Int); ok {
						v, _ := i.Int64()
						n = int(v) + 1
					}
				}
				if err := counts.SetKey(item, starlark.MakeInt(n)); err != nil {
					return nil, err
				}
			}
			return counts, nil
		}),
	})
}

func itertoolsModule() *starlarkstruct.Module {
	return newModule("itertools", starlark.StringDict{
		"chain": starlark.NewBuiltin("chain", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var elems []starlark.Value
			for _, arg := range args {
				seq, ok := arg.(starlark.Iterable)
				if !ok {
					return nil, fmt.Errorf("chain: %s is not iterable", arg.Type())
				}
				iter := seq.Iterate()
				var item starlark.Value
				for iter.Next(&item) {
					elems = append(elems, item)
				}
				iter.Done()
			}
			return starlark.NewList(elems), nil
		}),
		"product": starlark.NewBuiltin("product", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var left, right starlark.Iterable
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &left, &right); err != nil {
				return nil, err
			}
			var rightItems []starlark.Value
			iter := right.Iterate()
			var item starlark.Value
			for iter.Next(&item) {
				rightItems = append(rightItems, item)
			}
			iter.Done()
			var pairs []starlark.Value
			leftIter := left.Iterate()
			defer leftIter.Done()
			var l starlark.Value
			for leftIter.Next(&l) {
				for _, r := range rightItems {
					pairs = append(pairs, starlark.Tuple{l, r})
				}
			}
			return starlark.NewList(pairs), nil
		}),
	})
}

func functoolsModule() *starlarkstruct.Module {
	return newModule("functools", starlark.StringDict{
		"reduce": starlark.NewBuiltin("reduce", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var fn starlark.Callable
			var seq starlark.Iterable
			var initial starlark.Value
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &fn, &seq, &initial); err != nil {
				return nil, err
			}
			iter := seq.Iterate()
			defer iter.Done()
			acc := initial
			var item starlark.Value
			for iter.Next(&item) {
				if acc == nil {
					acc = item
					continue
				}
				next, err := starlark.Call(thread, fn, starlark.Tuple{acc, item}, nil)
				if err != nil {
					return nil, err
				}
				acc = next
			}
			if acc == nil {
				return nil, fmt.Errorf("reduce: empty sequence with no initial value")
			}
			return acc, nil
		}),
	})
}

func decimalModule() *starlarkstruct.Module {
	return newModule("decimal", starlark.StringDict{
		"Decimal": starlark.NewBuiltin("Decimal", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var v starlark.Value
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
				return nil, err
			}
			if f, ok := starlark.AsFloat(v); ok {
				return starlark.Float(f), nil
			}
			if s, ok := starlark.AsString(v); ok {
				f, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return nil, fmt.Errorf("Decimal: invalid literal %q", s)
				}
				return starlark.Float(f), nil
			}
			return nil, fmt.Errorf("Decimal: unsupported type %s", v.Type())
		}),
	})
}

func datetimeModule() *starlarkstruct.Module {
	return newModule("datetime", starlark.StringDict{
		"now": starlark.NewBuiltin("now", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
				return nil, err
			}
			return starlark.String(time.Now().Format(time.RFC3339)), nil
		}),
		"utcnow": starlark.NewBuiltin("utcnow", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
				return nil, err
			}
			return starlark.String(time.Now().UTC().Format(time.RFC3339)), nil
		}),
		"timestamp": starlark.NewBuiltin("timestamp", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
				return nil, err
			}
			return starlark.Float(float64(time.Now().UnixNano()) / float64(time.Second)), nil
		}),
	})
}
