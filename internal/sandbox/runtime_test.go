package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"
)

func testRuntime() *Runtime {
	return New(Options{MaxSteps: 1_000_000, Timeout: 5 * time.Second})
}

func invoke(t *testing.T, source string, inv Invocation) map[string]any {
	t.Helper()
	rt := testRuntime()
	node, err := rt.Compile("test", source)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	out, err := node.Invoke(context.Background(), inv)
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	return out
}

func TestRunReceivesInputsAndParams(t *testing.T) {
	source := `
def run(inputs, params):
    return {"sum": inputs["a"] + params["b"]}
`
	out := invoke(t, source, Invocation{
		Inputs: map[string]any{"a": int64(2)},
		Params: map[string]any{"b": int64(3)},
	})
	if out["sum"] != int64(5) {
		t.Errorf("sum = %v, want 5", out["sum"])
	}
}

func TestNonMappingReturnIsCoerced(t *testing.T) {
	source := `
def run(inputs, params):
    return 42
`
	out := invoke(t, source, Invocation{})
	if out["output"] != int64(42) {
		t.Errorf("output = %v, want 42", out["output"])
	}
}

func TestMissingEntryFunction(t *testing.T) {
	rt := testRuntime()
	node, err := rt.Compile("test", `x = 1`)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	_, err = node.Invoke(context.Background(), Invocation{})
	if err == nil || !strings.Contains(err.Error(), "does not define run") {
		t.Errorf("expected missing-entry error, got %v", err)
	}
}

func TestCompileRejectsBadSyntax(t *testing.T) {
	rt := testRuntime()
	if _, err := rt.Compile("test", `def run(inputs, params`); err == nil {
		t.Error("expected compile error for unterminated definition")
	}
}

func TestDisallowedModuleRejected(t *testing.T) {
	rt := testRuntime()
	node, err := rt.Compile("test", `
load("os", "os")

def run(inputs, params):
    return {}
`)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	_, err = node.Invoke(context.Background(), Invocation{})
	if err == nil || !strings.Contains(err.Error(), "not in the allowed set") {
		t.Errorf("expected module rejection, got %v", err)
	}
}

func TestAllowedModulesAreUsable(t *testing.T) {
	source := `
def run(inputs, params):
    return {
        "root": math.sqrt(16),
        "digest": hashlib.sha256("abc"),
        "found": re.findall("[0-9]+", "a1b22c333"),
    }
`
	out := invoke(t, source, Invocation{})
	if out["root"] != float64(4) {
		t.Errorf("root = %v, want 4", out["root"])
	}
	digest, _ := out["digest"].(string)
	if len(digest) != 64 {
		t.Errorf("digest = %q, want 64 hex chars", digest)
	}
	found, _ := out["found"].([]any)
	if len(found) != 3 {
		t.Errorf("found = %v, want 3 matches", found)
	}
}

func TestNodeParametersDeclarationAndCoercion(t *testing.T) {
	source := `
NodeParameters = {
    "limit": {"type": "int", "default": 10},
    "enabled": {"type": "bool", "default": False},
    "label": "untitled",
}

def run(inputs, params):
    return {
        "limit": nodeParameters.limit,
        "enabled": nodeParameters.enabled,
        "label": nodeParameters.label,
    }
`
	out := invoke(t, source, Invocation{
		Params: map[string]any{
			"limit":   "25",   // numeric string coerced to int
			"enabled": "true", // truthy string coerced to bool
		},
	})
	if out["limit"] != int64(25) {
		t.Errorf("limit = %v (%T), want 25", out["limit"], out["limit"])
	}
	if out["enabled"] != true {
		t.Errorf("enabled = %v, want true", out["enabled"])
	}
	if out["label"] != "untitled" {
		t.Errorf("label = %v, want declared default", out["label"])
	}
}

func TestCoercionFailureKeepsOriginalValue(t *testing.T) {
	source := `
NodeParameters = {"limit": {"type": "int", "default": 1}}

def run(inputs, params):
    return {"limit": params["limit"]}
`
	out := invoke(t, source, Invocation{
		Params: map[string]any{"limit": "not-a-number"},
	})
	if out["limit"] != "not-a-number" {
		t.Errorf("limit = %v, want original value preserved", out["limit"])
	}
}

func TestInputParametersPluralFallback(t *testing.T) {
	source := `
InputParameters = {"urls": []}

def run(inputs, params):
    return {"urls": inputParameters.urls}
`
	out := invoke(t, source, Invocation{
		HandleInputs: map[string]any{"url": "https://example.com"},
	})
	if out["urls"] != "https://example.com" {
		t.Errorf("urls = %v, want singular handle value", out["urls"])
	}
}

func TestPrintRedirectedToLog(t *testing.T) {
	var printed []string
	source := `
def run(inputs, params):
    print("step one")
    print("step two")
    return {}
`
	invoke(t, source, Invocation{
		Print: func(msg string) { printed = append(printed, msg) },
	})
	if len(printed) != 2 || printed[0] != "step one" {
		t.Errorf("printed = %v", printed)
	}
}

func TestLibsNamespaceCallable(t *testing.T) {
	var logged []string
	source := `
def run(inputs, params):
    libs.log("hello from script")
    return {"cred": libs.get_value("api")}
`
	out := invoke(t, source, Invocation{
		Libs: map[string]NativeFunc{
			"log": func(args []any, kwargs map[string]any) (any, error) {
				logged = append(logged, args[0].(string))
				return nil, nil
			},
			"get_value": func(args []any, kwargs map[string]any) (any, error) {
				return "secret-" + args[0].(string), nil
			},
		},
	})
	if len(logged) != 1 || logged[0] != "hello from script" {
		t.Errorf("logged = %v", logged)
	}
	if out["cred"] != "secret-api" {
		t.Errorf("cred = %v", out["cred"])
	}
}

func TestScriptCallablesCrossTheBoundary(t *testing.T) {
	// A function defined in the script must be invocable from the host
	// while the invocation is live, e.g. as an agent tool's execute.
	var captured func(map[string]any) (string, error)
	source := `
def shout(args):
    return args["word"].upper()

def run(inputs, params):
    libs.take(shout)
    return {}
`
	invoke(t, source, Invocation{
		Libs: map[string]NativeFunc{
			"take": func(args []any, kwargs map[string]any) (any, error) {
				captured = args[0].(func(map[string]any) (string, error))
				result, err := captured(map[string]any{"word": "quiet"})
				if err != nil {
					return nil, err
				}
				if result != "QUIET" {
					return nil, nil
				}
				return nil, nil
			},
		},
	})
	if captured == nil {
		t.Fatal("script callable never crossed into the host")
	}
}

func TestRuntimeErrorCarriesBacktrace(t *testing.T) {
	rt := testRuntime()
	node, err := rt.Compile("test", `
def run(inputs, params):
    return 1 // 0
`)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	_, err = node.Invoke(context.Background(), Invocation{})
	if err == nil || !strings.Contains(err.Error(), "script error") {
		t.Errorf("expected script error with trace, got %v", err)
	}
}

func TestStepLimitStopsRunawayScripts(t *testing.T) {
	rt := New(Options{MaxSteps: 10_000})
	node, err := rt.Compile("test", `
def run(inputs, params):
    total = 0
    for i in range(10000000):
        total += i
    return {"total": total}
`)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if _, err := node.Invoke(context.Background(), Invocation{}); err == nil {
		t.Error("expected step-limit failure for runaway loop")
	}
}
