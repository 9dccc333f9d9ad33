package evaluator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vburojevic/hotswap/internal/domain"
)

const greetingSource = `
function Greeting(props) {
  return React.createElement(Text, { style: styles.title }, "Hello ", props.name);
}
var styles = StyleSheet.create({ title: { fontSize: 18 } });
module.exports = function Home(props) {
  return React.createElement(View, { style: { flex: 1 }, onPress: function () {} },
    React.createElement(Greeting, { name: props.name || "world" }),
    null,
    false,
    [1, 2].map(function (n) { return React.createElement(Text, { key: n }, n); })
  );
};
`

func texts(n *domain.Node) []string {
	var out []string
	var walk func(*domain.Node)
	walk = func(n *domain.Node) {
		if n == nil {
			return
		}
		if n.IsText() {
			out = append(out, n.Text)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(n)
	return out
}

func TestEvaluate_RendersElementTree(t *testing.T) {
	ev := New(Options{})

	c, err := ev.Evaluate("home", greetingSource)
	require.NoError(t, err)
	require.False(t, IsStub(c))

	node, err := c.Render(map[string]interface{}{"name": "Ana"})
	require.NoError(t, err)

	assert.Equal(t, "View", node.Type)
	assert.Equal(t, "[function]", node.Props["onPress"])
	require.Len(t, node.Children, 3)
	assert.Equal(t, "Text", node.Children[0].Type)
	assert.Equal(t, []string{"Hello ", "Ana", "1", "2"}, texts(node))
}

func TestEvaluate_Deterministic(t *testing.T) {
	ev := New(Options{})

	a, err := ev.Evaluate("home", greetingSource)
	require.NoError(t, err)
	b, err := ev.Evaluate("home", greetingSource)
	require.NoError(t, err)

	props := map[string]interface{}{"name": "Ana"}
	na, err := a.Render(props)
	require.NoError(t, err)
	nb, err := b.Render(props)
	require.NoError(t, err)

	assert.Equal(t, na, nb)
}

func TestEvaluate_SandboxHidesAmbientObjects(t *testing.T) {
	ev := New(Options{})
	src := `module.exports = function () {
  return React.createElement(Text, null,
    [typeof require, typeof process, typeof fetch, typeof setTimeout, typeof XMLHttpRequest].join(","));
};`

	c, err := ev.Evaluate("sample", src)
	require.NoError(t, err)
	node, err := c.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"undefined,undefined,undefined,undefined,undefined"}, texts(node))
}

func TestEvaluate_ExportResolution(t *testing.T) {
	ev := New(Options{})

	tests := []struct {
		name string
		src  string
	}{
		{"exports.default", `exports.default = function () { return React.createElement(View); };`},
		{"module.exports object default", `module.exports = { default: function () { return React.createElement(View); } };`},
		{"module.exports function", `module.exports = function () { return React.createElement(View); };`},
		{"completion value", `(function Screen() { return React.createElement(View); })`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ev.Evaluate("s", tt.src)
			require.NoError(t, err)
			node, err := c.Render(nil)
			require.NoError(t, err)
			assert.Equal(t, "View", node.Type)
		})
	}

	t.Run("nothing exported", func(t *testing.T) {
		c, err := ev.Evaluate("empty", `var x = 1;`)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoComponent))
		assert.True(t, IsStub(c))
	})
}

func TestEvaluate_FailuresYieldStub(t *testing.T) {
	ev := New(Options{Timeout: 100 * time.Millisecond})

	tests := []struct {
		name string
		src  string
	}{
		{"syntax error", `module.exports = function ( {`},
		{"throws at load", `throw new Error("boom");`},
		{"reference error", `module.exports = undefinedThing.render;`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ev.Evaluate("broken", tt.src)
			require.Error(t, err)

			var evalErr *EvaluationError
			require.True(t, errors.As(err, &evalErr))
			assert.Equal(t, "broken", evalErr.ScreenID)
			assert.NotEmpty(t, evalErr.Message)

			require.True(t, IsStub(c))
			node, err := c.Render(nil)
			require.NoError(t, err)
			assert.Equal(t, domain.NodeTypeErrorStub, node.Type)
			assert.Equal(t, "broken", node.Props["screenId"])
			assert.Equal(t, evalErr.Message, node.Props["error"])
		})
	}

	t.Run("throw message is kept", func(t *testing.T) {
		_, err := ev.Evaluate("broken", `throw new Error("boom");`)
		assert.Contains(t, err.Error(), "boom")
	})
}

func TestEvaluate_Timeout(t *testing.T) {
	ev := New(Options{Timeout: 50 * time.Millisecond})

	c, err := ev.Evaluate("spin", `while (true) {}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.True(t, IsStub(c))

	t.Run("render is bounded too", func(t *testing.T) {
		c, err := ev.Evaluate("spin-render", `module.exports = function () { for (;;) {} };`)
		require.NoError(t, err)
		_, err = c.Render(nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTimeout))

		// The runtime stays usable after an interrupt.
		ok, err := ev.Evaluate("after", `module.exports = function () { return React.createElement(View); };`)
		require.NoError(t, err)
		_, err = ok.Render(nil)
		require.NoError(t, err)
	})
}

func TestEvaluateModule_ScreensAndNamedExports(t *testing.T) {
	ev := New(Options{})
	src := `
function Home() { return React.createElement(Text, null, "home"); }
function Settings() { return React.createElement(Text, null, "settings"); }
module.exports = {
  default: function App() { return React.createElement(SafeAreaView, null, React.createElement(Home)); },
  Banner: function () { return React.createElement(View); },
  screens: { Home: Home, Settings: Settings, notAComponent: 42 },
};`

	mod, err := ev.EvaluateModule("app", src)
	require.NoError(t, err)
	require.NotNil(t, mod.Default)
	assert.Contains(t, mod.Named, "Banner")
	assert.Len(t, mod.Screens, 2)

	node, err := mod.Screens["Settings"].Render(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"settings"}, texts(node))

	app, err := mod.Default.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "SafeAreaView", app.Type)
	assert.Equal(t, []string{"home"}, texts(app))
}

func TestRender_FragmentsAndStyles(t *testing.T) {
	ev := New(Options{})
	src := `module.exports = function () {
  var s = StyleSheet.flatten([{ color: "red" }, null, { margin: 4 }]);
  return React.createElement(React.Fragment, null,
    React.createElement(View, { style: s }),
    React.createElement(Text, null, "tail"));
};`

	c, err := ev.Evaluate("frag", src)
	require.NoError(t, err)
	node, err := c.Render(nil)
	require.NoError(t, err)

	assert.Equal(t, domain.NodeTypeFragment, node.Type)
	require.Len(t, node.Children, 2)
	style, ok := node.Children[0].Props["style"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "red", style["color"])
	assert.EqualValues(t, 4, style["margin"])
}

func TestRender_InvalidChildIsAnError(t *testing.T) {
	ev := New(Options{})
	c, err := ev.Evaluate("bad-child", `module.exports = function () { return React.createElement(View, null, { a: 1 }); };`)
	require.NoError(t, err)

	_, err = c.Render(nil)
	require.Error(t, err)

	node := SafeRender("bad-child", c, nil)
	assert.Equal(t, domain.NodeTypeErrorStub, node.Type)
}

func TestSafeRender_NilComponent(t *testing.T) {
	node := SafeRender("missing", nil, nil)
	assert.Equal(t, domain.NodeTypeErrorStub, node.Type)
	assert.Equal(t, "missing", node.Props["screenId"])
}

func TestConsoleRoutesToLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ev := New(Options{Logger: zap.New(core)})

	_, err := ev.Evaluate("chatty", `console.warn("careful", 42); module.exports = function () { return null; };`)
	require.NoError(t, err)

	entries := logs.FilterMessage("careful 42").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "chatty", entries[0].ContextMap()["screen_id"])
}
