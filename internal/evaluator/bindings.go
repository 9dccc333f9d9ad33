package evaluator

import (
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// elementTag marks objects produced by React.createElement
const elementTag = "hotswap.element"

// Primitives are the host component names visible to evaluated source.
// They evaluate to their own names and render as host nodes.
var Primitives = []string{
	"View",
	"Text",
	"ScrollView",
	"Image",
	"Pressable",
	"TouchableOpacity",
	"TextInput",
	"FlatList",
	"SafeAreaView",
	"StatusBar",
	"Button",
}

// install sets the allow-list on a fresh runtime. Nothing else from the
// host process is reachable from evaluated code.
func install(vm *goja.Runtime, screenID string, log *zap.Logger) error {
	react := vm.NewObject()
	if err := react.Set("createElement", createElement(vm)); err != nil {
		return err
	}
	if err := react.Set("Fragment", "Fragment"); err != nil {
		return err
	}

	styles := vm.NewObject()
	if err := styles.Set("create", func(call goja.FunctionCall) goja.Value {
		return call.Argument(0)
	}); err != nil {
		return err
	}
	if err := styles.Set("flatten", flattenStyle(vm)); err != nil {
		return err
	}

	globals := map[string]interface{}{
		"React":      react,
		"StyleSheet": styles,
		"console":    newConsole(vm, screenID, log),
	}
	for _, p := range Primitives {
		globals[p] = p
	}
	for name, v := range globals {
		if err := vm.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

// createElement builds {$$typeof, type, props} with children folded into props
func createElement(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		el := vm.NewObject()
		props := vm.NewObject()

		if src := call.Argument(1); !goja.IsUndefined(src) && !goja.IsNull(src) {
			obj := src.ToObject(vm)
			for _, k := range obj.Keys() {
				_ = props.Set(k, obj.Get(k))
			}
		}

		switch children := call.Arguments; {
		case len(children) == 3:
			_ = props.Set("children", children[2])
		case len(children) > 3:
			items := make([]interface{}, 0, len(children)-2)
			for _, c := range children[2:] {
				items = append(items, c)
			}
			_ = props.Set("children", vm.NewArray(items...))
		}

		_ = el.Set("$$typeof", elementTag)
		_ = el.Set("type", call.Argument(0))
		_ = el.Set("props", props)
		return el
	}
}

func flattenStyle(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		out := vm.NewObject()
		var merge func(v goja.Value)
		merge = func(v goja.Value) {
			if goja.IsUndefined(v) || goja.IsNull(v) {
				return
			}
			obj, ok := v.(*goja.Object)
			if !ok {
				return
			}
			if obj.ClassName() == "Array" {
				n := int(obj.Get("length").ToInteger())
				for i := 0; i < n; i++ {
					merge(obj.Get(itoa(i)))
				}
				return
			}
			for _, k := range obj.Keys() {
				_ = out.Set(k, obj.Get(k))
			}
		}
		merge(call.Argument(0))
		return out
	}
}

// newConsole routes console calls to the structured logger
func newConsole(vm *goja.Runtime, screenID string, log *zap.Logger) *goja.Object {
	c := vm.NewObject()
	logger := log.With(zap.String("screen_id", screenID), zap.String("source", "console"))
	levels := map[string]func(string, ...zap.Field){
		"log":   logger.Info,
		"info":  logger.Info,
		"debug": logger.Debug,
		"warn":  logger.Warn,
		"error": logger.Error,
	}
	for name, fn := range levels {
		fn := fn
		_ = c.Set(name, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, a := range call.Arguments {
				parts = append(parts, a.String())
			}
			fn(strings.Join(parts, " "))
			return goja.Undefined()
		})
	}
	return c
}
