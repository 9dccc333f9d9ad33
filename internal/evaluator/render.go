package evaluator

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dop251/goja"

	"github.com/vburojevic/hotswap/internal/domain"
)

const maxRenderDepth = 256

// errTooDeep guards against runaway recursive component trees
var errTooDeep = errors.New("component tree too deep")

// jsComponent is a function exported by evaluated source
type jsComponent struct {
	sb   *sandbox
	fn   goja.Callable
	name string
}

// Render calls the component with props and resolves the returned element tree.
// Function-typed elements are called recursively; host elements become nodes.
func (c *jsComponent) Render(props map[string]interface{}) (*domain.Node, error) {
	c.sb.mu.Lock()
	defer c.sb.mu.Unlock()

	var nodes []*domain.Node
	_, err := c.sb.run(func() (goja.Value, error) {
		vm := c.sb.vm
		arg := vm.NewObject()
		for k, v := range props {
			_ = arg.Set(k, v)
		}
		out, err := c.fn(goja.Undefined(), arg)
		if err != nil {
			return nil, err
		}
		r := &renderer{vm: vm}
		nodes, err = r.resolve(out, 0)
		return nil, err
	})
	if err != nil {
		return nil, newEvaluationError(c.sb.screenID, err, c.sb.timeout)
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return &domain.Node{Type: domain.NodeTypeFragment, Children: nodes}, nil
}

type renderer struct {
	vm *goja.Runtime
}

func (r *renderer) resolve(v goja.Value, depth int) ([]*domain.Node, error) {
	if depth > maxRenderDepth {
		return nil, errTooDeep
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}

	obj, isObj := v.(*goja.Object)
	if !isObj {
		switch x := v.Export().(type) {
		case bool:
			return nil, nil
		case string:
			return []*domain.Node{{Text: x}}, nil
		default:
			return []*domain.Node{{Text: v.String()}}, nil
		}
	}

	if obj.ClassName() == "Array" {
		var out []*domain.Node
		n := int(obj.Get("length").ToInteger())
		for i := 0; i < n; i++ {
			child, err := r.resolve(obj.Get(itoa(i)), depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, child...)
		}
		return out, nil
	}

	if tag := obj.Get("$$typeof"); tag == nil || tag.String() != elementTag {
		if _, ok := goja.AssertFunction(obj); ok {
			// Functions are not renderable children; React drops them too.
			return nil, nil
		}
		return nil, fmt.Errorf("objects are not valid as a child (keys: %v)", obj.Keys())
	}

	typ := obj.Get("type")
	props, _ := obj.Get("props").(*goja.Object)
	if props == nil {
		props = r.vm.NewObject()
	}

	if fn, ok := goja.AssertFunction(typ); ok {
		out, err := fn(goja.Undefined(), props)
		if err != nil {
			return nil, err
		}
		return r.resolve(out, depth+1)
	}

	name := typ.String()
	children, err := r.resolve(props.Get("children"), depth+1)
	if err != nil {
		return nil, err
	}
	if name == domain.NodeTypeFragment {
		return children, nil
	}
	return []*domain.Node{{
		Type:     name,
		Props:    exportProps(props),
		Children: children,
	}}, nil
}

// exportProps converts props to plain Go values. Functions (event handlers)
// become a placeholder so trees stay comparable and serializable.
func exportProps(props *goja.Object) map[string]interface{} {
	out := make(map[string]interface{})
	for _, k := range props.Keys() {
		if k == "children" {
			continue
		}
		v := props.Get(k)
		if _, ok := goja.AssertFunction(v); ok {
			out[k] = "[function]"
			continue
		}
		out[k] = sanitize(v.Export())
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func sanitize(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(x))
		for k, vv := range x {
			m[k] = sanitize(vv)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(x))
		for i, vv := range x {
			s[i] = sanitize(vv)
		}
		return s
	case func(goja.FunctionCall) goja.Value:
		return "[function]"
	default:
		return x
	}
}

func itoa(i int) string { return strconv.Itoa(i) }
