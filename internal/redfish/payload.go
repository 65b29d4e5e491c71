package redfish

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Payload is the decoded document returned by one endpoint path.
type Payload struct {
	path string
	root Node
}

// Decode parses a JSON body into a Payload.
func Decode(path string, data []byte) (*Payload, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errFactory.Wrap(ErrDecodeFailed, err).WithData(path)
	}

	return &Payload{path: path, root: Node{v: v, ok: true}}, nil
}

// Path returns the endpoint path the payload was fetched from.
func (p *Payload) Path() string {
	return p.path
}

// Root returns the top-level node.
func (p *Payload) Root() Node {
	if p == nil {
		return Node{}
	}

	return p.root
}

// Get is shorthand for Root().Get(keys...).
func (p *Payload) Get(keys ...string) Node {
	return p.Root().Get(keys...)
}

// Node is a position in a payload tree. The zero Node is missing; every
// accessor on it returns a zero value.
type Node struct {
	v  any
	ok bool
}

// Get walks object keys. A missing key or a non-object along the way
// yields a missing Node.
func (n Node) Get(keys ...string) Node {
	cur := n
	for _, k := range keys {
		obj, ok := cur.v.(map[string]any)
		if !ok {
			return Node{}
		}
		v, ok := obj[k]
		if !ok {
			return Node{}
		}
		cur = Node{v: v, ok: true}
	}

	return cur
}

// GetFold is Get with a case-insensitive match on a single key.
func (n Node) GetFold(key string) Node {
	obj, ok := n.v.(map[string]any)
	if !ok {
		return Node{}
	}
	if v, ok := obj[key]; ok {
		return Node{v: v, ok: true}
	}
	for k, v := range obj {
		if strings.EqualFold(k, key) {
			return Node{v: v, ok: true}
		}
	}

	return Node{}
}

// Index returns element i of an array node.
func (n Node) Index(i int) Node {
	arr, ok := n.v.([]any)
	if !ok || i < 0 || i >= len(arr) {
		return Node{}
	}

	return Node{v: arr[i], ok: true}
}

// Exists reports whether the node is present, including explicit nulls.
func (n Node) Exists() bool {
	return n.ok
}

// IsNull reports an explicit JSON null.
func (n Node) IsNull() bool {
	return n.ok && n.v == nil
}

func (n Node) IsObject() bool {
	_, ok := n.v.(map[string]any)
	return ok
}

func (n Node) IsArray() bool {
	_, ok := n.v.([]any)
	return ok
}

// Str returns the node's string value.
func (n Node) Str() (string, bool) {
	s, ok := n.v.(string)
	return s, ok
}

// String returns the string value or "".
func (n Node) String() string {
	s, _ := n.Str()
	return s
}

// Float returns a numeric value. Numeric strings are accepted since some
// firmware quotes readings.
func (n Node) Float() (float64, bool) {
	switch v := n.v.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}

	return 0, false
}

// Array returns the elements of an array node, or nil.
func (n Node) Array() []Node {
	arr, ok := n.v.([]any)
	if !ok {
		return nil
	}

	out := make([]Node, len(arr))
	for i, v := range arr {
		out[i] = Node{v: v, ok: true}
	}

	return out
}

// Keys returns the sorted keys of an object node.
func (n Node) Keys() []string {
	obj, ok := n.v.(map[string]any)
	if !ok {
		return nil
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// Link returns the @odata.id of the navigation property key, or "".
func (n Node) Link(key string) string {
	return n.Get(key, "@odata.id").String()
}

// Members returns the @odata.id links of a collection's Members array in
// payload order.
func (n Node) Members() []string {
	var links []string
	for _, m := range n.Get("Members").Array() {
		if id := m.Get("@odata.id").String(); id != "" {
			links = append(links, id)
		}
	}

	return links
}
