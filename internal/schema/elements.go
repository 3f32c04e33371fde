package schema

// elements is an insertion ordered map of named schema elements.
type elements[T any] struct {
	keys  []string
	items map[string]T
}

func (e *elements[T]) set(key string, item T) {
	if e.items == nil {
		e.items = map[string]T{}
	}
	if _, ok := e.items[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.items[key] = item
}

func (e *elements[T]) get(key string) (T, bool) {
	item, ok := e.items[key]
	return item, ok
}

func (e *elements[T]) has(key string) bool {
	_, ok := e.items[key]
	return ok
}

func (e *elements[T]) remove(key string) {
	if _, ok := e.items[key]; !ok {
		return
	}
	delete(e.items, key)
	for n, k := range e.keys {
		if k == key {
			e.keys = append(e.keys[:n:n], e.keys[n+1:]...)
			break
		}
	}
}

func (e *elements[T]) values() []T {
	result := make([]T, 0, len(e.keys))
	for _, key := range e.keys {
		result = append(result, e.items[key])
	}
	return result
}

func (e *elements[T]) len() int {
	return len(e.keys)
}

// find returns the key of the first item accepted by match.
func (e *elements[T]) find(match func(T) bool) (string, T, bool) {
	for _, key := range e.keys {
		if item := e.items[key]; match(item) {
			return key, item, true
		}
	}
	var zero T
	return "", zero, false
}

// remount rebuilds the map keyed by the current name of each item.
func (e *elements[T]) remount(name func(T) string) {
	items := e.values()
	e.keys, e.items = nil, nil
	for _, item := range items {
		e.set(name(item), item)
	}
}

func (e *elements[T]) clone(cloneItem func(T) T) elements[T] {
	var c elements[T]
	for _, key := range e.keys {
		c.set(key, cloneItem(e.items[key]))
	}
	return c
}
