package lookup

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyEncoder   = errors.New("encoder has no classes")
	ErrDuplicateClass = errors.New("encoder has duplicate class")
)

// LabelEncoder maps a categorical value to its index in the class list the
// model was trained with. Values never seen in training are mapped to the
// fallback class (the first class) before encoding.
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

// NewLabelEncoder builds an encoder over classes in the given order.
func NewLabelEncoder(classes []string) (*LabelEncoder, error) {
	if len(classes) == 0 {
		return nil, ErrEmptyEncoder
	}
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateClass, c)
		}
		index[c] = i
	}
	return &LabelEncoder{
		classes: append([]string(nil), classes...),
		index:   index,
	}, nil
}

// Encode returns the class index of value. known is false when value was
// unseen and the fallback class was used instead.
func (e *LabelEncoder) Encode(value string) (code int, known bool) {
	if i, ok := e.index[value]; ok {
		return i, true
	}
	return 0, false
}

// Fallback is the class unseen values are replaced with.
func (e *LabelEncoder) Fallback() string { return e.classes[0] }

// Classes returns a copy of the class list.
func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}
