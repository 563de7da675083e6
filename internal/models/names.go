package models

import (
	"fmt"
	"path"
	"strings"
)

// NameSet hands out download names, renaming repeats to "name (n).ext".
// A generated name is itself reserved, so it is never handed out twice.
type NameSet map[string]int

// NewNameSet returns an empty set.
func NewNameSet() NameSet { return make(NameSet) }

// Unique returns name, or the first free "name (n).ext" variant.
func (s NameSet) Unique(name string) string {
	n := s[name]
	s[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	candidate := fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), n, ext)
	if _, taken := s[candidate]; taken {
		return s.Unique(candidate)
	}
	s[candidate] = 1
	return candidate
}
