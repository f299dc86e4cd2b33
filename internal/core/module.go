// Package core provides the module system herald is assembled from:
// a global module registry, lifecycle interfaces, and the App that
// loads, starts, and stops modules.
package core

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ModuleID names a module, namespaced by dots (e.g. "channel.telegram").
type ModuleID string

// Namespace returns the portion of the ID before the last dot, or ""
// for un-namespaced modules.
func (id ModuleID) Namespace() string {
	s := string(id)
	i := strings.LastIndex(s, ".")
	if i < 0 {
		return ""
	}
	return s[:i]
}

// Name returns the portion of the ID after the last dot, or the whole
// ID for un-namespaced modules. Channels use it as their routing name,
// so "channel.telegram" produces messages tagged "telegram".
func (id ModuleID) Name() string {
	s := string(id)
	i := strings.LastIndex(s, ".")
	if i < 0 {
		return s
	}
	return s[i+1:]
}

// ModuleInfo describes a registered module: its ID and a constructor
// returning a fresh, unconfigured instance.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

// Module is the minimal interface every herald module implements.
// Lifecycle behavior is added through the optional interfaces in
// lifecycle.go.
type Module interface {
	ModuleInfo() ModuleInfo
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]ModuleInfo)
)

// RegisterModule adds a module to the global registry, reading its
// ModuleInfo from the given instance. It panics on empty IDs, nil
// constructors, and duplicate registrations; it is meant to be called
// from init() where a panic surfaces a programming error at startup.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	if info.ID == "" {
		panic("core: module ID must not be empty")
	}
	if info.New == nil {
		panic(fmt.Sprintf("core: module %s has a nil New function", info.ID))
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	id := string(info.ID)
	if _, dup := registry[id]; dup {
		panic("core: module already registered: " + id)
	}
	registry[id] = info
}

// GetModule looks up a registered module by ID.
func GetModule(id string) (ModuleInfo, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	info, ok := registry[id]
	return info, ok
}

// Modules returns all registered modules sorted by ID.
func Modules() []ModuleInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]ModuleInfo, 0, len(registry))
	for _, info := range registry {
		out = append(out, info)
	}
	sortInfos(out)
	return out
}

// ModulesInNamespace returns registered modules whose ID lives under the
// given namespace (e.g. "channel" matches "channel.telegram").
func ModulesInNamespace(namespace string) []ModuleInfo {
	prefix := namespace + "."

	registryMu.RLock()
	defer registryMu.RUnlock()

	var out []ModuleInfo
	for id, info := range registry {
		if strings.HasPrefix(id, prefix) {
			out = append(out, info)
		}
	}
	sortInfos(out)
	return out
}

func sortInfos(infos []ModuleInfo) {
	slices.SortFunc(infos, func(a, b ModuleInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
}

// resetRegistry clears the registry. Only for testing.
func resetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]ModuleInfo)
}
