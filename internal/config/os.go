package config

import (
	"os"
	"strings"
)

type OSInterface interface {
	Environ() map[string]string
	Stat(name string) (os.FileInfo, error)
	ReadFile(filename string) ([]byte, error)
}

var defaultOS = OSInterface(osAdapter{})

type osAdapter struct{}

func (osAdapter) Stat(name string) (os.FileInfo, error)    { return os.Stat(name) }
func (osAdapter) ReadFile(filename string) ([]byte, error) { return os.ReadFile(filename) }

func (osAdapter) Environ() map[string]string {
	environ := os.Environ()
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}
